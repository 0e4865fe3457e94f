package vellum

import (
	"fmt"
	"reflect"
)

var errType = reflect.TypeOf((*error)(nil)).Elem()

// Filter is a registered filter callable plus its behavior flags. Filters
// are plain Go functions taking the filtered value as their first parameter
// and returning the transformed value, optionally with an error:
//
//	func(value any) any
//	func(value string, arg int) (string, error)
//	func(value any, args ...any) any
//
// Optional trailing arguments are expressed with a variadic tail. A filter
// that declares NeedsAutoescape receives the context's autoescape flag as
// its final (pre-variadic) bool parameter.
type Filter struct {
	fn       reflect.Value
	name     string
	variadic bool
	// fixed is the number of required parameters, the implicit filtered
	// value included (the autoescape parameter excluded).
	fixed int

	// IsSafe promises that the output needs no escaping when the input was
	// already safe; the safe taint is preserved across the filter.
	IsSafe bool
	// NeedsAutoescape makes the engine pass the current autoescape flag.
	NeedsAutoescape bool
	// ExpectsLocaltime converts a time value to the active timezone before
	// the filter runs.
	ExpectsLocaltime bool
}

// FilterOption configures a filter at registration time.
type FilterOption func(*Filter)

// FilterIsSafe marks the filter output as safe when its input was safe.
func FilterIsSafe(f *Filter) { f.IsSafe = true }

// FilterNeedsAutoescape passes the autoescape flag as the final parameter.
func FilterNeedsAutoescape(f *Filter) { f.NeedsAutoescape = true }

// FilterExpectsLocaltime localizes time inputs before applying the filter.
func FilterExpectsLocaltime(f *Filter) { f.ExpectsLocaltime = true }

// NewFilter wraps a function as a template filter, validating its shape.
func NewFilter(name string, fn any, opts ...FilterOption) (*Filter, error) {
	rv := reflect.ValueOf(fn)
	if !rv.IsValid() || rv.Kind() != reflect.Func {
		return nil, fmt.Errorf("filter %s is not a function", name)
	}
	t := rv.Type()
	f := &Filter{fn: rv, name: name, variadic: t.IsVariadic()}
	for _, opt := range opts {
		opt(f)
	}

	f.fixed = t.NumIn()
	if f.variadic {
		f.fixed--
	}
	if f.NeedsAutoescape {
		if f.variadic || f.fixed < 2 || t.In(f.fixed-1).Kind() != reflect.Bool {
			return nil, fmt.Errorf("filter %s declares needs-autoescape but has no trailing bool parameter", name)
		}
		f.fixed--
	}
	if f.fixed < 1 {
		return nil, fmt.Errorf("filter %s must accept the filtered value", name)
	}
	switch t.NumOut() {
	case 1:
		if t.Out(0) == errType {
			return nil, fmt.Errorf("filter %s must return a value", name)
		}
	case 2:
		if t.Out(1) != errType {
			return nil, fmt.Errorf("filter %s second return value must be error", name)
		}
	default:
		return nil, fmt.Errorf("filter %s must return (value) or (value, error)", name)
	}
	return f, nil
}

// MustFilter is NewFilter panicking on invalid registration; intended for
// package-level filter libraries.
func MustFilter(name string, fn any, opts ...FilterOption) *Filter {
	f, err := NewFilter(name, fn, opts...)
	if err != nil {
		panic(err)
	}
	return f
}

// checkArgs validates at compile time that "1 implicit input + N provided
// args" is compatible with the function's declared parameter count.
func (f *Filter) checkArgs(provided int) error {
	plen := provided + 1
	if plen < f.fixed || (!f.variadic && plen > f.fixed) {
		return NewError(ErrInvalidFilter, "%s requires %d arguments, %d provided",
			f.name, f.fixed-1, provided)
	}
	return nil
}

// apply invokes the filter with the running value and resolved arguments.
// Arguments are converted to the declared parameter types where possible.
func (f *Filter) apply(value any, args []any, autoescape bool) (any, error) {
	in := make([]reflect.Value, 0, len(args)+2)
	t := f.fn.Type()

	conv, err := convertArg(value, t.In(0), f.name)
	if err != nil {
		return nil, err
	}
	in = append(in, conv)

	for i, arg := range args {
		var paramType reflect.Type
		if f.variadic && 1+i >= f.fixed {
			paramType = t.In(t.NumIn() - 1).Elem()
		} else {
			paramType = t.In(1 + i)
		}
		conv, err := convertArg(arg, paramType, f.name)
		if err != nil {
			return nil, err
		}
		in = append(in, conv)
	}
	if f.NeedsAutoescape {
		in = append(in, reflect.ValueOf(autoescape))
	}

	out := f.fn.Call(in)
	if len(out) == 2 {
		if err, ok := out[1].Interface().(error); ok && err != nil {
			return nil, err
		}
	}
	return out[0].Interface(), nil
}

// convertArg adapts a dynamic value to a declared parameter type. Strings
// drop their safe taint on the way in; the expression layer restores it on
// the way out when the filter promises safety.
func convertArg(v any, target reflect.Type, filterName string) (reflect.Value, error) {
	if target.Kind() == reflect.Interface && target.NumMethod() == 0 {
		if v == nil {
			return reflect.Zero(target), nil
		}
		return reflect.ValueOf(v), nil
	}
	if target.Kind() == reflect.String {
		return reflect.ValueOf(Stringify(v)).Convert(target), nil
	}
	if v == nil {
		return reflect.Zero(target), nil
	}
	rv := reflect.ValueOf(v)
	if rv.Type().AssignableTo(target) {
		return rv, nil
	}
	if rv.Type().ConvertibleTo(target) {
		return rv.Convert(target), nil
	}
	return reflect.Value{}, NewError(ErrInvalidFilter,
		"%s cannot accept %T as %s", filterName, v, target)
}
