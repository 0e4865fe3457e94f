package vellum

import (
	"fmt"
	"reflect"
	"strconv"

	"fortio.org/safecast"
	"github.com/sirupsen/logrus"
)

// Attributer lets a value expose attributes to template lookups without
// going through reflection.
type Attributer interface {
	// GetAttr returns the value of the named attribute and whether it
	// exists.
	GetAttr(name string) (any, bool)
}

// TemplateCallable is a value that can be invoked with zero arguments when
// encountered during a lookup. Plain funcs of no arguments are called the
// same way via reflection.
type TemplateCallable interface {
	TemplateCall() (any, error)
}

// DoNotCallInTemplates marks a callable that lookups must return uncalled.
//
// Together with AltersData this is a mandatory safety gate, not a hint:
// zero-argument auto-invocation is convenient but inherently risky, and a
// callable with side effects must carry one of these markers or it will be
// invoked during rendering.
type DoNotCallInTemplates interface {
	DoNotCallInTemplates()
}

// AltersData marks a callable with side effects. Instead of being called it
// resolves to the engine's invalid-variable fallback; templates must never
// trigger mutations.
type AltersData interface {
	AltersData()
}

// resolveLookup walks the dotted path segments against a current value
// starting at the context. Each segment is tried as a container key, then an
// attribute, then an integer index; when all three miss the lookup fails
// with *VariableDoesNotExist. A callable result is invoked with zero
// arguments subject to the safety gates documented on DoNotCallInTemplates.
func resolveLookup(context any, bits []string) (any, error) {
	current := context
	for _, bit := range bits {
		next, found := getKey(current, bit)
		if !found {
			next, found = getAttr(current, bit)
		}
		if !found {
			next, found = getIndex(current, bit)
		}
		if !found {
			return nil, &VariableDoesNotExist{
				Msg:     "Failed lookup for key [%s] in %v",
				Segment: bit,
				Current: current,
			}
		}
		current = next

		resolved, err := maybeCall(current, context)
		if err != nil {
			if IsSilentFailure(err) {
				// The whole lookup resolves to the fallback; remaining
				// segments are not walked against it.
				logrus.WithField("segment", bit).Debugf("silenced failure while resolving variable: %v", err)
				return fallbackValue(context), nil
			}
			return nil, err
		}
		current = resolved
	}
	return current, nil
}

// getKey tries container-key access. Context stacks answer key lookups
// themselves; maps with string-convertible keys go through reflection.
func getKey(current any, bit string) (any, bool) {
	switch c := current.(type) {
	case map[string]any:
		v, ok := c[bit]
		return v, ok
	case interface{ Get(string) (any, bool) }:
		return c.Get(bit)
	}
	rv := reflect.ValueOf(current)
	if !rv.IsValid() || rv.Kind() != reflect.Map {
		return nil, false
	}
	keyType := rv.Type().Key()
	if keyType.Kind() != reflect.String {
		return nil, false
	}
	item := rv.MapIndex(reflect.ValueOf(bit).Convert(keyType))
	if !item.IsValid() {
		return nil, false
	}
	return item.Interface(), true
}

// getAttr tries attribute access: the Attributer capability first, then an
// exported struct field, then a method. Context-like values are skipped
// entirely so templates cannot introspect the scope machinery.
func getAttr(current any, bit string) (any, bool) {
	if _, isContext := current.(interface{ contextLike() }); isContext {
		return nil, false
	}
	if a, ok := current.(Attributer); ok {
		return a.GetAttr(bit)
	}
	rv := reflect.ValueOf(current)
	if !rv.IsValid() {
		return nil, false
	}
	if m := rv.MethodByName(bit); m.IsValid() {
		return m.Interface(), true
	}
	elem := reflect.Indirect(rv)
	if elem.Kind() == reflect.Struct {
		if f := elem.FieldByName(bit); f.IsValid() && f.CanInterface() {
			return f.Interface(), true
		}
	}
	return nil, false
}

// getIndex tries sequence-index access with the segment parsed as an
// integer. Maps with integer keys are covered too.
func getIndex(current any, bit string) (any, bool) {
	n, err := strconv.ParseInt(bit, 10, 64)
	if err != nil {
		return nil, false
	}
	i, err := safecast.Conv[int](n)
	if err != nil {
		return nil, false
	}
	rv := reflect.ValueOf(current)
	if !rv.IsValid() {
		return nil, false
	}
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.String:
		if i < 0 || i >= rv.Len() {
			return nil, false
		}
		return rv.Index(i).Interface(), true
	case reflect.Map:
		keyType := rv.Type().Key()
		if !reflect.TypeOf(n).ConvertibleTo(keyType) || keyType.Kind() == reflect.String {
			return nil, false
		}
		item := rv.MapIndex(reflect.ValueOf(n).Convert(keyType))
		if !item.IsValid() {
			return nil, false
		}
		return item.Interface(), true
	}
	return nil, false
}

// maybeCall applies the callable policy to a freshly resolved value:
// do-not-call values pass through, data-altering callables resolve to the
// fallback without being called, zero-argument callables are invoked, and a
// callable that needs arguments resolves to the fallback instead of failing.
func maybeCall(current any, context any) (any, error) {
	if _, ok := current.(DoNotCallInTemplates); ok {
		return current, nil
	}
	if _, ok := current.(AltersData); ok {
		if isCallable(current) {
			return fallbackValue(context), nil
		}
		return current, nil
	}
	if tc, ok := current.(TemplateCallable); ok {
		v, err := tc.TemplateCall()
		if err != nil {
			return nil, err
		}
		return v, nil
	}

	rv := reflect.ValueOf(current)
	if !rv.IsValid() || rv.Kind() != reflect.Func {
		return current, nil
	}
	if rv.Type().NumIn() > 0 {
		// Arguments are required; templates cannot supply them.
		return fallbackValue(context), nil
	}
	out := rv.Call(nil)
	switch len(out) {
	case 0:
		return nil, nil
	case 1:
		return normalizeCallResult(out[0])
	case 2:
		if err, ok := out[1].Interface().(error); ok && err != nil {
			return nil, err
		}
		return normalizeCallResult(out[0])
	default:
		return nil, fmt.Errorf("callable returned %d values", len(out))
	}
}

func normalizeCallResult(v reflect.Value) (any, error) {
	if err, ok := v.Interface().(error); ok {
		return nil, err
	}
	return v.Interface(), nil
}

func isCallable(v any) bool {
	if _, ok := v.(TemplateCallable); ok {
		return true
	}
	rv := reflect.ValueOf(v)
	return rv.IsValid() && rv.Kind() == reflect.Func
}

// fallbackValue is the configured invalid-variable string when the lookup
// runs against a bound render context, or the empty string otherwise.
func fallbackValue(context any) any {
	if c, ok := context.(*Context); ok {
		return c.stringIfInvalid()
	}
	return ""
}
