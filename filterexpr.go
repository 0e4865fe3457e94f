package vellum

import (
	"errors"
	"regexp"
	"strings"
)

// This only matches constant *strings* (things in quotes or marked for
// translation). Numbers are treated as variables so they keep their type
// when passed to filters.
const (
	strDQ = `"[^"\\]*(?:\\.[^"\\]*)*"`
	strSQ = `'[^'\\]*(?:\\.[^'\\]*)*'`
	num   = `[-+\.]?\d[\d\.e]*`
	varCh = `[\w\.]+`
)

var filterRe = regexp.MustCompile(
	`^(?P<constant>` + constantPattern + `)` +
		`|^(?P<var>` + varCh + `|` + num + `)` +
		`|(?:\s*\|\s*` +
		`(?P<filter_name>\w+)` +
		`(?::(?:` +
		`(?P<constant_arg>` + constantPattern + `)` +
		`|(?P<var_arg>` + varCh + `|` + num + `)` +
		`))?` +
		`)`)

const constantPattern = `(?:_\(` + strDQ + `\)|_\(` + strSQ + `\)|` + strDQ + `|` + strSQ + `)`

var (
	groupConstant    = filterRe.SubexpIndex("constant")
	groupVar         = filterRe.SubexpIndex("var")
	groupFilterName  = filterRe.SubexpIndex("filter_name")
	groupConstantArg = filterRe.SubexpIndex("constant_arg")
	groupVarArg      = filterRe.SubexpIndex("var_arg")
)

type filterArg struct {
	lookup   bool
	literal  any       // constant argument, resolved at compile time
	variable *Variable // lookup argument, resolved at render time
}

type boundFilter struct {
	name   string
	filter *Filter
	args   []filterArg
}

// FilterExpression is a compiled variable plus an ordered chain of filters
// with their arguments, parsed from "variable|filter:arg|filter2" syntax.
// It is immutable after construction and safe to share across renders.
//
//	fe, _ := parser.CompileFilter(`variable|default:"Default value"`)
//	fe.Resolve(ctx, false)
type FilterExpression struct {
	token    string
	variable *Variable
	literal  any
	filters  []boundFilter
}

// CompileFilterExpression parses a filter expression against a filter
// registry. The grammar is matched left to right with no gaps allowed: any
// unrecognized character range is a syntax error reported with its
// surrounding context. Filter argument counts are validated here, at
// compile time, not at render time.
func CompileFilterExpression(token string, registry FilterRegistry) (*FilterExpression, error) {
	fe := &FilterExpression{token: token}
	upto := 0
	varSet := false

	for _, m := range filterRe.FindAllStringSubmatchIndex(token, -1) {
		start, end := m[0], m[1]
		if upto != start {
			return nil, NewError(ErrSyntax, "Could not parse some characters: %s|%s|%s",
				token[:upto], token[upto:start], token[start:])
		}
		if !varSet {
			constant := submatch(token, m, groupConstant)
			variable := submatch(token, m, groupVar)
			switch {
			case constant != "":
				cv, err := NewVariable(constant)
				if err != nil {
					return nil, err
				}
				if cv.translate {
					// Translation runs against the render context, so the
					// value cannot be frozen here.
					fe.variable = cv
					break
				}
				val, err := cv.Resolve(map[string]any{})
				if err != nil {
					var miss *VariableDoesNotExist
					if !errors.As(err, &miss) {
						return nil, err
					}
					val = nil
				}
				fe.literal = val
			case variable == "":
				return nil, NewError(ErrSyntax, "Could not find variable at start of %s.", token)
			default:
				v, err := NewVariable(variable)
				if err != nil {
					return nil, err
				}
				fe.variable = v
			}
			varSet = true
		} else {
			filterName := submatch(token, m, groupFilterName)
			var args []filterArg
			if constantArg := submatch(token, m, groupConstantArg); constantArg != "" {
				cv, err := NewVariable(constantArg)
				if err != nil {
					return nil, err
				}
				if cv.translate {
					args = append(args, filterArg{lookup: true, variable: cv})
				} else {
					val, err := cv.Resolve(map[string]any{})
					if err != nil {
						return nil, err
					}
					args = append(args, filterArg{literal: val})
				}
			} else if varArg := submatch(token, m, groupVarArg); varArg != "" {
				v, err := NewVariable(varArg)
				if err != nil {
					return nil, err
				}
				args = append(args, filterArg{lookup: true, variable: v})
			}
			filter, err := registry.FindFilter(filterName)
			if err != nil {
				return nil, err
			}
			if err := filter.checkArgs(len(args)); err != nil {
				return nil, err
			}
			fe.filters = append(fe.filters, boundFilter{name: filterName, filter: filter, args: args})
		}
		upto = end
	}
	if upto != len(token) {
		return nil, NewError(ErrSyntax, "Could not parse the remainder: '%s' from '%s'",
			token[upto:], token)
	}
	return fe, nil
}

func submatch(token string, m []int, group int) string {
	if group < 0 || m[2*group] < 0 {
		return ""
	}
	return token[m[2*group]:m[2*group+1]]
}

// FilterRegistry resolves filter names at compile time.
type FilterRegistry interface {
	FindFilter(name string) (*Filter, error)
}

// String returns the original raw expression text exactly.
func (fe *FilterExpression) String() string {
	return fe.token
}

// Resolve resolves the base variable and applies the filter chain in order.
//
// A lookup miss on the base variable is recovered: with ignoreFailures the
// value becomes nil, otherwise the engine's invalid-variable fallback is
// used. A non-empty fallback short-circuits the chain (with one %s
// placeholder substituted by the failing expression); an empty one flows
// through the filters. Literal filter arguments carry the safe taint;
// filter output keeps the taint only when the filter promises safety and
// the input was safe.
func (fe *FilterExpression) Resolve(c *Context, ignoreFailures bool) (any, error) {
	var obj any
	switch {
	case fe.variable != nil:
		v, err := fe.variable.Resolve(c)
		if err != nil {
			var miss *VariableDoesNotExist
			if !errors.As(err, &miss) {
				return nil, err
			}
			if ignoreFailures {
				obj = nil
			} else {
				stringIfInvalid := c.stringIfInvalid()
				if stringIfInvalid != "" {
					if strings.Contains(stringIfInvalid, "%s") {
						return strings.Replace(stringIfInvalid, "%s", fe.variable.String(), 1), nil
					}
					return stringIfInvalid, nil
				}
				obj = stringIfInvalid
			}
		} else {
			obj = v
		}
	default:
		obj = fe.literal
	}

	for _, bf := range fe.filters {
		argVals := make([]any, 0, len(bf.args))
		for _, arg := range bf.args {
			if !arg.lookup {
				argVals = append(argVals, MarkSafe(arg.literal))
				continue
			}
			v, err := arg.variable.Resolve(c)
			if err != nil {
				return nil, err
			}
			argVals = append(argVals, v)
		}
		if bf.filter.ExpectsLocaltime {
			obj = TemplateLocaltime(obj, c.UseTZ)
		}
		newObj, err := bf.filter.apply(obj, argVals, c.Autoescape)
		if err != nil {
			return nil, err
		}
		if bf.filter.IsSafe && IsSafe(obj) {
			obj = MarkSafe(newObj)
		} else {
			obj = newObj
		}
	}
	return obj, nil
}
