// Package vellum provides a Django-style template engine for Go.
//
// Templates mix raw text with three kinds of delimited tags: variables,
// block tags and comments. Variables support dotted lookups and filter
// chains; block tags span regions of the template and can nest.
//
// # Quick Start
//
// Basic usage:
//
//	engine := vellum.New()
//	tmpl, _ := engine.FromString("Hello {{ name|upper }}!")
//	out, _ := tmpl.Render(engine.NewContext(map[string]any{"name": "World"}))
//	fmt.Println(out) // Output: Hello WORLD!
//
// # Template Syntax
//
// Key syntax elements:
//   - Variables: {{ variable }} with dotted lookups {{ user.name }}
//   - Filters: {{ value|filter:"arg" }}
//   - Block tags: {% if condition %}...{% endif %}
//   - Comments: {# comment #} and {% comment %}...{% endcomment %}
//
// Dotted lookups try, in order: a container key, an attribute (struct field
// or method), and an integer index. A value resolved to a zero-argument
// callable is invoked, unless it opts out via the DoNotCallInTemplates or
// AltersData markers.
//
// # Engine Configuration
//
// The Engine is the central configuration object:
//
//	engine := vellum.New()
//	engine.SetDebug(true)
//	engine.SetStringIfInvalid("[missing: %s]")
//	engine.SetLoader(func(name string) (string, *vellum.Origin, error) {
//	    src, err := os.ReadFile(filepath.Join("templates", name))
//	    return string(src), nil, err
//	})
//
// # Custom Tags and Filters
//
// Filters are plain Go functions over the filtered value:
//
//	lib := vellum.NewLibrary()
//	lib.Filter("reverse", func(value string) string { ... })
//	lib.Tag("now", func(p *vellum.Parser, t *lexer.Token) (vellum.Node, error) { ... })
//	engine.AddLibrary(lib)
//
// # Autoescaping
//
// Rendered variable values are HTML-escaped by default. Values wrapped with
// MarkSafe, or produced by a filter that promises safety over safe input,
// pass through unescaped. The autoescape tag and engine setting control the
// default.
//
// # Error Handling
//
// Compile and render failures are *Error values carrying the failing token
// and, in debug mode, an ExceptionInfo snapshot of the surrounding source:
//
//	if err != nil {
//	    var terr *vellum.Error
//	    if errors.As(err, &terr) && terr.Debug != nil {
//	        vellum.RenderExceptionInfo(os.Stderr, terr.Debug, true)
//	    }
//	}
package vellum

import "reflect"

// RenderString compiles and renders a one-off template with a fresh default
// engine. For anything beyond throwaway use, configure an Engine and reuse
// its compiled templates.
func RenderString(source string, data map[string]any) (string, error) {
	engine := New()
	t, err := engine.FromString(source)
	if err != nil {
		return "", err
	}
	return t.Render(engine.NewContext(data))
}

// IsTrue reports template truthiness: nil, false, zero numbers and empty
// strings, slices and maps are false; everything else is true.
func IsTrue(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case SafeString:
		return t != ""
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int() != 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint() != 0
	case reflect.Float32, reflect.Float64:
		return rv.Float() != 0
	case reflect.Slice, reflect.Map, reflect.Array, reflect.Chan:
		return rv.Len() > 0
	case reflect.Ptr, reflect.Interface:
		if rv.IsNil() {
			return false
		}
		return IsTrue(rv.Elem().Interface())
	}
	return true
}
