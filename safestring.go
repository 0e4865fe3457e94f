package vellum

import (
	"fmt"
	"strings"
)

// SafeString is a string that is known to be safe for output: it requires no
// further HTML escaping. Autoescape rendering passes SafeString values
// through untouched, which is what prevents double-escaping.
type SafeString string

// MarkSafe marks a string value as safe. Already-safe values are returned as
// is, plain strings are wrapped, anything else is returned unchanged (only
// text participates in the escaping taint).
func MarkSafe(v any) any {
	switch s := v.(type) {
	case SafeString:
		return s
	case string:
		return SafeString(s)
	default:
		return v
	}
}

// IsSafe reports whether a value carries the safe taint.
func IsSafe(v any) bool {
	_, ok := v.(SafeString)
	return ok
}

// EscapeHTML escapes <, >, &, " and ' for HTML output.
func EscapeHTML(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch r {
		case '&':
			b.WriteString("&amp;")
		case '<':
			b.WriteString("&lt;")
		case '>':
			b.WriteString("&gt;")
		case '"':
			b.WriteString("&quot;")
		case '\'':
			b.WriteString("&#x27;")
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ConditionalEscape converts a value to text, escaping it unless it is
// already marked safe. The result is safe either way.
func ConditionalEscape(v any) SafeString {
	if s, ok := v.(SafeString); ok {
		return s
	}
	return SafeString(EscapeHTML(Stringify(v)))
}

// Stringify converts any value to its plain text form. Safe strings keep
// their content, nil becomes "None" to match the template builtins.
func Stringify(v any) string {
	switch s := v.(type) {
	case nil:
		return "None"
	case string:
		return s
	case SafeString:
		return string(s)
	case bool:
		if s {
			return "True"
		}
		return "False"
	case fmt.Stringer:
		return s.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}
