package vellum

import (
	"strconv"
	"strings"

	"github.com/vellumtext/vellum/lexer"
)

// Variable is a compiled lookup expression: either a literal value (number,
// string, possibly marked for translation) or an ordered sequence of lookup
// segments split on ".". A Variable is constructed once per occurrence at
// compile time and reused across renders; it is immutable after
// construction.
//
//	c := map[string]any{"article": map[string]any{"section": "News"}}
//	v, _ := NewVariable("article.section")
//	v.Resolve(c) // "News"
type Variable struct {
	raw       string
	literal   any
	lookups   []string
	translate bool
}

// NewVariable compiles a raw variable expression.
//
// Parse order: numeric literal first (float when the text contains a period
// or an exponent marker, integer otherwise; a bare trailing period is
// invalid), then a quoted string literal optionally wrapped in the _( )
// translation marker, and finally a dotted lookup path. Lookup segments must
// not begin with an underscore; that namespace is reserved and rejected with
// a syntax error to keep object internals out of templates.
func NewVariable(raw string) (*Variable, error) {
	v := &Variable{raw: raw}
	if raw == "" {
		return nil, NewError(ErrSyntax, "empty variable expression")
	}

	if n, ok := parseNumber(raw); ok {
		v.literal = n
		return v, nil
	}

	text := raw
	if strings.HasPrefix(text, "_(") && strings.HasSuffix(text, ")") {
		// The result of the lookup should be translated at render time.
		v.translate = true
		text = text[2 : len(text)-1]
	}
	if unescaped, err := lexer.UnescapeStringLiteral(text); err == nil {
		v.literal = MarkSafe(unescaped)
		return v, nil
	}

	if strings.Contains(text, lexer.VariableAttributeSeparator+"_") || text[0] == '_' {
		return nil, NewError(ErrSyntax,
			"Variables and attributes may not begin with underscores: '%s'", text)
	}
	v.lookups = strings.Split(text, lexer.VariableAttributeSeparator)
	return v, nil
}

// parseNumber interprets raw as an int, or as a float when it contains a
// period or an exponent. "2." is invalid.
func parseNumber(raw string) (any, bool) {
	if strings.ContainsAny(raw, ".eE") {
		if strings.HasSuffix(raw, ".") {
			return nil, false
		}
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			return f, true
		}
		return nil, false
	}
	if i, err := strconv.Atoi(raw); err == nil {
		return i, true
	}
	return nil, false
}

// String returns the original raw expression.
func (v *Variable) String() string {
	return v.raw
}

// IsLiteral reports whether the variable resolves without a context lookup.
func (v *Variable) IsLiteral() bool {
	return v.lookups == nil
}

// Resolve resolves the variable against a context. The context may be a
// *Context or any value the staged lookup understands (a plain map is
// enough for literals and simple paths). A lookup miss is reported as
// *VariableDoesNotExist; see resolveLookup for the full policy.
func (v *Variable) Resolve(context any) (any, error) {
	var value any
	if v.lookups != nil {
		resolved, err := resolveLookup(context, v.lookups)
		if err != nil {
			return nil, err
		}
		value = resolved
	} else {
		value = v.literal
	}
	if v.translate {
		return translateValue(value, context), nil
	}
	return value, nil
}

// translateValue runs a string through the active localization. The safe
// taint survives translation; percent signs are escaped so they round-trip
// through the message formatter.
func translateValue(value any, context any) any {
	s, ok := value.(string)
	safe := false
	if !ok {
		var ss SafeString
		if ss, ok = value.(SafeString); ok {
			s = string(ss)
			safe = true
		}
	}
	if !ok {
		return value
	}
	msgid := strings.ReplaceAll(s, "%", "%%")
	translated := msgid
	if c, isCtx := context.(*Context); isCtx && c.template != nil && c.template.engine != nil {
		translated = c.template.engine.Translate(msgid)
	} else {
		// No engine bound: undo the escaping and pass the text through.
		translated = s
	}
	if safe {
		return MarkSafe(translated)
	}
	return translated
}
