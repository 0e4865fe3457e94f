package vellum

import (
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/vellumtext/vellum/lexer"
)

// TagFunc compiles a block tag into a node. It receives the parser so it can
// consume the tag body (via Parse with an end-tag sentinel) and compile
// filter expressions from the tag's arguments.
type TagFunc func(p *Parser, token *lexer.Token) (Node, error)

// openTag tracks a block tag whose compile function is currently running, so
// an unclosed tag error can name the innermost open tag.
type openTag struct {
	command string
	token   *lexer.Token
}

// Parser turns a token stream into a node tree. Block tags are dispatched to
// registered tag functions; those call back into Parse to compile their
// bodies, so the parser and the tag functions are mutually recursive.
type Parser struct {
	tokens  []*lexer.Token
	tags    map[string]TagFunc
	filters map[string]*Filter
	origin  *Origin

	commandStack []openTag
}

// NewParser creates a parser over a token stream. The libraries supply the
// known tags and filters; later libraries shadow earlier ones on name
// clashes.
func NewParser(tokens []lexer.Token, origin *Origin, libraries ...*Library) *Parser {
	p := &Parser{
		tokens:  make([]*lexer.Token, len(tokens)),
		tags:    make(map[string]TagFunc),
		filters: make(map[string]*Filter),
		origin:  origin,
	}
	// Reverse so NextToken can pop from the end.
	for i := range tokens {
		p.tokens[len(tokens)-1-i] = &tokens[i]
	}
	for _, lib := range libraries {
		p.AddLibrary(lib)
	}
	return p
}

// AddLibrary registers a library's tags and filters with the parser.
func (p *Parser) AddLibrary(lib *Library) {
	for name, fn := range lib.Tags {
		p.tags[name] = fn
	}
	for name, f := range lib.Filters {
		p.filters[name] = f
	}
}

// Parse compiles tokens into a node list until an end-tag named in until is
// seen. The end-tag token is pushed back for the caller to consume (or
// delete), so a tag function can distinguish which of several stop tags
// closed its body. Parsing the whole stream is Parse with no arguments.
func (p *Parser) Parse(until ...string) (*NodeList, error) {
	nodelist := NewNodeList()
	for len(p.tokens) > 0 {
		token := p.NextToken()
		switch token.Type {
		case lexer.TokenText:
			if err := p.extendNodeList(nodelist, &TextNode{Text: token.Contents}, token); err != nil {
				return nil, err
			}
		case lexer.TokenVar:
			if token.Contents == "" {
				return nil, p.annotate(NewError(ErrEmptyTag, "Empty variable tag on line %d", token.Lineno), token)
			}
			expr, err := p.CompileFilter(token.Contents)
			if err != nil {
				return nil, p.annotate(err, token)
			}
			if err := p.extendNodeList(nodelist, &VariableNode{Expr: expr}, token); err != nil {
				return nil, err
			}
		case lexer.TokenBlock:
			command, _, _ := strings.Cut(token.Contents, " ")
			if command == "" {
				return nil, p.annotate(NewError(ErrEmptyTag, "Empty block tag on line %d", token.Lineno), token)
			}
			if slices.Contains(until, command) {
				// A matching end tag: put it back and let the caller decide
				// what to do with it.
				p.PrependToken(token)
				return nodelist, nil
			}
			p.commandStack = append(p.commandStack, openTag{command, token})
			tagFn, ok := p.tags[command]
			if !ok {
				return nil, p.invalidBlockTag(token, command, until)
			}
			node, err := tagFn(p, token)
			if err != nil {
				return nil, p.annotate(err, token)
			}
			if err := p.extendNodeList(nodelist, node, token); err != nil {
				return nil, err
			}
			p.commandStack = p.commandStack[:len(p.commandStack)-1]
		}
	}
	if len(until) > 0 {
		return nil, p.unclosedBlockTag(until)
	}
	return nodelist, nil
}

// SkipPast discards tokens up to and including the named end tag. Tags whose
// bodies are never rendered use this instead of Parse.
func (p *Parser) SkipPast(endtag string) error {
	for len(p.tokens) > 0 {
		token := p.NextToken()
		if token.Type == lexer.TokenBlock && token.Contents == endtag {
			return nil
		}
	}
	return p.unclosedBlockTag([]string{endtag})
}

// NextToken removes and returns the next token.
func (p *Parser) NextToken() *lexer.Token {
	t := p.tokens[len(p.tokens)-1]
	p.tokens = p.tokens[:len(p.tokens)-1]
	return t
}

// PrependToken pushes a token back so it is returned by the next NextToken.
func (p *Parser) PrependToken(t *lexer.Token) {
	p.tokens = append(p.tokens, t)
}

// DeleteFirstToken discards the next token. Tag functions use it to consume
// the end tag that Parse pushed back.
func (p *Parser) DeleteFirstToken() {
	p.tokens = p.tokens[:len(p.tokens)-1]
}

// CompileFilter compiles a filter expression against the parser's filters.
func (p *Parser) CompileFilter(token string) (*FilterExpression, error) {
	return CompileFilterExpression(token, p)
}

// FindFilter returns the named filter or an invalid-filter error.
func (p *Parser) FindFilter(name string) (*Filter, error) {
	if f, ok := p.filters[name]; ok {
		return f, nil
	}
	return nil, NewError(ErrInvalidFilter, "Invalid filter: '%s'", name)
}

// extendNodeList appends a compiled node, recording its source position and
// enforcing the must-be-first restriction.
func (p *Parser) extendNodeList(nodelist *NodeList, node Node, token *lexer.Token) error {
	if mb, ok := node.(interface{ MustBeFirst() bool }); ok && mb.MustBeFirst() && nodelist.containsNonText {
		return p.annotate(NewError(ErrSyntax,
			"'%s' must be the first tag in the template.", token.Contents), token)
	}
	if nb, ok := node.(interface{ base() *NodeBase }); ok {
		nb.base().bindSource(token, p.origin)
	}
	nodelist.Append(node)
	return nil
}

// annotate attaches the failing token and origin to an error. An error that
// already carries a token is left alone: the innermost failure wins.
func (p *Parser) annotate(err error, token *lexer.Token) error {
	var te *Error
	if !errors.As(err, &te) {
		te = &Error{Kind: ErrSyntax, Message: err.Error(), Cause: err}
	}
	return te.WithToken(token).WithOrigin(p.origin)
}

func (p *Parser) invalidBlockTag(token *lexer.Token, command string, until []string) error {
	if len(until) > 0 {
		quoted := make([]string, len(until))
		for i, u := range until {
			quoted[i] = "'" + u + "'"
		}
		return p.annotate(NewError(ErrInvalidTag,
			"Invalid block tag on line %d: '%s', expected %s. Did you forget to register or load this tag?",
			token.Lineno, command, textList(quoted, "or")), token)
	}
	return p.annotate(NewError(ErrInvalidTag,
		"Invalid block tag on line %d: '%s'. Did you forget to register or load this tag?",
		token.Lineno, command), token)
}

func (p *Parser) unclosedBlockTag(until []string) error {
	if len(p.commandStack) == 0 {
		return p.annotate(NewError(ErrUnclosedTag,
			"Unclosed tag. Looking for one of: %s.", strings.Join(until, ", ")), nil)
	}
	open := p.commandStack[len(p.commandStack)-1]
	p.commandStack = p.commandStack[:len(p.commandStack)-1]
	return p.annotate(NewError(ErrUnclosedTag,
		"Unclosed tag on line %d: '%s'. Looking for one of: %s.",
		open.token.Lineno, open.command, strings.Join(until, ", ")), open.token)
}

// textList joins items with commas and a final word, as in "'a', 'b' or 'c'".
func textList(items []string, lastWord string) string {
	switch len(items) {
	case 0:
		return ""
	case 1:
		return items[0]
	}
	return fmt.Sprintf("%s %s %s",
		strings.Join(items[:len(items)-1], ", "), lastWord, items[len(items)-1])
}

var kwargRe = regexp.MustCompile(`^(?:(\w+)=)?(.+)$`)

// TokenKwargs parses "key=value" pairs from the start of a bit list into
// compiled filter expressions, returning the kwargs and the bits left over.
// With supportLegacy the older "value as key" form is accepted too, with
// "and" between pairs. Parsing stops at the first bit that fits neither
// form; a malformed trailing bit is the caller's to report.
func TokenKwargs(bits []string, p *Parser, supportLegacy bool) (map[string]*FilterExpression, []string, error) {
	kwargs := make(map[string]*FilterExpression)
	if len(bits) == 0 {
		return kwargs, bits, nil
	}
	m := kwargRe.FindStringSubmatch(bits[0])
	kwargFormat := m != nil && m[1] != ""
	if !kwargFormat {
		if !supportLegacy {
			return kwargs, bits, nil
		}
		if len(bits) < 3 || bits[1] != "as" {
			return kwargs, bits, nil
		}
	}
	for len(bits) > 0 {
		var key, value string
		if kwargFormat {
			m := kwargRe.FindStringSubmatch(bits[0])
			if m == nil || m[1] == "" {
				return kwargs, bits, nil
			}
			key, value = m[1], m[2]
			bits = bits[1:]
		} else {
			if len(bits) < 3 || bits[1] != "as" {
				return kwargs, bits, nil
			}
			key, value = bits[2], bits[0]
			bits = bits[3:]
		}
		expr, err := p.CompileFilter(value)
		if err != nil {
			return nil, bits, err
		}
		kwargs[key] = expr
		if len(bits) > 0 && !kwargFormat {
			if bits[0] != "and" {
				return kwargs, bits, nil
			}
			bits = bits[1:]
		}
	}
	return kwargs, bits, nil
}
