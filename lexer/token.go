// Package lexer splits template source into typed tokens.
//
// A template is a mix of raw text and three kinds of delimited tags:
// variables {{ }}, blocks {% %} and comments {# #}. The lexer classifies
// each piece and records line numbers; the debug lexer additionally records
// byte offsets so errors can point back into the source.
package lexer

import (
	"fmt"
	"strings"
)

// Template syntax constants.
const (
	FilterSeparator            = "|"
	FilterArgumentSeparator    = ":"
	VariableAttributeSeparator = "."
	BlockTagStart              = "{%"
	BlockTagEnd                = "%}"
	VariableTagStart           = "{{"
	VariableTagEnd             = "}}"
	CommentTagStart            = "{#"
	CommentTagEnd              = "#}"
	TranslatorCommentMark      = "Translators"
)

// TokenType represents the type of a token.
type TokenType int

const (
	TokenText TokenType = iota
	TokenVar
	TokenBlock
	TokenComment
)

var tokenTypeNames = map[TokenType]string{
	TokenText:    "Text",
	TokenVar:     "Var",
	TokenBlock:   "Block",
	TokenComment: "Comment",
}

func (t TokenType) String() string {
	if name, ok := tokenTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("TokenType(%d)", t)
}

// Position is a half-open [Start, End) byte range in the template source.
type Position struct {
	Start int
	End   int
}

// Token represents a classified substring of template source.
//
// Contents holds the token source with the delimiters stripped and
// surrounding whitespace trimmed (for Var, Block and Comment tokens) or the
// raw text (for Text tokens). Position is only set by the debug lexer and is
// used for traceback information. Tokens are immutable once created.
type Token struct {
	Type     TokenType
	Contents string
	Position *Position
	Lineno   int
}

// String returns a debug representation of the token.
func (t Token) String() string {
	contents := t.Contents
	if len(contents) > 20 {
		contents = contents[:20]
	}
	return fmt.Sprintf("<%s token: %q...>", t.Type, strings.ReplaceAll(contents, "\n", ""))
}

// SplitContents splits the token contents on whitespace, keeping quoted
// strings together. Pieces wrapped in a translation marker are re-joined so
// that _("hello world") survives as a single bit.
func (t Token) SplitContents() []string {
	var split []string
	bits := SmartSplit(t.Contents)
	for i := 0; i < len(bits); i++ {
		bit := bits[i]
		if strings.HasPrefix(bit, `_("`) || strings.HasPrefix(bit, `_('`) {
			sentinel := string(bit[2]) + ")"
			transBit := []string{bit}
			for !strings.HasSuffix(bit, sentinel) && i+1 < len(bits) {
				i++
				bit = bits[i]
				transBit = append(transBit, bit)
			}
			bit = strings.Join(transBit, " ")
		}
		split = append(split, bit)
	}
	return split
}
