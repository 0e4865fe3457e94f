package lexer

import (
	"regexp"
	"strings"
)

// tagRe matches a variable, block or comment tag including its delimiters.
// The dot does not match newlines, so an unterminated tag on one line never
// swallows the rest of the template.
var tagRe = regexp.MustCompile(
	regexp.QuoteMeta(BlockTagStart) + ".*?" + regexp.QuoteMeta(BlockTagEnd) + "|" +
		regexp.QuoteMeta(VariableTagStart) + ".*?" + regexp.QuoteMeta(VariableTagEnd) + "|" +
		regexp.QuoteMeta(CommentTagStart) + ".*?" + regexp.QuoteMeta(CommentTagEnd))

// Lexer tokenizes template source into Text, Var, Block and Comment tokens.
//
// Inside a {% verbatim %} region everything is emitted as literal text until
// the matching end tag is seen. Only one level of verbatim is supported: the
// region is tracked as a flat "looking for this end tag" state, not a nesting
// counter.
type Lexer struct {
	source   string
	verbatim string // end tag that closes the active verbatim region, or ""
}

// New creates a Lexer for the given template source.
func New(source string) *Lexer {
	return &Lexer{source: source}
}

// Tokenize returns the tokens of the template source. This is the fast path:
// no byte offsets are recorded.
func Tokenize(source string) []Token {
	return New(source).Tokenize()
}

// Tokenize splits the source into a flat token sequence.
func (l *Lexer) Tokenize() []Token {
	var result []Token
	lineno := 1
	upto := 0
	for _, loc := range tagRe.FindAllStringIndex(l.source, -1) {
		start, end := loc[0], loc[1]
		if start > upto {
			text := l.source[upto:start]
			result = append(result, l.createToken(text, nil, lineno, false))
			lineno += strings.Count(text, "\n")
		}
		tag := l.source[start:end]
		result = append(result, l.createToken(tag, nil, lineno, true))
		lineno += strings.Count(tag, "\n")
		upto = end
	}
	if last := l.source[upto:]; last != "" {
		result = append(result, l.createToken(last, nil, lineno, false))
	}
	return result
}

// createToken turns a matched substring into a Token. inTag tells whether the
// string was matched by tagRe (delimiters included) or is plain text.
func (l *Lexer) createToken(tokenString string, position *Position, lineno int, inTag bool) Token {
	var blockContent string
	if inTag && strings.HasPrefix(tokenString, BlockTagStart) {
		// The 2:-2 below strips the tag delimiters. They are all two
		// bytes long, so the offsets are hardcoded.
		blockContent = strings.TrimSpace(tokenString[2 : len(tokenString)-2])
		if l.verbatim != "" && blockContent == l.verbatim {
			l.verbatim = ""
			return Token{Type: TokenBlock, Contents: blockContent, Position: position, Lineno: lineno}
		}
	}
	if inTag && l.verbatim == "" {
		switch {
		case strings.HasPrefix(tokenString, VariableTagStart):
			contents := strings.TrimSpace(tokenString[2 : len(tokenString)-2])
			return Token{Type: TokenVar, Contents: contents, Position: position, Lineno: lineno}
		case strings.HasPrefix(tokenString, BlockTagStart):
			if blockContent == "verbatim" || strings.HasPrefix(blockContent, "verbatim ") {
				l.verbatim = "end" + blockContent
			}
			return Token{Type: TokenBlock, Contents: blockContent, Position: position, Lineno: lineno}
		default: // comment tag
			contents := strings.TrimSpace(tokenString[2 : len(tokenString)-2])
			return Token{Type: TokenComment, Contents: contents, Position: position, Lineno: lineno}
		}
	}
	return Token{Type: TokenText, Contents: tokenString, Position: position, Lineno: lineno}
}

// DebugLexer is a Lexer that annotates every token with its start and end
// byte offset in the source. It is slower than the default lexer, so it is
// only used when debug diagnostics are enabled.
type DebugLexer struct {
	Lexer
}

// NewDebug creates a DebugLexer for the given template source.
func NewDebug(source string) *DebugLexer {
	return &DebugLexer{Lexer{source: source}}
}

// Tokenize splits the source into tokens carrying source positions. The
// token stream is identical to the one produced by Lexer.Tokenize.
func (l *DebugLexer) Tokenize() []Token {
	var result []Token
	lineno := 1
	upto := 0
	for _, loc := range tagRe.FindAllStringIndex(l.source, -1) {
		start, end := loc[0], loc[1]
		if start > upto {
			text := l.source[upto:start]
			result = append(result, l.createToken(text, &Position{upto, start}, lineno, false))
			lineno += strings.Count(text, "\n")
		}
		tag := l.source[start:end]
		result = append(result, l.createToken(tag, &Position{start, end}, lineno, true))
		lineno += strings.Count(tag, "\n")
		upto = end
	}
	if last := l.source[upto:]; last != "" {
		result = append(result, l.createToken(last, &Position{upto, upto + len(last)}, lineno, false))
	}
	return result
}
