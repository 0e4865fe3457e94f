package lexer

import (
	"fmt"
	"regexp"
	"strings"
)

var smartSplitRe = regexp.MustCompile(
	`((?:[^\s'"]*(?:(?:"(?:[^"\\]|\\.)*"|'(?:[^'\\]|\\.)*')[^\s'"]*)+)|\S+)`)

// SmartSplit splits a string on whitespace but keeps quoted substrings
// together. Quote marks and any escapes inside them are preserved; a quoted
// run attached to other characters stays attached:
//
//	SmartSplit(`This is "a person's" test.`)
//	→ ["This", "is", `"a person's"`, "test."]
func SmartSplit(text string) []string {
	return smartSplitRe.FindAllString(text, -1)
}

// UnescapeStringLiteral strips the surrounding quotes from a quoted string
// and unescapes the quote character and backslashes inside it:
//
//	UnescapeStringLiteral(`"abc"`)   → "abc"
//	UnescapeStringLiteral(`'a \'b'`) → "a 'b"
//
// It fails if the value is not wrapped in matching single or double quotes.
func UnescapeStringLiteral(s string) (string, error) {
	if len(s) < 2 || s[0] != s[len(s)-1] || (s[0] != '"' && s[0] != '\'') {
		return "", fmt.Errorf("not a string literal: %q", s)
	}
	quote := string(s[0])
	inner := s[1 : len(s)-1]
	inner = strings.ReplaceAll(inner, `\`+quote, quote)
	inner = strings.ReplaceAll(inner, `\\`, `\`)
	return inner, nil
}
