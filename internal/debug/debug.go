// Package debug renders source-context reports for template failures.
package debug

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/fatih/color"
)

// Line is a single source line with its zero-based line number.
type Line struct {
	Num  int
	Text string
}

// Info is a snapshot of everything needed to show where in the template
// source a failure happened: the failing line, a window of surrounding
// lines, and the exact byte range of the failing token split into the text
// before, during and after it on that line.
type Info struct {
	Message string
	Name    string

	// SourceLines is the window [Top, Bottom) of the template source.
	SourceLines []Line
	Line        int
	Top         int
	Bottom      int
	Total       int

	Start  int
	End    int
	Before string
	During string
	After  string
}

// Render writes the report: the source window with the failing line marked,
// a caret run under the failing token, and the message beneath a rule. The
// layout is fixed at 79 columns.
func Render(w io.Writer, info *Info, colorize bool) {
	if info == nil {
		return
	}
	title := fmt.Sprintf(" %s ", templateTitle(info.Name))
	_, _ = fmt.Fprintln(w, centerLine(title, '-', 79))

	for _, ln := range info.SourceLines {
		text := strings.TrimRight(ln.Text, "\n")
		if ln.Num != info.Line {
			_, _ = fmt.Fprintf(w, "%4d | %s\n", ln.Num+1, text)
			continue
		}
		if colorize {
			_, _ = color.New(color.FgRed).Fprintf(w, "%4d > %s\n", ln.Num+1, text)
		} else {
			_, _ = fmt.Fprintf(w, "%4d > %s\n", ln.Num+1, text)
		}
		if info.During != "" && !strings.Contains(info.During, "\n") {
			_, _ = fmt.Fprintf(w, "     i %s%s\n",
				strings.Repeat(" ", utf8.RuneCountInString(info.Before)),
				strings.Repeat("^", caretWidth(info.During)))
		}
	}

	_, _ = fmt.Fprintln(w, strings.Repeat("~", 79))
	_, _ = fmt.Fprintln(w, info.Message)
	_, _ = fmt.Fprintln(w, strings.Repeat("-", 79))
}

// caretWidth is the caret run length in screen columns, counted in runes so
// multi-byte text does not stretch the run.
func caretWidth(during string) int {
	n := utf8.RuneCountInString(during)
	if n == 0 {
		return 1
	}
	return n
}

func templateTitle(name string) string {
	if name == "" {
		return "Template Source"
	}
	parts := strings.FieldsFunc(name, func(r rune) bool { return r == '/' || r == '\\' })
	if len(parts) == 0 {
		return "Template Source"
	}
	return parts[len(parts)-1]
}

func centerLine(title string, fill rune, width int) string {
	if len(title) >= width {
		return title
	}
	pad := width - len(title)
	left := pad / 2
	right := pad - left
	return strings.Repeat(string(fill), left) + title + strings.Repeat(string(fill), right)
}
