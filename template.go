package vellum

import (
	"errors"
	"strings"

	"github.com/vellumtext/vellum/internal/debug"
	"github.com/vellumtext/vellum/lexer"
)

// UnknownSource names templates that were not loaded from anywhere, such as
// ones compiled directly from a string.
const UnknownSource = "<unknown source>"

// ExceptionInfo is the source-context snapshot attached to errors raised in
// debug mode. See RenderExceptionInfo for turning it into a report.
type ExceptionInfo = debug.Info

// RenderExceptionInfo writes a source-context report for a failure.
var RenderExceptionInfo = debug.Render

// Origin records where a template came from: the loader-visible name, the
// name it was requested under, and the loader that produced it.
type Origin struct {
	Name         string
	TemplateName string
	LoaderName   string
}

func (o *Origin) String() string {
	if o.LoaderName != "" {
		return o.Name + " (" + o.LoaderName + ")"
	}
	return o.Name
}

// Equal compares origins by name and loader. The requested template name is
// deliberately left out: two loaders can serve the same request.
func (o *Origin) Equal(other *Origin) bool {
	if o == nil || other == nil {
		return o == other
	}
	return o.Name == other.Name && o.LoaderName == other.LoaderName
}

// Template is a compiled template: the source, its origin and the node tree.
// A Template is immutable after compilation and safe for concurrent renders,
// each with its own Context.
type Template struct {
	Name     string
	Origin   *Origin
	Source   string
	nodelist *NodeList
	engine   *Engine
}

// NewTemplate compiles template source. Compilation errors carry the failing
// token; in debug mode they also carry the full source context.
func NewTemplate(source string, origin *Origin, name string, engine *Engine) (*Template, error) {
	if origin == nil {
		origin = &Origin{Name: UnknownSource}
	}
	if engine == nil {
		engine = New()
	}
	t := &Template{Name: name, Origin: origin, Source: source, engine: engine}
	nodelist, err := t.compileNodelist()
	if err != nil {
		return nil, err
	}
	t.nodelist = nodelist
	return t, nil
}

// Nodelist returns the compiled node tree.
func (t *Template) Nodelist() *NodeList {
	return t.nodelist
}

// Engine returns the engine the template was compiled against.
func (t *Template) Engine() *Engine {
	return t.engine
}

func (t *Template) compileNodelist() (*NodeList, error) {
	var tokens []lexer.Token
	if t.engine.debug {
		tokens = lexer.NewDebug(t.Source).Tokenize()
	} else {
		tokens = lexer.New(t.Source).Tokenize()
	}
	parser := NewParser(tokens, t.Origin, t.engine.libraries...)
	nodelist, err := parser.Parse()
	if err != nil {
		var te *Error
		if errors.As(err, &te) && t.engine.debug && te.Debug == nil {
			te.Debug = t.exceptionInfo(te, te.Token)
		}
		return nil, err
	}
	return nodelist, nil
}

// Render renders the template against a context. A fresh render-state frame
// is pushed for the duration so recursive renders stay isolated; the first
// template to render with a context binds itself to it.
func (t *Template) Render(c *Context) (string, error) {
	release := c.RenderContext.PushState(t, true)
	defer release()

	if c.Template() == nil {
		unbind, err := c.BindTemplate(t)
		if err != nil {
			return "", err
		}
		defer unbind()
		c.TemplateName = t.Name
	}
	return t.nodelist.Render(c)
}

// exceptionInfo builds the source-context snapshot for a failure at the
// given token. The window covers up to ten lines on each side of the
// failing line.
func (t *Template) exceptionInfo(err error, token *lexer.Token) *ExceptionInfo {
	start, end := 0, 0
	if token != nil && token.Position != nil {
		start, end = token.Position.Start, token.Position.End
	}

	const contextLines = 10
	line := 0
	upto := 0
	var sourceLines []debug.Line
	var before, during, after string
	for num, next := range lineEnds(t.Source) {
		if start >= upto && end <= next {
			line = num
			before = t.Source[upto:start]
			during = t.Source[start:end]
			after = t.Source[end:next]
		}
		sourceLines = append(sourceLines, debug.Line{Num: num, Text: t.Source[upto:next]})
		upto = next
	}
	total := len(sourceLines)
	top := max(0, line-contextLines)
	bottom := min(total, line+1+contextLines)

	name := t.Origin.Name
	if name == UnknownSource && t.Origin.TemplateName != "" {
		name = t.Origin.TemplateName
	}
	message := err.Error()
	var te *Error
	if errors.As(err, &te) {
		message = te.Message
	}

	return &ExceptionInfo{
		Message:     message,
		Name:        name,
		SourceLines: sourceLines[top:bottom],
		Line:        line,
		Top:         top,
		Bottom:      bottom,
		Total:       total,
		Start:       start,
		End:         end,
		Before:      before,
		During:      during,
		After:       after,
	}
}

// lineEnds returns the end offset of every line in source, the trailing
// newline included. A source without a final newline still yields its last
// line.
func lineEnds(source string) []int {
	var ends []int
	upto := 0
	for {
		p := strings.Index(source[upto:], "\n")
		if p < 0 {
			break
		}
		upto += p + 1
		ends = append(ends, upto)
	}
	if upto < len(source) || len(ends) == 0 {
		ends = append(ends, len(source))
	}
	return ends
}
