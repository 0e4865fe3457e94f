package vellum

import (
	"sync"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// LoaderFunc loads template source by name. It returns the source plus an
// origin describing where the source came from; a nil origin is filled in
// from the requested name.
type LoaderFunc func(name string) (string, *Origin, error)

// Library bundles tags and filters for registration with an engine.
type Library struct {
	Tags    map[string]TagFunc
	Filters map[string]*Filter
}

// NewLibrary creates an empty library.
func NewLibrary() *Library {
	return &Library{
		Tags:    make(map[string]TagFunc),
		Filters: make(map[string]*Filter),
	}
}

// Tag registers a tag function under the given name.
func (l *Library) Tag(name string, fn TagFunc) {
	l.Tags[name] = fn
}

// Filter registers a filter function under the given name, panicking on an
// invalid function shape. See NewFilter for the accepted shapes.
func (l *Library) Filter(name string, fn any, opts ...FilterOption) {
	l.Filters[name] = MustFilter(name, fn, opts...)
}

// AddFilter registers an already constructed filter.
func (l *Library) AddFilter(f *Filter) {
	l.Filters[f.name] = f
}

// Engine holds template configuration and a cache of loaded templates. An
// Engine is safe for concurrent use once configured; configure it before
// handing it to renders.
type Engine struct {
	templates   map[string]*Template
	templatesMu sync.RWMutex

	loader            LoaderFunc
	debug             bool
	autoescape        bool
	stringIfInvalid   string
	useL10N           bool
	useTZ             bool
	libraries         []*Library
	contextProcessors []ContextProcessor

	locale  language.Tag
	printer *message.Printer
}

// New creates an engine with the builtin tag and filter library,
// autoescaping on, and invalid variables rendering as the empty string.
func New() *Engine {
	e := &Engine{
		templates:  make(map[string]*Template),
		autoescape: true,
		libraries:  []*Library{DefaultLibrary()},
		locale:     language.English,
	}
	e.printer = message.NewPrinter(e.locale)
	return e
}

// Empty creates an engine with no tags or filters registered.
func Empty() *Engine {
	e := &Engine{
		templates:  make(map[string]*Template),
		autoescape: true,
		locale:     language.English,
	}
	e.printer = message.NewPrinter(e.locale)
	return e
}

// SetDebug enables debug mode: templates are compiled with source positions
// and failures carry a source-context report.
func (e *Engine) SetDebug(debug bool) {
	e.debug = debug
}

// Debug reports whether debug mode is on.
func (e *Engine) Debug() bool {
	return e.debug
}

// SetAutoescape sets the default autoescaping for contexts created by the
// engine.
func (e *Engine) SetAutoescape(on bool) {
	e.autoescape = on
}

// SetStringIfInvalid sets the output used for variables that fail to
// resolve. A "%s" placeholder is substituted with the failing expression.
func (e *Engine) SetStringIfInvalid(s string) {
	e.stringIfInvalid = s
}

// StringIfInvalid returns the invalid-variable fallback output.
func (e *Engine) StringIfInvalid() string {
	return e.stringIfInvalid
}

// SetLoader installs the template loader used by GetTemplate.
func (e *Engine) SetLoader(loader LoaderFunc) {
	e.loader = loader
}

// AddLibrary registers an additional tag and filter library. Later
// libraries shadow earlier ones on name clashes.
func (e *Engine) AddLibrary(lib *Library) {
	e.libraries = append(e.libraries, lib)
}

// AddContextProcessor registers a context processor applied to every
// request-bound render.
func (e *Engine) AddContextProcessor(p ContextProcessor) {
	e.contextProcessors = append(e.contextProcessors, p)
}

// SetLanguage sets the locale used for translation and localized
// formatting.
func (e *Engine) SetLanguage(tag language.Tag) {
	e.locale = tag
	e.printer = message.NewPrinter(tag)
}

// SetUseL10N sets the default for locale-aware formatting in contexts
// created by the engine.
func (e *Engine) SetUseL10N(on bool) {
	e.useL10N = on
}

// SetUseTZ sets the default for timezone conversion in contexts created by
// the engine.
func (e *Engine) SetUseTZ(on bool) {
	e.useTZ = on
}

// Translate renders a message id through the locale's message catalog.
// Percent signs in the id are expected pre-doubled; they come back single.
func (e *Engine) Translate(msgid string) string {
	return e.printer.Sprintf(msgid)
}

// NewContext creates a context carrying the engine's render defaults.
func (e *Engine) NewContext(initial map[string]any) *Context {
	c := NewContext(initial)
	c.Autoescape = e.autoescape
	c.UseL10N = e.useL10N
	c.UseTZ = e.useTZ
	return c
}

// FromString compiles template source directly, bypassing the cache.
func (e *Engine) FromString(source string) (*Template, error) {
	return NewTemplate(source, nil, "", e)
}

// GetTemplate returns the named template, compiling and caching it through
// the loader on first use.
func (e *Engine) GetTemplate(name string) (*Template, error) {
	e.templatesMu.RLock()
	t, ok := e.templates[name]
	e.templatesMu.RUnlock()
	if ok {
		return t, nil
	}

	if e.loader == nil {
		return nil, NewError(ErrTemplateNotFound, "%s", name)
	}
	source, origin, err := e.loader(name)
	if err != nil {
		terr := NewError(ErrTemplateNotFound, "%s", name)
		terr.Cause = err
		return nil, terr
	}
	if origin == nil {
		origin = &Origin{Name: name}
	}
	origin.TemplateName = name

	t, err = NewTemplate(source, origin, name, e)
	if err != nil {
		return nil, err
	}
	e.templatesMu.Lock()
	e.templates[name] = t
	e.templatesMu.Unlock()
	return t, nil
}

// RenderToString loads a template and renders it with the given values.
func (e *Engine) RenderToString(name string, data map[string]any) (string, error) {
	t, err := e.GetTemplate(name)
	if err != nil {
		return "", err
	}
	return t.Render(e.NewContext(data))
}
