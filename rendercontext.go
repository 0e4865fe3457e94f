package vellum

import "net/http"

// RenderContext is a stack container for storing per-template render state.
//
// It gives nodes a safe place to keep state between invocations of their
// Render method without leaking it into the variable scope. A fresh frame is
// pushed before each template render via PushState, and reads only see the
// current top frame: state is local to the template being rendered, so a
// recursive include cannot observe or clobber the state of the template that
// included it.
type RenderContext struct {
	baseContext
	template *Template
}

// NewRenderContext creates an empty render scratch space.
func NewRenderContext() *RenderContext {
	rc := &RenderContext{}
	rc.resetDicts(nil)
	return rc
}

// Get returns a value from the current top frame only.
func (rc *RenderContext) Get(key string) (any, bool) {
	v, ok := rc.dicts[len(rc.dicts)-1][key]
	return v, ok
}

// GetDefault returns the value from the top frame or otherwise when unset.
func (rc *RenderContext) GetDefault(key string, otherwise any) any {
	if v, ok := rc.Get(key); ok {
		return v
	}
	return otherwise
}

// Has reports whether the current top frame defines the key.
func (rc *RenderContext) Has(key string) bool {
	_, ok := rc.Get(key)
	return ok
}

// Template returns the template currently bound via PushState, or nil.
func (rc *RenderContext) Template() *Template {
	return rc.template
}

// PushState binds the render context to a template and, when isolated,
// pushes a fresh scratch frame. The returned release func restores the
// previous binding and pops the frame; releases must strictly nest.
func (rc *RenderContext) PushState(t *Template, isolated bool) func() {
	initial := rc.template
	rc.template = t
	var release func()
	if isolated {
		release = rc.Push()
	}
	return func() {
		rc.template = initial
		if release != nil {
			release()
		}
	}
}

// ContextProcessor returns a mapping of variables derived from a request.
// Processors run once per render-bind and their output is merged into a
// dedicated frame that is cleared again when the render finishes.
type ContextProcessor func(*http.Request) map[string]any

// RequestContext is a Context that populates itself from the engine's
// context processors plus any extra processors given at construction.
type RequestContext struct {
	Context
	Request *http.Request

	processors      []ContextProcessor
	processorsIndex int
}

// NewRequestContext creates a request-bound context. Values pushed later
// override processor output; the processor frame itself stays empty until a
// template is bound.
func NewRequestContext(req *http.Request, initial map[string]any, processors ...ContextProcessor) *RequestContext {
	rc := &RequestContext{Request: req, processors: processors}
	rc.Autoescape = true
	rc.TemplateName = "unknown"
	rc.RenderContext = NewRenderContext()
	rc.resetDicts(initial)
	rc.processorsIndex = len(rc.dicts)

	// Placeholder frame for context processor output, plus an empty frame
	// for later modifications so processors never get overwritten in place.
	rc.Push()
	rc.Push()

	rc.bindHook = rc.bindRequestTemplate
	return rc
}

func (rc *RequestContext) bindRequestTemplate(t *Template) (func(), error) {
	unbind, err := rc.bindTemplate(t)
	if err != nil {
		return nil, err
	}
	processors := rc.processors
	if t.engine != nil {
		processors = append(append([]ContextProcessor{}, t.engine.contextProcessors...), rc.processors...)
	}
	updates := make(map[string]any)
	for _, processor := range processors {
		for k, v := range processor(rc.Request) {
			updates[k] = v
		}
	}
	rc.dicts[rc.processorsIndex] = updates
	return func() {
		rc.dicts[rc.processorsIndex] = map[string]any{}
		unbind()
	}, nil
}

// MakeContext builds a suitable context from a plain map and an optional
// request. With a request the values from the map override those from
// context processors.
func MakeContext(data map[string]any, req *http.Request) *Context {
	if req == nil {
		return NewContext(data)
	}
	rc := NewRequestContext(req, nil)
	if data != nil {
		rc.Push(data)
	}
	return &rc.Context
}
