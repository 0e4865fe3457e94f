package vellum

import (
	"fmt"
	"reflect"
)

// ContextPopError reports that Pop was called more times than Push. The
// bottom builtins frame is permanent; draining past it is a caller bug, not
// a recoverable condition.
type ContextPopError struct{}

func (ContextPopError) Error() string {
	return "pop() has been called more times than push()"
}

func builtinsFrame() map[string]any {
	return map[string]any{"True": true, "False": false, "None": nil}
}

// baseContext is the layered mapping stack shared by Context and
// RenderContext. Frames are scanned top (most recently pushed) to bottom,
// so the most recent binding of a key shadows older ones. The bottom frame
// holds the fixed builtins and is never popped.
type baseContext struct {
	dicts []map[string]any
}

func (c *baseContext) resetDicts(initial map[string]any) {
	c.dicts = []map[string]any{builtinsFrame()}
	if initial != nil {
		c.dicts = append(c.dicts, initial)
	}
}

// contextLike marks the context types whose attributes must never be
// reachable from template lookups.
func (c *baseContext) contextLike() {}

// Push creates a new top frame merging the given mappings in order and
// returns a release func that pops it. Use it with defer or call it at the
// end of the corresponding scope; pushes and releases must strictly nest.
func (c *baseContext) Push(mappings ...map[string]any) func() {
	frame := make(map[string]any)
	for _, m := range mappings {
		for k, v := range m {
			frame[k] = v
		}
	}
	c.dicts = append(c.dicts, frame)
	return func() { c.mustPop() }
}

// Pop removes and returns the top frame. Popping the permanent builtins
// frame fails with ContextPopError.
func (c *baseContext) Pop() (map[string]any, error) {
	if len(c.dicts) == 1 {
		return nil, ContextPopError{}
	}
	top := c.dicts[len(c.dicts)-1]
	c.dicts = c.dicts[:len(c.dicts)-1]
	return top, nil
}

func (c *baseContext) mustPop() {
	if _, err := c.Pop(); err != nil {
		panic(err)
	}
}

// Set binds a variable in the current (top) frame.
func (c *baseContext) Set(key string, value any) {
	c.dicts[len(c.dicts)-1][key] = value
}

// SetUpward binds a variable in the highest frame that already defines it,
// falling back to the current frame. This is how assignments escape a loop
// scope.
func (c *baseContext) SetUpward(key string, value any) {
	target := c.dicts[len(c.dicts)-1]
	for i := len(c.dicts) - 1; i >= 0; i-- {
		if _, ok := c.dicts[i][key]; ok {
			target = c.dicts[i]
			break
		}
	}
	target[key] = value
}

// Get returns a variable's value, scanning frames from the current one
// upward to the builtins.
func (c *baseContext) Get(key string) (any, bool) {
	for i := len(c.dicts) - 1; i >= 0; i-- {
		if v, ok := c.dicts[i][key]; ok {
			return v, true
		}
	}
	return nil, false
}

// GetDefault returns the variable's value or otherwise when unset.
func (c *baseContext) GetDefault(key string, otherwise any) any {
	if v, ok := c.Get(key); ok {
		return v
	}
	return otherwise
}

// Has reports whether any frame defines the key.
func (c *baseContext) Has(key string) bool {
	_, ok := c.Get(key)
	return ok
}

// Delete removes a variable from the current frame.
func (c *baseContext) Delete(key string) {
	delete(c.dicts[len(c.dicts)-1], key)
}

// SetDefault returns the current value of key, binding def in the top frame
// first if the key is unset anywhere.
func (c *baseContext) SetDefault(key string, def any) any {
	if v, ok := c.Get(key); ok {
		return v
	}
	c.Set(key, def)
	return def
}

// Flatten merges all frames into a single map, bottom to top.
func (c *baseContext) Flatten() map[string]any {
	flat := make(map[string]any)
	for _, d := range c.dicts {
		for k, v := range d {
			flat[k] = v
		}
	}
	return flat
}

// Equal compares two contexts by their flattened contents.
func (c *baseContext) Equal(other *baseContext) bool {
	return reflect.DeepEqual(c.Flatten(), other.Flatten())
}

// Context is the layered variable scope consulted during rendering. One
// Context belongs to exactly one render call; renders must not share it.
type Context struct {
	baseContext

	// Autoescape controls HTML escaping of rendered variable values.
	Autoescape bool
	// UseL10N enables locale-aware formatting of numbers and dates.
	UseL10N bool
	// UseTZ enables conversion of times to the local timezone.
	UseTZ bool
	// TemplateName is the name of the template bound to this render.
	TemplateName string
	// RenderContext is the per-template scratch space.
	RenderContext *RenderContext

	template *Template
	bindHook func(*Template) (func(), error)
}

// NewContext creates a render context over the given initial mapping.
// Autoescaping is on by default.
func NewContext(initial map[string]any) *Context {
	c := &Context{
		Autoescape:    true,
		TemplateName:  "unknown",
		RenderContext: NewRenderContext(),
	}
	c.resetDicts(initial)
	return c
}

// Template returns the template this context is currently bound to, or nil.
func (c *Context) Template() *Template {
	return c.template
}

// BindTemplate binds the context to the original template for the duration
// of a render. The returned release func unbinds it. Binding an already
// bound context is an error.
func (c *Context) BindTemplate(t *Template) (func(), error) {
	if c.bindHook != nil {
		return c.bindHook(t)
	}
	return c.bindTemplate(t)
}

func (c *Context) bindTemplate(t *Template) (func(), error) {
	if c.template != nil {
		return nil, fmt.Errorf("context is already bound to a template")
	}
	c.template = t
	return func() { c.template = nil }, nil
}

// New returns a fresh context with the same render settings but only the
// given values stored.
func (c *Context) New(values map[string]any) *Context {
	dup := &Context{
		Autoescape:    c.Autoescape,
		UseL10N:       c.UseL10N,
		UseTZ:         c.UseTZ,
		TemplateName:  "unknown",
		RenderContext: NewRenderContext(),
	}
	dup.resetDicts(values)
	return dup
}

// Update pushes a plain mapping onto the stack and returns the release
// func. It fails if other is nil.
func (c *Context) Update(other map[string]any) (func(), error) {
	if other == nil {
		return nil, fmt.Errorf("other must be a mapping")
	}
	return c.Push(other), nil
}

func (c *Context) stringIfInvalid() string {
	if c.template != nil && c.template.engine != nil {
		return c.template.engine.stringIfInvalid
	}
	return ""
}
