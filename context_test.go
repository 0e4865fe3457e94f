package vellum

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextBuiltins(t *testing.T) {
	c := NewContext(nil)
	v, ok := c.Get("True")
	require.True(t, ok)
	assert.Equal(t, true, v)
	v, ok = c.Get("False")
	require.True(t, ok)
	assert.Equal(t, false, v)
	v, ok = c.Get("None")
	require.True(t, ok)
	assert.Nil(t, v)
}

func TestContextPushShadowsAndReleases(t *testing.T) {
	c := NewContext(map[string]any{"a": 1, "b": 2})

	release := c.Push(map[string]any{"a": 10})
	v, _ := c.Get("a")
	assert.Equal(t, 10, v)
	v, _ = c.Get("b")
	assert.Equal(t, 2, v)

	release()
	v, _ = c.Get("a")
	assert.Equal(t, 1, v)
}

func TestContextPopBelowBuiltinsFails(t *testing.T) {
	c := NewContext(map[string]any{"a": 1})
	_, err := c.Pop() // the initial frame
	require.NoError(t, err)
	_, err = c.Pop()
	require.Error(t, err)
	assert.IsType(t, ContextPopError{}, err)
}

func TestContextSetUpward(t *testing.T) {
	c := NewContext(map[string]any{"counter": 1})
	release := c.Push()
	defer release()

	c.SetUpward("counter", 2)
	c.SetUpward("fresh", "here")

	top, err := c.Pop()
	require.NoError(t, err)
	// counter was rebound in the frame that already defined it; fresh landed
	// in the top frame.
	assert.Equal(t, map[string]any{"fresh": "here"}, top)
	v, _ := c.Get("counter")
	assert.Equal(t, 2, v)
	c.Push() // restore for the deferred release
}

func TestContextSetDefaultAndDelete(t *testing.T) {
	c := NewContext(nil)
	assert.Equal(t, 5, c.SetDefault("x", 5))
	assert.Equal(t, 5, c.SetDefault("x", 9))
	c.Delete("x")
	assert.False(t, c.Has("x"))
}

func TestContextFlattenAndEqual(t *testing.T) {
	a := NewContext(map[string]any{"x": 1})
	a.Push(map[string]any{"y": 2})

	flat := a.Flatten()
	assert.Equal(t, 1, flat["x"])
	assert.Equal(t, 2, flat["y"])
	assert.Equal(t, true, flat["True"])

	b := NewContext(map[string]any{"x": 1, "y": 2})
	assert.True(t, a.baseContext.Equal(&b.baseContext))
}

func TestContextNewKeepsSettings(t *testing.T) {
	c := NewContext(map[string]any{"x": 1})
	c.Autoescape = false
	c.UseTZ = true

	fresh := c.New(map[string]any{"y": 2})
	assert.False(t, fresh.Autoescape)
	assert.True(t, fresh.UseTZ)
	assert.False(t, fresh.Has("x"))
	assert.True(t, fresh.Has("y"))
}

func TestContextUpdate(t *testing.T) {
	c := NewContext(nil)
	_, err := c.Update(nil)
	require.Error(t, err)

	release, err := c.Update(map[string]any{"z": 3})
	require.NoError(t, err)
	assert.True(t, c.Has("z"))
	release()
	assert.False(t, c.Has("z"))
}

func TestRenderContextReadsTopFrameOnly(t *testing.T) {
	rc := NewRenderContext()
	rc.Set("state", "outer")

	release := rc.Push()
	assert.False(t, rc.Has("state"), "lower frames must be invisible")
	rc.Set("state", "inner")
	v, _ := rc.Get("state")
	assert.Equal(t, "inner", v)

	release()
	v, _ = rc.Get("state")
	assert.Equal(t, "outer", v)
}

func TestRenderContextPushState(t *testing.T) {
	rc := NewRenderContext()
	outer := &Template{Name: "outer"}
	inner := &Template{Name: "inner"}

	releaseOuter := rc.PushState(outer, true)
	rc.Set("seen", true)
	assert.Equal(t, outer, rc.Template())

	releaseInner := rc.PushState(inner, true)
	assert.Equal(t, inner, rc.Template())
	assert.False(t, rc.Has("seen"), "isolated state must not leak inward")

	releaseInner()
	assert.Equal(t, outer, rc.Template())
	assert.True(t, rc.Has("seen"))

	releaseOuter()
	assert.Nil(t, rc.Template())
}

func TestBindTemplateTwiceFails(t *testing.T) {
	c := NewContext(nil)
	tpl := &Template{Name: "t"}
	unbind, err := c.BindTemplate(tpl)
	require.NoError(t, err)
	defer unbind()

	_, err = c.BindTemplate(tpl)
	require.Error(t, err)
}

func TestRequestContextProcessors(t *testing.T) {
	engine := New()
	engine.AddContextProcessor(func(r *http.Request) map[string]any {
		return map[string]any{"path": r.URL.Path, "shadowed": "engine"}
	})
	tpl, err := engine.FromString("{{ path }} {{ shadowed }} {{ extra }}")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "http://example.com/about", nil)
	rc := NewRequestContext(req, map[string]any{"shadowed": "initial"},
		func(r *http.Request) map[string]any {
			return map[string]any{"extra": "more"}
		})

	// Processor output is absent until a template binds.
	assert.False(t, rc.Has("path"))

	out, err := tpl.Render(&rc.Context)
	require.NoError(t, err)
	assert.Equal(t, "/about engine more", out)

	// The processor frame is cleared again after the render.
	assert.False(t, rc.Has("path"))
}

func TestMakeContext(t *testing.T) {
	c := MakeContext(map[string]any{"k": "v"}, nil)
	assert.True(t, c.Has("k"))

	req := httptest.NewRequest(http.MethodGet, "http://example.com/", nil)
	c = MakeContext(map[string]any{"k": "v"}, req)
	assert.True(t, c.Has("k"))
}
