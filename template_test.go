package vellum

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

func renderString(t *testing.T, engine *Engine, source string, data map[string]any) string {
	t.Helper()
	tmpl, err := engine.FromString(source)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	out, err := tmpl.Render(engine.NewContext(data))
	if err != nil {
		t.Fatalf("render error: %v", err)
	}
	return out
}

func TestBasicRender(t *testing.T) {
	out := renderString(t, New(), "Hello {{ name }}!", map[string]any{"name": "World"})
	if out != "Hello World!" {
		t.Errorf("expected 'Hello World!', got %q", out)
	}
}

func TestRenderIsDeterministic(t *testing.T) {
	engine := New()
	tmpl, err := engine.FromString("{{ a }}-{{ b.c }}-{{ a|upper }}")
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	data := map[string]any{"a": "x", "b": map[string]any{"c": "y"}}

	first, err := tmpl.Render(engine.NewContext(data))
	if err != nil {
		t.Fatalf("render error: %v", err)
	}
	second, err := tmpl.Render(engine.NewContext(data))
	if err != nil {
		t.Fatalf("render error: %v", err)
	}
	if first != second {
		t.Errorf("renders differ: %q vs %q", first, second)
	}
}

func TestAutoescape(t *testing.T) {
	engine := New()
	out := renderString(t, engine, "{{ v }}", map[string]any{"v": `<b>"hi" & 'lo'</b>`})
	if out != "&lt;b&gt;&quot;hi&quot; &amp; &#x27;lo&#x27;&lt;/b&gt;" {
		t.Errorf("unexpected escaping: %q", out)
	}
}

func TestSafeValuesAreNotEscaped(t *testing.T) {
	engine := New()
	out := renderString(t, engine, "{{ v }}", map[string]any{"v": MarkSafe("<b>bold</b>")})
	if out != "<b>bold</b>" {
		t.Errorf("safe value was escaped: %q", out)
	}
}

func TestNoDoubleEscape(t *testing.T) {
	// lower keeps the safe taint, so the already-escaped text must not be
	// escaped again.
	engine := New()
	out := renderString(t, engine, "{{ v|lower }}", map[string]any{"v": MarkSafe("&lt;B&gt;")})
	if out != "&lt;b&gt;" {
		t.Errorf("expected single escape, got %q", out)
	}
}

func TestStringLiteralsAreSafe(t *testing.T) {
	out := renderString(t, New(), `{{ "a&b" }}`, nil)
	if out != "a&b" {
		t.Errorf("string literal was escaped: %q", out)
	}
}

func TestStringIfInvalidPlaceholder(t *testing.T) {
	engine := New()
	engine.SetStringIfInvalid("[missing: %s]")
	out := renderString(t, engine, "{{ article.author }}", map[string]any{"article": map[string]any{}})
	if out != "[missing: article.author]" {
		t.Errorf("expected placeholder substitution, got %q", out)
	}
}

func TestStringIfInvalidPlain(t *testing.T) {
	engine := New()
	engine.SetStringIfInvalid("N/A")
	out := renderString(t, engine, "{{ missing }}", nil)
	if out != "N/A" {
		t.Errorf("expected N/A, got %q", out)
	}
}

func TestTranslationMarkerResolvesAtRenderTime(t *testing.T) {
	if err := message.SetString(language.German, "good morning", "guten Morgen"); err != nil {
		t.Fatalf("SetString failed: %v", err)
	}
	engine := New()
	engine.SetLanguage(language.German)

	out := renderString(t, engine, `{{ _("good morning") }}`, nil)
	if out != "guten Morgen" {
		t.Errorf("expected translated literal, got %q", out)
	}

	// Translate-marked filter arguments resolve against the render context
	// too.
	out = renderString(t, engine, `{{ missing|default:_("good morning") }}`, nil)
	if out != "guten Morgen" {
		t.Errorf("expected translated filter argument, got %q", out)
	}

	// Without the marker the literal stays untranslated.
	out = renderString(t, engine, `{{ "good morning" }}`, nil)
	if out != "good morning" {
		t.Errorf("expected plain literal, got %q", out)
	}
}

func TestCompileErrorCarriesDebugInfo(t *testing.T) {
	engine := New()
	engine.SetDebug(true)

	_, err := engine.FromString("line one\nline two {{ x|nosuchfilter }}\nline three")
	if err == nil {
		t.Fatal("expected compile error")
	}
	var terr *Error
	if !errors.As(err, &terr) {
		t.Fatalf("expected *Error, got %T", err)
	}
	if terr.Kind != ErrInvalidFilter {
		t.Errorf("expected invalid filter kind, got %s", terr.Kind)
	}
	if terr.Debug == nil {
		t.Fatal("expected debug info in debug mode")
	}
	if terr.Debug.Line != 1 {
		t.Errorf("expected failure on source line index 1, got %d", terr.Debug.Line)
	}
	if terr.Debug.During != "{{ x|nosuchfilter }}" {
		t.Errorf("unexpected during segment: %q", terr.Debug.During)
	}

	var report strings.Builder
	RenderExceptionInfo(&report, terr.Debug, false)
	if !strings.Contains(report.String(), "   2 > line two {{ x|nosuchfilter }}") {
		t.Errorf("report missing failing line marker:\n%s", report.String())
	}
	if !strings.Contains(report.String(), "^") {
		t.Errorf("report missing caret line:\n%s", report.String())
	}
}

func TestDebugCaretAlignsWithMultibyteText(t *testing.T) {
	engine := New()
	engine.SetDebug(true)

	// "héllo wörld " is 12 runes but 14 bytes; the caret run must line up
	// with the rune columns.
	_, err := engine.FromString("héllo wörld {{ x|nosuchfilter }}")
	var terr *Error
	if !errors.As(err, &terr) || terr.Debug == nil {
		t.Fatalf("expected annotated error, got %v", err)
	}

	var report strings.Builder
	RenderExceptionInfo(&report, terr.Debug, false)
	want := "     i " + strings.Repeat(" ", 12) + strings.Repeat("^", 20) + "\n"
	if !strings.Contains(report.String(), want) {
		t.Errorf("caret line misaligned:\n%s", report.String())
	}
}

func TestRenderErrorAnnotatedInDebugMode(t *testing.T) {
	engine := New()
	engine.SetDebug(true)
	tmpl, err := engine.FromString("ok so far\n{{ broken }}")
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}

	_, err = tmpl.Render(engine.NewContext(map[string]any{
		"broken": func() (string, error) { return "", fmt.Errorf("backend exploded") },
	}))
	if err == nil {
		t.Fatal("expected render error")
	}
	var terr *Error
	if !errors.As(err, &terr) {
		t.Fatalf("expected *Error, got %T", err)
	}
	if terr.Kind != ErrRender {
		t.Errorf("expected render kind, got %s", terr.Kind)
	}
	if terr.Token == nil || terr.Token.Lineno != 2 {
		t.Errorf("expected failing token on line 2, got %+v", terr.Token)
	}
	if terr.Debug == nil {
		t.Fatal("expected debug info")
	}
	if !strings.Contains(terr.Debug.Message, "backend exploded") {
		t.Errorf("unexpected debug message: %q", terr.Debug.Message)
	}
}

func TestExceptionInfoWindow(t *testing.T) {
	var b strings.Builder
	for i := 1; i <= 30; i++ {
		fmt.Fprintf(&b, "line %d\n", i)
	}
	source := strings.Replace(b.String(), "line 15", "{{ x|nosuchfilter }}", 1)

	engine := New()
	engine.SetDebug(true)
	_, err := engine.FromString(source)
	var terr *Error
	if !errors.As(err, &terr) || terr.Debug == nil {
		t.Fatalf("expected annotated error, got %v", err)
	}
	info := terr.Debug
	if info.Line != 14 {
		t.Errorf("expected failing line index 14, got %d", info.Line)
	}
	if info.Top != 4 || info.Bottom != 25 {
		t.Errorf("expected window [4,25), got [%d,%d)", info.Top, info.Bottom)
	}
	if len(info.SourceLines) != 21 {
		t.Errorf("expected 21 lines in window, got %d", len(info.SourceLines))
	}
	if info.Total != 30 {
		t.Errorf("expected 30 total lines, got %d", info.Total)
	}
}

func TestEngineLoaderAndCache(t *testing.T) {
	loads := 0
	engine := New()
	engine.SetLoader(func(name string) (string, *Origin, error) {
		if name != "greeting.txt" {
			return "", nil, fmt.Errorf("no such template")
		}
		loads++
		return "Hi {{ who }}", &Origin{Name: "mem:" + name, LoaderName: "memory"}, nil
	})

	tmpl, err := engine.GetTemplate("greeting.txt")
	if err != nil {
		t.Fatalf("GetTemplate failed: %v", err)
	}
	if tmpl.Origin.Name != "mem:greeting.txt" || tmpl.Origin.TemplateName != "greeting.txt" {
		t.Errorf("unexpected origin: %+v", tmpl.Origin)
	}

	if _, err := engine.GetTemplate("greeting.txt"); err != nil {
		t.Fatalf("second GetTemplate failed: %v", err)
	}
	if loads != 1 {
		t.Errorf("expected 1 load, got %d", loads)
	}

	_, err = engine.GetTemplate("absent.txt")
	var terr *Error
	if !errors.As(err, &terr) || terr.Kind != ErrTemplateNotFound {
		t.Fatalf("expected template-not-found, got %v", err)
	}
}

func TestRenderToString(t *testing.T) {
	engine := New()
	engine.SetLoader(func(name string) (string, *Origin, error) {
		return "Hello {{ name|upper }}", nil, nil
	})
	out, err := engine.RenderToString("any", map[string]any{"name": "ada"})
	if err != nil {
		t.Fatalf("RenderToString failed: %v", err)
	}
	if out != "Hello ADA" {
		t.Errorf("unexpected output: %q", out)
	}
}

func TestTemplateNotFoundWithoutLoader(t *testing.T) {
	_, err := New().GetTemplate("anything")
	var terr *Error
	if !errors.As(err, &terr) || terr.Kind != ErrTemplateNotFound {
		t.Fatalf("expected template-not-found, got %v", err)
	}
}

func TestOriginEqual(t *testing.T) {
	a := &Origin{Name: "x", LoaderName: "fs", TemplateName: "t1"}
	b := &Origin{Name: "x", LoaderName: "fs", TemplateName: "t2"}
	c := &Origin{Name: "x", LoaderName: "other"}
	if !a.Equal(b) {
		t.Error("origins differing only in template name should be equal")
	}
	if a.Equal(c) {
		t.Error("origins with different loaders should differ")
	}
}

func TestRenderStringConvenience(t *testing.T) {
	out, err := RenderString("{{ a }}{{ b }}", map[string]any{"a": 1, "b": 2})
	if err != nil {
		t.Fatalf("RenderString failed: %v", err)
	}
	if out != "12" {
		t.Errorf("expected 12, got %q", out)
	}
}
