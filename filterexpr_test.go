package vellum

import (
	"strings"
	"testing"
)

func exprParser() *Parser {
	return NewParser(nil, nil, DefaultLibrary())
}

func TestFilterExpressionRoundTrip(t *testing.T) {
	for _, token := range []string{
		"variable",
		"article.section",
		`variable|default:"Default value"`,
		"x|upper|truncatechars:5",
		`_("translated")`,
	} {
		fe, err := exprParser().CompileFilter(token)
		if err != nil {
			t.Fatalf("CompileFilter(%q) failed: %v", token, err)
		}
		if fe.String() != token {
			t.Errorf("String() = %q, want %q", fe.String(), token)
		}
	}
}

func TestFilterExpressionChain(t *testing.T) {
	fe, err := exprParser().CompileFilter("x|upper|truncatechars:5")
	if err != nil {
		t.Fatalf("CompileFilter failed: %v", err)
	}
	got, err := fe.Resolve(NewContext(map[string]any{"x": "hello world"}), false)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if Stringify(got) != "HELL…" {
		t.Errorf("expected \"HELL…\", got %q", Stringify(got))
	}
}

func TestFilterExpressionConstantBase(t *testing.T) {
	fe, err := exprParser().CompileFilter(`"shout"|upper`)
	if err != nil {
		t.Fatalf("CompileFilter failed: %v", err)
	}
	got, err := fe.Resolve(NewContext(nil), false)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if got != "SHOUT" {
		t.Errorf("expected SHOUT, got %v", got)
	}
}

func TestFilterExpressionNumericArg(t *testing.T) {
	fe, err := exprParser().CompileFilter("n|add:3")
	if err != nil {
		t.Fatalf("CompileFilter failed: %v", err)
	}
	got, err := fe.Resolve(NewContext(map[string]any{"n": 4}), false)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if got != 7 {
		t.Errorf("expected 7, got %v", got)
	}
}

func TestFilterExpressionVariableArg(t *testing.T) {
	fe, err := exprParser().CompileFilter("n|add:offset")
	if err != nil {
		t.Fatalf("CompileFilter failed: %v", err)
	}
	got, err := fe.Resolve(NewContext(map[string]any{"n": 4, "offset": 10}), false)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if got != 14 {
		t.Errorf("expected 14, got %v", got)
	}
}

func TestFilterExpressionUnknownFilter(t *testing.T) {
	_, err := exprParser().CompileFilter("x|nosuchfilter")
	if err == nil || !strings.Contains(err.Error(), "Invalid filter: 'nosuchfilter'") {
		t.Fatalf("expected invalid filter error, got %v", err)
	}
}

func TestFilterExpressionArityCheckedAtCompileTime(t *testing.T) {
	_, err := exprParser().CompileFilter("x|truncatechars")
	if err == nil || !strings.Contains(err.Error(), "requires") {
		t.Fatalf("expected arity error, got %v", err)
	}
	_, err = exprParser().CompileFilter("x|upper:5")
	if err == nil {
		t.Fatal("expected arity error for extra argument")
	}
}

func TestFilterExpressionParseGap(t *testing.T) {
	_, err := exprParser().CompileFilter("x!|upper")
	if err == nil || !strings.Contains(err.Error(), "Could not parse some characters") {
		t.Fatalf("expected gap error, got %v", err)
	}
}

func TestFilterExpressionMissingVariable(t *testing.T) {
	_, err := exprParser().CompileFilter("|upper")
	if err == nil || !strings.Contains(err.Error(), "Could not find variable at start") {
		t.Fatalf("expected missing variable error, got %v", err)
	}
}

func TestFilterExpressionRemainder(t *testing.T) {
	_, err := exprParser().CompileFilter("x|upper rest")
	if err == nil || !strings.Contains(err.Error(), "Could not parse the remainder") {
		t.Fatalf("expected remainder error, got %v", err)
	}
}

func TestFilterExpressionIgnoreFailures(t *testing.T) {
	fe, err := exprParser().CompileFilter("missing")
	if err != nil {
		t.Fatalf("CompileFilter failed: %v", err)
	}
	got, err := fe.Resolve(NewContext(nil), true)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for ignored failure, got %v", got)
	}
}

func TestFilterExpressionMissingRunsThroughFilters(t *testing.T) {
	// Without a configured fallback the empty string still flows through
	// the filter chain.
	fe, err := exprParser().CompileFilter(`missing|default:"n/a"`)
	if err != nil {
		t.Fatalf("CompileFilter failed: %v", err)
	}
	got, err := fe.Resolve(NewContext(nil), false)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if Stringify(got) != "n/a" {
		t.Errorf("expected default to apply, got %v", got)
	}
}

func TestFilterExpressionSafeTaintThreading(t *testing.T) {
	// lower promises safety, so safe input stays safe through it.
	fe, err := exprParser().CompileFilter("x|lower")
	if err != nil {
		t.Fatalf("CompileFilter failed: %v", err)
	}
	got, err := fe.Resolve(NewContext(map[string]any{"x": MarkSafe("<B>")}), false)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if !IsSafe(got) || Stringify(got) != "<b>" {
		t.Errorf("expected safe \"<b>\", got %v (%T)", got, got)
	}

	// upper makes no safety promise, so the taint is dropped.
	fe, err = exprParser().CompileFilter("x|upper")
	if err != nil {
		t.Fatalf("CompileFilter failed: %v", err)
	}
	got, err = fe.Resolve(NewContext(map[string]any{"x": MarkSafe("<b>")}), false)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if IsSafe(got) {
		t.Errorf("expected taint dropped by upper, got %v (%T)", got, got)
	}
}
