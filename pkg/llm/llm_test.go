package llm

import (
	"context"
	"testing"
)

func TestNewNoneReturnsNilModel(t *testing.T) {
	model, err := New(context.Background(), Config{Provider: "none"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if model != nil {
		t.Fatalf("expected nil model, got %T", model)
	}
}

func TestNewRejectsUnknownProvider(t *testing.T) {
	if _, err := New(context.Background(), Config{Provider: "carrier-pigeon"}); err == nil {
		t.Fatalf("expected error for unknown provider")
	}
}

func TestNewOpenAIWithBaseURL(t *testing.T) {
	model, err := New(context.Background(), Config{Provider: "openai", Model: "llama3", BaseURL: "http://localhost:11434/v1"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if model == nil {
		t.Fatalf("expected model")
	}
}

func TestExtractJSONObject(t *testing.T) {
	cases := map[string]struct {
		in     string
		want   string
		wantOK bool
	}{
		"fenced":     {in: "```json\n{\"a\":1}\n```", want: `{"a":1}`, wantOK: true},
		"nested":     {in: `x {"a":{"b":2}} y`, want: `{"a":{"b":2}}`, wantOK: true},
		"no braces":  {in: "plain text", wantOK: false},
		"only close": {in: "} then {", wantOK: false},
	}
	for name, tc := range cases {
		got, ok := ExtractJSONObject(tc.in)
		if ok != tc.wantOK || got != tc.want {
			t.Errorf("%s: got (%q,%v) want (%q,%v)", name, got, ok, tc.want, tc.wantOK)
		}
	}
}
