package llm

import (
	"errors"
	"testing"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantKey string
		wantVal any
	}{
		{
			name:    "bare object",
			content: `{"score": 85}`,
			wantKey: "score",
			wantVal: float64(85),
		},
		{
			name:    "json code fence",
			content: "```json\n{\"answer\": \"yes\"}\n```",
			wantKey: "answer",
			wantVal: "yes",
		},
		{
			name:    "plain code fence",
			content: "```\n{\"answer\": \"no\"}\n```",
			wantKey: "answer",
			wantVal: "no",
		},
		{
			name:    "surrounding prose",
			content: `Here is the JSON you asked for: {"site_type": "Recipe"} hope that helps!`,
			wantKey: "site_type",
			wantVal: "Recipe",
		},
		{
			name:    "nested object",
			content: `{"outer": {"inner": true}}`,
			wantKey: "outer",
			wantVal: map[string]any{"inner": true},
		},
		{
			name:    "multiline",
			content: "{\n  \"description\": \"a long\\nstory\"\n}",
			wantKey: "description",
			wantVal: "a long\nstory",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractJSON(tt.content)
			if err != nil {
				t.Fatalf("ExtractJSON(%q) error: %v", tt.content, err)
			}
			val, ok := got[tt.wantKey]
			if !ok {
				t.Fatalf("ExtractJSON(%q) missing key %q", tt.content, tt.wantKey)
			}
			switch want := tt.wantVal.(type) {
			case map[string]any:
				inner, ok := val.(map[string]any)
				if !ok {
					t.Fatalf("value = %T, want map", val)
				}
				for k, v := range want {
					if inner[k] != v {
						t.Errorf("inner[%q] = %v, want %v", k, inner[k], v)
					}
				}
			default:
				if val != tt.wantVal {
					t.Errorf("value = %v (%T), want %v (%T)", val, val, tt.wantVal, tt.wantVal)
				}
			}
		})
	}
}

func TestExtractJSONBadInput(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "empty", content: ""},
		{name: "no object", content: "I cannot answer that."},
		{name: "unbalanced", content: `{"a": 1`},
		{name: "malformed inside braces", content: `{not json}`},
		{name: "two objects span is invalid", content: `{"a": 1} and {"b": 2}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ExtractJSON(tt.content)
			if !errors.Is(err, ErrBadResponse) {
				t.Errorf("ExtractJSON(%q) error = %v, want ErrBadResponse", tt.content, err)
			}
		})
	}
}
