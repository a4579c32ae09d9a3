package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/askweb/askweb/internal/config"
	"github.com/askweb/askweb/internal/llm"
)

func TestFactoriesCoverConfiguredProviders(t *testing.T) {
	cfg := config.LLMConfig{
		Providers: map[string]config.LLMProviderConfig{
			config.ProviderOpenAI:    {APIKey: "k"},
			config.ProviderAnthropic: {APIKey: "k"},
			config.ProviderGemini:    {APIKey: "k"},
			config.ProviderSnowflake: {APIKey: "k", Endpoint: "https://acct.snowflakecomputing.com"},
			config.ProviderInception: {APIKey: "k"},
		},
	}

	factories := Factories(cfg)
	if len(factories) != len(cfg.Providers) {
		t.Fatalf("Factories() returned %d entries, want %d", len(factories), len(cfg.Providers))
	}
	for name := range cfg.Providers {
		factory, ok := factories[name]
		if !ok {
			t.Errorf("no factory for %q", name)
			continue
		}
		p, err := factory()
		if err != nil {
			t.Errorf("factory(%q) error: %v", name, err)
			continue
		}
		if p.Name() != name {
			t.Errorf("factory(%q).Name() = %q", name, p.Name())
		}
	}
}

func TestConstructorsRequireCredentials(t *testing.T) {
	tests := []struct {
		name  string
		build func() (llm.Provider, error)
	}{
		{"anthropic", func() (llm.Provider, error) { return NewAnthropic(config.LLMProviderConfig{}) }},
		{"openai", func() (llm.Provider, error) { return NewOpenAI(config.LLMProviderConfig{}) }},
		{"azure_openai no key", func() (llm.Provider, error) {
			return NewAzureOpenAI(config.LLMProviderConfig{Endpoint: "https://r.openai.azure.com"})
		}},
		{"azure_openai no endpoint", func() (llm.Provider, error) {
			return NewAzureOpenAI(config.LLMProviderConfig{APIKey: "k"})
		}},
		{"gemini", func() (llm.Provider, error) { return NewGemini(config.LLMProviderConfig{}) }},
		{"snowflake no endpoint", func() (llm.Provider, error) {
			return NewSnowflake(config.LLMProviderConfig{APIKey: "k"})
		}},
		{"llama_azure no endpoint", func() (llm.Provider, error) {
			return NewCompatible(config.ProviderLlamaAzure, config.LLMProviderConfig{APIKey: "k"})
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.build(); err == nil {
				t.Error("constructor succeeded, want configuration error")
			}
		})
	}
}

func TestNewCompatibleInceptionDefaultEndpoint(t *testing.T) {
	p, err := NewCompatible(config.ProviderInception, config.LLMProviderConfig{APIKey: "k"})
	if err != nil {
		t.Fatalf("NewCompatible(inception) error: %v", err)
	}
	if p.Name() != config.ProviderInception {
		t.Errorf("Name() = %q, want inception", p.Name())
	}
}

func TestAPIKeyQuoteStripping(t *testing.T) {
	p, err := NewSnowflake(config.LLMProviderConfig{
		APIKey:   `"pat-token"`,
		Endpoint: `"https://acct.snowflakecomputing.com/"`,
	})
	if err != nil {
		t.Fatalf("NewSnowflake() error: %v", err)
	}
	if p.token != "pat-token" {
		t.Errorf("token = %q, want quotes stripped", p.token)
	}
	if p.accountURL != "https://acct.snowflakecomputing.com" {
		t.Errorf("accountURL = %q, want trailing slash and quotes stripped", p.accountURL)
	}
}

func TestOpenAICompleteExtractsJSON(t *testing.T) {
	var gotReq struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}

	reply := "```json\n{\"score\": 85, \"description\": \"good match\"}\n```"
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":     "chatcmpl-1",
			"object": "chat.completion",
			"choices": []map[string]any{
				{"index": 0, "message": map[string]any{"role": "assistant", "content": reply}},
			},
		})
	}))
	defer server.Close()

	p, err := NewOpenAI(config.LLMProviderConfig{
		APIKey:   "test-key",
		Endpoint: server.URL + "/v1",
		Models:   config.ModelPair{High: "gpt-4.1", Low: "gpt-4.1-mini"},
	})
	if err != nil {
		t.Fatalf("NewOpenAI() error: %v", err)
	}

	out, err := p.Complete(context.Background(), "rank this item", llm.Schema{"score": "integer"}, llm.LevelHigh, 5*time.Second)
	if err != nil {
		t.Fatalf("Complete() error: %v", err)
	}
	if out["score"] != float64(85) {
		t.Errorf("score = %v, want 85", out["score"])
	}

	if gotReq.Model != "gpt-4.1" {
		t.Errorf("request model = %q, want high-tier gpt-4.1", gotReq.Model)
	}
	if len(gotReq.Messages) != 2 {
		t.Fatalf("request had %d messages, want 2", len(gotReq.Messages))
	}
	if gotReq.Messages[0].Role != "system" || !strings.Contains(gotReq.Messages[0].Content, "score") {
		t.Errorf("system message = %+v, want schema embedded", gotReq.Messages[0])
	}
	if gotReq.Messages[1].Role != "user" || gotReq.Messages[1].Content != "rank this item" {
		t.Errorf("user message = %+v", gotReq.Messages[1])
	}
}

func TestSnowflakeComplete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != cortexCompletePath {
			t.Errorf("path = %q, want %q", r.URL.Path, cortexCompletePath)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer pat-token" {
			t.Errorf("Authorization = %q", got)
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if body["stream"] != false {
			t.Errorf("stream = %v, want false", body["stream"])
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices": [{"message": {"content": " {\"answer\": \"yes\"} "}}]}`))
	}))
	defer server.Close()

	p, err := NewSnowflake(config.LLMProviderConfig{APIKey: "pat-token", Endpoint: server.URL})
	if err != nil {
		t.Fatalf("NewSnowflake() error: %v", err)
	}

	out, err := p.Complete(context.Background(), "is this relevant?", llm.Schema{"answer": "string"}, llm.LevelLow, 5*time.Second)
	if err != nil {
		t.Fatalf("Complete() error: %v", err)
	}
	if out["answer"] != "yes" {
		t.Errorf("answer = %v, want yes", out["answer"])
	}
}

func TestSnowflakeCompleteErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message": "invalid token"}`, http.StatusUnauthorized)
	}))
	defer server.Close()

	p, err := NewSnowflake(config.LLMProviderConfig{APIKey: "bad", Endpoint: server.URL})
	if err != nil {
		t.Fatalf("NewSnowflake() error: %v", err)
	}

	_, err = p.Complete(context.Background(), "q", nil, llm.LevelLow, 5*time.Second)
	if err == nil {
		t.Fatal("Complete() succeeded, want status error")
	}
	if !strings.Contains(err.Error(), "401") {
		t.Errorf("error = %v, want status code mentioned", err)
	}
}
