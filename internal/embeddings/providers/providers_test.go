package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/askweb/askweb/internal/config"
	"github.com/askweb/askweb/internal/embeddings"
)

func TestFactoriesCoverConfiguredProviders(t *testing.T) {
	cfg := config.EmbeddingConfig{
		Providers: map[string]config.EmbeddingProviderConfig{
			config.ProviderOpenAI:    {APIKey: "k"},
			config.ProviderGemini:    {APIKey: "k"},
			config.ProviderSnowflake: {APIKey: "k", Endpoint: "https://acct.snowflakecomputing.com"},
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
		build func() (embeddings.Provider, error)
	}{
		{"openai", func() (embeddings.Provider, error) { return NewOpenAI(config.EmbeddingProviderConfig{}) }},
		{"azure_openai no endpoint", func() (embeddings.Provider, error) {
			return NewAzureOpenAI(config.EmbeddingProviderConfig{APIKey: "k"})
		}},
		{"gemini", func() (embeddings.Provider, error) { return NewGemini(config.EmbeddingProviderConfig{}) }},
		{"snowflake no endpoint", func() (embeddings.Provider, error) {
			return NewSnowflake(config.EmbeddingProviderConfig{APIKey: "k"})
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

func TestDimensionDefaults(t *testing.T) {
	tests := []struct {
		name  string
		build func() (embeddings.Provider, error)
		want  int
	}{
		{"openai small default", func() (embeddings.Provider, error) {
			return NewOpenAI(config.EmbeddingProviderConfig{APIKey: "k"})
		}, 1536},
		{"openai large", func() (embeddings.Provider, error) {
			return NewOpenAI(config.EmbeddingProviderConfig{APIKey: "k", Model: "text-embedding-3-large"})
		}, 3072},
		{"openai configured override", func() (embeddings.Provider, error) {
			return NewOpenAI(config.EmbeddingProviderConfig{APIKey: "k", Dimension: 256})
		}, 256},
		{"gemini default", func() (embeddings.Provider, error) {
			return NewGemini(config.EmbeddingProviderConfig{APIKey: "k"})
		}, 768},
		{"snowflake default", func() (embeddings.Provider, error) {
			return NewSnowflake(config.EmbeddingProviderConfig{APIKey: "k", Endpoint: "https://a.b"})
		}, 768},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := tt.build()
			if err != nil {
				t.Fatalf("constructor error: %v", err)
			}
			if got := p.Dimension(); got != tt.want {
				t.Errorf("Dimension() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestOpenAIEmbedBatchOrdersByIndex(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if len(req.Input) != 2 {
			t.Errorf("input length = %d, want 2", len(req.Input))
		}
		// Data returned out of order; the client must reorder by index.
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data": []map[string]any{
				{"object": "embedding", "index": 1, "embedding": []float32{0.2, 0.2}},
				{"object": "embedding", "index": 0, "embedding": []float32{0.1, 0.1}},
			},
			"model": req.Model,
		})
	}))
	defer server.Close()

	p, err := NewOpenAI(config.EmbeddingProviderConfig{
		APIKey:   "test-key",
		Endpoint: server.URL + "/v1",
	})
	if err != nil {
		t.Fatalf("NewOpenAI() error: %v", err)
	}

	vecs, err := p.EmbedBatch(context.Background(), []string{"first", "second"})
	if err != nil {
		t.Fatalf("EmbedBatch() error: %v", err)
	}
	if vecs[0][0] != 0.1 {
		t.Errorf("vecs[0][0] = %v, want 0.1 (reordered by index)", vecs[0][0])
	}
	if vecs[1][0] != 0.2 {
		t.Errorf("vecs[1][0] = %v, want 0.2", vecs[1][0])
	}
}

func TestSnowflakeEmbedBatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != cortexEmbedPath {
			t.Errorf("path = %q, want %q", r.URL.Path, cortexEmbedPath)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer pat-token" {
			t.Errorf("Authorization = %q", got)
		}
		var req struct {
			Text  []string `json:"text"`
			Model string   `json:"model"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Model != defaultCortexEmbeddingModel {
			t.Errorf("model = %q, want default %q", req.Model, defaultCortexEmbeddingModel)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				{"embedding": [][]float32{{0.5}, {0.6}}},
			},
		})
	}))
	defer server.Close()

	p, err := NewSnowflake(config.EmbeddingProviderConfig{APIKey: "pat-token", Endpoint: server.URL})
	if err != nil {
		t.Fatalf("NewSnowflake() error: %v", err)
	}

	vecs, err := p.EmbedBatch(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("EmbedBatch() error: %v", err)
	}
	if len(vecs) != 2 || vecs[0][0] != 0.5 || vecs[1][0] != 0.6 {
		t.Errorf("vecs = %v, want [[0.5] [0.6]]", vecs)
	}
}

func TestSnowflakeEmbedErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message": "model not found"}`, http.StatusBadRequest)
	}))
	defer server.Close()

	p, err := NewSnowflake(config.EmbeddingProviderConfig{APIKey: "pat", Endpoint: server.URL})
	if err != nil {
		t.Fatalf("NewSnowflake() error: %v", err)
	}
	if _, err := p.Embed(context.Background(), "x"); err == nil {
		t.Fatal("Embed() succeeded, want status error")
	}
}
