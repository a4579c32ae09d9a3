package embeddings

import (
	"context"
	"testing"

	"github.com/askweb/askweb/internal/config"
)

type fakeEmbedder struct {
	name      string
	dimension int
	calls     int
	batches   [][]string
	deadline  bool
}

func (f *fakeEmbedder) Name() string      { return f.name }
func (f *fakeEmbedder) Dimension() int    { return f.dimension }
func (f *fakeEmbedder) MaxBatchSize() int { return 16 }

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := f.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	f.calls++
	f.batches = append(f.batches, texts)
	_, f.deadline = ctx.Deadline()
	vecs := make([][]float32, len(texts))
	for i := range texts {
		vecs[i] = make([]float32, f.dimension)
	}
	return vecs, nil
}

func embeddingConfig(preferred string) config.EmbeddingConfig {
	return config.EmbeddingConfig{
		PreferredProvider: preferred,
		TimeoutSeconds:    30,
		Providers: map[string]config.EmbeddingProviderConfig{
			"openai": {},
			"gemini": {},
		},
	}
}

func TestRouterEmbedUsesPreferredProvider(t *testing.T) {
	oai := &fakeEmbedder{name: "openai", dimension: 1536}
	gem := &fakeEmbedder{name: "gemini", dimension: 768}
	factories := map[string]Factory{
		"openai": func() (Provider, error) { return oai, nil },
		"gemini": func() (Provider, error) { return gem, nil },
	}

	r := NewRouter(embeddingConfig("gemini"), factories, nil, nil)
	vec, err := r.Embed(context.Background(), "chocolate cake")
	if err != nil {
		t.Fatalf("Embed() error: %v", err)
	}
	if len(vec) != 768 {
		t.Errorf("vector dimension = %d, want 768", len(vec))
	}
	if oai.calls != 0 {
		t.Errorf("openai calls = %d, want 0", oai.calls)
	}
	if !gem.deadline {
		t.Error("provider context had no deadline")
	}
	if r.Dimension() != 768 {
		t.Errorf("Dimension() = %d, want 768", r.Dimension())
	}
}

func TestRouterEmbedBatchPreservesOrderAndLength(t *testing.T) {
	p := &fakeEmbedder{name: "openai", dimension: 4}
	factories := map[string]Factory{
		"openai": func() (Provider, error) { return p, nil },
	}
	r := NewRouter(embeddingConfig("openai"), factories, nil, nil)

	texts := []string{"a", "b", "c"}
	vecs, err := r.EmbedBatch(context.Background(), texts)
	if err != nil {
		t.Fatalf("EmbedBatch() error: %v", err)
	}
	if len(vecs) != 3 {
		t.Fatalf("got %d vectors, want 3", len(vecs))
	}
	if len(p.batches) != 1 || len(p.batches[0]) != 3 || p.batches[0][0] != "a" {
		t.Errorf("provider saw batches %v, want one batch [a b c]", p.batches)
	}
}

func TestRouterEmbedBatchEmptyInput(t *testing.T) {
	r := NewRouter(embeddingConfig("openai"), map[string]Factory{
		"openai": func() (Provider, error) {
			t.Fatal("factory should not run for empty input")
			return nil, nil
		},
	}, nil, nil)

	vecs, err := r.EmbedBatch(context.Background(), nil)
	if err != nil {
		t.Fatalf("EmbedBatch(nil) error: %v", err)
	}
	if vecs != nil {
		t.Errorf("EmbedBatch(nil) = %v, want nil", vecs)
	}
}

func TestRouterUnknownProvider(t *testing.T) {
	r := NewRouter(embeddingConfig("snowflake"), map[string]Factory{}, nil, nil)
	if _, err := r.Embed(context.Background(), "q"); err == nil {
		t.Fatal("Embed() with unregistered provider: want error")
	}
	if r.Dimension() != 0 {
		t.Errorf("Dimension() = %d, want 0 for unknown provider", r.Dimension())
	}
}

func TestRouterConstructsProviderOnce(t *testing.T) {
	built := 0
	p := &fakeEmbedder{name: "openai", dimension: 8}
	factories := map[string]Factory{
		"openai": func() (Provider, error) {
			built++
			return p, nil
		},
	}
	r := NewRouter(embeddingConfig("openai"), factories, nil, nil)

	for i := 0; i < 3; i++ {
		if _, err := r.Embed(context.Background(), "x"); err != nil {
			t.Fatalf("Embed() #%d error: %v", i, err)
		}
	}
	if built != 1 {
		t.Errorf("factory invoked %d times, want 1", built)
	}
}
