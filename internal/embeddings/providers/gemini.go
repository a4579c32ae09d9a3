package providers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/askweb/askweb/internal/config"
	"github.com/askweb/askweb/internal/embeddings"
)

const defaultGeminiEmbeddingModel = "text-embedding-004"

// Gemini produces embeddings through the Gemini API.
type Gemini struct {
	client    *genai.Client
	model     string
	dimension int
}

var _ embeddings.Provider = (*Gemini)(nil)

// NewGemini builds the provider from its configuration entry.
func NewGemini(cfg config.EmbeddingProviderConfig) (*Gemini, error) {
	apiKey := strings.Trim(cfg.APIKey, `"`)
	if apiKey == "" {
		return nil, errors.New("gemini: api_key is required")
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	return &Gemini{
		client:    client,
		model:     modelOrDefault(cfg.Model, defaultGeminiEmbeddingModel),
		dimension: cfg.Dimension,
	}, nil
}

// Name returns the provider identifier used in configuration and metrics.
func (g *Gemini) Name() string { return config.ProviderGemini }

// Dimension returns the configured vector width, falling back to the
// model's native 768.
func (g *Gemini) Dimension() int {
	if g.dimension > 0 {
		return g.dimension
	}
	return 768
}

// MaxBatchSize returns the API's content cap per request.
func (g *Gemini) MaxBatchSize() int { return 100 }

// Embed returns the vector for a single text.
func (g *Gemini) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := g.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, errors.New("gemini: no embedding returned")
	}
	return vecs[0], nil
}

// EmbedBatch returns one vector per text, in input order.
func (g *Gemini) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	contents := make([]*genai.Content, len(texts))
	for i, text := range texts {
		contents[i] = &genai.Content{Parts: []*genai.Part{{Text: text}}}
	}
	var embedConfig *genai.EmbedContentConfig
	if g.dimension > 0 {
		dim := int32(g.dimension)
		embedConfig = &genai.EmbedContentConfig{OutputDimensionality: &dim}
	}

	resp, err := g.client.Models.EmbedContent(ctx, g.model, contents, embedConfig)
	if err != nil {
		return nil, fmt.Errorf("gemini: embed content: %w", err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("gemini: got %d embeddings for %d texts", len(resp.Embeddings), len(texts))
	}

	vecs := make([][]float32, len(resp.Embeddings))
	for i, emb := range resp.Embeddings {
		if emb == nil {
			return nil, fmt.Errorf("gemini: missing embedding at index %d", i)
		}
		vecs[i] = emb.Values
	}
	return vecs, nil
}
