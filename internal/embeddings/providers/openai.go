package providers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/askweb/askweb/internal/config"
	"github.com/askweb/askweb/internal/embeddings"
)

const defaultOpenAIEmbeddingModel = "text-embedding-3-small"

// OpenAI produces embeddings through the OpenAI or Azure OpenAI embeddings
// API.
type OpenAI struct {
	name      string
	client    *openai.Client
	model     string
	dimension int
}

var _ embeddings.Provider = (*OpenAI)(nil)

// NewOpenAI builds the provider for api.openai.com. Endpoint optionally
// overrides the base URL.
func NewOpenAI(cfg config.EmbeddingProviderConfig) (*OpenAI, error) {
	apiKey := strings.Trim(cfg.APIKey, `"`)
	if apiKey == "" {
		return nil, errors.New("openai: api_key is required")
	}

	clientConfig := openai.DefaultConfig(apiKey)
	if strings.TrimSpace(cfg.Endpoint) != "" {
		clientConfig.BaseURL = cfg.Endpoint
	}
	return &OpenAI{
		name:      config.ProviderOpenAI,
		client:    openai.NewClientWithConfig(clientConfig),
		model:     modelOrDefault(cfg.Model, defaultOpenAIEmbeddingModel),
		dimension: cfg.Dimension,
	}, nil
}

// NewAzureOpenAI builds the provider for an Azure OpenAI resource; the
// model field names the embedding deployment.
func NewAzureOpenAI(cfg config.EmbeddingProviderConfig) (*OpenAI, error) {
	apiKey := strings.Trim(cfg.APIKey, `"`)
	endpoint := strings.Trim(cfg.Endpoint, `"`)
	if apiKey == "" {
		return nil, errors.New("azure_openai: api_key is required")
	}
	if endpoint == "" {
		return nil, errors.New("azure_openai: endpoint is required")
	}

	clientConfig := openai.DefaultAzureConfig(apiKey, endpoint)
	if cfg.APIVersion != "" {
		clientConfig.APIVersion = cfg.APIVersion
	}
	return &OpenAI{
		name:      config.ProviderAzureOpenAI,
		client:    openai.NewClientWithConfig(clientConfig),
		model:     modelOrDefault(cfg.Model, defaultOpenAIEmbeddingModel),
		dimension: cfg.Dimension,
	}, nil
}

// Name returns the provider identifier used in configuration and metrics.
func (o *OpenAI) Name() string { return o.name }

// Dimension returns the configured vector width, falling back to the
// model's native width.
func (o *OpenAI) Dimension() int {
	if o.dimension > 0 {
		return o.dimension
	}
	switch o.model {
	case "text-embedding-3-large":
		return 3072
	default:
		return 1536
	}
}

// MaxBatchSize returns the API's input cap per request.
func (o *OpenAI) MaxBatchSize() int { return 2048 }

// Embed returns the vector for a single text.
func (o *OpenAI) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := o.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, fmt.Errorf("%s: no embedding returned", o.name)
	}
	return vecs[0], nil
}

// EmbedBatch returns one vector per text, ordered by the API's index field.
func (o *OpenAI) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	req := openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(o.model),
	}
	if o.dimension > 0 {
		req.Dimensions = o.dimension
	}

	resp, err := o.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%s: create embeddings: %w", o.name, err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("%s: got %d embeddings for %d texts", o.name, len(resp.Data), len(texts))
	}

	vecs := make([][]float32, len(resp.Data))
	for _, data := range resp.Data {
		if data.Index < 0 || data.Index >= len(vecs) {
			return nil, fmt.Errorf("%s: embedding index %d out of range", o.name, data.Index)
		}
		vecs[data.Index] = data.Embedding
	}
	return vecs, nil
}

func modelOrDefault(model, fallback string) string {
	if strings.TrimSpace(model) == "" {
		return fallback
	}
	return model
}
