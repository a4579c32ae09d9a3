package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/askweb/askweb/internal/config"
	"github.com/askweb/askweb/internal/embeddings"
)

const (
	cortexEmbedPath = "/api/v2/cortex/inference:embed"

	defaultCortexEmbeddingModel = "snowflake-arctic-embed-m-v1.5"
)

// Snowflake produces embeddings through the Snowflake Cortex inference
// REST API, authenticated with a programmatic access token.
type Snowflake struct {
	accountURL string
	token      string
	model      string
	dimension  int
	httpClient *http.Client
}

var _ embeddings.Provider = (*Snowflake)(nil)

// NewSnowflake builds the provider from its configuration entry. Endpoint
// is the account URL; api_key holds the access token.
func NewSnowflake(cfg config.EmbeddingProviderConfig) (*Snowflake, error) {
	token := strings.Trim(cfg.APIKey, `"`)
	if token == "" {
		return nil, errors.New("snowflake: api_key is required")
	}
	accountURL := strings.TrimSuffix(strings.Trim(cfg.Endpoint, `"`), "/")
	if accountURL == "" {
		return nil, errors.New("snowflake: endpoint (account URL) is required")
	}

	return &Snowflake{
		accountURL: accountURL,
		token:      token,
		model:      modelOrDefault(cfg.Model, defaultCortexEmbeddingModel),
		dimension:  cfg.Dimension,
		httpClient: &http.Client{},
	}, nil
}

// Name returns the provider identifier used in configuration and metrics.
func (s *Snowflake) Name() string { return config.ProviderSnowflake }

// Dimension returns the configured vector width, falling back to the
// arctic-embed-m native 768.
func (s *Snowflake) Dimension() int {
	if s.dimension > 0 {
		return s.dimension
	}
	return 768
}

// MaxBatchSize bounds the texts sent per REST call.
func (s *Snowflake) MaxBatchSize() int { return 100 }

// Embed returns the vector for a single text.
func (s *Snowflake) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := s.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, errors.New("snowflake: no embedding returned")
	}
	return vecs[0], nil
}

// EmbedBatch returns one vector per text, in input order.
func (s *Snowflake) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	payload, err := json.Marshal(map[string]any{
		"text":  texts,
		"model": s.model,
	})
	if err != nil {
		return nil, fmt.Errorf("snowflake: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.accountURL+cortexEmbedPath, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("snowflake: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("snowflake: embed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("snowflake: embed: status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	var respBody struct {
		Data []struct {
			Embedding [][]float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&respBody); err != nil {
		return nil, fmt.Errorf("snowflake: decode response: %w", err)
	}
	if len(respBody.Data) == 0 || len(respBody.Data[0].Embedding) != len(texts) {
		return nil, fmt.Errorf("snowflake: malformed embed response for %d texts", len(texts))
	}
	return respBody.Data[0].Embedding, nil
}
