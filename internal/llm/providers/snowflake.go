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
	"time"

	"github.com/askweb/askweb/internal/config"
	"github.com/askweb/askweb/internal/llm"
)

const (
	cortexCompletePath = "/api/v2/cortex/inference:complete"

	// cortexDefaultModel is used when the configuration names no model
	// for the requested tier.
	cortexDefaultModel = "claude-3-5-sonnet"

	// cortexMaxTokens is the Cortex REST API output cap.
	cortexMaxTokens = 4096
)

// Snowflake answers completions through the Snowflake Cortex inference
// REST API, authenticated with a programmatic access token.
type Snowflake struct {
	accountURL string
	token      string
	models     config.ModelPair
	httpClient *http.Client
}

var _ llm.Provider = (*Snowflake)(nil)

// NewSnowflake builds the provider from its configuration entry. Endpoint
// is the account URL; api_key holds the access token.
func NewSnowflake(cfg config.LLMProviderConfig) (*Snowflake, error) {
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
		models:     cfg.Models,
		httpClient: &http.Client{},
	}, nil
}

// Name returns the provider identifier used in configuration and metrics.
func (s *Snowflake) Name() string { return config.ProviderSnowflake }

// Complete sends prompt and returns the parsed JSON object from the reply.
func (s *Snowflake) Complete(ctx context.Context, prompt string, schema llm.Schema, level llm.Level, timeout time.Duration) (map[string]any, error) {
	ctx, cancel := completionContext(ctx, timeout)
	defer cancel()

	schemaJSON, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("snowflake: encode schema: %w", err)
	}

	model := s.models.Model(string(level))
	if model == "" {
		model = cortexDefaultModel
	}

	reqBody := map[string]any{
		"model":       model,
		"max_tokens":  cortexMaxTokens,
		"temperature": 0,
		"messages": []map[string]string{
			{
				"role":    "system",
				"content": "Provide a response in valid JSON that matches this JSON schema: " + string(schemaJSON),
			},
			{
				"role":    "user",
				"content": prompt,
			},
		},
		"stream": false,
	}

	var respBody struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := s.post(ctx, cortexCompletePath, reqBody, &respBody); err != nil {
		return nil, err
	}
	if len(respBody.Choices) == 0 {
		return nil, errors.New("snowflake: completion returned no choices")
	}
	return llm.ExtractJSON(strings.TrimSpace(respBody.Choices[0].Message.Content))
}

func (s *Snowflake) post(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("snowflake: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.accountURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("snowflake: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("snowflake: %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("snowflake: %s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("snowflake: decode response: %w", err)
	}
	return nil
}
