package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/askweb/askweb/internal/config"
	"github.com/askweb/askweb/internal/llm"
)

// Gemini answers completions through the Gemini API.
type Gemini struct {
	client *genai.Client
	models config.ModelPair
}

var _ llm.Provider = (*Gemini)(nil)

// NewGemini builds the provider from its configuration entry.
func NewGemini(cfg config.LLMProviderConfig) (*Gemini, error) {
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
	return &Gemini{client: client, models: cfg.Models}, nil
}

// Name returns the provider identifier used in configuration and metrics.
func (g *Gemini) Name() string { return config.ProviderGemini }

// Complete sends prompt and returns the parsed JSON object from the reply.
func (g *Gemini) Complete(ctx context.Context, prompt string, schema llm.Schema, level llm.Level, timeout time.Duration) (map[string]any, error) {
	ctx, cancel := completionContext(ctx, timeout)
	defer cancel()

	schemaJSON, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("gemini: encode schema: %w", err)
	}

	contents := []*genai.Content{
		{
			Role:  genai.RoleUser,
			Parts: []*genai.Part{{Text: prompt}},
		},
	}
	genConfig := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{
				{Text: "Provide a valid JSON response matching this schema: " + string(schemaJSON)},
			},
		},
		Temperature:     genai.Ptr[float32](0.7),
		MaxOutputTokens: maxCompletionTokens,
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.models.Model(string(level)), contents, genConfig)
	if err != nil {
		return nil, fmt.Errorf("gemini: completion: %w", err)
	}

	var text strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part != nil && part.Text != "" {
				text.WriteString(part.Text)
			}
		}
	}
	return llm.ExtractJSON(text.String())
}
