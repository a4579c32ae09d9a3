package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/askweb/askweb/internal/config"
	"github.com/askweb/askweb/internal/llm"
)

const anthropicSystemPrompt = "You are a helpful assistant that always responds with valid JSON matching the provided schema."

// Anthropic answers completions through the Claude Messages API.
type Anthropic struct {
	client anthropic.Client
	models config.ModelPair
}

var _ llm.Provider = (*Anthropic)(nil)

// NewAnthropic builds the provider from its configuration entry. The API
// key is required; Endpoint optionally overrides the API base URL.
func NewAnthropic(cfg config.LLMProviderConfig) (*Anthropic, error) {
	apiKey := strings.Trim(cfg.APIKey, `"`)
	if apiKey == "" {
		return nil, errors.New("anthropic: api_key is required")
	}

	options := []option.RequestOption{option.WithAPIKey(apiKey)}
	if strings.TrimSpace(cfg.Endpoint) != "" {
		options = append(options, option.WithBaseURL(cfg.Endpoint))
	}
	return &Anthropic{
		client: anthropic.NewClient(options...),
		models: cfg.Models,
	}, nil
}

// Name returns the provider identifier used in configuration and metrics.
func (a *Anthropic) Name() string { return config.ProviderAnthropic }

// Complete sends prompt and returns the parsed JSON object from the reply.
func (a *Anthropic) Complete(ctx context.Context, prompt string, schema llm.Schema, level llm.Level, timeout time.Duration) (map[string]any, error) {
	ctx, cancel := completionContext(ctx, timeout)
	defer cancel()

	schemaJSON, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("anthropic: encode schema: %w", err)
	}

	// The trailing assistant message is a prefill: the model continues
	// from it, which steers the reply toward a bare JSON object.
	msg, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(a.models.Model(string(level))),
		MaxTokens:   maxCompletionTokens,
		Temperature: anthropic.Float(1.0),
		System: []anthropic.TextBlockParam{
			{Text: anthropicSystemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
			anthropic.NewAssistantMessage(anthropic.NewTextBlock(
				"I'll provide a JSON response matching this schema: " + string(schemaJSON))),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("anthropic: completion: %w", err)
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Text != "" {
			text.WriteString(block.Text)
		}
	}
	return llm.ExtractJSON(text.String())
}
