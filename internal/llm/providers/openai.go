package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/askweb/askweb/internal/config"
	"github.com/askweb/askweb/internal/llm"
)

// inceptionBaseURL is the default endpoint for Inception's Mercury models.
const inceptionBaseURL = "https://api.inceptionlabs.ai/v1"

// OpenAI answers completions through any chat-completions endpoint the
// go-openai client can reach: api.openai.com, Azure OpenAI deployments,
// and OpenAI-compatible services.
type OpenAI struct {
	name         string
	client       *openai.Client
	models       config.ModelPair
	systemFormat string
	temperature  float32
}

var _ llm.Provider = (*OpenAI)(nil)

// NewOpenAI builds the provider for api.openai.com. Endpoint optionally
// overrides the base URL.
func NewOpenAI(cfg config.LLMProviderConfig) (*OpenAI, error) {
	apiKey := strings.Trim(cfg.APIKey, `"`)
	if apiKey == "" {
		return nil, errors.New("openai: api_key is required")
	}

	clientConfig := openai.DefaultConfig(apiKey)
	if strings.TrimSpace(cfg.Endpoint) != "" {
		clientConfig.BaseURL = cfg.Endpoint
	}
	return &OpenAI{
		name:         config.ProviderOpenAI,
		client:       openai.NewClientWithConfig(clientConfig),
		models:       cfg.Models,
		systemFormat: "Provide a valid JSON response matching this schema: %s",
		temperature:  0.7,
	}, nil
}

// NewAzureOpenAI builds the provider for an Azure OpenAI resource. Both
// api_key and endpoint are required; api_version overrides the client
// default when set.
func NewAzureOpenAI(cfg config.LLMProviderConfig) (*OpenAI, error) {
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
		name:         config.ProviderAzureOpenAI,
		client:       openai.NewClientWithConfig(clientConfig),
		models:       cfg.Models,
		systemFormat: "Provide a response that matches this JSON schema: %s",
		temperature:  0.7,
	}, nil
}

// NewCompatible builds the provider for an OpenAI-compatible endpoint such
// as the Azure-hosted Llama and DeepSeek deployments or Inception. The
// endpoint comes from configuration; Inception falls back to its public
// API URL.
func NewCompatible(name string, cfg config.LLMProviderConfig) (*OpenAI, error) {
	apiKey := strings.Trim(cfg.APIKey, `"`)
	if apiKey == "" {
		return nil, fmt.Errorf("%s: api_key is required", name)
	}

	endpoint := strings.Trim(cfg.Endpoint, `"`)
	if endpoint == "" && name == config.ProviderInception {
		endpoint = inceptionBaseURL
	}
	if endpoint == "" {
		return nil, fmt.Errorf("%s: endpoint is required", name)
	}

	clientConfig := openai.DefaultConfig(apiKey)
	clientConfig.BaseURL = endpoint
	return &OpenAI{
		name:         name,
		client:       openai.NewClientWithConfig(clientConfig),
		models:       cfg.Models,
		systemFormat: "Provide a response that matches this JSON schema: %s",
		temperature:  0.7,
	}, nil
}

// Name returns the provider identifier used in configuration and metrics.
func (o *OpenAI) Name() string { return o.name }

// Complete sends prompt and returns the parsed JSON object from the reply.
func (o *OpenAI) Complete(ctx context.Context, prompt string, schema llm.Schema, level llm.Level, timeout time.Duration) (map[string]any, error) {
	ctx, cancel := completionContext(ctx, timeout)
	defer cancel()

	schemaJSON, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("%s: encode schema: %w", o.name, err)
	}

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.models.Model(string(level)),
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: fmt.Sprintf(o.systemFormat, schemaJSON),
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
		Temperature: o.temperature,
		MaxTokens:   maxCompletionTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: completion: %w", o.name, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%s: completion returned no choices", o.name)
	}
	return llm.ExtractJSON(resp.Choices[0].Message.Content)
}
