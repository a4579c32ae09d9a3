// Package providers implements the chat-completion backends behind the
// llm.Provider port.
//
// Every backend follows the same contract: resolve the model tier against
// its configured model pair, frame the request so the model answers with a
// JSON object matching the caller's schema, and pull that object out of the
// reply with llm.ExtractJSON. Anthropic, OpenAI, and Gemini use their SDKs;
// the Azure-hosted Llama/DeepSeek deployments and Inception expose
// OpenAI-compatible endpoints and share the OpenAI client; Snowflake Cortex
// is plain REST.
package providers

import (
	"context"
	"fmt"
	"time"

	"github.com/askweb/askweb/internal/config"
	"github.com/askweb/askweb/internal/llm"
)

// maxCompletionTokens caps every completion reply. The engine's answers are
// small JSON objects; 2048 tokens is generous.
const maxCompletionTokens = 2048

// Factories returns one lazy constructor per configured provider, keyed by
// provider name. Constructors validate credentials, so they only run when
// the provider is actually selected.
func Factories(cfg config.LLMConfig) map[string]llm.Factory {
	factories := make(map[string]llm.Factory, len(cfg.Providers))
	for name, pc := range cfg.Providers {
		factories[name] = factory(name, pc)
	}
	return factories
}

func factory(name string, cfg config.LLMProviderConfig) llm.Factory {
	switch name {
	case config.ProviderAnthropic:
		return func() (llm.Provider, error) { return NewAnthropic(cfg) }
	case config.ProviderOpenAI:
		return func() (llm.Provider, error) { return NewOpenAI(cfg) }
	case config.ProviderAzureOpenAI:
		return func() (llm.Provider, error) { return NewAzureOpenAI(cfg) }
	case config.ProviderLlamaAzure, config.ProviderDeepseekAzure, config.ProviderInception:
		return func() (llm.Provider, error) { return NewCompatible(name, cfg) }
	case config.ProviderGemini:
		return func() (llm.Provider, error) { return NewGemini(cfg) }
	case config.ProviderSnowflake:
		return func() (llm.Provider, error) { return NewSnowflake(cfg) }
	default:
		return func() (llm.Provider, error) {
			return nil, fmt.Errorf("providers: no implementation for %q", name)
		}
	}
}

// completionContext applies the per-call deadline. A non-positive timeout
// leaves the parent deadline in charge.
func completionContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
