// Package providers implements the embedding backends behind the
// embeddings.Provider port.
//
// OpenAI and Azure OpenAI share the go-openai client; Gemini uses the genai
// SDK; Snowflake Cortex is plain REST. Each backend reports its vector
// dimension so retrieval endpoints can size their indexes.
package providers

import (
	"fmt"

	"github.com/askweb/askweb/internal/config"
	"github.com/askweb/askweb/internal/embeddings"
)

// Factories returns one lazy constructor per configured provider, keyed by
// provider name.
func Factories(cfg config.EmbeddingConfig) map[string]embeddings.Factory {
	factories := make(map[string]embeddings.Factory, len(cfg.Providers))
	for name, pc := range cfg.Providers {
		factories[name] = factory(name, pc)
	}
	return factories
}

func factory(name string, cfg config.EmbeddingProviderConfig) embeddings.Factory {
	switch name {
	case config.ProviderOpenAI:
		return func() (embeddings.Provider, error) { return NewOpenAI(cfg) }
	case config.ProviderAzureOpenAI:
		return func() (embeddings.Provider, error) { return NewAzureOpenAI(cfg) }
	case config.ProviderGemini:
		return func() (embeddings.Provider, error) { return NewGemini(cfg) }
	case config.ProviderSnowflake:
		return func() (embeddings.Provider, error) { return NewSnowflake(cfg) }
	default:
		return func() (embeddings.Provider, error) {
			return nil, fmt.Errorf("providers: no embedding implementation for %q", name)
		}
	}
}
