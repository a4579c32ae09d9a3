package config

import "time"

var knownEmbeddingProviders = map[string]bool{
	ProviderOpenAI:      true,
	ProviderGemini:      true,
	ProviderAzureOpenAI: true,
	ProviderSnowflake:   true,
}

// EmbeddingConfig configures the text-embedding providers.
type EmbeddingConfig struct {
	PreferredProvider string `yaml:"preferred_provider"`

	TimeoutSeconds int `yaml:"timeout_seconds"`

	Providers map[string]EmbeddingProviderConfig `yaml:"providers"`
}

// EmbeddingProviderConfig configures one embedding provider entry.
type EmbeddingProviderConfig struct {
	APIKey     string `yaml:"api_key"`
	Endpoint   string `yaml:"endpoint"`
	APIVersion string `yaml:"api_version"`

	// Model is the embedding model identifier, e.g. text-embedding-3-small.
	Model string `yaml:"model"`

	// Dimension overrides the provider's default vector width. Zero means
	// use the model default.
	Dimension int `yaml:"dimension"`
}

// Timeout returns the embedding call deadline.
func (e EmbeddingConfig) Timeout() time.Duration {
	return time.Duration(e.TimeoutSeconds) * time.Second
}

// Provider returns the named provider entry.
func (e EmbeddingConfig) Provider(name string) (EmbeddingProviderConfig, bool) {
	p, ok := e.Providers[name]
	return p, ok
}

func (e EmbeddingConfig) validate() error {
	for name := range e.Providers {
		if !knownEmbeddingProviders[name] {
			return &Error{Field: "embedding.providers." + name, Reason: "unknown provider"}
		}
	}
	if e.PreferredProvider != "" {
		if _, ok := e.Providers[e.PreferredProvider]; !ok {
			return &Error{Field: "embedding.preferred_provider", Reason: "no such provider configured: " + e.PreferredProvider}
		}
	}
	return nil
}
