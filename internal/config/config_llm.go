package config

import "time"

// LLM provider names accepted in the providers map.
const (
	ProviderOpenAI        = "openai"
	ProviderAnthropic     = "anthropic"
	ProviderGemini        = "gemini"
	ProviderAzureOpenAI   = "azure_openai"
	ProviderLlamaAzure    = "llama_azure"
	ProviderDeepseekAzure = "deepseek_azure"
	ProviderInception     = "inception"
	ProviderSnowflake     = "snowflake"
)

var knownLLMProviders = map[string]bool{
	ProviderOpenAI:        true,
	ProviderAnthropic:     true,
	ProviderGemini:        true,
	ProviderAzureOpenAI:   true,
	ProviderLlamaAzure:    true,
	ProviderDeepseekAzure: true,
	ProviderInception:     true,
	ProviderSnowflake:     true,
}

// LLMConfig configures the chat-completion providers.
type LLMConfig struct {
	// PreferredProvider is used for every call; there is no fallback chain.
	PreferredProvider string `yaml:"preferred_provider"`

	// TimeoutSeconds is the default per-call deadline. Callers may shorten
	// or extend it per call site.
	TimeoutSeconds int `yaml:"timeout_seconds"`

	Providers map[string]LLMProviderConfig `yaml:"providers"`
}

// LLMProviderConfig configures one provider entry.
type LLMProviderConfig struct {
	APIKey string `yaml:"api_key"`

	// Endpoint is the API base URL. Required for the Azure-hosted and
	// OpenAI-compatible providers; ignored by openai/anthropic/gemini.
	Endpoint string `yaml:"endpoint"`

	// APIVersion applies to azure_openai only.
	APIVersion string `yaml:"api_version"`

	Models ModelPair `yaml:"models"`
}

// ModelPair names the model used for each quality tier.
type ModelPair struct {
	High string `yaml:"high"`
	Low  string `yaml:"low"`
}

// Model returns the model for the given tier, defaulting to the low tier
// for any value other than "high".
func (m ModelPair) Model(level string) string {
	if level == "high" {
		return m.High
	}
	return m.Low
}

// Timeout returns the default LLM call deadline.
func (l LLMConfig) Timeout() time.Duration {
	return time.Duration(l.TimeoutSeconds) * time.Second
}

// Provider returns the named provider entry.
func (l LLMConfig) Provider(name string) (LLMProviderConfig, bool) {
	p, ok := l.Providers[name]
	return p, ok
}

func (l LLMConfig) validate() error {
	for name := range l.Providers {
		if !knownLLMProviders[name] {
			return &Error{Field: "llm.providers." + name, Reason: "unknown provider"}
		}
	}
	if l.PreferredProvider != "" {
		if _, ok := l.Providers[l.PreferredProvider]; !ok {
			return &Error{Field: "llm.preferred_provider", Reason: "no such provider configured: " + l.PreferredProvider}
		}
	}
	return nil
}
