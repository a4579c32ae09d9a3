// Package config loads and validates the askweb YAML configuration.
//
// Configuration is read once at process start and treated as immutable
// afterwards. Values support ${VAR} environment interpolation; a .env file
// in the working directory is loaded first when present.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
	LLM       LLMConfig       `yaml:"llm"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	NLWeb     NLWebConfig     `yaml:"nlweb"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"`
	Output    string `yaml:"output"` // "stderr", "stdout", or a file path
	AddSource bool   `yaml:"add_source"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled *bool `yaml:"enabled"`
}

// MetricsEnabled reports whether /metrics should be served (default true).
func (c *Config) MetricsEnabled() bool {
	return c.Metrics.Enabled == nil || *c.Metrics.Enabled
}

// Error reports an invalid or missing configuration value. The transport
// layer maps it to a 4xx/5xx before any orchestration starts.
type Error struct {
	Field  string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

// Load reads the YAML file at path, expands ${VAR} references from the
// environment (after loading a .env file if one exists), fills defaults,
// and validates the result.
func Load(path string) (*Config, error) {
	// Missing .env is fine; values may come from the real environment.
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	decoder := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = "production"
	}
	if cfg.Server.ReadHeaderTimeoutSeconds == 0 {
		cfg.Server.ReadHeaderTimeoutSeconds = 5
	}
	if cfg.Server.ShutdownTimeoutSeconds == 0 {
		cfg.Server.ShutdownTimeoutSeconds = 10
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stderr"
	}

	if cfg.LLM.TimeoutSeconds == 0 {
		cfg.LLM.TimeoutSeconds = 8
	}
	if cfg.Embedding.TimeoutSeconds == 0 {
		cfg.Embedding.TimeoutSeconds = 30
	}

	if cfg.NLWeb.JSONDataFolder == "" {
		cfg.NLWeb.JSONDataFolder = filepath.Join("data", "json")
	}
	if cfg.NLWeb.JSONWithEmbeddingsFolder == "" {
		cfg.NLWeb.JSONWithEmbeddingsFolder = filepath.Join("data", "json_with_embeddings")
	}
	// NLWEB_OUTPUT_DIR redirects relative data paths.
	if base := os.Getenv("NLWEB_OUTPUT_DIR"); base != "" {
		if !filepath.IsAbs(cfg.NLWeb.JSONDataFolder) {
			cfg.NLWeb.JSONDataFolder = filepath.Join(base, cfg.NLWeb.JSONDataFolder)
		}
		if !filepath.IsAbs(cfg.NLWeb.JSONWithEmbeddingsFolder) {
			cfg.NLWeb.JSONWithEmbeddingsFolder = filepath.Join(base, cfg.NLWeb.JSONWithEmbeddingsFolder)
		}
	}
}

// Validate checks cross-field consistency. It returns the first problem
// found as an *Error.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return &Error{Field: "server.port", Reason: fmt.Sprintf("invalid port %d", c.Server.Port)}
	}
	if c.Server.Mode != "development" && c.Server.Mode != "production" {
		return &Error{Field: "server.mode", Reason: fmt.Sprintf("unknown mode %q", c.Server.Mode)}
	}
	if err := c.LLM.validate(); err != nil {
		return err
	}
	if err := c.Embedding.validate(); err != nil {
		return err
	}
	if err := c.Retrieval.validate(); err != nil {
		return err
	}
	return nil
}

// IsDevelopment reports whether the server runs in development mode, which
// enables per-request retrieval endpoint overrides.
func (c *Config) IsDevelopment() bool {
	return c.Server.Mode == "development"
}
