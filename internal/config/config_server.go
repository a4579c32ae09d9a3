package config

import "time"

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// Mode is "development" or "production". Development mode honors the
	// per-request "db" retrieval endpoint override.
	Mode string `yaml:"mode"`

	EnableCORS bool `yaml:"enable_cors"`

	// StaticDir overrides the embedded home page assets when set.
	StaticDir string `yaml:"static_dir"`

	ReadHeaderTimeoutSeconds int `yaml:"read_header_timeout_seconds"`
	ShutdownTimeoutSeconds   int `yaml:"shutdown_timeout_seconds"`
}

// ReadHeaderTimeout returns the header read deadline.
func (s ServerConfig) ReadHeaderTimeout() time.Duration {
	return time.Duration(s.ReadHeaderTimeoutSeconds) * time.Second
}

// ShutdownTimeout returns the graceful shutdown deadline.
func (s ServerConfig) ShutdownTimeout() time.Duration {
	return time.Duration(s.ShutdownTimeoutSeconds) * time.Second
}
