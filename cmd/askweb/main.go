// Package main provides the askweb CLI: the HTTP server that answers
// natural language questions over schema.org corpora, and the ingestion
// tool that populates the vector store behind it.
//
// # Basic Usage
//
// Start the server:
//
//	askweb serve --config config.yaml
//
// Load a corpus:
//
//	askweb load recipes.jsonl seriouseats
//	askweb load https://example.com/feed.xml example_podcast
//
// Delete a site:
//
//	askweb load --only-delete seriouseats
//
// # Environment Variables
//
// Configuration values support ${VAR} interpolation, so credentials are
// usually provided via environment:
//
//   - OPENAI_API_KEY: OpenAI key for completions and embeddings
//   - ANTHROPIC_API_KEY: Anthropic key for Claude models
//   - GEMINI_API_KEY: Google Gemini key
//   - NLWEB_OUTPUT_DIR: base directory for relative data folders
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Build information - populated by ldflags during build.
//
// Example build command:
//
//	go build -ldflags "-X main.version=v1.0.0 -X main.commit=$(git rev-parse HEAD) -X main.date=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
var (
	version = "dev"     // Semantic version (e.g., "v1.0.0")
	commit  = "none"    // Git commit SHA
	date    = "unknown" // Build timestamp
)

func main() {
	// Default logger until a command loads its configuration.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

// buildRootCmd creates the root command with all subcommands attached.
// This is separated from main() to facilitate testing.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "askweb",
		Short: "askweb - Natural language answers over schema.org corpora",
		Long: `Askweb answers natural language questions over schema.org-style items held
in a vector store. It serves a streaming /ask endpoint, an MCP-style /mcp
function-call endpoint, and ships the ingestion tooling that loads JSONL,
CSV, and RSS sources into the store.

Supported LLM providers: OpenAI, Anthropic, Gemini, Azure OpenAI, Snowflake
Supported vector stores: Qdrant, Postgres (pgvector), SQLite, Azure AI Search`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		buildServeCmd(),
		buildLoadCmd(),
		buildVersionCmd(),
	)

	return rootCmd
}
