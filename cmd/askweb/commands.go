package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/askweb/askweb/internal/ingest"
)

// =============================================================================
// Serve Command
// =============================================================================

// buildServeCmd creates the "serve" command that runs the HTTP server.
func buildServeCmd() *cobra.Command {
	var (
		configPath string
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the askweb HTTP server",
		Long: `Start the askweb HTTP server with the configured providers.

The server will:
1. Load configuration from the specified file (or config.yaml)
2. Wire the LLM, embedding, and retrieval providers
3. Load the prompt library and watch it for changes
4. Serve /ask, /mcp, /who, /healthz, and /metrics

Graceful shutdown is handled on SIGINT/SIGTERM signals.`,
		Example: `  # Start with default config
  askweb serve

  # Start with custom config
  askweb serve --config /etc/askweb/production.yaml

  # Start with debug logging
  askweb serve --debug`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath, debug)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "config.yaml",
		"Path to YAML configuration file")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false,
		"Enable debug logging (verbose output)")

	return cmd
}

// =============================================================================
// Load Command
// =============================================================================

// buildLoadCmd creates the "load" command that ingests documents into the
// vector store.
func buildLoadCmd() *cobra.Command {
	var (
		configPath string
		opts       loadOptions
	)

	cmd := &cobra.Command{
		Use:   "load [file-or-url] <site>",
		Short: "Load documents into the vector store",
		Long: `Load schema.org documents into the vector store under a site identifier.

Inputs may be local files or URLs: JSONL rows (url<TAB>json, [url, json]
pairs, or bare objects), CSV with headers, or RSS/Atom feeds. Items are
trimmed of markup noise, embedded in batches, and uploaded. Computed
embeddings are cached so loading the same file again skips the embedding
calls.`,
		Example: `  # Load a JSONL corpus
  askweb load recipes.jsonl seriouseats

  # Replace a site wholesale
  askweb load --delete-site recipes.jsonl seriouseats

  # Ingest a podcast feed by URL
  askweb load https://example.com/feed.xml example_podcast

  # Fetch every URL named in a list file
  askweb load --url-list feeds.txt podcasts

  # Delete a site without loading anything
  askweb load --only-delete seriouseats`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			input, site := "", args[len(args)-1]
			if len(args) == 2 {
				input = args[0]
			}
			if input == "" && !opts.onlyDelete {
				return errors.New("file-or-url is required unless --only-delete is set")
			}
			return runLoad(cmd.Context(), configPath, opts, input, site)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "config.yaml",
		"Path to YAML configuration file")
	cmd.Flags().BoolVar(&opts.deleteSite, "delete-site", false,
		"Delete existing entries for the site before loading")
	cmd.Flags().BoolVar(&opts.onlyDelete, "only-delete", false,
		"Only delete entries for the site, don't load data")
	cmd.Flags().BoolVar(&opts.forceRecompute, "force-recompute", false,
		"Recompute embeddings even if a cached embeddings file exists")
	cmd.Flags().BoolVar(&opts.urlList, "url-list", false,
		"Treat the input as a list of URLs to process (one URL per line)")
	cmd.Flags().IntVar(&opts.batchSize, "batch-size", ingest.DefaultBatchSize,
		"Batch size for embedding and uploading")
	cmd.Flags().StringVar(&opts.database, "database", "",
		"Retrieval endpoint to use (defaults to the configured preferred endpoint)")

	return cmd
}

// =============================================================================
// Version Command
// =============================================================================

func buildVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("askweb %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}
