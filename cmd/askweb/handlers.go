package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/askweb/askweb/internal/config"
	"github.com/askweb/askweb/internal/embeddings"
	embeddingproviders "github.com/askweb/askweb/internal/embeddings/providers"
	"github.com/askweb/askweb/internal/engine"
	"github.com/askweb/askweb/internal/ingest"
	"github.com/askweb/askweb/internal/llm"
	llmproviders "github.com/askweb/askweb/internal/llm/providers"
	"github.com/askweb/askweb/internal/observability"
	"github.com/askweb/askweb/internal/prompts"
	"github.com/askweb/askweb/internal/retrieval"
	"github.com/askweb/askweb/internal/retrieval/backends"
	"github.com/askweb/askweb/internal/server"
)

// app bundles the wired component stack shared by the serve and load
// commands.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	metrics   *observability.Metrics
	llmRouter *llm.Router
	embedder  *embeddings.Router
	retriever *retrieval.Client

	closeLog func()
}

// buildApp loads configuration and wires the provider stack. Providers are
// constructed lazily, so a misconfigured backend only fails when a command
// actually reaches for it.
func buildApp(configPath string, debug bool) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logCfg := observability.LogConfig{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		AddSource: cfg.Logging.AddSource,
	}
	if debug {
		logCfg.Level = "debug"
	}
	out, closeLog, err := logOutput(cfg.Logging.Output)
	if err != nil {
		return nil, err
	}
	logCfg.Output = out

	logger := observability.NewLogger(logCfg)
	slog.SetDefault(logger)

	var metrics *observability.Metrics
	if cfg.MetricsEnabled() {
		metrics = observability.NewMetrics()
	}

	embedder := embeddings.NewRouter(cfg.Embedding, embeddingproviders.Factories(cfg.Embedding), logger, metrics)
	return &app{
		cfg:       cfg,
		logger:    logger,
		metrics:   metrics,
		llmRouter: llm.NewRouter(cfg.LLM, llmproviders.Factories(cfg.LLM), logger, metrics),
		embedder:  embedder,
		retriever: retrieval.NewClient(cfg.Retrieval, cfg.AllowedSites(), backends.Factories(cfg.Retrieval, embedder), logger, metrics),
		closeLog:  closeLog,
	}, nil
}

func (a *app) Close() {
	if a.closeLog != nil {
		a.closeLog()
	}
}

// logOutput maps the configured output name to a writer.
func logOutput(name string) (io.Writer, func(), error) {
	switch name {
	case "", "stderr":
		return os.Stderr, func() {}, nil
	case "stdout":
		return os.Stdout, func() {}, nil
	default:
		f, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file: %w", err)
		}
		return f, func() { _ = f.Close() }, nil
	}
}

// =============================================================================
// Serve Command Handler
// =============================================================================

// runServe implements the serve command logic: wire the engine, start the
// HTTP server, and drain gracefully on SIGINT/SIGTERM.
func runServe(ctx context.Context, configPath string, debug bool) error {
	app, err := buildApp(configPath, debug)
	if err != nil {
		return err
	}
	defer app.Close()

	app.logger.Info("starting askweb",
		"version", version,
		"commit", commit,
		"config", configPath,
		"llm_provider", app.cfg.LLM.PreferredProvider,
		"retrieval_endpoint", app.cfg.Retrieval.PreferredEndpoint,
	)

	promptStore, err := prompts.NewStore(app.cfg.NLWeb.PromptsFile, app.logger)
	if err != nil {
		return fmt.Errorf("failed to load prompt library: %w", err)
	}
	defer promptStore.Close()

	// Create a context that cancels on shutdown signals.
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := promptStore.Watch(ctx); err != nil {
		app.logger.Warn("prompt library watch unavailable", "error", err)
	}

	eng := engine.New(app.cfg, app.llmRouter, app.retriever, promptStore, app.logger, app.metrics)
	srv := server.New(app.cfg, eng, app.retriever, app.logger, app.metrics)

	if err := srv.Start(ctx); err != nil {
		return err
	}
	app.logger.Info("askweb started", "addr", srv.Addr())

	// Wait for a shutdown signal.
	<-ctx.Done()
	app.logger.Info("shutdown signal received, draining requests")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), app.cfg.Server.ShutdownTimeout())
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}

	app.logger.Info("askweb stopped gracefully")
	return nil
}

// =============================================================================
// Load Command Handler
// =============================================================================

// loadOptions carries the load command's flags.
type loadOptions struct {
	deleteSite     bool
	onlyDelete     bool
	forceRecompute bool
	urlList        bool
	batchSize      int
	database       string
}

// runLoad implements the load command logic.
func runLoad(ctx context.Context, configPath string, opts loadOptions, input, site string) error {
	app, err := buildApp(configPath, false)
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	loader := ingest.NewLoader(app.cfg, app.retriever, app.embedder, app.logger)
	loader.BatchSize = opts.batchSize
	loader.Endpoint = opts.database
	loader.ForceRecompute = opts.forceRecompute

	if opts.deleteSite || opts.onlyDelete {
		n, err := loader.DeleteSite(ctx, site)
		if err != nil {
			return fmt.Errorf("failed to delete site %s: %w", site, err)
		}
		fmt.Printf("Deleted %d documents for site %s\n", n, site)
		if opts.onlyDelete {
			return nil
		}
	}

	var n int
	if opts.urlList {
		n, err = loader.LoadURLList(ctx, input, site)
	} else {
		n, err = loader.Load(ctx, input, site)
	}
	if err != nil {
		return fmt.Errorf("load failed: %w", err)
	}
	fmt.Printf("Loaded %d documents into site %s\n", n, site)
	return nil
}
