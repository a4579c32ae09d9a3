// Package embeddings routes text-embedding requests to the configured
// provider.
//
// The retrieval client embeds queries through this package; the ingest
// pipeline embeds documents in batches. Providers are constructed lazily on
// first use, mirroring internal/llm.
package embeddings

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/askweb/askweb/internal/config"
	"github.com/askweb/askweb/internal/observability"
)

// Provider is implemented by each embedding backend.
type Provider interface {
	// Name returns the stable lowercase provider identifier.
	Name() string

	// Embed returns the vector for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch returns one vector per input text, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the vector width the provider produces.
	Dimension() int

	// MaxBatchSize returns the largest batch EmbedBatch accepts.
	MaxBatchSize() int
}

// Factory constructs a Provider. Construction validates credentials, so
// factories run lazily on first use.
type Factory func() (Provider, error)

// Router dispatches embedding requests to the preferred provider and
// instruments every call.
type Router struct {
	cfg     config.EmbeddingConfig
	logger  *slog.Logger
	metrics *observability.Metrics

	mu        sync.Mutex
	factories map[string]Factory
	providers map[string]Provider
}

// NewRouter builds a Router over the given provider factories, keyed by
// provider name.
func NewRouter(cfg config.EmbeddingConfig, factories map[string]Factory, logger *slog.Logger, metrics *observability.Metrics) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		cfg:       cfg,
		logger:    logger.With("component", "embeddings"),
		metrics:   metrics,
		factories: factories,
		providers: make(map[string]Provider, len(factories)),
	}
}

// Embed returns the vector for text from the preferred provider, bounded
// by the configured timeout.
func (r *Router) Embed(ctx context.Context, text string) ([]float32, error) {
	p, err := r.provider(r.cfg.PreferredProvider)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout())
	defer cancel()

	start := time.Now()
	vec, err := p.Embed(ctx, text)
	r.observe(p.Name(), start, err)
	if err != nil {
		return nil, err
	}
	return vec, nil
}

// EmbedBatch returns one vector per text, in order. Batches get twice the
// single-call timeout.
func (r *Router) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	p, err := r.provider(r.cfg.PreferredProvider)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, 2*r.cfg.Timeout())
	defer cancel()

	start := time.Now()
	vecs, err := p.EmbedBatch(ctx, texts)
	r.observe(p.Name(), start, err)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("embeddings: got %d vectors for %d texts", len(vecs), len(texts))
	}
	return vecs, nil
}

// Dimension reports the preferred provider's vector width, or 0 when the
// provider cannot be constructed.
func (r *Router) Dimension() int {
	p, err := r.provider(r.cfg.PreferredProvider)
	if err != nil {
		return 0
	}
	return p.Dimension()
}

// MaxBatchSize reports the preferred provider's batch cap, or 0 when the
// provider cannot be constructed.
func (r *Router) MaxBatchSize() int {
	p, err := r.provider(r.cfg.PreferredProvider)
	if err != nil {
		return 0
	}
	return p.MaxBatchSize()
}

func (r *Router) observe(provider string, start time.Time, err error) {
	elapsed := time.Since(start)
	if r.metrics != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		r.metrics.EmbeddingRequestCounter.WithLabelValues(provider, status).Inc()
		r.metrics.EmbeddingRequestDuration.WithLabelValues(provider).Observe(elapsed.Seconds())
	}
	if err != nil {
		r.logger.Warn("embedding call failed",
			"provider", provider,
			"duration_ms", elapsed.Milliseconds(),
			"error", err)
	}
}

func (r *Router) provider(name string) (Provider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.providers[name]; ok {
		return p, nil
	}
	factory, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("embeddings: unknown provider %q", name)
	}
	p, err := factory()
	if err != nil {
		return nil, fmt.Errorf("embeddings: initialize provider %s: %w", name, err)
	}
	r.providers[name] = p
	return p, nil
}
