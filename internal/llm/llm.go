// Package llm routes JSON-answering chat completions to the configured
// provider.
//
// Every call in the query engine follows the same shape: a rendered prompt,
// a JSON schema the answer must match, and a model tier. Providers are
// constructed lazily on first use so that configured-but-unused entries
// never need valid credentials.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/askweb/askweb/internal/config"
	"github.com/askweb/askweb/internal/observability"
)

// Level selects the model tier for a completion.
type Level string

const (
	// LevelLow selects the cheaper, faster model of the configured pair.
	LevelLow Level = "low"

	// LevelHigh selects the stronger model of the configured pair.
	LevelHigh Level = "high"
)

// Schema describes the JSON object a completion must return. Leaves are
// type tags ("string", "integer", ...) or literal descriptions of the
// expected value; nesting mirrors the expected answer shape.
type Schema map[string]any

// ErrBadResponse reports that a provider answered but no JSON object could
// be extracted from the reply.
var ErrBadResponse = errors.New("llm: no JSON object in response")

// Provider is implemented by each chat-completion backend.
type Provider interface {
	// Name returns the stable lowercase provider identifier used in
	// configuration, logs, and metrics.
	Name() string

	// Complete sends prompt and returns the parsed JSON object. level
	// selects the configured model tier; the call fails once timeout
	// elapses. Implementations must tolerate replies wrapped in markdown
	// code fences and return ErrBadResponse when no object can be
	// extracted.
	Complete(ctx context.Context, prompt string, schema Schema, level Level, timeout time.Duration) (map[string]any, error)
}

// Factory constructs a Provider. Construction validates credentials, so
// factories run lazily on first use.
type Factory func() (Provider, error)

// Router dispatches completions to the preferred provider and instruments
// every call.
type Router struct {
	cfg     config.LLMConfig
	logger  *slog.Logger
	metrics *observability.Metrics

	mu        sync.Mutex
	factories map[string]Factory
	providers map[string]Provider
}

// NewRouter builds a Router over the given provider factories. Factories
// are keyed by provider name; each is invoked at most once.
func NewRouter(cfg config.LLMConfig, factories map[string]Factory, logger *slog.Logger, metrics *observability.Metrics) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		cfg:       cfg,
		logger:    logger.With("component", "llm"),
		metrics:   metrics,
		factories: factories,
		providers: make(map[string]Provider, len(factories)),
	}
}

// Ask sends prompt to the preferred provider and returns the parsed JSON
// object. A zero timeout uses the configured default.
func (r *Router) Ask(ctx context.Context, prompt string, schema Schema, level Level, timeout time.Duration) (map[string]any, error) {
	return r.AskProvider(ctx, r.cfg.PreferredProvider, prompt, schema, level, timeout)
}

// AskProvider is Ask routed to a named provider instead of the preferred
// one.
func (r *Router) AskProvider(ctx context.Context, name string, prompt string, schema Schema, level Level, timeout time.Duration) (map[string]any, error) {
	p, err := r.provider(name)
	if err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = r.cfg.Timeout()
	}

	start := time.Now()
	out, err := p.Complete(ctx, prompt, schema, level, timeout)
	elapsed := time.Since(start)

	if r.metrics != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		r.metrics.LLMRequestCounter.WithLabelValues(name, string(level), status).Inc()
		r.metrics.LLMRequestDuration.WithLabelValues(name, string(level)).Observe(elapsed.Seconds())
	}
	if err != nil {
		r.logger.Warn("llm call failed",
			"provider", name,
			"level", level,
			"duration_ms", elapsed.Milliseconds(),
			"error", err)
		return nil, err
	}
	r.logger.Debug("llm call completed",
		"provider", name,
		"level", level,
		"duration_ms", elapsed.Milliseconds())
	return out, nil
}

// provider returns the memoized instance for name, constructing it on
// first use.
func (r *Router) provider(name string) (Provider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.providers[name]; ok {
		return p, nil
	}
	factory, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("llm: unknown provider %q", name)
	}
	p, err := factory()
	if err != nil {
		return nil, fmt.Errorf("llm: initialize provider %s: %w", name, err)
	}
	r.providers[name] = p
	return p, nil
}
