// Package engine orchestrates answering a natural-language query over the
// corpus: pre-retrieval analysis, speculative fast-track retrieval and
// ranking, per-item LLM ranking with early streaming, and the
// post-ranking modes (summarize, generate).
//
// The pipeline is event-driven. Analysis steps run concurrently and a
// barrier holds every result back until all of them have finished; a fast
// track races ahead on the bet that the raw query needs no rewriting, and
// is aborted when an analyzer disproves the bet.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/askweb/askweb/internal/config"
	"github.com/askweb/askweb/internal/llm"
	"github.com/askweb/askweb/internal/observability"
	"github.com/askweb/askweb/internal/prompts"
	"github.com/askweb/askweb/internal/retrieval"
	"github.com/askweb/askweb/pkg/api"
)

// Engine answers queries. One Engine serves every request; all per-query
// state lives in State.
type Engine struct {
	cfg       *config.Config
	llm       *llm.Router
	retriever *retrieval.Client
	prompts   *prompts.Store
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// New wires an Engine from its dependencies.
func New(cfg *config.Config, llmRouter *llm.Router, retriever *retrieval.Client, promptStore *prompts.Store, logger *slog.Logger, metrics *observability.Metrics) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		cfg:       cfg,
		llm:       llmRouter,
		retriever: retriever,
		prompts:   promptStore,
		logger:    logger.With("component", "engine"),
		metrics:   metrics,
	}
}

// RunQuery answers one normalized request. Frames stream through streamer
// as they are produced; with a nil streamer (or Streaming false) they are
// aggregated into the returned response object instead. The error covers
// orchestration failures only; per-item and analyzer failures degrade and
// are logged.
func (e *Engine) RunQuery(ctx context.Context, req *Request, streamer Streamer) (api.Message, error) {
	s := e.newState(req, streamer)
	s.log.Info("query started",
		"site", req.Site,
		"mode", string(req.Mode),
		"streaming", req.Streaming,
		"prev_queries", len(req.PrevQueries))

	start := time.Now()
	if e.metrics != nil {
		e.metrics.ActiveQueries.Inc()
		defer e.metrics.ActiveQueries.Dec()
	}

	version := api.New(api.TypeAPIVersion)
	version["api_version"] = api.Version
	s.Send(version)

	var err error
	if req.Mode == ModeGenerate {
		err = e.runGenerate(ctx, s)
	} else {
		err = e.runList(ctx, s)
	}

	if e.metrics != nil {
		status := "success"
		switch {
		case err != nil:
			status = "error"
		case s.QueryDone():
			status = "aborted"
		}
		e.metrics.QueryCounter.WithLabelValues(string(req.Mode), status).Inc()
		e.metrics.QueryDuration.WithLabelValues(string(req.Mode)).Observe(time.Since(start).Seconds())
	}

	if err != nil {
		s.log.Error("query failed", "error", err)
		return nil, err
	}
	s.log.Info("query completed", "duration_ms", time.Since(start).Milliseconds())
	return s.out.result(), nil
}

// runList is the default flow: prechecks with a speculative fast track,
// ranking on the regular track when the fast track did not deliver, then
// the post-ranking mode.
func (e *Engine) runList(ctx context.Context, s *State) error {
	if err := e.runPrechecks(ctx, s, listSteps(s.Req), true); err != nil {
		return err
	}
	if s.QueryDone() {
		s.log.Info("query aborted by prechecks")
		return nil
	}
	if !s.fastTrackWorked.Load() {
		newRanker(s, s.RetrievedItems(), trackRegular).run(ctx)
	}
	e.postRanking(ctx, s)
	return nil
}

// listSteps is the full analysis set of the list flow.
func listSteps(req *Request) []precheckStep {
	return []precheckStep{
		analyzeItemType{},
		analyzeMultiItemType{},
		analyzeQueryType{},
		chooseDecontextualizer(req),
		relevanceCheck{},
		memoryCheck{},
		requiredInfoCheck{},
	}
}

// runPrechecks runs the analysis steps (plus, when speculative, the fast
// track) and waits for all of them. On return the barrier is released.
// Speculative flows that did not retrieve during the prechecks fall back
// to a regular search with the decontextualized query.
func (e *Engine) runPrechecks(ctx context.Context, s *State, steps []precheckStep, speculative bool) error {
	for _, st := range steps {
		s.RegisterStep(st.Name())
	}

	var wg sync.WaitGroup
	if speculative {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					s.log.Error("fast track panicked", "panic", r)
				}
			}()
			fastTrack{}.Run(ctx, s)
		}()
	}
	for _, st := range steps {
		wg.Add(1)
		go e.runStep(ctx, s, st, &wg)
	}
	wg.Wait()

	// Steps mark themselves done, so the barrier is normally released by
	// now; this covers any path that slipped through.
	s.preChecksDone.Set()

	if speculative && !s.retrievalDone.IsSet() {
		items, err := s.search(ctx, s.DecontextualizedQuery())
		if err != nil {
			return fmt.Errorf("retrieval failed: %w", err)
		}
		s.SetRetrievedItems(items)
		s.retrievalDone.Set()
		s.log.Debug("regular retrieval completed", "count", len(items))
	}
	return nil
}

// runStep runs one precheck step, guaranteeing the step is marked done no
// matter how it exits.
func (e *Engine) runStep(ctx context.Context, s *State, st precheckStep, wg *sync.WaitGroup) {
	defer wg.Done()
	defer s.StepDone(st.Name())
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("precheck step panicked", "step", st.Name(), "panic", r)
		}
	}()
	st.Run(ctx, s)
}
