package engine

import (
	"context"
	"encoding/json"

	"github.com/askweb/askweb/internal/llm"
	"github.com/askweb/askweb/internal/prompts"
	"github.com/askweb/askweb/internal/schemaorg"
	"github.com/askweb/askweb/pkg/api"
)

// decontextualizer rewrites context-dependent queries into self-contained
// ones. Which variant runs depends on what context the request carries:
//
//   - neither previous queries nor a context URL (or the client already
//     supplied a rewritten query): nothing to do
//   - previous queries only: rewrite against them
//   - a context URL only: fetch the item behind it and rewrite against
//     its description
//   - both: rewrite against both
//
// Whenever a rewrite is needed, the fast track's raw-query assumption is
// wrong and it gets aborted.
type decontextualizer struct {
	prompt     string // "" is the no-op variant
	useContext bool
}

func (d decontextualizer) Name() string { return stepDecon }

// chooseDecontextualizer picks the variant for the request.
func chooseDecontextualizer(req *Request) decontextualizer {
	hasPrev := len(req.PrevQueries) > 0
	hasContext := len(req.ContextURL) > 4
	switch {
	case req.DecontextualizedQuery != "", !hasPrev && !hasContext:
		return decontextualizer{}
	case hasPrev && !hasContext:
		return decontextualizer{prompt: prompts.PrevQueryDecon}
	case hasContext && !hasPrev:
		return decontextualizer{prompt: prompts.ContextDecon, useContext: true}
	default:
		return decontextualizer{prompt: prompts.FullDecon, useContext: true}
	}
}

func (d decontextualizer) Run(ctx context.Context, s *State) {
	switch {
	case d.prompt == "":
		// Keep a client-supplied rewrite; otherwise the raw query is
		// already self-contained.
		if s.DecontextualizedQuery() == "" {
			s.SetDecontextualizedQuery(s.Req.Query)
		}
		s.SetRequiresDecontextualization(false)
	case d.useContext:
		d.runWithContext(ctx, s)
	default:
		d.runAgainstPrev(ctx, s)
	}
}

// runAgainstPrev rewrites the query against the previous queries. Only an
// explicit "requires decontextualization" answer changes anything; silence
// or a failed call leaves the raw query in place.
func (d decontextualizer) runAgainstPrev(ctx context.Context, s *State) {
	response := s.runPrompt(ctx, d.prompt, llm.LevelHigh, 0)
	if response == nil || !boolField(response, "requires_decontextualization") {
		s.SetRequiresDecontextualization(false)
		s.SetDecontextualizedQuery(s.Req.Query)
		return
	}

	rewritten := stringField(response, "decontextualized_query")
	s.SetRequiresDecontextualization(true)
	s.abortFastTrack.Set()
	s.SetDecontextualizedQuery(rewritten)
	s.StepDone(stepDecon)

	msg := api.New(api.TypeDecontextualizedQuery)
	msg["decontextualized_query"] = rewritten
	s.Send(msg)
	s.log.Info("query decontextualized", "rewritten", rewritten)
}

// ResolveQuery runs decontextualization alone, outside the precheck
// pipeline, and returns the self-contained form of the request's query.
// Diagnostic surfaces use it when they need the rewrite but none of the
// other analysis.
func (e *Engine) ResolveQuery(ctx context.Context, req *Request) string {
	s := e.newState(req, nil)
	s.RegisterStep(stepDecon)
	chooseDecontextualizer(req).Run(ctx, s)
	s.StepDone(stepDecon)
	if q := s.DecontextualizedQuery(); q != "" {
		return q
	}
	return req.Query
}

// runWithContext rewrites the query against the item behind context_url,
// fetching it from the corpus unless the client already described it. A
// missing item degrades to the no-op behavior.
func (d decontextualizer) runWithContext(ctx context.Context, s *State) {
	if s.ContextDescription() == "" {
		item, err := s.eng.retriever.SearchByURL(ctx, s.Req.RetrievalEndpoint, s.Req.ContextURL)
		if err != nil {
			s.log.Warn("context item lookup failed", "context_url", s.Req.ContextURL, "error", err)
		}
		if item == nil {
			s.SetRequiresDecontextualization(false)
			s.SetDecontextualizedQuery(s.Req.Query)
			return
		}
		if descr, err := json.Marshal(schemaorg.Trim(item.SchemaJSON)); err == nil {
			s.SetContextDescription(string(descr))
		}
	}

	response := s.runPrompt(ctx, d.prompt, llm.LevelHigh, 0)
	if response == nil {
		s.SetRequiresDecontextualization(false)
		s.SetDecontextualizedQuery(s.Req.Query)
		return
	}

	// Issuing a query from an item's page is context by definition, so
	// the rewrite is taken regardless of the model's own judgement.
	s.SetRequiresDecontextualization(true)
	s.abortFastTrack.Set()
	s.SetDecontextualizedQuery(stringField(response, "decontextualized_query"))
}
