package engine

import (
	"context"
	"time"
)

// deconWait bounds how long the fast track waits for decontextualization
// before abandoning the speculative path.
const deconWait = 5 * time.Second

// fastTrack speculatively retrieves and ranks against the raw query while
// the prechecks are still running, betting that the query needs no
// rewriting. The barrier inside the ranker keeps anything from reaching
// the client before the prechecks confirm the bet; a lost bet sets
// abortFastTrack and the regular track reranks from scratch.
type fastTrack struct{}

// eligible rejects queries whose context already disproves the bet.
func (fastTrack) eligible(s *State) bool {
	return s.Req.ContextURL == "" && len(s.Req.PrevQueries) == 0
}

func (f fastTrack) Run(ctx context.Context, s *State) {
	if !f.eligible(s) {
		s.log.Debug("fast track skipped, query carries context")
		return
	}

	// Claim retrieval before searching so the regular path does not
	// retrieve a second time.
	s.retrievalDone.Set()

	items, err := s.search(ctx, s.Req.Query)
	if err != nil {
		s.log.Warn("fast track retrieval failed", "error", err)
		return
	}
	s.SetRetrievedItems(items)
	s.log.Debug("fast track retrieved items", "count", len(items))

	if !s.deconDone.WaitTimeout(ctx, deconWait) {
		s.log.Warn("decontextualization pending too long, abandoning fast track")
		return
	}
	if s.RequiresDecontextualization() {
		s.log.Info("fast track aborted, query needed decontextualization")
		s.abortFastTrack.Set()
		return
	}
	if s.QueryDone() || s.abortFastTrack.IsSet() {
		return
	}

	newRanker(s, items, trackFast).run(ctx)
}
