package engine

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/askweb/askweb/internal/prompts"
	"github.com/askweb/askweb/internal/retrieval"
	"github.com/askweb/askweb/internal/schemaorg"
	"github.com/askweb/askweb/pkg/api"
)

// Precheck step names. Every step registers before the pipeline starts and
// the barrier releases once all registered steps are done.
const (
	stepDecon           = "Decon"
	stepDetectItemType  = "DetectItemType"
	stepDetectMultiType = "DetectMultiItemTypeQuery"
	stepDetectQueryType = "DetectQueryType"
	stepRelevance       = "Relevance"
	stepMemory          = "Memory"
	stepRequiredInfo    = "RequiredInfo"
)

type stepStatus int

const (
	stepInitial stepStatus = iota
	stepComplete
)

// State carries one query through the pipeline: the request, the resolved
// analysis, the synchronization primitives the stages coordinate on, and
// the sink frames go out through. One State per request; stages share it
// across goroutines.
type State struct {
	Req *Request

	eng *Engine
	log *slog.Logger
	out *sink

	// preChecksDone releases result sending once every registered
	// precheck step finished.
	preChecksDone *Event

	// retrievalDone marks that some stage has claimed (and possibly
	// completed) corpus retrieval.
	retrievalDone *Event

	// deconDone fires when the decontextualization step finishes; the
	// fast track waits on it before ranking.
	deconDone *Event

	// abortFastTrack tells speculative work its assumptions failed.
	abortFastTrack *Event

	// connectionAlive clears permanently on the first failed write.
	connectionAlive *Latch

	// fastTrackWorked records that the fast track delivered results, so
	// the regular track must not rank again.
	fastTrackWorked atomic.Bool

	// askingSitesSent keeps the asking_sites frame to one per query even
	// when both tracks rank.
	askingSitesSent atomic.Bool

	stepMu sync.Mutex
	steps  map[string]stepStatus

	mu             sync.Mutex
	itemType       string
	deconQuery     string
	requiresDecon  bool
	contextDescr   string
	queryDone      bool
	retrievedItems []retrieval.Item
	rankedAnswers  []*RankedAnswer
}

func (e *Engine) newState(req *Request, streamer Streamer) *State {
	s := &State{
		Req:             req,
		eng:             e,
		log:             e.logger.With("query_id", req.QueryID),
		preChecksDone:   NewEvent(),
		retrievalDone:   NewEvent(),
		deconDone:       NewEvent(),
		abortFastTrack:  NewEvent(),
		connectionAlive: NewLatch(),
		steps:           make(map[string]stepStatus),
		itemType:        schemaorg.SiteItemType(req.Site),
		deconQuery:      req.DecontextualizedQuery,
		contextDescr:    req.ContextDescription,
	}
	s.out = newSink(streamer, req.QueryID, req.Streaming, s.connectionAlive, s.log, e.metrics)
	return s
}

// RegisterStep declares a precheck step before the pipeline starts, so the
// barrier cannot release until the step is done.
func (s *State) RegisterStep(name string) {
	s.stepMu.Lock()
	defer s.stepMu.Unlock()
	s.steps[name] = stepInitial
}

// StepDone marks a step complete and releases the barrier once every
// registered step is. Completing the decontextualization step also fires
// deconDone for the fast track. Idempotent.
func (s *State) StepDone(name string) {
	s.stepMu.Lock()
	defer s.stepMu.Unlock()

	s.steps[name] = stepComplete
	if name == stepDecon {
		s.deconDone.Set()
	}
	for _, st := range s.steps {
		if st != stepComplete {
			return
		}
	}
	s.preChecksDone.Set()
}

// DeconStepDone reports whether the decontextualization step has run.
func (s *State) DeconStepDone() bool {
	return s.deconDone.IsSet()
}

// Send delivers one frame through the request's sink.
func (s *State) Send(msg api.Message) {
	s.out.send(msg)
}

// ItemType returns the current best guess of the sought item type in
// qualified "{namespace}Type" form.
func (s *State) ItemType() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.itemType
}

// SetItemType records the sought item type, qualifying bare local names.
func (s *State) SetItemType(t string) {
	if !strings.HasPrefix(t, "{") {
		t = schemaorg.Qualify(t)
	}
	s.mu.Lock()
	s.itemType = t
	s.mu.Unlock()
}

// DecontextualizedQuery returns the self-contained form of the query, or
// "" until decontextualization resolves one.
func (s *State) DecontextualizedQuery() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deconQuery
}

func (s *State) SetDecontextualizedQuery(q string) {
	s.mu.Lock()
	s.deconQuery = q
	s.mu.Unlock()
}

// RequiresDecontextualization reports whether the raw query was judged to
// depend on conversation context.
func (s *State) RequiresDecontextualization() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requiresDecon
}

func (s *State) SetRequiresDecontextualization(v bool) {
	s.mu.Lock()
	s.requiresDecon = v
	s.mu.Unlock()
}

// ContextDescription returns the trimmed JSON of the item behind
// context_url, once fetched.
func (s *State) ContextDescription() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.contextDescr
}

func (s *State) SetContextDescription(d string) {
	s.mu.Lock()
	s.contextDescr = d
	s.mu.Unlock()
}

// QueryDone reports that an analyzer aborted the query; no results follow.
func (s *State) QueryDone() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queryDone
}

func (s *State) SetQueryDone() {
	s.mu.Lock()
	s.queryDone = true
	s.mu.Unlock()
}

// RetrievedItems returns the items retrieval produced for this query.
func (s *State) RetrievedItems() []retrieval.Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.retrievedItems
}

func (s *State) SetRetrievedItems(items []retrieval.Item) {
	s.mu.Lock()
	s.retrievedItems = items
	s.mu.Unlock()
}

// RankedAnswers returns the final ranked answers, best first.
func (s *State) RankedAnswers() []*RankedAnswer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rankedAnswers
}

func (s *State) SetRankedAnswers(answers []*RankedAnswer) {
	s.mu.Lock()
	s.rankedAnswers = answers
	s.mu.Unlock()
}

// promptVars snapshots the state for template filling.
func (s *State) promptVars() prompts.Vars {
	s.mu.Lock()
	defer s.mu.Unlock()
	return prompts.Vars{
		Site:               s.Req.Site,
		ItemType:           s.itemType,
		RawQuery:           s.Req.Query,
		DeconQuery:         s.deconQuery,
		DeconDone:          s.deconDone.IsSet(),
		PrevQueries:        s.Req.PrevQueries,
		ContextURL:         s.Req.ContextURL,
		ContextDescription: s.contextDescr,
	}
}

// renderAnswers is the {request.answers} value for the synthesis and
// summary prompts: the ranked answers as a compact JSON array.
func (s *State) renderAnswers() string {
	answers := s.RankedAnswers()
	views := make([]map[string]any, 0, len(answers))
	for _, a := range answers {
		views = append(views, map[string]any{
			"url":         a.URL,
			"name":        a.Name,
			"site":        a.Site,
			"score":       a.Score,
			"description": a.Description,
		})
	}
	b, err := json.Marshal(views)
	if err != nil {
		return "[]"
	}
	return string(b)
}

// search runs corpus retrieval for this request against its endpoint.
func (s *State) search(ctx context.Context, query string) ([]retrieval.Item, error) {
	return s.eng.retriever.Search(ctx, s.Req.RetrievalEndpoint, query, s.Req.Site, retrieval.DefaultLimit)
}
