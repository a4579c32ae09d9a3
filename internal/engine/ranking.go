package engine

import (
	"context"
	"encoding/json"
	"net/url"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/askweb/askweb/internal/llm"
	"github.com/askweb/askweb/internal/prompts"
	"github.com/askweb/askweb/internal/retrieval"
	"github.com/askweb/askweb/internal/schemaorg"
	"github.com/askweb/askweb/pkg/api"
)

// Ranking thresholds. Scores run 0-100 and comparisons are strict.
const (
	// EarlySendThreshold is the score above which an item streams out
	// the moment it is ranked rather than waiting for the full pass.
	EarlySendThreshold = 59

	// NumResultsToSend bounds how many results one query may deliver.
	NumResultsToSend = 10

	// FinalFilterThreshold is the score an item must beat to survive the
	// final filter.
	FinalFilterThreshold = 51
)

// track labels which path a ranker serves.
type track int

const (
	trackFast track = iota + 1
	trackRegular
)

func (t track) String() string {
	if t == trackFast {
		return "fast_track"
	}
	return "regular"
}

// RankedAnswer is one item scored against the query. Sent flips when the
// answer has been delivered (or claimed for delivery); the owning ranker's
// lock guards it.
type RankedAnswer struct {
	URL          string
	Site         string
	Name         string
	Score        int
	Description  string
	SchemaObject map[string]any
	Sent         bool
}

func (a *RankedAnswer) result() api.Result {
	return api.Result{
		URL:          a.URL,
		Name:         a.Name,
		Site:         a.Site,
		SiteURL:      a.Site,
		Score:        a.Score,
		Description:  a.Description,
		SchemaObject: a.SchemaObject,
	}
}

// ranker scores retrieved items one LLM call each and streams the best
// out, high scorers first. Both the fast track and the regular track run
// one; only one of them gets to deliver.
type ranker struct {
	s     *State
	items []retrieval.Item
	track track

	mu      sync.Mutex
	answers []*RankedAnswer

	// numClaimed counts answers marked for delivery and enforces the
	// budget at claim time; numSent counts answers actually delivered.
	// They diverge only while a claimed batch waits at the barrier.
	numClaimed int
	numSent    int
}

func newRanker(s *State, items []retrieval.Item, t track) *ranker {
	return &ranker{s: s, items: items, track: t}
}

// run ranks every item concurrently, holds results behind the precheck
// barrier, and finishes with a flush of whatever good answers were not
// streamed early.
func (r *ranker) run(ctx context.Context) {
	r.s.log.Debug("ranking items", "count", len(r.items), "track", r.track.String())

	var wg sync.WaitGroup
	for _, item := range r.items {
		if !r.s.connectionAlive.IsSet() {
			break
		}
		wg.Add(1)
		go func(item retrieval.Item) {
			defer wg.Done()
			r.rankItem(ctx, item)
		}(item)
	}

	r.announceSites()
	wg.Wait()

	if !r.s.connectionAlive.IsSet() {
		r.s.log.Debug("connection lost during ranking")
		return
	}
	if err := r.s.preChecksDone.Wait(ctx); err != nil {
		return
	}
	if r.track == trackFast && r.s.abortFastTrack.IsSet() {
		r.s.log.Debug("fast track aborted after ranking")
		return
	}

	r.mu.Lock()
	good := make([]*RankedAnswer, 0, len(r.answers))
	for _, a := range r.answers {
		if a.Score > FinalFilterThreshold {
			good = append(good, a)
		}
	}
	sort.SliceStable(good, func(i, j int) bool { return good[i].Score > good[j].Score })

	final := good
	if len(final) > NumResultsToSend {
		final = final[:NumResultsToSend]
	}
	unsent := make([]*RankedAnswer, 0, len(good))
	for _, a := range good {
		if !a.Sent {
			unsent = append(unsent, a)
		}
	}
	numClaimed := r.numClaimed
	r.mu.Unlock()

	r.s.SetRankedAnswers(final)

	if numClaimed >= NumResultsToSend {
		return
	}
	if remaining := NumResultsToSend - numClaimed; len(unsent) > remaining {
		unsent = unsent[:remaining]
	}
	r.sendAnswers(ctx, unsent, true)
}

// rankItem scores one item and streams it immediately when it clears the
// early-send bar. Items the model cannot score are dropped.
func (r *ranker) rankItem(ctx context.Context, item retrieval.Item) {
	if !r.s.connectionAlive.IsSet() {
		return
	}
	if r.track == trackFast && r.s.abortFastTrack.IsSet() {
		return
	}

	p := r.s.rankingPrompt(prompts.Ranking)
	descr, err := json.Marshal(schemaorg.Trim(item.SchemaJSON))
	if err != nil {
		descr = []byte(item.SchemaJSON)
	}
	vars := r.s.promptVars()
	vars.ItemDescription = string(descr)

	response := r.s.askFilled(ctx, p, llm.LevelLow, 0, vars)
	if response == nil {
		return
	}
	score, ok := intField(response, "score")
	if !ok {
		r.s.log.Debug("ranking answer without score, dropping item", "url", item.URL)
		return
	}

	answer := &RankedAnswer{
		URL:          item.URL,
		Site:         item.Site,
		Name:         itemName(item),
		Score:        score,
		Description:  stringField(response, "description"),
		SchemaObject: parseSchema(item.SchemaJSON),
	}

	if score > EarlySendThreshold {
		r.sendAnswers(ctx, []*RankedAnswer{answer}, false)
	}

	r.mu.Lock()
	r.answers = append(r.answers, answer)
	r.mu.Unlock()
}

// shouldSendLocked decides whether an answer goes out early: freely while
// the first half of the budget is open, afterwards only when it beats
// something already sent. Callers hold r.mu.
func (r *ranker) shouldSendLocked(candidate *RankedAnswer) bool {
	if r.numSent < NumResultsToSend-5 {
		return true
	}
	for _, a := range r.answers {
		if a.Sent && a.Score < candidate.Score {
			return true
		}
	}
	return false
}

// sendAnswers claims deliverable answers, waits out the precheck barrier,
// and emits them as one result_batch. Claimed answers of an aborted fast
// track are dropped, never delivered.
func (r *ranker) sendAnswers(ctx context.Context, answers []*RankedAnswer, force bool) {
	if !r.s.connectionAlive.IsSet() {
		return
	}
	if r.track == trackFast && r.s.abortFastTrack.IsSet() {
		return
	}

	r.mu.Lock()
	selected := make([]api.Result, 0, len(answers))
	for _, a := range answers {
		if a.Sent {
			continue
		}
		if r.numClaimed >= NumResultsToSend {
			break
		}
		if !force && !r.shouldSendLocked(a) {
			continue
		}
		a.Sent = true
		r.numClaimed++
		selected = append(selected, a.result())
	}
	r.mu.Unlock()

	if len(selected) == 0 {
		return
	}

	if err := r.s.preChecksDone.Wait(ctx); err != nil {
		return
	}
	if r.track == trackFast && r.s.abortFastTrack.IsSet() {
		r.s.log.Debug("fast track aborted at the barrier, dropping batch")
		return
	}
	if r.track == trackFast {
		r.s.fastTrackWorked.Store(true)
	}

	batch := api.New(api.TypeResultBatch)
	batch["results"] = selected
	r.s.Send(batch)

	r.mu.Lock()
	r.numSent += len(selected)
	r.mu.Unlock()

	if m := r.s.eng.metrics; m != nil {
		m.ResultsSent.WithLabelValues(r.track.String()).Add(float64(len(selected)))
	}
}

// announceSites tells the user which sites are being consulted. Only
// corpus-wide queries get the frame, and only once per query.
func (r *ranker) announceSites() {
	if r.s.Req.Site != "all" && r.s.Req.Site != "nlws" {
		return
	}
	if len(r.items) == 0 {
		return
	}
	if !r.s.askingSitesSent.CompareAndSwap(false, true) {
		return
	}

	counts := make(map[string]int)
	for _, item := range r.items {
		counts[item.Site]++
	}
	sites := make([]string, 0, len(counts))
	for site := range counts {
		sites = append(sites, site)
	}
	sort.Slice(sites, func(i, j int) bool {
		if counts[sites[i]] != counts[sites[j]] {
			return counts[sites[i]] > counts[sites[j]]
		}
		return sites[i] < sites[j]
	})
	if len(sites) > 3 {
		sites = sites[:3]
	}
	pretty := make([]string, len(sites))
	for i, site := range sites {
		pretty[i] = schemaorg.PrettySite(site)
	}

	msg := api.New(api.TypeAskingSites)
	msg["message"] = "Asking " + strings.Join(pretty, ", ")
	r.s.Send(msg)
}

// itemName falls back from the stored name to the schema object's, then to
// the URL's last path segment.
func itemName(item retrieval.Item) string {
	if item.Name != "" {
		return item.Name
	}
	if obj, ok := schemaorg.Jsonify(item.SchemaJSON).(map[string]any); ok {
		if n, ok := obj["name"].(string); ok && n != "" {
			return n
		}
	}
	if u, err := url.Parse(item.URL); err == nil {
		if base := path.Base(u.Path); base != "" && base != "/" && base != "." {
			return base
		}
	}
	return item.URL
}

// parseSchema decodes the stored schema.org JSON, nil when malformed.
func parseSchema(schemaJSON string) map[string]any {
	var obj map[string]any
	if err := json.Unmarshal([]byte(schemaJSON), &obj); err != nil {
		return nil
	}
	return obj
}
