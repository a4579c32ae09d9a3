package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/askweb/askweb/internal/llm"
	"github.com/askweb/askweb/internal/prompts"
	"github.com/askweb/askweb/internal/retrieval"
	"github.com/askweb/askweb/internal/schemaorg"
	"github.com/askweb/askweb/pkg/api"
)

const (
	// GatherItemsThreshold is the score an item must beat to feed answer
	// synthesis.
	GatherItemsThreshold = 55

	// synthesisTimeout bounds the synthesis completion, by far the
	// largest call the engine makes.
	synthesisTimeout = 100 * time.Second
)

const (
	noAnswerText       = "I couldn't find relevant information to answer your question."
	synthesisErrorText = "I encountered an error while generating your answer. Please try again."
)

// runGenerate is the RAG flow: a reduced precheck set, retrieval with the
// decontextualized query, a gather pass keeping only items relevant
// enough to cite, and answer synthesis. Nothing is streamed until the
// answer exists; supporting items follow in a second nlws frame once each
// has been described.
func (e *Engine) runGenerate(ctx context.Context, s *State) error {
	if err := e.runPrechecks(ctx, s, generateSteps(s.Req), false); err != nil {
		return err
	}
	if s.QueryDone() {
		s.log.Info("query aborted by prechecks")
		return nil
	}

	items, err := s.search(ctx, s.DecontextualizedQuery())
	if err != nil {
		return fmt.Errorf("retrieval failed: %w", err)
	}
	s.SetRetrievedItems(items)
	s.log.Debug("retrieved items for synthesis", "count", len(items))

	kept := make([]*RankedAnswer, len(items))
	var wg sync.WaitGroup
	for i, item := range items {
		if !s.connectionAlive.IsSet() {
			break
		}
		wg.Add(1)
		go func(i int, item retrieval.Item) {
			defer wg.Done()
			kept[i] = e.gatherItem(ctx, s, item)
		}(i, item)
	}
	wg.Wait()

	answers := make([]*RankedAnswer, 0, len(kept))
	for _, a := range kept {
		if a != nil {
			answers = append(answers, a)
		}
	}
	s.SetRankedAnswers(answers)

	return e.synthesize(ctx, s)
}

// generateSteps is the reduced analysis set of the generate flow: no
// speculation, so the speed-oriented analyzers stay out.
func generateSteps(req *Request) []precheckStep {
	return []precheckStep{
		analyzeItemType{},
		chooseDecontextualizer(req),
		relevanceCheck{},
		memoryCheck{},
		requiredInfoCheck{},
	}
}

// gatherItem scores one item for synthesis and keeps it when it clears
// the gather bar. Unscorable items are dropped.
func (e *Engine) gatherItem(ctx context.Context, s *State, item retrieval.Item) *RankedAnswer {
	if !s.connectionAlive.IsSet() {
		return nil
	}
	p, ok := e.prompts.Find(s.Req.Site, s.ItemType(), prompts.RankingForGenerate)
	if !ok {
		return nil
	}

	descr, err := json.Marshal(schemaorg.TrimHard(item.SchemaJSON))
	if err != nil {
		descr = []byte(item.SchemaJSON)
	}
	vars := s.promptVars()
	vars.ItemDescription = string(descr)

	response := s.askFilled(ctx, p, llm.LevelLow, 0, vars)
	if response == nil {
		return nil
	}
	score, ok := intField(response, "score")
	if !ok || score <= GatherItemsThreshold {
		return nil
	}
	return &RankedAnswer{
		URL:          item.URL,
		Site:         item.Site,
		Name:         itemName(item),
		Score:        score,
		Description:  stringField(response, "description"),
		SchemaObject: parseSchema(item.SchemaJSON),
	}
}

// synthesize produces the answer and its supporting items. The answer
// goes out as soon as the model returns it; the items frame follows after
// every cited item has been described.
func (e *Engine) synthesize(ctx context.Context, s *State) error {
	if !s.connectionAlive.IsSet() {
		return nil
	}

	if len(s.RankedAnswers()) == 0 {
		s.log.Info("nothing relevant enough to synthesize from")
		msg := api.New(api.TypeNLWS)
		msg["answer"] = noAnswerText
		msg["items"] = []api.Item{}
		s.Send(msg)
		return nil
	}

	vars := s.promptVars()
	vars.Answers = s.renderAnswers()
	response := s.runPromptVars(ctx, prompts.Synthesize, llm.LevelHigh, synthesisTimeout, vars)
	if response == nil {
		msg := api.New(api.TypeNLWS)
		msg["answer"] = synthesisErrorText
		msg["items"] = []api.Item{}
		s.Send(msg)
		return errors.New("engine: answer synthesis failed")
	}

	answer := stringField(response, "answer")
	first := api.New(api.TypeNLWS)
	first["answer"] = answer
	first["items"] = []api.Item{}
	s.Send(first)

	cited := stringsField(response, "urls")
	if len(cited) == 0 {
		s.log.Debug("synthesis cited no items")
		return nil
	}

	byURL := make(map[string]retrieval.Item)
	for _, item := range s.RetrievedItems() {
		byURL[item.URL] = item
	}

	described := make([]*api.Item, len(cited))
	var wg sync.WaitGroup
	for i, u := range cited {
		item, ok := byURL[u]
		if !ok {
			s.log.Warn("synthesis cited an unretrieved url", "url", u)
			continue
		}
		wg.Add(1)
		go func(i int, item retrieval.Item) {
			defer wg.Done()
			described[i] = e.describeItem(ctx, s, item)
		}(i, item)
	}
	wg.Wait()

	supporting := make([]api.Item, 0, len(described))
	for _, it := range described {
		if it != nil {
			supporting = append(supporting, *it)
		}
	}

	second := api.New(api.TypeNLWS)
	second["answer"] = answer
	second["items"] = supporting
	s.Send(second)
	return nil
}

// describeItem asks for a query-specific description of one cited item.
func (e *Engine) describeItem(ctx context.Context, s *State, item retrieval.Item) *api.Item {
	descr, err := json.Marshal(schemaorg.Trim(item.SchemaJSON))
	if err != nil {
		descr = []byte(item.SchemaJSON)
	}
	vars := s.promptVars()
	vars.ItemDescription = string(descr)

	response := s.runPromptVars(ctx, prompts.ItemDescription, llm.LevelHigh, 0, vars)
	if response == nil {
		return nil
	}
	return &api.Item{
		URL:          item.URL,
		Name:         itemName(item),
		Site:         item.Site,
		Description:  stringField(response, "description"),
		SchemaObject: parseSchema(item.SchemaJSON),
	}
}
