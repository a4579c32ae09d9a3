package engine

import (
	"context"

	"github.com/askweb/askweb/internal/llm"
	"github.com/askweb/askweb/internal/prompts"
	"github.com/askweb/askweb/pkg/api"
)

// A precheckStep is one unit of pre-retrieval query analysis. Steps run
// concurrently after registering; the runner marks each done no matter how
// it exits, so the barrier always releases.
type precheckStep interface {
	Name() string
	Run(ctx context.Context, s *State)
}

// analyzeItemType resolves what kind of item the query is looking for,
// refining the site-derived default.
type analyzeItemType struct{}

func (analyzeItemType) Name() string { return stepDetectItemType }

func (analyzeItemType) Run(ctx context.Context, s *State) {
	response := s.runPrompt(ctx, prompts.DetectItemType, llm.LevelLow, 0)
	if response == nil {
		return
	}
	if t := stringField(response, "item_type"); t != "" {
		s.SetItemType(t)
	}
}

// analyzeMultiItemType detects queries asking for several item types at
// once. The answer is advisory today; multi-type routing consumes it when
// it lands.
type analyzeMultiItemType struct{}

func (analyzeMultiItemType) Name() string { return stepDetectMultiType }

func (analyzeMultiItemType) Run(ctx context.Context, s *State) {
	s.runPrompt(ctx, prompts.DetectMultiItemType, llm.LevelLow, 0)
}

// analyzeQueryType classifies the query shape (search, question,
// comparison). Advisory, like analyzeMultiItemType.
type analyzeQueryType struct{}

func (analyzeQueryType) Name() string { return stepDetectQueryType }

func (analyzeQueryType) Run(ctx context.Context, s *State) {
	s.runPrompt(ctx, prompts.DetectQueryType, llm.LevelLow, 0)
}

// relevanceCheck aborts queries a site cannot possibly answer. It only
// applies to single-site requests and is off unless enabled in
// configuration.
type relevanceCheck struct{}

func (relevanceCheck) Name() string { return stepRelevance }

func (relevanceCheck) Run(ctx context.Context, s *State) {
	if !s.eng.cfg.NLWeb.RelevanceDetection {
		return
	}
	if s.Req.Site == "all" || s.Req.Site == "nlws" {
		return
	}
	response := s.runPrompt(ctx, prompts.DetectIrrelevant, llm.LevelHigh, 0)
	if response == nil {
		return
	}
	if !boolField(response, "site_is_irrelevant_to_query") {
		return
	}

	s.log.Info("query judged irrelevant to site", "site", s.Req.Site)
	s.SetQueryDone()
	s.abortFastTrack.Set()
	msg := api.New(api.TypeSiteIrrelevant)
	msg["message"] = stringField(response, "explanation_for_irrelevance")
	s.Send(msg)
}

// memoryCheck spots statements the user wants remembered and acknowledges
// them. The query itself continues.
type memoryCheck struct{}

func (memoryCheck) Name() string { return stepMemory }

func (memoryCheck) Run(ctx context.Context, s *State) {
	response := s.runPrompt(ctx, prompts.DetectMemory, llm.LevelHigh, 0)
	if response == nil {
		return
	}
	if !boolField(response, "is_memory_request") {
		return
	}

	msg := api.New(api.TypeRemember)
	msg["item_to_remember"] = stringField(response, "memory_request")
	msg["message"] = "I'll remember that"
	s.Send(msg)
}

// requiredInfoCheck verifies the query carries the information the site
// needs to answer at all, asking the user for whatever is missing. A
// failed check aborts the query.
type requiredInfoCheck struct{}

func (requiredInfoCheck) Name() string { return stepRequiredInfo }

func (requiredInfoCheck) Run(ctx context.Context, s *State) {
	response := s.runPrompt(ctx, prompts.RequiredInfo, llm.LevelHigh, 0)
	if response == nil {
		// No opinion means no blocker.
		return
	}
	if boolField(response, "required_info_found") {
		return
	}

	s.log.Info("required information missing, asking user")
	s.SetQueryDone()
	s.abortFastTrack.Set()
	msg := api.New(api.TypeAskUser)
	msg["message"] = stringField(response, "user_question")
	s.Send(msg)
}
