package engine

import (
	"context"
	"time"

	"github.com/askweb/askweb/internal/llm"
	"github.com/askweb/askweb/internal/prompts"
	"github.com/askweb/askweb/pkg/api"
)

const (
	// summaryTimeout bounds the summary completion; summaries read a lot
	// of context and need more room than the default deadline.
	summaryTimeout = 20 * time.Second

	// summaryAnswerCount is how many top answers the summary covers.
	summaryAnswerCount = 3
)

// postRanking applies the request mode to the ranked answers. ModeList
// needs nothing further.
func (e *Engine) postRanking(ctx context.Context, s *State) {
	if !s.connectionAlive.IsSet() {
		s.SetQueryDone()
		return
	}
	if s.Req.Mode == ModeSummarize {
		e.summarize(ctx, s)
	}
}

// summarize narrows the ranked answers to the top few and streams a prose
// summary of them. A failed summary leaves the results standing on their
// own.
func (e *Engine) summarize(ctx context.Context, s *State) {
	answers := s.RankedAnswers()
	if len(answers) > summaryAnswerCount {
		s.SetRankedAnswers(answers[:summaryAnswerCount])
	}

	vars := s.promptVars()
	vars.Answers = s.renderAnswers()
	response := s.runPromptVars(ctx, prompts.SummarizeResults, llm.LevelHigh, summaryTimeout, vars)
	if response == nil {
		s.log.Warn("summary generation failed, leaving results unsummarized")
		return
	}

	msg := api.New(api.TypeSummary)
	msg["message"] = stringField(response, "summary")
	s.Send(msg)
}
