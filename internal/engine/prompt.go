package engine

import (
	"context"
	"time"

	"github.com/askweb/askweb/internal/llm"
	"github.com/askweb/askweb/internal/prompts"
)

// defaultRankingPrompt backs ranking when the library carries no
// RankingPrompt for the site and item type. Losing one ranked site beats
// failing the whole query.
var defaultRankingPrompt = prompts.Prompt{
	Name: prompts.Ranking,
	Text: `Assign a score between 0 and 100 to the following {site.itemType}
based on how relevant it is to the user's question. Use your knowledge from other sources, about the item, to make a judgement.
If the score is above 50, provide a short description of the item highlighting the relevance to the user's question, without mentioning the user's question.
Provide an explanation of the relevance of the item to the user's question, without mentioning the user's question or the score or explicitly mentioning the term relevance.
If the score is below 75, in the description, include the reason why it is still relevant.
The user's question is: {request.query}. The item's description is {item.description}`,
	Schema: llm.Schema{
		"score":       "integer between 0 and 100",
		"description": "short description of the item",
	},
}

// runPrompt resolves the named prompt for the request's site and item
// type, fills it from the current state, and asks the LLM. A zero timeout
// uses the configured default. It returns nil when the prompt is missing
// or the call fails; callers treat nil as "no opinion" and move on.
func (s *State) runPrompt(ctx context.Context, name string, level llm.Level, timeout time.Duration) map[string]any {
	return s.runPromptVars(ctx, name, level, timeout, s.promptVars())
}

// runPromptVars is runPrompt with caller-adjusted template variables, for
// prompts that reference per-item values.
func (s *State) runPromptVars(ctx context.Context, name string, level llm.Level, timeout time.Duration, vars prompts.Vars) map[string]any {
	p, ok := s.eng.prompts.Find(s.Req.Site, s.ItemType(), name)
	if !ok {
		s.log.Debug("prompt not in library", "prompt", name)
		return nil
	}
	return s.askFilled(ctx, p, level, timeout, vars)
}

func (s *State) askFilled(ctx context.Context, p prompts.Prompt, level llm.Level, timeout time.Duration, vars prompts.Vars) map[string]any {
	filled := prompts.Fill(p.Text, vars)
	out, err := s.eng.llm.Ask(ctx, filled, p.Schema, level, timeout)
	if err != nil {
		s.log.Warn("prompt call failed", "prompt", p.Name, "error", err)
		return nil
	}
	return out
}

// rankingPrompt returns the library's ranking prompt for the request,
// falling back to the built-in default.
func (s *State) rankingPrompt(name string) prompts.Prompt {
	if p, ok := s.eng.prompts.Find(s.Req.Site, s.ItemType(), name); ok {
		return p
	}
	if name == prompts.Ranking {
		return defaultRankingPrompt
	}
	return prompts.Prompt{}
}

// stringField reads a string-typed answer field, "" when absent.
func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

// boolField interprets the "True"/"False" string convention the answer
// schemas use, accepting real booleans as well.
func boolField(m map[string]any, key string) bool {
	switch v := m[key].(type) {
	case bool:
		return v
	case string:
		return v == "True" || v == "true"
	default:
		return false
	}
}

// intField reads a numeric answer field. JSON numbers decode as float64;
// models occasionally answer with a quoted digit string, which counts too.
func intField(m map[string]any, key string) (int, bool) {
	switch v := m[key].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	case string:
		n := 0
		for _, r := range v {
			if r < '0' || r > '9' {
				return 0, false
			}
			n = n*10 + int(r-'0')
		}
		if v == "" {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

// stringsField reads a list-of-strings answer field.
func stringsField(m map[string]any, key string) []string {
	raw, ok := m[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
