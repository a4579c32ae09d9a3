package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var codeFence = regexp.MustCompile("```(?:json)?\\s*")

// ExtractJSON parses the first JSON object out of a model reply. Markdown
// code fences are stripped first; the object spans from the first '{' to
// the last '}' in the remaining text. Returns ErrBadResponse when no
// object is present or the candidate does not parse.
func ExtractJSON(content string) (map[string]any, error) {
	cleaned := strings.TrimSpace(codeFence.ReplaceAllString(content, ""))

	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start == -1 || end < start {
		return nil, fmt.Errorf("%w: %.80q", ErrBadResponse, content)
	}

	var out map[string]any
	if err := json.Unmarshal([]byte(cleaned[start:end+1]), &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadResponse, err)
	}
	return out, nil
}
