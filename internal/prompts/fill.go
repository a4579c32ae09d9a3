package prompts

import (
	"encoding/json"
	"strings"

	"github.com/askweb/askweb/internal/schemaorg"
)

// Vars carries the request state a prompt template can reference. Fields
// left zero render as empty strings.
type Vars struct {
	// Site is the site parameter of the request.
	Site string

	// ItemType is the qualified "{namespace}Type" form. Templates read it
	// either whole (request.itemType) or as the local name (site.itemType).
	ItemType string

	// RawQuery is the query exactly as the caller sent it.
	RawQuery string

	// DeconQuery is the decontextualized query. It backs request.query
	// only once DeconDone is set.
	DeconQuery string
	DeconDone  bool

	// PrevQueries are the caller's earlier queries, oldest first.
	PrevQueries []string

	// ContextURL is the page the query was issued from.
	ContextURL string

	// ContextDescription is the trimmed JSON of the item at ContextURL.
	ContextDescription string

	// Answers is the rendered form of the final ranked answers, for the
	// synthesis and summary prompts.
	Answers string

	// ItemDescription is the JSON description of the item being ranked.
	ItemDescription string
}

// Fill substitutes every {variable} span in text. Unknown variables render
// as empty strings.
func Fill(text string, vars Vars) string {
	var b strings.Builder
	for {
		start := strings.IndexByte(text, '{')
		if start == -1 {
			break
		}
		end := strings.IndexByte(text[start:], '}')
		if end == -1 {
			break
		}
		end += start
		b.WriteString(text[:start])
		b.WriteString(vars.value(strings.TrimSpace(text[start+1 : end])))
		text = text[end+1:]
	}
	b.WriteString(text)
	return b.String()
}

func (v Vars) value(name string) string {
	switch name {
	case "request.site":
		return v.Site
	case "site.itemType":
		return schemaorg.TypeLocal(v.ItemType)
	case "request.itemType":
		return v.ItemType
	case "request.query":
		return v.effectiveQuery()
	case "request.rawQuery":
		return v.RawQuery
	case "request.previousQueries":
		return renderList(v.PrevQueries)
	case "request.contextUrl":
		return v.ContextURL
	case "request.contextDescription":
		return v.ContextDescription
	case "request.answers":
		return v.Answers
	case "item.description":
		return v.ItemDescription
	default:
		return ""
	}
}

// effectiveQuery is what request.query means: the decontextualized query
// once decontextualization has run, otherwise the raw query with earlier
// queries appended so single-prompt flows still see the context.
func (v Vars) effectiveQuery() string {
	if v.DeconDone {
		return v.DeconQuery
	}
	if len(v.PrevQueries) > 0 {
		return v.RawQuery + " previous queries: " + renderList(v.PrevQueries)
	}
	return v.RawQuery
}

func renderList(items []string) string {
	if len(items) == 0 {
		return "[]"
	}
	b, err := json.Marshal(items)
	if err != nil {
		return strings.Join(items, ", ")
	}
	return string(b)
}
