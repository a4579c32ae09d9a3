package engine

import (
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/askweb/askweb/internal/config"
)

// Mode selects what happens to ranked results.
type Mode string

const (
	// ModeList streams ranked results and stops.
	ModeList Mode = "none"

	// ModeSummarize streams ranked results, then a summary of the top
	// ones.
	ModeSummarize Mode = "summarize"

	// ModeGenerate synthesizes an answer from retrieved items instead of
	// streaming them.
	ModeGenerate Mode = "generate"
)

// ParseMode maps a generate_mode parameter to a Mode. Unknown values fall
// back to ModeList.
func ParseMode(s string) Mode {
	switch s {
	case string(ModeSummarize):
		return ModeSummarize
	case string(ModeGenerate):
		return ModeGenerate
	default:
		return ModeList
	}
}

// ErrMissingQuery rejects requests with an empty query before any
// orchestration starts.
var ErrMissingQuery = errors.New("engine: missing required parameter: query")

// Request is one normalized ask. Transports build it from their own
// parameter encodings and pass it through Normalize before running it.
type Request struct {
	// Query is the user's question, verbatim.
	Query string

	// Site is the normalized site parameter: "all", "nlws", a single
	// site, or a comma-joined list. Sites holds the resolved allowlisted
	// set; empty means unrestricted.
	Site  string
	Sites []string

	// PrevQueries are the user's earlier queries in this conversation,
	// oldest first.
	PrevQueries []string

	// DecontextualizedQuery, when the client supplies it, skips
	// decontextualization entirely.
	DecontextualizedQuery string

	// ContextURL is the page the query was asked from; when set, the item
	// stored under it becomes context for decontextualization.
	ContextURL string

	// ContextDescription, when the client supplies it, stands in for the
	// item behind ContextURL and skips the corpus lookup.
	ContextDescription string

	// QueryID correlates every frame of the response. Generated when the
	// client does not supply one.
	QueryID string

	// Model is recorded for logging; routing is configuration-driven.
	Model string

	// Streaming selects SSE delivery over a single aggregated response.
	Streaming bool

	// Mode is the generate_mode parameter.
	Mode Mode

	// RetrievalEndpoint overrides the preferred vector-store endpoint.
	// Honored in development mode only.
	RetrievalEndpoint string
}

// Normalize validates the request and fills defaults in place: a missing
// query is rejected, a missing query_id is generated, and the site
// parameter is resolved against the configured allowlist.
func (e *Engine) Normalize(req *Request) error {
	if strings.TrimSpace(req.Query) == "" {
		return ErrMissingQuery
	}
	if req.QueryID == "" {
		req.QueryID = uuid.NewString()
	}
	if req.Mode == "" {
		req.Mode = ModeList
	}
	if !e.cfg.IsDevelopment() {
		req.RetrievalEndpoint = ""
	}
	req.Site, req.Sites = resolveSites(req.Site, e.cfg)
	return nil
}

// resolveSites maps the raw site parameter onto the allowlist. Unknown
// sites are silently replaced by the allowed set; an empty parameter means
// "all".
func resolveSites(raw string, cfg *config.Config) (string, []string) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "all" || raw == "nlws" {
		if raw == "" {
			raw = "all"
		}
		return raw, cfg.AllowedSites()
	}

	requested := splitSites(raw)
	allowed := make([]string, 0, len(requested))
	for _, s := range requested {
		if cfg.IsSiteAllowed(s) {
			allowed = append(allowed, s)
		}
	}
	if len(allowed) == 0 {
		if len(cfg.AllowedSites()) == 0 {
			return "all", nil
		}
		return strings.Join(cfg.AllowedSites(), ","), cfg.AllowedSites()
	}
	return strings.Join(allowed, ","), allowed
}

// splitSites parses "a,b" and "[a, b]" forms into a list.
func splitSites(raw string) []string {
	raw = strings.Trim(raw, "[]")
	parts := strings.Split(raw, ",")
	sites := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			sites = append(sites, p)
		}
	}
	return sites
}
