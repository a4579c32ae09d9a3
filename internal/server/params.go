package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/askweb/askweb/internal/engine"
)

// askRequest builds an engine request from the transport parameters of an
// /ask-style call. GET carries everything in the query string; POST may
// add a JSON body whose fields win over the query string.
func askRequest(r *http.Request) (*engine.Request, error) {
	p, err := requestParams(r)
	if err != nil {
		return nil, err
	}
	return &engine.Request{
		Query:                 paramString(p, "query"),
		Site:                  paramString(p, "site"),
		PrevQueries:           paramList(p, "prev"),
		DecontextualizedQuery: paramString(p, "decontextualized_query"),
		ContextURL:            paramString(p, "context_url"),
		ContextDescription:    paramString(p, "context_description"),
		QueryID:               paramString(p, "query_id"),
		Model:                 paramString(p, "model"),
		Mode:                  engine.ParseMode(paramString(p, "generate_mode")),
		Streaming:             streamingParam(p),
		RetrievalEndpoint:     paramString(p, "db"),
	}, nil
}

// requestParams merges the query string and, for POST, the JSON body into
// one parameter map.
func requestParams(r *http.Request) (map[string]any, error) {
	p := make(map[string]any)
	for key, vals := range r.URL.Query() {
		if len(vals) == 1 {
			p[key] = vals[0]
		} else {
			p[key] = vals
		}
	}

	if r.Method == http.MethodPost && r.Body != nil {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, fmt.Errorf("read body: %w", err)
		}
		if len(bytes.TrimSpace(body)) > 0 {
			var fields map[string]any
			if err := json.Unmarshal(body, &fields); err != nil {
				return nil, fmt.Errorf("invalid JSON body: %w", err)
			}
			for k, v := range fields {
				p[k] = v
			}
		}
	}
	return p, nil
}

// paramString extracts a single string value; repeated query parameters
// collapse to their first value.
func paramString(p map[string]any, key string) string {
	switch v := p[key].(type) {
	case string:
		return v
	case []string:
		if len(v) > 0 {
			return v[0]
		}
	case []any:
		if len(v) > 0 {
			if s, ok := v[0].(string); ok {
				return s
			}
		}
	}
	return ""
}

// paramList extracts a list value. Clients send lists as repeated
// parameters, JSON arrays, or single strings in "a,b" / "[a, b]" form.
func paramList(p map[string]any, key string) []string {
	switch v := p[key].(type) {
	case string:
		return splitList(v)
	case []string:
		var out []string
		for _, s := range v {
			out = append(out, splitList(s)...)
		}
		return out
	case []any:
		var out []string
		for _, e := range v {
			if s, ok := e.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// splitList parses "a,b" and "[a, b]" forms into a list.
func splitList(raw string) []string {
	raw = strings.Trim(strings.TrimSpace(raw), "[]")
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		p = strings.Trim(p, `"'`)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// streamingParam reads the streaming flag for /ask-style endpoints:
// absent means on, and only the literal values False/false/0 turn it off.
func streamingParam(p map[string]any) bool {
	v, ok := p["streaming"]
	if !ok {
		return true
	}
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return !isFalsyParam(t)
	case []string:
		if len(t) > 0 {
			return !isFalsyParam(t[0])
		}
	}
	return true
}

func isFalsyParam(s string) bool {
	return s == "False" || s == "false" || s == "0"
}
