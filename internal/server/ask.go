package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"

	"github.com/askweb/askweb/internal/engine"
	"github.com/askweb/askweb/internal/retrieval"
	"github.com/askweb/askweb/pkg/api"
)

// handleAsk answers a natural-language query, streaming frames as
// server-sent events by default or aggregating them into one JSON object
// when streaming=false.
func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		s.jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	req, err := askRequest(r)
	if err != nil {
		s.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.engine.Normalize(req); err != nil {
		if errors.Is(err, engine.ErrMissingQuery) {
			s.jsonError(w, "Missing required parameter: query", http.StatusBadRequest)
		} else {
			s.jsonError(w, err.Error(), http.StatusBadRequest)
		}
		return
	}

	if !req.Streaming {
		result, err := s.engine.RunQuery(r.Context(), req, nil)
		if err != nil {
			s.jsonError(w, "Error processing request", http.StatusInternalServerError)
			return
		}
		s.jsonResponse(w, result)
		return
	}

	stream, err := newSSEStream(w)
	if err != nil {
		s.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if _, err := s.engine.RunQuery(r.Context(), req, stream); err != nil {
		s.logger.Error("streaming query failed", "query_id", req.QueryID, "error", err)
		_ = stream.writeEvent(map[string]any{"error": fmt.Sprintf("Error processing request: %s", err)})
		return
	}

	complete := api.New(api.TypeComplete)
	complete["query_id"] = req.QueryID
	_ = stream.Send(complete)
}

// handleWho reports which sites could answer the query: it retrieves for
// the raw query and counts how often each site shows up, returning the top
// five.
func (s *Server) handleWho(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		s.jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	req, err := askRequest(r)
	if err != nil {
		s.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.engine.Normalize(req); err != nil {
		if errors.Is(err, engine.ErrMissingQuery) {
			s.jsonError(w, "Missing required parameter: query", http.StatusBadRequest)
		} else {
			s.jsonError(w, err.Error(), http.StatusBadRequest)
		}
		return
	}

	query := s.engine.ResolveQuery(r.Context(), req)
	items, err := s.retriever.Search(r.Context(), req.RetrievalEndpoint, query, req.Site, retrieval.DefaultLimit)
	if err != nil {
		s.logger.Error("who retrieval failed", "query_id", req.QueryID, "error", err)
		s.jsonError(w, "Error processing request", http.StatusInternalServerError)
		return
	}

	msg := api.New(api.TypeResult)
	msg["query_id"] = req.QueryID
	msg["results"] = topSites(items, 5)

	if !req.Streaming {
		s.jsonResponse(w, msg)
		return
	}
	stream, err := newSSEStream(w)
	if err != nil {
		s.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	_ = stream.Send(msg)
	complete := api.New(api.TypeComplete)
	complete["query_id"] = req.QueryID
	_ = stream.Send(complete)
}

// topSites counts how many retrieved items each site contributed and
// returns the n busiest, ties broken by name.
func topSites(items []retrieval.Item, n int) []api.SiteCount {
	counts := make(map[string]int)
	for _, item := range items {
		if item.Site != "" {
			counts[item.Site]++
		}
	}
	sites := make([]api.SiteCount, 0, len(counts))
	for site, count := range counts {
		sites = append(sites, api.SiteCount{Site: site, Count: count})
	}
	sort.Slice(sites, func(i, j int) bool {
		if sites[i].Count != sites[j].Count {
			return sites[i].Count > sites[j].Count
		}
		return sites[i].Site < sites[j].Site
	})
	if len(sites) > n {
		sites = sites[:n]
	}
	return sites
}

// sseStream writes protocol frames as server-sent events. Creating one
// commits the response to the event stream: headers go out immediately,
// followed by a keep-alive comment that opens the connection.
type sseStream struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func newSSEStream(w http.ResponseWriter) (*sseStream, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, errors.New("streaming unsupported by connection")
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
		return nil, err
	}
	flusher.Flush()
	return &sseStream{w: w, flusher: flusher}, nil
}

// Send delivers one engine frame. It satisfies engine.Streamer.
func (s *sseStream) Send(msg api.Message) error {
	return s.writeEvent(msg)
}

func (s *sseStream) writeEvent(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}
