package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/askweb/askweb/internal/config"
	"github.com/askweb/askweb/internal/engine"
	"github.com/askweb/askweb/internal/llm"
	"github.com/askweb/askweb/internal/prompts"
	"github.com/askweb/askweb/internal/retrieval"
)

// fakeLLM answers by response schema: ranking prompts get a score looked
// up by item-name substring, the required-info gate always passes, and
// every other analyzer gets an empty response it degrades on.
type fakeLLM struct {
	scores  map[string]int
	summary string
}

func (f *fakeLLM) Name() string { return "fake" }

func (f *fakeLLM) Complete(ctx context.Context, prompt string, schema llm.Schema, level llm.Level, timeout time.Duration) (map[string]any, error) {
	has := func(key string) bool { _, ok := schema[key]; return ok }
	switch {
	case has("item_type"):
		return map[string]any{"item_type": "Thing"}, nil
	case has("required_info_found"):
		return map[string]any{"required_info_found": "True", "user_question": ""}, nil
	case has("score"):
		for marker, score := range f.scores {
			if strings.Contains(prompt, marker) {
				return map[string]any{"score": float64(score), "description": "about " + marker}, nil
			}
		}
		return map[string]any{"score": float64(0), "description": ""}, nil
	case has("summary"):
		return map[string]any{"summary": f.summary}, nil
	default:
		return map[string]any{}, nil
	}
}

// fakeEndpoint serves a fixed corpus and records searches.
type fakeEndpoint struct {
	mu      sync.Mutex
	queries []string
	items   []retrieval.Item
}

func (f *fakeEndpoint) Name() string { return "fake" }

func (f *fakeEndpoint) Search(ctx context.Context, query string, sites []string, limit int) ([]retrieval.Item, error) {
	f.mu.Lock()
	f.queries = append(f.queries, query)
	f.mu.Unlock()
	if limit > 0 && limit < len(f.items) {
		return f.items[:limit], nil
	}
	return f.items, nil
}

func (f *fakeEndpoint) SearchByURL(ctx context.Context, url string) (*retrieval.Item, error) {
	for _, item := range f.items {
		if item.URL == url {
			found := item
			return &found, nil
		}
	}
	return nil, nil
}

func (f *fakeEndpoint) Upload(ctx context.Context, docs []retrieval.Document) (int, error) {
	return 0, nil
}

func (f *fakeEndpoint) DeleteSite(ctx context.Context, site string) (int, error) {
	return 0, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() *config.Config {
	return &config.Config{
		Server:    config.ServerConfig{Host: "127.0.0.1", Port: 8080, Mode: "production"},
		LLM:       config.LLMConfig{PreferredProvider: "fake", TimeoutSeconds: 5},
		Retrieval: config.RetrievalConfig{PreferredEndpoint: "fake"},
	}
}

func testItem(url, site, name string) retrieval.Item {
	return retrieval.Item{
		URL:        url,
		Name:       name,
		Site:       site,
		SchemaJSON: `{"@type": "Recipe", "name": "` + name + `", "url": "` + url + `"}`,
	}
}

func newTestServer(t *testing.T, cfg *config.Config, fake *fakeLLM, ep *fakeEndpoint) *Server {
	t.Helper()
	router := llm.NewRouter(cfg.LLM, map[string]llm.Factory{
		"fake": func() (llm.Provider, error) { return fake, nil },
	}, testLogger(), nil)
	retriever := retrieval.NewClient(cfg.Retrieval, cfg.AllowedSites(), map[string]retrieval.Factory{
		"fake": func() (retrieval.Endpoint, error) { return ep, nil },
	}, testLogger(), nil)
	store, err := prompts.NewStore("", testLogger())
	if err != nil {
		t.Fatalf("NewStore() error: %v", err)
	}
	eng := engine.New(cfg, router, retriever, store, testLogger(), nil)
	return New(cfg, eng, retriever, testLogger(), nil)
}

// defaultTestServer wires a server over a three-item corpus where two
// items rank above the delivery threshold.
func defaultTestServer(t *testing.T) *Server {
	t.Helper()
	fake := &fakeLLM{scores: map[string]int{
		"Pasta Carbonara": 85,
		"Green Salad":     70,
		"Motor Oil":       40,
	}}
	ep := &fakeEndpoint{items: []retrieval.Item{
		testItem("https://food.example/pasta", "food", "Pasta Carbonara"),
		testItem("https://food.example/salad", "food", "Green Salad"),
		testItem("https://garage.example/oil", "garage", "Motor Oil"),
	}}
	return newTestServer(t, testConfig(), fake, ep)
}

func doRequest(t *testing.T, s *Server, method, target string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, body string) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal([]byte(body), &m); err != nil {
		t.Fatalf("invalid JSON response %q: %v", body, err)
	}
	return m
}

// sseFrames parses the data: lines of an event-stream body into frames.
func sseFrames(t *testing.T, body string) []map[string]any {
	t.Helper()
	var frames []map[string]any
	for _, line := range strings.Split(body, "\n") {
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &m); err != nil {
			t.Fatalf("invalid SSE frame %q: %v", line, err)
		}
		frames = append(frames, m)
	}
	return frames
}

func TestHealthEndpoints(t *testing.T) {
	s := defaultTestServer(t)

	for _, path := range []string{"/healthz", "/mcp/health", "/mcp/healthz"} {
		rec := doRequest(t, s, http.MethodGet, path, nil)
		if rec.Code != http.StatusOK {
			t.Errorf("GET %s status = %d, want %d", path, rec.Code, http.StatusOK)
		}
		if got := rec.Body.String(); got != `{"status":"ok"}` {
			t.Errorf("GET %s body = %q, want %q", path, got, `{"status":"ok"}`)
		}
		if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
			t.Errorf("GET %s Content-Type = %q, want application/json", path, ct)
		}
	}
}

func TestMetricsRoute(t *testing.T) {
	s := defaultTestServer(t)
	rec := doRequest(t, s, http.MethodGet, "/metrics", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("GET /metrics status = %d, want %d", rec.Code, http.StatusOK)
	}

	disabled := false
	cfg := testConfig()
	cfg.Metrics.Enabled = &disabled
	s = newTestServer(t, cfg, &fakeLLM{}, &fakeEndpoint{})
	rec = doRequest(t, s, http.MethodGet, "/metrics", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("GET /metrics with metrics disabled status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestUnknownPathReturnsNotFound(t *testing.T) {
	s := defaultTestServer(t)
	rec := doRequest(t, s, http.MethodGet, "/nope", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
	if got, want := rec.Body.String(), "No handler found for path: /nope"; got != want {
		t.Errorf("body = %q, want %q", got, want)
	}
}

func TestHomePageServed(t *testing.T) {
	s := defaultTestServer(t)
	rec := doRequest(t, s, http.MethodGet, "/", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type = %q, want text/html", ct)
	}
	if !strings.Contains(rec.Body.String(), "askweb") {
		t.Error("home page missing expected content")
	}
}

func TestCORSHeaders(t *testing.T) {
	cfg := testConfig()
	cfg.Server.EnableCORS = true
	s := newTestServer(t, cfg, &fakeLLM{}, &fakeEndpoint{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "https://client.example")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q, want *", got)
	}
	if got := rec.Header().Get("Access-Control-Allow-Methods"); got != "GET, POST, OPTIONS" {
		t.Errorf("Access-Control-Allow-Methods = %q", got)
	}

	req = httptest.NewRequest(http.MethodOptions, "/ask", nil)
	req.Header.Set("Origin", "https://client.example")
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want %d", rec.Code, http.StatusNoContent)
	}

	// Without an Origin header no CORS headers are added.
	rec = doRequest(t, s, http.MethodGet, "/healthz", nil)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("Access-Control-Allow-Origin without Origin header = %q, want empty", got)
	}

	// Disabled entirely by default.
	s = defaultTestServer(t)
	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "https://client.example")
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("Access-Control-Allow-Origin with CORS disabled = %q, want empty", got)
	}
}
