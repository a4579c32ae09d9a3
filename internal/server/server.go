// Package server is the HTTP surface of askweb: the /ask endpoint with
// server-sent-event streaming, the /mcp function-call endpoint, the /who
// diagnostic, health and metrics endpoints, and the embedded home page.
//
// The server owns no query logic; it parses transport parameters into
// engine requests and renders engine frames back out.
package server

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/askweb/askweb/internal/config"
	"github.com/askweb/askweb/internal/engine"
	"github.com/askweb/askweb/internal/observability"
	"github.com/askweb/askweb/internal/retrieval"
)

//go:embed static/*
var staticFS embed.FS

// Server serves the askweb HTTP API.
type Server struct {
	cfg       *config.Config
	engine    *engine.Engine
	retriever *retrieval.Client
	logger    *slog.Logger
	metrics   *observability.Metrics
	static    fs.FS

	httpServer *http.Server
	listener   net.Listener
}

// New wires a Server from its dependencies. The static home page comes
// from the embedded assets unless server.static_dir points elsewhere.
func New(cfg *config.Config, eng *engine.Engine, retriever *retrieval.Client, logger *slog.Logger, metrics *observability.Metrics) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	static, err := fs.Sub(staticFS, "static")
	if err != nil {
		static = staticFS
	}
	if dir := cfg.Server.StaticDir; dir != "" {
		static = os.DirFS(dir)
	}
	return &Server{
		cfg:       cfg,
		engine:    eng,
		retriever: retriever,
		logger:    logger.With("component", "server"),
		metrics:   metrics,
		static:    static,
	}
}

// Handler builds the full route table with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	if s.cfg.MetricsEnabled() {
		mux.Handle("/metrics", promhttp.Handler())
	}
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/mcp/health", s.handleHealthz)
	mux.HandleFunc("/mcp/healthz", s.handleHealthz)

	mux.HandleFunc("/ask", s.handleAsk)
	mux.HandleFunc("/who", s.handleWho)
	mux.HandleFunc("/mcp", s.handleMCP)

	mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.FS(s.static))))
	mux.HandleFunc("/", s.handleRoot)

	var handler http.Handler = mux
	if s.cfg.Server.EnableCORS {
		handler = corsMiddleware(handler)
	}
	if s.metrics != nil {
		handler = metricsMiddleware(s.metrics)(handler)
	}
	handler = loggingMiddleware(s.logger)(handler)
	return handler
}

// Start begins serving in the background. It returns once the listener is
// bound, so callers can read Addr immediately.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)

	server := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: s.cfg.Server.ReadHeaderTimeout(),
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("http listen: %w", err)
	}

	s.httpServer = server
	s.listener = listener

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server error", "error", err)
		}
	}()

	s.logger.Info("starting http server", "addr", listener.Addr().String())
	return nil
}

// Addr returns the bound listen address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Shutdown drains in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Warn("http server shutdown error", "error", err)
		return err
	}
	s.httpServer = nil
	s.listener = nil
	return nil
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// handleRoot serves the home page on "/" and a plain 404 for every path no
// other route claimed.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprintf(w, "No handler found for path: %s", r.URL.Path)
		return
	}

	data, err := fs.ReadFile(s.static, "index.html")
	if err != nil {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("Home page not found"))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(data)
}

// jsonResponse writes a JSON response.
func (s *Server) jsonResponse(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("json encode error", "error", err)
	}
}

// jsonError writes a JSON error response.
func (s *Server) jsonError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
