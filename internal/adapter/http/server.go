// Package http serves the monitoring side channel of a batch tool: liveness,
// readiness of the current run, its progress and the prometheus registry.
// The server is optional and never affects the run itself.
package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// readinessTimeout bounds a single /readyz probe.
const readinessTimeout = 2 * time.Second

// ReadinessChecker reports whether a run has committed output yet.
type ReadinessChecker = sharedobs.ReadinessChecker

// StatusReporter describes the current run. A ReadinessChecker that also
// implements it gets a /status route.
type StatusReporter interface {
	Status() any
}

// Server serves /healthz, /readyz, /metrics and, for runs that report
// progress, /status.
type Server struct {
	httpServer *http.Server
	run        ReadinessChecker
	logger     *slog.Logger
}

// NewServer builds the monitoring server for run. It does not listen until Start.
func NewServer(addr string, run ReadinessChecker, logger *slog.Logger) *Server {
	s := &Server{run: run, logger: logger}
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.health)
	mux.HandleFunc("GET /readyz", s.ready)
	mux.Handle("GET /metrics", promhttp.Handler())
	if reporter, ok := s.run.(StatusReporter); ok {
		mux.HandleFunc("GET /status", func(w http.ResponseWriter, _ *http.Request) {
			respond(w, http.StatusOK, reporter.Status())
		})
	}
	return mux
}

// Start listens until Shutdown, which makes it return http.ErrServerClosed.
func (s *Server) Start() error {
	s.logger.Info("monitoring server listening", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown drains open requests within ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP routes a single request; tests call it without listening.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	respond(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	if err := s.run.CheckReadiness(ctx); err != nil {
		respond(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready", "error": err.Error()})
		return
	}
	respond(w, http.StatusOK, map[string]string{"status": "ready"})
}

func respond(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Debug("monitoring response not written", "error", err)
	}
}
