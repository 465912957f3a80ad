// Package opsserver implements the daemon's unauthenticated operational
// HTTP surface: a liveness probe and a Prometheus scrape endpoint. It is
// deliberately separate from the MCP stdio surface (spec.md's external
// interfaces) and carries no auth, matching a cluster-internal sidecar
// rather than a tenant-facing API.
package opsserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/szaher/sandboxd/internal/session"
)

// Server serves /healthz and /metrics.
type Server struct {
	mux        *http.ServeMux
	httpServer *http.Server
	logger     *slog.Logger
	startTime  time.Time
	sessions   *session.Manager
}

// New builds the ops server. reg is the registry metrics were registered
// against (see telemetry.NewMetrics); sessions is used to report the live
// session count on /healthz.
func New(reg *prometheus.Registry, sessions *session.Manager, logger *slog.Logger) *Server {
	s := &Server{
		logger:    logger,
		startTime: time.Now(),
		sessions:  sessions,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	s.mux = mux
	return s
}

// Handler returns the HTTP handler, for use with httptest or a custom
// listener.
func (s *Server) Handler() http.Handler { return s.mux }

// ListenAndServe starts the HTTP server and blocks until it exits.
func (s *Server) ListenAndServe(addr string) error {
	s.httpServer = &http.Server{Addr: addr, Handler: s.mux}
	s.logger.Info("ops server starting", "addr", addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":          "healthy",
		"uptime":          time.Since(s.startTime).String(),
		"active_sessions": s.sessions.Count(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
