// Package server exposes reaper status and metrics over HTTP.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// StatusProvider supplies the stats served on /health.
type StatusProvider interface {
	Stats() map[string]any
}

// StatusFunc adapts a function to StatusProvider.
type StatusFunc func() map[string]any

// Stats calls f.
func (f StatusFunc) Stats() map[string]any { return f() }

// Cluster is the part of the raft manager the server controls.
type Cluster interface {
	IsLeader() bool
	LeaderAddr() string
	Reset() error
}

// Option configures a Server.
type Option func(*Server)

// WithCluster serves POST /cluster/reset through c.
func WithCluster(c Cluster) Option {
	return func(s *Server) { s.cluster = c }
}

// Server serves health and metrics endpoints
type Server struct {
	status     StatusProvider
	gatherer   prometheus.Gatherer
	cluster    Cluster
	addr       string
	logger     *slog.Logger
	httpServer *http.Server
}

// New creates a new HTTP server
func New(addr string, status StatusProvider, gatherer prometheus.Gatherer, logger *slog.Logger, opts ...Option) *Server {
	s := &Server{
		status:   status,
		gatherer: gatherer,
		addr:     addr,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the router serving all endpoints.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(s.loggingMiddleware)

	r.Get("/health", s.handleHealth)
	if s.gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	if s.cluster != nil {
		r.Post("/cluster/reset", s.handleClusterReset)
	}

	return r
}

// Start serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", s.addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("HTTP server error: %w", err)
	}

	s.logger.Info("shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return s.httpServer.Shutdown(shutdownCtx)
}

// handleHealth serves health check information
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]any{
		"status": "ok",
	}
	if s.status != nil {
		health["stats"] = s.status.Stats()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(health); err != nil {
		s.logger.Error("failed to encode health response", "error", err)
	}
}

// handleClusterReset clears the replicated cycle totals. Only the leader can
// append to the log, so followers answer 409 with the leader's address.
func (s *Server) handleClusterReset(w http.ResponseWriter, r *http.Request) {
	if !s.cluster.IsLeader() {
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":  "not the cluster leader",
			"leader": s.cluster.LeaderAddr(),
		})
		return
	}

	if err := s.cluster.Reset(); err != nil {
		s.logger.Error("failed to reset cluster totals", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}

	s.logger.Info("cluster totals reset", "remote", r.RemoteAddr)
	writeJSON(w, http.StatusOK, map[string]any{"status": "reset"})
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

// loggingMiddleware logs HTTP requests. Scrapes are frequent, so they go to debug.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		level := slog.LevelDebug
		if wrapped.statusCode >= http.StatusInternalServerError {
			level = slog.LevelWarn
		}
		s.logger.Log(r.Context(), level, "HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"remote", r.RemoteAddr,
			"status", wrapped.statusCode,
			"duration", time.Since(start),
		)
	})
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
