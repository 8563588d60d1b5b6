// Package ops serves the operational HTTP endpoints: liveness, readiness
// against the worker's downstreams, and Prometheus metrics.
package ops

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"reviewpulse/scraper/internal/metrics"
)

// checkTimeout bounds each downstream probe so a wedged dependency cannot
// hang the readiness endpoint.
const checkTimeout = 2 * time.Second

// Dependency is a named downstream probed by the readiness endpoint.
type Dependency struct {
	Name  string
	Check func(ctx context.Context) error
}

// Server hosts the operational endpoints on their own listener, separate
// from any scraping traffic.
type Server struct {
	httpServer *http.Server
	deps       []Dependency
	logger     *zap.Logger
}

// NewServer builds the ops server. Dependencies are probed in order on
// every readiness request.
func NewServer(addr string, deps []Dependency, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{deps: deps, logger: logger}

	r := chi.NewRouter()
	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe blocks serving until Shutdown is called. A closed server
// returns nil rather than http.ErrServerClosed.
func (s *Server) ListenAndServe() error {
	s.logger.Info("ops server started", zap.String("addr", s.httpServer.Addr))
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains the ops listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.logger, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	for _, dep := range s.deps {
		ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		err := dep.Check(ctx)
		cancel()
		if err != nil {
			s.logger.Warn("readiness check failed",
				zap.String("component", dep.Name),
				zap.Error(err))
			writeJSON(w, s.logger, http.StatusServiceUnavailable, map[string]string{
				"status":    "unavailable",
				"component": dep.Name,
				"error":     err.Error(),
			})
			return
		}
	}
	writeJSON(w, s.logger, http.StatusOK, map[string]string{"status": "ready"})
}

func writeJSON(w http.ResponseWriter, logger *zap.Logger, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("write JSON failed", zap.Error(err))
	}
}
