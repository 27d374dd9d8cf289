// Package observability provides the probe server, tracing, and gRPC interceptors.
package observability

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"fish-assistant/internal/observability/logging"
)

// ReadyFunc reports whether the runtime is ready to accept work.
type ReadyFunc func() bool

// Server serves /metrics, /healthz and /readyz on METRICS_ADDR, apart from the
// application surface.
type Server struct {
	srv    *http.Server
	logger zerolog.Logger
}

// NewServer builds the probe server. A nil ready func always reports ready.
func NewServer(addr string, ready ReadyFunc) *Server {
	return &Server{
		logger: logging.WithComponent("probes"),
		srv: &http.Server{
			Addr:         addr,
			Handler:      NewHandler(ready),
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}
}

// NewHandler returns the probe routes.
func NewHandler(ready ReadyFunc) http.Handler {
	r := chi.NewRouter()
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		probe(w, http.StatusOK, "ok")
	})
	r.Get("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		if ready != nil && !ready() {
			probe(w, http.StatusServiceUnavailable, "not ready")
			return
		}
		probe(w, http.StatusOK, "ready")
	})
	return r
}

func probe(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

// Start listens in the background.
func (s *Server) Start() {
	go func() {
		s.logger.Info().Str("addr", s.srv.Addr).Msg("Probe server listening")
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("Probe server failed")
		}
	}()
}

// Shutdown drains the probe server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("Probe server shutting down")
	return s.srv.Shutdown(ctx)
}
