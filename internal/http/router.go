// Package http serves the HTTP surface: the transcribe and synthesize routes
// of server mode and the audio push route of client mode.
package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/rs/zerolog"

	"fish-assistant/internal/bus"
	"fish-assistant/internal/config"
	"fish-assistant/internal/observability/logging"
	"fish-assistant/internal/observability/metrics"
	"fish-assistant/internal/schema"
	"fish-assistant/internal/service/push"
	"fish-assistant/internal/service/stt"
	"fish-assistant/internal/service/tts"
	"fish-assistant/internal/storage"
)

// Response modes of the synthesize route.
const (
	ResponseWAV = "wav"
	ResponseURL = "url"
)

// Deps are the collaborators the routes call. Server routes are mounted in
// server and full mode, the push route in client and full mode.
type Deps struct {
	Mode string

	// Server mode.
	Transcriber  stt.Transcriber
	Synthesizer  tts.Synthesizer
	ModelSize    string
	Voice        string
	ResponseMode string
	Store        storage.Store
	Audio        storage.Reader // served under storage.AudioPath when set
	Validator    *schema.Validator

	// Client mode. Pushed audio is republished as tts.audio.
	Bus *bus.Bus

	RateLimit int // requests per minute per client IP; 0 disables
}

type handlers struct {
	deps     Deps
	accepted *accepted
	metrics  *metrics.Metrics
	logger   zerolog.Logger
}

// NewRouter constructs the HTTP router for the service.
func NewRouter(d Deps) http.Handler {
	if d.Mode == "" {
		d.Mode = config.ModeFull
	}
	if d.ResponseMode == "" {
		d.ResponseMode = ResponseWAV
	}
	h := &handlers{
		deps:     d,
		accepted: newAccepted(replayWindow),
		metrics:  metrics.DefaultMetrics,
		logger:   logging.WithComponent("http"),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", push.CorrelationHeader},
		ExposedHeaders: []string{push.CorrelationHeader},
	}))
	if d.RateLimit > 0 {
		r.Use(httprate.LimitByIP(d.RateLimit, time.Minute))
	}
	r.Use(h.observe)

	r.Get("/health", h.health)

	if d.Mode == config.ModeServer || d.Mode == config.ModeFull {
		if d.Transcriber != nil {
			r.Post(stt.TranscribePath, h.transcribe)
		}
		if d.Synthesizer != nil {
			r.Post(tts.SynthesizePath, h.synthesize)
		}
		if d.Audio != nil {
			r.Get(storage.AudioPath+"{id}", h.storedAudio)
		}
	}
	if (d.Mode == config.ModeClient || d.Mode == config.ModeFull) && d.Bus != nil {
		r.Post(push.PlayPath, h.play)
	}
	return r
}

// observe records one metric sample per request, labelled by route pattern.
func (h *handlers) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		h.metrics.RecordHTTPRequest(route, status)
		h.logger.Debug().
			Str("method", r.Method).
			Str("route", route).
			Str("status", strconv.Itoa(status)).
			Str("requestId", middleware.GetReqID(r.Context())).
			Dur("latency", time.Since(start)).
			Msg("HTTP request")
	})
}

func (h *handlers) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "mode": h.deps.Mode})
}
