package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/kairoshq/kairos-gateway/internal/config"
	"github.com/kairoshq/kairos-gateway/internal/observability"
	"github.com/kairoshq/kairos-gateway/internal/provision"
	"github.com/kairoshq/kairos-gateway/internal/rooms"
)

// Provisioner ensures a room exists before a token referencing it is handed
// out. Implementations are best-effort: any outcome proceeds to issuance.
type Provisioner interface {
	EnsureRoom(ctx context.Context, creds config.LiveKit, name, requestedBy string) (provision.Outcome, error)
}

type Server struct {
	cfg         config.Config
	creds       config.LiveKitSource
	provisioner Provisioner
	registry    *rooms.Registry
	metrics     *observability.Metrics
	logger      zerolog.Logger
}

func New(cfg config.Config, creds config.LiveKitSource, provisioner Provisioner, registry *rooms.Registry, metrics *observability.Metrics, logger zerolog.Logger) *Server {
	return &Server{
		cfg:         cfg,
		creds:       creds,
		provisioner: provisioner,
		registry:    registry,
		metrics:     metrics,
		logger:      logger,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Group(func(r chi.Router) {
		r.Use(s.requestLogger)
		r.Get("/v1/token", s.handleToken)
		r.Get("/v1/rooms", s.handleListRooms)
		r.Post("/v1/webhooks/livekit", s.handleWebhook)
	})

	return r
}

// requestLogger tags each request with an id and logs its outcome. Handlers
// pull the tagged logger back out of the context.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		logger := s.logger.With().Str("request_id", uuid.NewString()).Logger()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(logger.WithContext(r.Context())))
		logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// handleReady reports whether the credential triple is currently usable.
// Readiness flips back on its own once the environment is fixed, since
// credentials are re-read on every evaluation.
func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	if err := s.creds().Validate(); err != nil {
		respondJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "unavailable",
			"reason": "credentials incomplete",
		})
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

func (s *Server) handleListRooms(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"rooms": s.registry.Snapshot()})
}

type errorResponse struct {
	Error string `json:"error"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, errorResponse{Error: message})
}
