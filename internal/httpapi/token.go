package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/kairoshq/kairos-gateway/internal/auth"
)

type tokenResponse struct {
	Token string `json:"token"`
	URL   string `json:"url"`
}

// handleToken is the core request flow: validate input, guard configuration,
// provision the room best-effort, issue the credential.
// GET /v1/token?room=<name>&username=<identity>
func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer func() { s.metrics.ObserveRequestDuration(time.Since(start)) }()
	logger := zerolog.Ctx(r.Context())

	// Configuration is guarded first: with an incomplete credential triple
	// every request fails the same way, whatever its parameters look like.
	creds := s.creds()
	if err := creds.Validate(); err != nil {
		logger.Error().Err(err).Msg("server credentials incomplete")
		s.metrics.TokenRequests.WithLabelValues("config_missing").Inc()
		respondError(w, http.StatusInternalServerError, "Server misconfigured")
		return
	}

	room := strings.TrimSpace(r.URL.Query().Get("room"))
	username := strings.TrimSpace(r.URL.Query().Get("username"))
	if room == "" || username == "" {
		// Rejected before any side effect: no room is created and no token
		// is minted for a malformed request.
		s.metrics.TokenRequests.WithLabelValues("invalid_request").Inc()
		respondError(w, http.StatusBadRequest, "Missing room or username")
		return
	}

	// Best-effort provisioning: a failure here is most commonly a duplicate
	// creation race, and a token for a pre-existing room is still valid, so
	// issuance proceeds on every outcome. Classes are recorded so a backend
	// outage stays visible server-side.
	outcome, err := s.provisioner.EnsureRoom(r.Context(), creds, room, username)
	s.metrics.ProvisionResults.WithLabelValues(string(outcome)).Inc()
	if err != nil {
		logger.Warn().Err(err).
			Str("room", room).
			Str("outcome", string(outcome)).
			Msg("room provisioning failed, issuing anyway")
	}

	token, err := auth.NewIssuer(creds.APIKey, creds.APISecret).Issue(username, room)
	if err != nil {
		logger.Error().Err(err).Msg("token signing failed")
		s.metrics.TokenRequests.WithLabelValues("signing_failed").Inc()
		respondError(w, http.StatusInternalServerError, "Token generation failed")
		return
	}

	s.registry.Track(room, username)
	s.metrics.TokenRequests.WithLabelValues("ok").Inc()
	s.metrics.TokensIssued.Inc()
	logger.Info().
		Str("room", room).
		Str("identity", username).
		Str("outcome", string(outcome)).
		Msg("token issued")

	respondJSON(w, http.StatusOK, tokenResponse{Token: token, URL: creds.URL})
}
