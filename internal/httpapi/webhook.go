package httpapi

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/kairoshq/kairos-gateway/internal/auth"
)

const maxWebhookBody = 1 << 20

type webhookEvent struct {
	Event       string              `json:"event"`
	Room        *webhookRoom        `json:"room,omitempty"`
	Participant *webhookParticipant `json:"participant,omitempty"`
}

type webhookRoom struct {
	Name string `json:"name"`
}

type webhookParticipant struct {
	Identity string `json:"identity"`
}

// handleWebhook receives room lifecycle events from the backend. Deliveries
// are authenticated by a signed token whose sha256 claim covers the body.
// POST /v1/webhooks/livekit
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	logger := zerolog.Ctx(r.Context())

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		respondError(w, http.StatusBadRequest, "unreadable body")
		return
	}

	creds := s.creds()
	if err := creds.Validate(); err != nil {
		logger.Error().Err(err).Msg("server credentials incomplete")
		respondError(w, http.StatusInternalServerError, "Server misconfigured")
		return
	}

	if _, err := auth.VerifyWebhook(r.Header.Get("Authorization"), body, creds.APISecret); err != nil {
		logger.Warn().Err(err).Msg("webhook rejected")
		s.metrics.WebhookRejected.Inc()
		respondError(w, http.StatusUnauthorized, "invalid webhook signature")
		return
	}

	var ev webhookEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		respondError(w, http.StatusBadRequest, "invalid webhook payload")
		return
	}
	roomName := ""
	if ev.Room != nil {
		roomName = ev.Room.Name
	}

	switch ev.Event {
	case "room_started":
		s.registry.MarkStarted(roomName)
	case "room_finished":
		s.registry.MarkFinished(roomName)
	case "participant_joined":
		s.registry.ParticipantJoined(roomName)
	case "participant_left":
		s.registry.ParticipantLeft(roomName)
	default:
		// Egress/ingress and track events are not tracked here.
		logger.Debug().Str("event", ev.Event).Msg("ignoring webhook event")
	}

	s.metrics.WebhookEvents.WithLabelValues(ev.Event).Inc()
	s.metrics.LiveRooms.Set(float64(s.registry.LiveCount()))
	logger.Info().Str("event", ev.Event).Str("room", roomName).Msg("webhook processed")

	respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}
