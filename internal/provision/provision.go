package provision

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kairoshq/kairos-gateway/internal/auth"
	"github.com/kairoshq/kairos-gateway/internal/config"
)

// Fixed room policy: a room survives ten minutes with zero participants and
// holds exactly two participants, the human caller plus the dispatched agent.
const (
	RoomEmptyTimeoutSeconds = 600
	RoomMaxParticipants     = 2
)

const createRoomPath = "/twirp/livekit.RoomService/CreateRoom"

// Outcome classifies a provisioning attempt. Every outcome proceeds to token
// issuance; the classes exist so logs and metrics can tell a benign
// duplicate-creation race from a backend that is actually down.
type Outcome string

const (
	OutcomeCreated       Outcome = "created"
	OutcomeAlreadyExists Outcome = "already_exists"
	OutcomeTransient     Outcome = "transient"
	OutcomeDenied        Outcome = "denied"
)

// Fatal reports whether the outcome would have blocked issuance under a
// strict policy. The gateway keeps the lenient policy and only records it.
func (o Outcome) Fatal() bool {
	return o == OutcomeTransient || o == OutcomeDenied
}

// Client ensures rooms exist on the external room service. It holds no state
// beyond an HTTP client; concurrent requests for the same room race freely
// and the backend's create-or-conflict semantics decide the winner.
type Client struct {
	http *http.Client
}

func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{http: &http.Client{Timeout: timeout}}
}

type createRoomRequest struct {
	Name            string `json:"name"`
	EmptyTimeout    uint32 `json:"empty_timeout"`
	MaxParticipants uint32 `json:"max_participants"`
	Metadata        string `json:"metadata,omitempty"`
}

type roomMetadata struct {
	CreatedBy string `json:"created_by"`
	CreatedAt string `json:"created_at"`
}

type twirpError struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}

// EnsureRoom attempts to create name with the fixed policy, recording the
// requesting identity in the room metadata. Creation is best-effort: the
// returned error is diagnostic only and never blocks issuance.
func (c *Client) EnsureRoom(ctx context.Context, creds config.LiveKit, name, requestedBy string) (Outcome, error) {
	meta, err := json.Marshal(roomMetadata{
		CreatedBy: requestedBy,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return OutcomeTransient, fmt.Errorf("provision: encode metadata: %w", err)
	}
	body, err := json.Marshal(createRoomRequest{
		Name:            name,
		EmptyTimeout:    RoomEmptyTimeoutSeconds,
		MaxParticipants: RoomMaxParticipants,
		Metadata:        string(meta),
	})
	if err != nil {
		return OutcomeTransient, fmt.Errorf("provision: encode request: %w", err)
	}

	adminToken, err := auth.NewIssuer(creds.APIKey, creds.APISecret).AdminToken()
	if err != nil {
		return OutcomeTransient, fmt.Errorf("provision: admin token: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL(creds.URL)+createRoomPath, bytes.NewReader(body))
	if err != nil {
		return OutcomeTransient, fmt.Errorf("provision: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+adminToken)

	res, err := c.http.Do(req)
	if err != nil {
		return OutcomeTransient, fmt.Errorf("provision: create room %q: %w", name, err)
	}
	defer res.Body.Close()

	if res.StatusCode < 300 {
		return OutcomeCreated, nil
	}

	payload, _ := io.ReadAll(io.LimitReader(res.Body, 8<<10))
	var terr twirpError
	_ = json.Unmarshal(payload, &terr)

	switch {
	case res.StatusCode == http.StatusConflict || terr.Code == "already_exists":
		// Benign duplicate-creation race; the room is usable as-is.
		return OutcomeAlreadyExists, nil
	case res.StatusCode == http.StatusUnauthorized || res.StatusCode == http.StatusForbidden ||
		terr.Code == "unauthenticated" || terr.Code == "permission_denied":
		return OutcomeDenied, fmt.Errorf("provision: create room %q denied: %s %s", name, res.Status, terr.Msg)
	default:
		return OutcomeTransient, fmt.Errorf("provision: create room %q failed: %s %s", name, res.Status, terr.Msg)
	}
}

// apiURL maps the client-facing connect endpoint onto the HTTP API origin.
func apiURL(endpoint string) string {
	endpoint = strings.TrimSuffix(endpoint, "/")
	switch {
	case strings.HasPrefix(endpoint, "wss://"):
		return "https://" + strings.TrimPrefix(endpoint, "wss://")
	case strings.HasPrefix(endpoint, "ws://"):
		return "http://" + strings.TrimPrefix(endpoint, "ws://")
	default:
		return endpoint
	}
}
