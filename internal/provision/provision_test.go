package provision

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kairoshq/kairos-gateway/internal/auth"
	"github.com/kairoshq/kairos-gateway/internal/config"
)

const (
	testKey    = "APIabc123"
	testSecret = "super-secret-signing-material"
)

func credsFor(ts *httptest.Server) config.LiveKit {
	return config.LiveKit{APIKey: testKey, APISecret: testSecret, URL: ts.URL}
}

func TestEnsureRoomSendsFixedPolicy(t *testing.T) {
	var got createRoomRequest
	var gotPath, gotAuth string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &got); err != nil {
			t.Errorf("backend received invalid JSON: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"sid":"RM_x","name":"` + got.Name + `"}`))
	}))
	defer ts.Close()

	client := NewClient(time.Second)
	outcome, err := client.EnsureRoom(context.Background(), credsFor(ts), "kairos-1700000000-ab12cd", "Alex")
	if err != nil {
		t.Fatalf("EnsureRoom() error = %v", err)
	}
	if outcome != OutcomeCreated {
		t.Fatalf("outcome = %q, want %q", outcome, OutcomeCreated)
	}
	if gotPath != createRoomPath {
		t.Fatalf("backend path = %q, want %q", gotPath, createRoomPath)
	}
	if got.Name != "kairos-1700000000-ab12cd" {
		t.Fatalf("room name = %q", got.Name)
	}
	if got.EmptyTimeout != RoomEmptyTimeoutSeconds {
		t.Fatalf("empty_timeout = %d, want %d", got.EmptyTimeout, RoomEmptyTimeoutSeconds)
	}
	if got.MaxParticipants != RoomMaxParticipants {
		t.Fatalf("max_participants = %d, want %d", got.MaxParticipants, RoomMaxParticipants)
	}

	var meta roomMetadata
	if err := json.Unmarshal([]byte(got.Metadata), &meta); err != nil {
		t.Fatalf("metadata is not JSON: %v", err)
	}
	if meta.CreatedBy != "Alex" {
		t.Fatalf("metadata created_by = %q, want %q", meta.CreatedBy, "Alex")
	}

	// The call authenticates with a roomCreate-scoped admin token.
	tokenString := strings.TrimPrefix(gotAuth, "Bearer ")
	if tokenString == gotAuth {
		t.Fatalf("authorization header = %q, want Bearer token", gotAuth)
	}
	claims, err := auth.ParseGrants(tokenString, testSecret)
	if err != nil {
		t.Fatalf("admin token invalid: %v", err)
	}
	if claims.Video == nil || !claims.Video.RoomCreate {
		t.Fatalf("admin token grant = %+v, want roomCreate", claims.Video)
	}
}

func TestEnsureRoomAlreadyExistsIsBenign(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"code":"already_exists","msg":"room already exists"}`))
	}))
	defer ts.Close()

	client := NewClient(time.Second)
	outcome, err := client.EnsureRoom(context.Background(), credsFor(ts), "kairos-1700000000-ab12cd", "Sam")
	if err != nil {
		t.Fatalf("EnsureRoom() error = %v, duplicate creation must not error", err)
	}
	if outcome != OutcomeAlreadyExists {
		t.Fatalf("outcome = %q, want %q", outcome, OutcomeAlreadyExists)
	}
	if outcome.Fatal() {
		t.Fatalf("already_exists classified as fatal")
	}
}

func TestEnsureRoomDeniedClassification(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"code":"unauthenticated","msg":"invalid API key"}`))
	}))
	defer ts.Close()

	client := NewClient(time.Second)
	outcome, err := client.EnsureRoom(context.Background(), credsFor(ts), "room", "Alex")
	if outcome != OutcomeDenied {
		t.Fatalf("outcome = %q, want %q", outcome, OutcomeDenied)
	}
	if err == nil {
		t.Fatalf("denied outcome should carry a diagnostic error")
	}
}

func TestEnsureRoomUnreachableBackend(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	ts.Close() // nothing listening anymore

	client := NewClient(time.Second)
	outcome, err := client.EnsureRoom(context.Background(), credsFor(ts), "room", "Alex")
	if outcome != OutcomeTransient {
		t.Fatalf("outcome = %q, want %q", outcome, OutcomeTransient)
	}
	if err == nil {
		t.Fatalf("unreachable backend should carry a diagnostic error")
	}
}

func TestEnsureRoomHonorsTimeout(t *testing.T) {
	release := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer func() {
		close(release)
		ts.Close()
	}()

	client := NewClient(50 * time.Millisecond)
	start := time.Now()
	outcome, err := client.EnsureRoom(context.Background(), credsFor(ts), "room", "Alex")
	if outcome != OutcomeTransient || err == nil {
		t.Fatalf("outcome = %q, err = %v; want transient with error", outcome, err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("EnsureRoom() took %v, timeout not honored", elapsed)
	}
}

func TestAPIURLRewrite(t *testing.T) {
	cases := []struct{ in, want string }{
		{"wss://kairos.example.com", "https://kairos.example.com"},
		{"ws://localhost:7880", "http://localhost:7880"},
		{"https://kairos.example.com/", "https://kairos.example.com"},
		{"http://localhost:7880", "http://localhost:7880"},
	}
	for _, tc := range cases {
		if got := apiURL(tc.in); got != tc.want {
			t.Fatalf("apiURL(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
