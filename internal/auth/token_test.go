package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	testKey    = "APIabc123"
	testSecret = "super-secret-signing-material"
)

func TestIssueGrantsAndIdentity(t *testing.T) {
	issuer := NewIssuer(testKey, testSecret)

	token, err := issuer.Issue("Alex", "kairos-1700000000-ab12cd")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	claims, err := ParseGrants(token, testSecret)
	if err != nil {
		t.Fatalf("ParseGrants() error = %v", err)
	}
	if claims.Subject != "Alex" {
		t.Fatalf("subject = %q, want %q", claims.Subject, "Alex")
	}
	if claims.Issuer != testKey {
		t.Fatalf("issuer = %q, want %q", claims.Issuer, testKey)
	}
	g := claims.Video
	if g == nil {
		t.Fatalf("token has no video grant")
	}
	if g.Room != "kairos-1700000000-ab12cd" {
		t.Fatalf("grant room = %q, want %q", g.Room, "kairos-1700000000-ab12cd")
	}
	if !g.RoomJoin || !g.CanPublish || !g.CanSubscribe || !g.CanPublishData || !g.Agent {
		t.Fatalf("grant capabilities = %+v, want join/publish/subscribe/data/agent all true", g)
	}
	if g.RoomCreate {
		t.Fatalf("participant token must not carry roomCreate")
	}
}

func TestIssueTTLBoundaries(t *testing.T) {
	issued := time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)
	issuer := NewIssuer(testKey, testSecret).WithClock(func() time.Time { return issued })

	token, err := issuer.Issue("Alex", "kairos-1700000000-ab12cd")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	at := func(offset time.Duration) error {
		_, err := ParseGrants(token, testSecret, jwt.WithTimeFunc(func() time.Time {
			return issued.Add(offset)
		}))
		return err
	}

	if err := at(59 * time.Minute); err != nil {
		t.Fatalf("token invalid at T+59m: %v", err)
	}
	if err := at(61 * time.Minute); !errors.Is(err, jwt.ErrTokenExpired) {
		t.Fatalf("token at T+61m: error = %v, want expired", err)
	}
}

func TestParseGrantsRejectsWrongSecret(t *testing.T) {
	issuer := NewIssuer(testKey, testSecret)
	token, err := issuer.Issue("Alex", "room-a")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if _, err := ParseGrants(token, "other-secret"); err == nil {
		t.Fatalf("ParseGrants() accepted token signed with a different secret")
	}
}

func TestAdminTokenScope(t *testing.T) {
	issuer := NewIssuer(testKey, testSecret)
	token, err := issuer.AdminToken()
	if err != nil {
		t.Fatalf("AdminToken() error = %v", err)
	}
	claims, err := ParseGrants(token, testSecret)
	if err != nil {
		t.Fatalf("ParseGrants() error = %v", err)
	}
	if claims.Video == nil || !claims.Video.RoomCreate {
		t.Fatalf("admin token grant = %+v, want roomCreate", claims.Video)
	}
	if claims.Video.RoomJoin {
		t.Fatalf("admin token must not carry roomJoin")
	}
}

func TestVerifyWebhookRoundTrip(t *testing.T) {
	issuer := NewIssuer(testKey, testSecret)
	body := []byte(`{"event":"room_started","room":{"name":"kairos-1700000000-ab12cd"}}`)

	token, err := issuer.WebhookToken(body)
	if err != nil {
		t.Fatalf("WebhookToken() error = %v", err)
	}

	if _, err := VerifyWebhook(token, body, testSecret); err != nil {
		t.Fatalf("VerifyWebhook() error = %v", err)
	}
	// Bearer prefix also accepted.
	if _, err := VerifyWebhook("Bearer "+token, body, testSecret); err != nil {
		t.Fatalf("VerifyWebhook() with Bearer prefix error = %v", err)
	}
}

func TestVerifyWebhookRejectsTamperedBody(t *testing.T) {
	issuer := NewIssuer(testKey, testSecret)
	body := []byte(`{"event":"room_started"}`)
	token, err := issuer.WebhookToken(body)
	if err != nil {
		t.Fatalf("WebhookToken() error = %v", err)
	}

	if _, err := VerifyWebhook(token, []byte(`{"event":"room_finished"}`), testSecret); !errors.Is(err, ErrDigestInvalid) {
		t.Fatalf("VerifyWebhook() on tampered body = %v, want digest mismatch", err)
	}
}

func TestVerifyWebhookRejectsMissingToken(t *testing.T) {
	if _, err := VerifyWebhook("", nil, testSecret); !errors.Is(err, ErrNoToken) {
		t.Fatalf("VerifyWebhook(\"\") = %v, want ErrNoToken", err)
	}
}
