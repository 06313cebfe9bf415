package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenTTL is the fixed lifetime of every participant token. It is not
// negotiable per request; tokens self-expire and are never persisted.
const TokenTTL = time.Hour

// adminTokenTTL bounds the short-lived tokens minted for provisioning calls.
const adminTokenTTL = 10 * time.Minute

// VideoGrant is the capability scope embedded in a token. Field names follow
// the wire format the media backend verifies.
type VideoGrant struct {
	Room           string `json:"room,omitempty"`
	RoomJoin       bool   `json:"roomJoin,omitempty"`
	RoomCreate     bool   `json:"roomCreate,omitempty"`
	CanPublish     bool   `json:"canPublish,omitempty"`
	CanSubscribe   bool   `json:"canSubscribe,omitempty"`
	CanPublishData bool   `json:"canPublishData,omitempty"`
	// Agent flags the room for automated-counterpart dispatch: the backend
	// pairs the caller with a server-side assistant participant.
	Agent bool `json:"agent,omitempty"`
}

// Claims is the full claim set of a signed credential. SHA256 is only set on
// webhook tokens, where it carries the digest of the delivered body.
type Claims struct {
	Video  *VideoGrant `json:"video,omitempty"`
	SHA256 string      `json:"sha256,omitempty"`
	jwt.RegisteredClaims
}

var (
	ErrNoToken       = errors.New("auth: no token in authorization header")
	ErrDigestMissing = errors.New("auth: webhook token has no body digest")
	ErrDigestInvalid = errors.New("auth: webhook body digest mismatch")
)

// Issuer mints signed credentials for one API key/secret pair. Issuance is a
// pure function of its inputs and the clock; no record of issued tokens is
// kept.
type Issuer struct {
	apiKey    string
	apiSecret string
	now       func() time.Time
}

func NewIssuer(apiKey, apiSecret string) Issuer {
	return Issuer{apiKey: apiKey, apiSecret: apiSecret, now: time.Now}
}

// WithClock returns a copy of the issuer that reads time from now. Test hook.
func (i Issuer) WithClock(now func() time.Time) Issuer {
	i.now = now
	return i
}

// Issue signs a participant credential binding identity to exactly one room.
// The five capabilities are fixed for every caller: join the requested room,
// publish, subscribe, publish data, and dispatch the automated counterpart.
func (i Issuer) Issue(identity, room string) (string, error) {
	return i.sign(identity, TokenTTL, &VideoGrant{
		Room:           room,
		RoomJoin:       true,
		CanPublish:     true,
		CanSubscribe:   true,
		CanPublishData: true,
		Agent:          true,
	})
}

// AdminToken signs a short-lived credential that authorizes room creation.
// Used by the provisioner to authenticate against the room service.
func (i Issuer) AdminToken() (string, error) {
	return i.sign("kairos-gateway", adminTokenTTL, &VideoGrant{RoomCreate: true})
}

// WebhookToken signs a delivery token for body, the counterpart of
// VerifyWebhook. The room service signs its deliveries the same way.
func (i Issuer) WebhookToken(body []byte) (string, error) {
	now := i.now()
	sum := sha256.Sum256(body)
	claims := &Claims{
		SHA256: base64.StdEncoding.EncodeToString(sum[:]),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.apiKey,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(adminTokenTTL)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(i.apiSecret))
	if err != nil {
		return "", fmt.Errorf("auth: sign webhook token: %w", err)
	}
	return signed, nil
}

func (i Issuer) sign(identity string, ttl time.Duration, grant *VideoGrant) (string, error) {
	now := i.now()
	claims := &Claims{
		Video: grant,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.apiKey,
			Subject:   identity,
			ID:        identity,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(i.apiSecret))
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, nil
}

// ParseGrants validates signature and expiry of a token and returns its
// claims. Extra parser options let tests pin the verification clock.
func ParseGrants(tokenString, apiSecret string, opts ...jwt.ParserOption) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("auth: unexpected signing method %v", t.Header["alg"])
		}
		return []byte(apiSecret), nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, jwt.ErrSignatureInvalid
	}
	return claims, nil
}

// VerifyWebhook authenticates a webhook delivery: the authorization header
// carries a signed token whose sha256 claim must match the delivered body.
func VerifyWebhook(authHeader string, body []byte, apiSecret string) (*Claims, error) {
	tokenString := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(authHeader), "Bearer"))
	if tokenString == "" {
		return nil, ErrNoToken
	}
	claims, err := ParseGrants(tokenString, apiSecret)
	if err != nil {
		return nil, err
	}
	if claims.SHA256 == "" {
		return nil, ErrDigestMissing
	}
	sum := sha256.Sum256(body)
	want := base64.StdEncoding.EncodeToString(sum[:])
	if subtle.ConstantTimeCompare([]byte(want), []byte(claims.SHA256)) != 1 {
		return nil, ErrDigestInvalid
	}
	return claims, nil
}
