// Package webhook implements the HTTP surface named an external
// collaborator of the core in spec §1: ingestion, verification,
// anchor-status, and force_anchor (spec §6), following the teacher's
// plain net/http + http.ServeMux style (no framework).
package webhook

import (
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims extends jwt.RegisteredClaims for bearer-token auth in front
// of the ingestion/verification/anchor-status endpoints (spec §6).
type Claims struct {
	jwt.RegisteredClaims
}

// Authenticator validates bearer tokens via HMAC-signed JWTs, matching
// the teacher's TokenManager shape but with a shared secret instead of
// a KeySet, since this surface has a single trusted producer per
// deployment rather than a multi-tenant identity system.
type Authenticator struct {
	secret      []byte
	expectedAud string
}

// NewAuthenticator builds an Authenticator. A nil/empty secret
// disables auth entirely (Server.New builds one this way when given no
// Authenticator).
func NewAuthenticator(secret []byte, expectedAudience string) *Authenticator {
	return &Authenticator{secret: secret, expectedAud: expectedAudience}
}

// Enabled reports whether bearer-token auth is configured.
func (a *Authenticator) Enabled() bool { return len(a.secret) > 0 }

// Middleware wraps next with bearer-token authentication. Requests
// without a valid token receive 401.
func (a *Authenticator) Middleware(next http.HandlerFunc) http.HandlerFunc {
	if !a.Enabled() {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		tokenString, ok := bearerToken(r)
		if !ok {
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}

		claims := &Claims{}
		_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
			return a.secret, nil
		}, jwt.WithValidMethods([]string{"HS256"}))
		if err != nil {
			http.Error(w, "invalid bearer token", http.StatusUnauthorized)
			return
		}
		if a.expectedAud != "" && !claims.RegisteredClaims.Audience.Contains(a.expectedAud) {
			http.Error(w, "token audience mismatch", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

// IssueToken mints a bearer token for test/operator tooling.
func (a *Authenticator) IssueToken(subject string, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		Issuer:    "vcp-auditlog",
	}}
	if a.expectedAud != "" {
		claims.Audience = jwt.ClaimStrings{a.expectedAud}
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(h, prefix) {
		return "", false
	}
	return strings.TrimPrefix(h, prefix), true
}
