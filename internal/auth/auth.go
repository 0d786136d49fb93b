// Package auth holds the bearer credential and the subject identity derived
// from it. The token is issued by the auth service; this package never
// verifies the signature (that is the gateway's job), it only reads claims.
package auth

import (
	"errors"
	"sync"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNoCredentials is returned when the token or the derived subject is
// missing. Callers must not attempt any network activity in that case.
var ErrNoCredentials = errors.New("auth: no credentials")

// Identity is a read-only snapshot of the current credentials: the bearer
// token plus the subject identifier embedded in it.
type Identity struct {
	Token   string
	Subject string
}

// TokenStore holds the current bearer token. It is safe for concurrent use;
// the token's lifetime is independent of any stream subscription.
type TokenStore struct {
	mu    sync.RWMutex
	token string
}

// NewTokenStore creates a store, optionally seeded with a token.
func NewTokenStore(token string) *TokenStore {
	return &TokenStore{token: token}
}

// SetToken replaces the current token. An empty string clears it.
func (s *TokenStore) SetToken(token string) {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
}

// Clear removes the current token.
func (s *TokenStore) Clear() {
	s.SetToken("")
}

// Token returns the current bearer token, or "" if logged out.
func (s *TokenStore) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// Subject returns the subject identifier derived from the current token, or
// "" if there is no token or no subject claim.
func (s *TokenStore) Subject() string {
	return SubjectFromToken(s.Token())
}

// Identity returns the current token and subject, or ErrNoCredentials if
// either is missing.
func (s *TokenStore) Identity() (Identity, error) {
	token := s.Token()
	subject := SubjectFromToken(token)
	if token == "" || subject == "" {
		return Identity{}, ErrNoCredentials
	}
	return Identity{Token: token, Subject: subject}, nil
}

// SubjectFromToken extracts the subject from a JWT without verifying it.
// The "sub" claim is preferred, with "username" as a fallback.
func SubjectFromToken(token string) string {
	if token == "" {
		return ""
	}

	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return ""
	}

	if sub, err := claims.GetSubject(); err == nil && sub != "" {
		return sub
	}
	if username, ok := claims["username"].(string); ok {
		return username
	}
	return ""
}
