// Package auth provides cookie-session authentication backed by the user
// store.
package auth

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
)

// SessionCookieName carries the opaque session token.
const SessionCookieName = "opsbridge_session"

// sessionTTL bounds how long an idle login stays valid.
const sessionTTL = 12 * time.Hour

type contextKey int

const loginKey contextKey = iota

// LoginFromContext extracts the authenticated login from the request
// context, "" when unauthenticated.
func LoginFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(loginKey).(string); ok {
		return v
	}
	return ""
}

type session struct {
	login     string
	expiresAt time.Time
}

// Sessions is an in-memory token-to-login table. Tokens do not survive a
// restart; users simply log in again.
type Sessions struct {
	mu     sync.Mutex
	tokens map[string]session
}

// NewSessions creates an empty session table.
func NewSessions() *Sessions {
	return &Sessions{tokens: make(map[string]session)}
}

// Create registers a new session for the login and returns its token.
func (s *Sessions) Create(login string) string {
	token := uuid.NewString()
	s.mu.Lock()
	s.tokens[token] = session{login: login, expiresAt: time.Now().Add(sessionTTL)}
	s.mu.Unlock()
	return token
}

// Resolve returns the login for a token, "" when unknown or expired.
func (s *Sessions) Resolve(token string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.tokens[token]
	if !ok {
		return ""
	}
	if time.Now().After(sess.expiresAt) {
		delete(s.tokens, token)
		return ""
	}
	return sess.login
}

// Revoke removes a token.
func (s *Sessions) Revoke(token string) {
	s.mu.Lock()
	delete(s.tokens, token)
	s.mu.Unlock()
}

// Middleware resolves the session cookie and injects the login into the
// request context. Requests without a valid session get 401.
func (s *Sessions) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(SessionCookieName)
		if err != nil {
			http.Error(w, `{"error": "unauthorized"}`, http.StatusUnauthorized)
			return
		}
		login := s.Resolve(cookie.Value)
		if login == "" {
			http.Error(w, `{"error": "unauthorized"}`, http.StatusUnauthorized)
			return
		}
		ctx := context.WithValue(r.Context(), loginKey, login)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
