// IncidentGuard - Incident Report Request/Persistence Security Layer
// Copyright 2026 Montfort Systems
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/montfort/incidentguard

package session

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/montfort/incidentguard/internal/logging"
	"github.com/montfort/incidentguard/internal/metrics"
)

type contextKey string

const sessionContextKey contextKey = "session"

// FromContext returns the authenticated session, or nil.
func FromContext(ctx context.Context) *Session {
	if s, ok := ctx.Value(sessionContextKey).(*Session); ok {
		return s
	}
	return nil
}

// ContextWith returns a context carrying the session.
func ContextWith(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionContextKey, s)
}

// MiddlewareConfig holds configuration for the session middleware.
type MiddlewareConfig struct {
	// CookieName is the name of the session cookie.
	CookieName string

	// TTL is the session time-to-live.
	TTL time.Duration

	// Sliding extends expiry on each authenticated request.
	Sliding bool

	// CookiePath is the path for the session cookie.
	CookiePath string

	// CookieSecure sets the Secure flag on the cookie.
	CookieSecure bool
}

// DefaultMiddlewareConfig returns sensible defaults.
func DefaultMiddlewareConfig() *MiddlewareConfig {
	return &MiddlewareConfig{
		CookieName:   "incidentguard_session",
		TTL:          24 * time.Hour,
		Sliding:      true,
		CookiePath:   "/",
		CookieSecure: true,
	}
}

// Middleware resolves the session cookie and injects the session into the
// request context. Requests without a valid session continue
// unauthenticated; use RequireAuth for protected routes.
type Middleware struct {
	store  Store
	config *MiddlewareConfig
}

// NewMiddleware creates a session middleware.
func NewMiddleware(store Store, config *MiddlewareConfig) *Middleware {
	if config == nil {
		config = DefaultMiddlewareConfig()
	}
	return &Middleware{store: store, config: config}
}

// Authenticate extracts and validates the session from the request cookie.
func (m *Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sessionID := m.extractSessionID(r)
		if sessionID == "" {
			next.ServeHTTP(w, r)
			return
		}

		sess, err := m.store.Get(r.Context(), sessionID)
		if err != nil {
			if !errors.Is(err, ErrNotFound) && !errors.Is(err, ErrExpired) {
				logging.Error().Err(err).Msg("session lookup error")
			}
			next.ServeHTTP(w, r)
			return
		}

		if m.config.Sliding {
			newExpiry := time.Now().Add(m.config.TTL)
			if touchErr := m.store.Touch(r.Context(), sessionID, newExpiry); touchErr != nil {
				logging.Error().Err(touchErr).Msg("failed to touch session")
			}
		}

		next.ServeHTTP(w, r.WithContext(ContextWith(r.Context(), sess)))
	})
}

// RequireAuth rejects requests without a valid session with 401.
func (m *Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if FromContext(r.Context()) == nil {
			http.Error(w, "Unauthorized: authentication required", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// extractSessionID extracts the session ID from the request cookie.
func (m *Middleware) extractSessionID(r *http.Request) string {
	cookie, err := r.Cookie(m.config.CookieName)
	if err == nil && cookie.Value != "" {
		return cookie.Value
	}
	return ""
}

// SetSessionCookie sets the session cookie on the response.
func (m *Middleware) SetSessionCookie(w http.ResponseWriter, sessionID string) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.config.CookieName,
		Value:    sessionID,
		Path:     m.config.CookiePath,
		MaxAge:   int(m.config.TTL.Seconds()),
		Secure:   m.config.CookieSecure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearSessionCookie clears the session cookie.
func (m *Middleware) ClearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.config.CookieName,
		Value:    "",
		Path:     m.config.CookiePath,
		MaxAge:   -1,
		Secure:   m.config.CookieSecure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// CreateSession creates a fresh session for the principal and sets the
// cookie. Any session presented by the request is deleted first, so a
// pre-authentication session ID can never be fixated onto the new identity.
func (m *Middleware) CreateSession(ctx context.Context, w http.ResponseWriter, r *http.Request, userID, username string) (*Session, error) {
	if oldID := m.extractSessionID(r); oldID != "" {
		//nolint:errcheck // non-critical cleanup
		m.store.Delete(ctx, oldID)
	}

	sess := New(userID, username, m.config.TTL)
	if err := m.store.Create(ctx, sess); err != nil {
		return nil, err
	}
	metrics.SessionsCreated.Inc()
	metrics.SessionsActive.Inc()

	m.SetSessionCookie(w, sess.ID)
	return sess, nil
}

// DestroySession deletes the session and clears the cookie.
func (m *Middleware) DestroySession(ctx context.Context, w http.ResponseWriter, sessionID string) error {
	if err := m.store.Delete(ctx, sessionID); err != nil {
		return err
	}
	metrics.SessionsActive.Dec()
	m.ClearSessionCookie(w)
	return nil
}

// CookieName returns the configured cookie name.
func (m *Middleware) CookieName() string {
	return m.config.CookieName
}
