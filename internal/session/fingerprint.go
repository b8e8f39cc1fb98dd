// IncidentGuard - Incident Report Request/Persistence Security Layer
// Copyright 2026 Montfort Systems
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/montfort/incidentguard

package session

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/montfort/incidentguard/internal/logging"
	"github.com/montfort/incidentguard/internal/metrics"
)

// Signature computes the client signature for fingerprint binding: the
// User-Agent header exactly as presented.
//
// An exact string match on a client-presented value is a defense-in-depth
// signal only. An attacker who steals the session cookie and copies the
// header replays it trivially, so the guard must never be the sole
// session-integrity control.
func Signature(r *http.Request) string {
	return r.UserAgent()
}

// FingerprintGuard binds each session to the client signature seen on its
// first authenticated request and forces sign-out when the signature changes
// mid-session. Per session the guard is a two-state machine: unbound until
// the first authenticated request, bound and compare-only afterwards.
type FingerprintGuard struct {
	store      Store
	middleware *Middleware
	security   *logging.SecurityLogger
	loginPath  string
	mismatches prometheus.Counter
}

// GuardOption configures a FingerprintGuard.
type GuardOption func(*FingerprintGuard)

// WithGuardRegisterer registers the guard's metrics with the given registerer.
func WithGuardRegisterer(reg prometheus.Registerer) GuardOption {
	return func(g *FingerprintGuard) {
		reg.MustRegister(g.mismatches)
	}
}

// NewFingerprintGuard creates the guard. loginPath is where mismatching
// callers are redirected to re-authenticate.
func NewFingerprintGuard(store Store, middleware *Middleware, security *logging.SecurityLogger, loginPath string, opts ...GuardOption) *FingerprintGuard {
	g := &FingerprintGuard{
		store:      store,
		middleware: middleware,
		security:   security,
		loginPath:  loginPath,
		mismatches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "incidentguard_session_fingerprint_mismatches_total",
			Help: "Authenticated requests whose client signature no longer matched the bound fingerprint.",
		}),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Guard is the middleware. It must run after the session middleware.
// Unauthenticated requests pass through untouched. A mismatch terminates
// the session, clears the cookie, logs a security event, and redirects to
// the login path; the protected handler is never reached and no error
// surfaces to the caller.
func (g *FingerprintGuard) Guard(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := FromContext(r.Context())
		if sess == nil || sess.UserID == "" {
			next.ServeHTTP(w, r)
			return
		}

		signature := Signature(r)

		if sess.Fingerprint == "" {
			// Empty signatures never bind; the session stays unbound until
			// the client presents one.
			if signature == "" {
				next.ServeHTTP(w, r)
				return
			}

			// Unbound: bind the signature observed now, exactly once.
			if err := g.store.SetFingerprint(r.Context(), sess.ID, signature); err != nil {
				// A concurrent request on the same session may have won the
				// bind; the next request compares against the stored value.
				logging.Ctx(r.Context()).Warn().Err(err).Msg("fingerprint bind failed")
			} else {
				g.security.LogSessionBound(sess.UserID, sess.ID, clientIP(r), signature)
			}
			next.ServeHTTP(w, r)
			return
		}

		// Bound: exact, case-sensitive comparison.
		if sess.Fingerprint == signature {
			next.ServeHTTP(w, r)
			return
		}

		g.mismatches.Inc()
		g.security.LogFingerprintMismatch(sess.UserID, sess.ID, clientIP(r), signature)

		// Forced sign-out. Store errors are logged, not surfaced; the
		// caller is redirected either way and never reaches the handler.
		if err := g.store.Delete(r.Context(), sess.ID); err != nil {
			logging.Ctx(r.Context()).Error().Err(err).Msg("forced sign-out failed")
		} else {
			metrics.SessionsActive.Dec()
		}
		g.middleware.ClearSessionCookie(w)

		http.Redirect(w, r, g.loginPath, http.StatusSeeOther)
	})
}

// clientIP extracts the client address, trusting forwarding headers the way
// the rest of the pipeline does.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return xff
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}
