// IncidentGuard - Incident Report Request/Persistence Security Layer
// Copyright 2026 Montfort Systems
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/montfort/incidentguard

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/montfort/incidentguard/internal/metrics"
	"github.com/montfort/incidentguard/internal/middleware"
	"github.com/montfort/incidentguard/internal/session"
)

// RouterConfig holds the routing-relevant settings.
type RouterConfig struct {
	CORSOrigins    []string
	LoginRateLimit int
}

// Router assembles the HTTP routes and middleware stack.
type Router struct {
	handlers *Handlers
	sessions *session.Middleware
	guard    *session.FingerprintGuard
	config   RouterConfig
}

// NewRouter creates the router.
func NewRouter(handlers *Handlers, sessions *session.Middleware, guard *session.FingerprintGuard, config RouterConfig) *Router {
	if config.LoginRateLimit < 1 {
		config.LoginRateLimit = 10
	}
	return &Router{
		handlers: handlers,
		sessions: sessions,
		guard:    guard,
		config:   config,
	}
}

// Setup builds the full handler tree.
func (rt *Router) Setup() http.Handler {
	r := chi.NewRouter()

	// Global middleware, applied to every route in order.
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	if len(rt.config.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   rt.config.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}
	r.Use(middleware.Compression)

	r.Get("/api/v1/health", rt.handlers.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1/auth", func(r chi.Router) {
		r.Use(middleware.PrometheusMetrics)

		// Brute force protection on login, keyed by client IP.
		loginLimit := httprate.Limit(
			rt.config.LoginRateLimit,
			time.Minute,
			httprate.WithKeyFuncs(httprate.KeyByIP),
			httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
				metrics.RecordRateLimitHit("/api/v1/auth/login")
				respondError(w, r, http.StatusTooManyRequests, "RATE_LIMITED", "Too many login attempts", nil)
			}),
		)
		r.With(loginLimit).Post("/login", rt.handlers.Login)

		r.Group(func(r chi.Router) {
			r.Use(rt.sessions.Authenticate)
			r.Use(rt.guard.Guard)
			r.Post("/logout", rt.handlers.Logout)
		})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.PrometheusMetrics)
		r.Use(rt.sessions.Authenticate)
		r.Use(rt.guard.Guard)
		r.Use(rt.sessions.RequireAuth)

		r.Route("/reports", func(r chi.Router) {
			r.Get("/", rt.handlers.ListReports)
			r.Post("/", rt.handlers.CreateReport)
			r.Get("/{id}", rt.handlers.GetReport)
			r.Put("/{id}", rt.handlers.UpdateReport)
			r.Delete("/{id}", rt.handlers.DeleteReport)
		})

		r.Get("/audit", rt.handlers.ListAudit)
	})

	return r
}
