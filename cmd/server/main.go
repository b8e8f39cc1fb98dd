// IncidentGuard - Incident Report Request/Persistence Security Layer
// Copyright 2026 Montfort Systems
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/montfort/incidentguard

// Package main is the entry point for the IncidentGuard server.
//
// IncidentGuard is the request/persistence security layer of an incident
// reporting service. Every mutation flows through a unit of work whose
// pre-commit audit interceptor writes the audit trail in the same
// transaction as the business change. All free-text input is sanitized
// before persistence, and sessions are bound to a client fingerprint on
// their first authenticated request.
//
// The server initializes components in the following order:
//
//  1. Configuration: Koanf v2 layered sources (defaults, YAML file, env)
//  2. Database: DuckDB with the reports, users, and audit_log tables
//  3. Audit pipeline: action map, interceptor, and persister registration
//  4. Sessions: BadgerDB-backed store with fingerprint guard
//  5. HTTP server: Chi router under a suture supervision tree
//
// Graceful shutdown on SIGINT/SIGTERM stops accepting connections, waits
// for in-flight requests, then closes the session store and database.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/montfort/incidentguard/internal/api"
	"github.com/montfort/incidentguard/internal/audit"
	"github.com/montfort/incidentguard/internal/config"
	"github.com/montfort/incidentguard/internal/logging"
	"github.com/montfort/incidentguard/internal/models"
	"github.com/montfort/incidentguard/internal/sanitize"
	"github.com/montfort/incidentguard/internal/session"
	"github.com/montfort/incidentguard/internal/store"
	"github.com/montfort/incidentguard/internal/supervisor"
	"github.com/montfort/incidentguard/internal/supervisor/services"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
	})
	logging.Info().Str("environment", cfg.Server.Environment).Msg("starting incidentguard")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Storage.
	st, err := store.Open(store.Config{
		Path:      cfg.Database.Path,
		MaxMemory: cfg.Database.MaxMemory,
		Threads:   cfg.Database.Threads,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to open database")
	}
	defer func() {
		if err := st.Close(); err != nil {
			logging.Error().Err(err).Msg("failed to close database")
		}
	}()

	reports := store.NewReportStore(st.DB())
	users := store.NewUserStore(st.DB())
	auditLog := audit.NewDuckDBStore(st.DB())
	for name, create := range map[string]func(context.Context) error{
		"reports":   reports.CreateTable,
		"users":     users.CreateTable,
		"audit_log": auditLog.CreateTable,
	} {
		if err := create(ctx); err != nil {
			logging.Fatal().Err(err).Str("table", name).Msg("failed to create table")
		}
	}

	if err := seedAdminUser(ctx, users); err != nil {
		logging.Fatal().Err(err).Msg("failed to seed admin user")
	}

	// Audit pipeline. Only mapped entity kinds produce audit rows; every
	// audited kind is registered here, at startup.
	actions := audit.NewActionMap().
		RegisterEntity(models.ReportEntityKind, reportIDAccessor).
		RegisterAction(models.ReportEntityKind, store.MutationCreate, "REPORT_CREATE").
		RegisterAction(models.ReportEntityKind, store.MutationUpdate, "REPORT_UPDATE").
		RegisterAction(models.ReportEntityKind, store.MutationDelete, "REPORT_DELETE")

	st.RegisterPersister(models.ReportEntityKind, reports)
	st.RegisterPersister(audit.EntityKind, auditLog)
	st.RegisterInterceptor(audit.NewInterceptor(actions))

	// Sessions.
	badgerDB, err := session.OpenBadger(cfg.Session.BadgerPath)
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to open session store")
	}
	defer func() {
		if err := badgerDB.Close(); err != nil {
			logging.Error().Err(err).Msg("failed to close session store")
		}
	}()
	sessionStore := session.NewBadgerStore(badgerDB)

	sessions := session.NewMiddleware(sessionStore, &session.MiddlewareConfig{
		CookieName:   cfg.Session.CookieName,
		TTL:          cfg.Session.TTL,
		Sliding:      cfg.Session.Sliding,
		CookiePath:   "/",
		CookieSecure: cfg.Session.CookieSecure,
	})
	security := logging.NewSecurityLogger()
	guard := session.NewFingerprintGuard(sessionStore, sessions, security, cfg.Security.LoginPath,
		session.WithGuardRegisterer(prometheus.DefaultRegisterer))

	// Sanitization.
	engine := sanitize.New(sanitize.DefaultPolicy(),
		sanitize.WithMatchTimeout(cfg.Sanitize.MatchTimeout),
		sanitize.WithRegisterer(prometheus.DefaultRegisterer))

	// HTTP surface.
	handlers := api.NewHandlers(st, reports, users, auditLog, engine, sessions, security,
		cfg.Sanitize.AllowedRedirectHost)
	router := api.NewRouter(handlers, sessions, guard, api.RouterConfig{
		CORSOrigins:    cfg.Security.CORSOrigins,
		LoginRateLimit: cfg.Security.LoginRateLimit,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router.Setup(),
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
		IdleTimeout:  60 * time.Second,
	}

	// Supervision tree.
	tree := supervisor.NewTree(
		slog.New(slog.NewJSONHandler(os.Stderr, nil)),
		supervisor.DefaultTreeConfig(),
	)
	tree.AddMaintenanceService(services.NewSessionCleanupService(sessionStore, time.Hour))
	if cfg.Audit.RetentionDays > 0 {
		retention := time.Duration(cfg.Audit.RetentionDays) * 24 * time.Hour
		tree.AddMaintenanceService(services.NewAuditRetentionService(auditLog, retention, 24*time.Hour))
	}
	tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second))
	logging.Info().Str("addr", server.Addr).Msg("http server service added")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("received shutdown signal")
		cancel()
	}()

	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("context canceled, waiting for services to stop")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("supervisor tree error")
		}
	}

	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("supervisor shutdown error")
		}
	}

	if unstopped, _ := tree.UnstoppedServiceReport(); len(unstopped) > 0 {
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("service failed to stop within timeout")
		}
	}

	logging.Info().Msg("stopped gracefully")
}

// reportIDAccessor extracts the report primary key for the audit trail.
func reportIDAccessor(e store.Entity) (int32, bool) {
	rep, ok := e.(*models.Report)
	if !ok {
		return 0, false
	}
	return rep.ID, true
}

// seedAdminUser creates the initial account from ADMIN_USERNAME and
// ADMIN_PASSWORD. Both unset is fine on an already-provisioned instance;
// only one set is a configuration error.
func seedAdminUser(ctx context.Context, users *store.UserStore) error {
	username := os.Getenv("ADMIN_USERNAME")
	password := os.Getenv("ADMIN_PASSWORD")
	if username == "" && password == "" {
		return nil
	}
	if username == "" || password == "" {
		return errors.New("ADMIN_USERNAME and ADMIN_PASSWORD must both be set")
	}
	if len(password) < 8 {
		return errors.New("ADMIN_PASSWORD must be at least 8 characters")
	}

	user, err := users.EnsureUser(ctx, username, password)
	if err != nil {
		return err
	}
	logging.Info().Str("username", logging.MaskUsername(user.Username)).Msg("admin user ready")
	return nil
}
