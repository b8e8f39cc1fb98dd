// IncidentGuard - Incident Report Request/Persistence Security Layer
// Copyright 2026 Montfort Systems
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/montfort/incidentguard

package services

import (
	"context"
	"time"

	"github.com/montfort/incidentguard/internal/audit"
	"github.com/montfort/incidentguard/internal/logging"
	"github.com/montfort/incidentguard/internal/metrics"
	"github.com/montfort/incidentguard/internal/session"
)

// SessionCleanupService periodically removes expired sessions from the
// session store.
type SessionCleanupService struct {
	store    session.Store
	interval time.Duration
}

// NewSessionCleanupService creates the cleanup job.
func NewSessionCleanupService(store session.Store, interval time.Duration) *SessionCleanupService {
	if interval <= 0 {
		interval = time.Hour
	}
	return &SessionCleanupService{store: store, interval: interval}
}

// Serve implements suture.Service.
func (s *SessionCleanupService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			n, err := s.store.CleanupExpired(ctx)
			if err != nil {
				logging.Error().Err(err).Msg("session cleanup failed")
				continue
			}
			if n > 0 {
				metrics.SessionsActive.Sub(float64(n))
				logging.Debug().Int("removed", n).Msg("expired sessions cleaned up")
			}
		}
	}
}

// String implements fmt.Stringer for supervisor logging.
func (s *SessionCleanupService) String() string {
	return "session-cleanup"
}

// AuditRetentionService prunes audit records older than the retention
// window. A zero retention disables pruning; callers should not add the
// service in that case.
type AuditRetentionService struct {
	store     *audit.DuckDBStore
	retention time.Duration
	interval  time.Duration
}

// NewAuditRetentionService creates the retention job. retention is how
// long records are kept; the sweep runs once per interval.
func NewAuditRetentionService(store *audit.DuckDBStore, retention, interval time.Duration) *AuditRetentionService {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	return &AuditRetentionService{store: store, retention: retention, interval: interval}
}

// Serve implements suture.Service.
func (s *AuditRetentionService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			cutoff := time.Now().Add(-s.retention)
			n, err := s.store.DeleteOlderThan(ctx, cutoff)
			if err != nil {
				logging.Error().Err(err).Msg("audit retention sweep failed")
				continue
			}
			if n > 0 {
				logging.Info().Int64("removed", n).Time("cutoff", cutoff).Msg("audit records pruned")
			}
		}
	}
}

// String implements fmt.Stringer for supervisor logging.
func (s *AuditRetentionService) String() string {
	return "audit-retention"
}
