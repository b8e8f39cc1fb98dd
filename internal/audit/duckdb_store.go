// IncidentGuard - Incident Report Request/Persistence Security Layer
// Copyright 2026 Montfort Systems
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/montfort/incidentguard

package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/montfort/incidentguard/internal/metrics"
	"github.com/montfort/incidentguard/internal/store"
)

// ErrImmutableRecord is returned when the application attempts to update or
// delete an audit row through a unit of work.
var ErrImmutableRecord = errors.New("audit: records are immutable")

// DuckDBStore persists audit records in DuckDB. It implements
// store.Persister for the write path (inside the unit-of-work transaction)
// and exposes Query/Count for the audit search collaborators.
type DuckDBStore struct {
	db *sql.DB
}

// NewDuckDBStore creates a DuckDB-backed audit store.
func NewDuckDBStore(db *sql.DB) *DuckDBStore {
	return &DuckDBStore{db: db}
}

// CreateTable creates the audit_log table and its indexes. Called during
// database initialization.
func (s *DuckDBStore) CreateTable(ctx context.Context) error {
	ddl := `
		CREATE SEQUENCE IF NOT EXISTS audit_log_id_seq;

		CREATE TABLE IF NOT EXISTS audit_log (
			id BIGINT PRIMARY KEY DEFAULT nextval('audit_log_id_seq'),
			action_code VARCHAR(50) NOT NULL,
			related_entity_id INTEGER,
			related_table VARCHAR(50),
			actor_id UUID,
			client_address VARCHAR(45),
			details JSON,
			occurred_at TIMESTAMPTZ NOT NULL DEFAULT current_timestamp
		);

		CREATE INDEX IF NOT EXISTS idx_audit_action_code ON audit_log(action_code);
		CREATE INDEX IF NOT EXISTS idx_audit_related ON audit_log(related_table, related_entity_id);
		CREATE INDEX IF NOT EXISTS idx_audit_occurred_at ON audit_log(occurred_at);
		CREATE INDEX IF NOT EXISTS idx_audit_actor_id ON audit_log(actor_id);
	`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create audit_log table: %w", err)
	}
	return nil
}

// Insert writes one record inside the unit-of-work transaction. The id and
// occurred_at columns are left to the store defaults so ordering is
// consistent with commit order.
func (s *DuckDBStore) Insert(ctx context.Context, tx *sql.Tx, e store.Entity) error {
	rec, ok := e.(*Record)
	if !ok {
		return fmt.Errorf("audit: unexpected entity type %T", e)
	}

	var actorID any
	if rec.ActorID != nil {
		actorID = rec.ActorID.String()
	}
	var details any
	if rec.Details != nil {
		details = string(rec.Details)
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO audit_log (action_code, related_entity_id, related_table, actor_id, client_address, details)
		VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ActionCode,
		nullable(rec.RelatedEntityID),
		nullable(rec.RelatedTable),
		actorID,
		nullable(rec.ClientAddress),
		details,
	)
	if err != nil {
		return fmt.Errorf("insert audit record: %w", err)
	}
	metrics.RecordAuditRecord(rec.ActionCode)
	return nil
}

// Update implements store.Persister. Audit rows are append-only.
func (s *DuckDBStore) Update(ctx context.Context, tx *sql.Tx, e store.Entity, fields map[string]store.FieldChange) error {
	return ErrImmutableRecord
}

// Delete implements store.Persister. Audit rows are append-only.
func (s *DuckDBStore) Delete(ctx context.Context, tx *sql.Tx, e store.Entity) error {
	return ErrImmutableRecord
}

func nullable[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}

// QueryFilter defines filtering options for audit searches.
type QueryFilter struct {
	// ActionCodes filters by action code.
	ActionCodes []string

	// RelatedTable filters by the mutated table name.
	RelatedTable string

	// RelatedEntityID filters by the mutated row id.
	RelatedEntityID *int32

	// ActorID filters by acting principal.
	ActorID *uuid.UUID

	// Start and End bound occurred_at (inclusive start, exclusive end).
	Start *time.Time
	End   *time.Time

	// Limit is the maximum number of results. Defaults to 100.
	Limit int

	// Offset for pagination.
	Offset int
}

// buildWhere assembles the WHERE clause for a filter.
func buildWhere(filter QueryFilter) (string, []any) {
	var conds []string
	var args []any

	if len(filter.ActionCodes) > 0 {
		placeholders := make([]string, len(filter.ActionCodes))
		for i, code := range filter.ActionCodes {
			placeholders[i] = "?"
			args = append(args, code)
		}
		conds = append(conds, fmt.Sprintf("action_code IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.RelatedTable != "" {
		conds = append(conds, "related_table = ?")
		args = append(args, filter.RelatedTable)
	}
	if filter.RelatedEntityID != nil {
		conds = append(conds, "related_entity_id = ?")
		args = append(args, *filter.RelatedEntityID)
	}
	if filter.ActorID != nil {
		conds = append(conds, "actor_id = ?")
		args = append(args, filter.ActorID.String())
	}
	if filter.Start != nil {
		conds = append(conds, "occurred_at >= ?")
		args = append(args, *filter.Start)
	}
	if filter.End != nil {
		conds = append(conds, "occurred_at < ?")
		args = append(args, *filter.End)
	}

	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// Query retrieves records matching the filter, newest first.
func (s *DuckDBStore) Query(ctx context.Context, filter QueryFilter) ([]Record, error) {
	where, args := buildWhere(filter)

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit, filter.Offset)

	query := `
		SELECT id, action_code, related_entity_id, related_table, actor_id, client_address, details, occurred_at
		FROM audit_log` + where + `
		ORDER BY occurred_at DESC, id DESC
		LIMIT ? OFFSET ?`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit records: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit records: %w", err)
	}
	return records, nil
}

// Count returns the number of records matching the filter.
func (s *DuckDBStore) Count(ctx context.Context, filter QueryFilter) (int64, error) {
	where, args := buildWhere(filter)

	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM audit_log"+where, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count audit records: %w", err)
	}
	return count, nil
}

// DeleteOlderThan removes records older than the cutoff. Operational
// retention only; never called from request paths.
func (s *DuckDBStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, "DELETE FROM audit_log WHERE occurred_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete audit records: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

func scanRecord(rows *sql.Rows) (Record, error) {
	var rec Record
	var relatedEntityID sql.NullInt32
	var relatedTable, actorID, clientAddress, details sql.NullString

	if err := rows.Scan(
		&rec.ID,
		&rec.ActionCode,
		&relatedEntityID,
		&relatedTable,
		&actorID,
		&clientAddress,
		&details,
		&rec.OccurredAt,
	); err != nil {
		return Record{}, fmt.Errorf("scan audit record: %w", err)
	}

	if relatedEntityID.Valid {
		id := relatedEntityID.Int32
		rec.RelatedEntityID = &id
	}
	if relatedTable.Valid {
		rec.RelatedTable = &relatedTable.String
	}
	if actorID.Valid {
		if parsed, err := uuid.Parse(actorID.String); err == nil {
			rec.ActorID = &parsed
		}
	}
	if clientAddress.Valid {
		rec.ClientAddress = &clientAddress.String
	}
	if details.Valid && details.String != "" {
		rec.Details = []byte(details.String)
	}
	return rec, nil
}
