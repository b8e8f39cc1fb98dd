// IncidentGuard - Incident Report Request/Persistence Security Layer
// Copyright 2026 Montfort Systems
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/montfort/incidentguard

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/montfort/incidentguard/internal/metrics"
	"github.com/montfort/incidentguard/internal/models"
)

// ErrReportNotFound is returned when a report does not exist.
var ErrReportNotFound = errors.New("store: report not found")

// ReportStore persists incident reports in DuckDB. It implements Persister
// for the unit-of-work write path and exposes read methods for the API.
type ReportStore struct {
	db *sql.DB
}

// NewReportStore creates a DuckDB-backed report store.
func NewReportStore(db *sql.DB) *ReportStore {
	return &ReportStore{db: db}
}

// CreateTable creates the reports table. Called during database
// initialization.
func (s *ReportStore) CreateTable(ctx context.Context) error {
	ddl := `
		CREATE SEQUENCE IF NOT EXISTS reports_id_seq;

		CREATE TABLE IF NOT EXISTS reports (
			id INTEGER PRIMARY KEY,
			title VARCHAR NOT NULL,
			description VARCHAR NOT NULL,
			severity VARCHAR(20) NOT NULL,
			status VARCHAR(20) NOT NULL DEFAULT 'open',
			attachment_name VARCHAR(255),
			source_url VARCHAR,
			reporter_email VARCHAR,
			created_by UUID,
			created_at TIMESTAMPTZ NOT NULL DEFAULT current_timestamp,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT current_timestamp
		);

		CREATE INDEX IF NOT EXISTS idx_reports_status ON reports(status);
		CREATE INDEX IF NOT EXISTS idx_reports_created_at ON reports(created_at);
	`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create reports table: %w", err)
	}
	return nil
}

// NextID reserves the next report ID. IDs are assigned before staging so
// the change pipeline can reference the entity ID ahead of the flush.
func (s *ReportStore) NextID(ctx context.Context) (int32, error) {
	var id int32
	err := s.db.QueryRowContext(ctx, `SELECT nextval('reports_id_seq')`).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("reserve report id: %w", err)
	}
	return id, nil
}

// Insert writes a report inside the unit-of-work transaction.
func (s *ReportStore) Insert(ctx context.Context, tx *sql.Tx, e Entity) error {
	rep, ok := e.(*models.Report)
	if !ok {
		return fmt.Errorf("store: unexpected entity type %T", e)
	}

	start := time.Now()
	var createdBy any
	if rep.CreatedBy != nil {
		createdBy = rep.CreatedBy.String()
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO reports (id, title, description, severity, status, attachment_name, source_url, reporter_email, created_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rep.ID,
		rep.Title,
		rep.Description,
		rep.Severity,
		rep.Status,
		emptyToNull(rep.AttachmentName),
		emptyToNull(rep.SourceURL),
		emptyToNull(rep.ReporterEmail),
		createdBy,
	)
	metrics.RecordDBQuery("insert", models.ReportTable, time.Since(start), err)
	if err != nil {
		return fmt.Errorf("insert report: %w", err)
	}
	return nil
}

// Update rewrites the mutable columns of a report inside the unit-of-work
// transaction. The staged entity already carries the new values; fields is
// used by the change pipeline, not here.
func (s *ReportStore) Update(ctx context.Context, tx *sql.Tx, e Entity, fields map[string]FieldChange) error {
	rep, ok := e.(*models.Report)
	if !ok {
		return fmt.Errorf("store: unexpected entity type %T", e)
	}

	start := time.Now()
	res, err := tx.ExecContext(ctx, `
		UPDATE reports
		SET title = ?, description = ?, severity = ?, status = ?,
		    attachment_name = ?, source_url = ?, reporter_email = ?,
		    updated_at = current_timestamp
		WHERE id = ?`,
		rep.Title,
		rep.Description,
		rep.Severity,
		rep.Status,
		emptyToNull(rep.AttachmentName),
		emptyToNull(rep.SourceURL),
		emptyToNull(rep.ReporterEmail),
		rep.ID,
	)
	metrics.RecordDBQuery("update", models.ReportTable, time.Since(start), err)
	if err != nil {
		return fmt.Errorf("update report %d: %w", rep.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update report %d: %w", rep.ID, ErrReportNotFound)
	}
	return nil
}

// Delete removes a report inside the unit-of-work transaction.
func (s *ReportStore) Delete(ctx context.Context, tx *sql.Tx, e Entity) error {
	rep, ok := e.(*models.Report)
	if !ok {
		return fmt.Errorf("store: unexpected entity type %T", e)
	}

	start := time.Now()
	res, err := tx.ExecContext(ctx, `DELETE FROM reports WHERE id = ?`, rep.ID)
	metrics.RecordDBQuery("delete", models.ReportTable, time.Since(start), err)
	if err != nil {
		return fmt.Errorf("delete report %d: %w", rep.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("delete report %d: %w", rep.ID, ErrReportNotFound)
	}
	return nil
}

// Get fetches one report by ID.
func (s *ReportStore) Get(ctx context.Context, id int32) (*models.Report, error) {
	start := time.Now()
	row := s.db.QueryRowContext(ctx, `
		SELECT id, title, description, severity, status,
		       attachment_name, source_url, reporter_email, created_by,
		       created_at, updated_at
		FROM reports WHERE id = ?`, id)

	rep, err := scanReport(row)
	metrics.RecordDBQuery("select", models.ReportTable, time.Since(start), err)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrReportNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get report %d: %w", id, err)
	}
	return rep, nil
}

// List returns reports ordered newest first.
func (s *ReportStore) List(ctx context.Context, limit, offset int) ([]*models.Report, error) {
	if limit <= 0 {
		limit = 50
	}

	start := time.Now()
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, description, severity, status,
		       attachment_name, source_url, reporter_email, created_by,
		       created_at, updated_at
		FROM reports
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?`, limit, offset)
	metrics.RecordDBQuery("select", models.ReportTable, time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()

	var reports []*models.Report
	for rows.Next() {
		rep, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		reports = append(reports, rep)
	}
	return reports, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReport(row rowScanner) (*models.Report, error) {
	var (
		rep            models.Report
		attachmentName sql.NullString
		sourceURL      sql.NullString
		reporterEmail  sql.NullString
		createdBy      sql.NullString
	)
	err := row.Scan(
		&rep.ID, &rep.Title, &rep.Description, &rep.Severity, &rep.Status,
		&attachmentName, &sourceURL, &reporterEmail, &createdBy,
		&rep.CreatedAt, &rep.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	rep.AttachmentName = attachmentName.String
	rep.SourceURL = sourceURL.String
	rep.ReporterEmail = reporterEmail.String
	if createdBy.Valid {
		if id, parseErr := uuid.Parse(createdBy.String); parseErr == nil {
			rep.CreatedBy = &id
		}
	}
	return &rep, nil
}

func emptyToNull(s string) any {
	if s == "" {
		return nil
	}
	return s
}
