// IncidentGuard - Incident Report Request/Persistence Security Layer
// Copyright 2026 Montfort Systems
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/montfort/incidentguard

package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/montfort/incidentguard/internal/models"
)

func newReportTestDB(t *testing.T) (*sql.DB, *ReportStore) {
	t.Helper()
	db, err := sql.Open("duckdb", ":memory:")
	if err != nil {
		t.Fatalf("open duckdb: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	rs := NewReportStore(db)
	if err := rs.CreateTable(context.Background()); err != nil {
		t.Fatalf("create table: %v", err)
	}
	return db, rs
}

func insertReport(t *testing.T, db *sql.DB, rs *ReportStore, rep *models.Report) {
	t.Helper()
	ctx := context.Background()

	id, err := rs.NextID(ctx)
	if err != nil {
		t.Fatalf("next id: %v", err)
	}
	rep.ID = id

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := rs.Insert(ctx, tx, rep); err != nil {
		tx.Rollback()
		t.Fatalf("insert: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
}

func TestReportStore_InsertGet(t *testing.T) {
	db, rs := newReportTestDB(t)
	ctx := context.Background()

	rep := &models.Report{
		Title:       "Water main break",
		Description: "Flooding on 5th Avenue",
		Severity:    "high",
		Status:      models.ReportStatusOpen,
		SourceURL:   "/uploads/photo.jpg",
	}
	insertReport(t, db, rs, rep)

	got, err := rs.Get(ctx, rep.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Title != rep.Title || got.Severity != "high" {
		t.Errorf("got %+v", got)
	}
	if got.AttachmentName != "" {
		t.Errorf("attachment_name = %q, want empty for NULL column", got.AttachmentName)
	}
	if got.CreatedAt.IsZero() || got.UpdatedAt.IsZero() {
		t.Error("timestamps not populated by defaults")
	}
}

func TestReportStore_NextIDMonotonic(t *testing.T) {
	_, rs := newReportTestDB(t)
	ctx := context.Background()

	a, err := rs.NextID(ctx)
	if err != nil {
		t.Fatalf("next id: %v", err)
	}
	b, err := rs.NextID(ctx)
	if err != nil {
		t.Fatalf("next id: %v", err)
	}
	if b <= a {
		t.Errorf("ids not monotonic: %d then %d", a, b)
	}
}

func TestReportStore_UpdateDelete(t *testing.T) {
	db, rs := newReportTestDB(t)
	ctx := context.Background()

	rep := &models.Report{
		Title:       "Pothole",
		Description: "Deep pothole near the school",
		Severity:    "medium",
		Status:      models.ReportStatusOpen,
	}
	insertReport(t, db, rs, rep)

	rep.Status = models.ReportStatusResolved
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := rs.Update(ctx, tx, rep, nil); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	got, err := rs.Get(ctx, rep.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != models.ReportStatusResolved {
		t.Errorf("status = %q", got.Status)
	}

	tx, err = db.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := rs.Delete(ctx, tx, rep); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	if _, err := rs.Get(ctx, rep.ID); !errors.Is(err, ErrReportNotFound) {
		t.Errorf("expected ErrReportNotFound, got %v", err)
	}
}

func TestReportStore_UpdateMissingReport(t *testing.T) {
	db, rs := newReportTestDB(t)
	ctx := context.Background()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer tx.Rollback()

	missing := &models.Report{ID: 9999, Title: "x", Description: "y", Severity: "low", Status: "open"}
	if err := rs.Update(ctx, tx, missing, nil); !errors.Is(err, ErrReportNotFound) {
		t.Errorf("expected ErrReportNotFound, got %v", err)
	}
}

func TestReportStore_List(t *testing.T) {
	db, rs := newReportTestDB(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		insertReport(t, db, rs, &models.Report{
			Title:       "Report",
			Description: "body",
			Severity:    "low",
			Status:      models.ReportStatusOpen,
		})
	}

	reports, err := rs.List(ctx, 2, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(reports) != 2 {
		t.Fatalf("len = %d, want 2 (limit)", len(reports))
	}
	if reports[0].ID < reports[1].ID {
		t.Error("list not ordered newest first")
	}
}
