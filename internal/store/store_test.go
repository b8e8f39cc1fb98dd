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
)

// note is a minimal entity for exercising the unit of work.
type note struct {
	ID   int32
	Body string
}

func (n *note) EntityKind() string { return "note" }
func (n *note) TableName() string  { return "notes" }

// notePersister flushes notes. failInsert forces a storage error to test
// rollback behavior.
type notePersister struct {
	failInsert bool
}

func (p *notePersister) Insert(ctx context.Context, tx *sql.Tx, e Entity) error {
	if p.failInsert {
		return errors.New("simulated storage failure")
	}
	n := e.(*note)
	_, err := tx.ExecContext(ctx, "INSERT INTO notes (id, body) VALUES (?, ?)", n.ID, n.Body)
	return err
}

func (p *notePersister) Update(ctx context.Context, tx *sql.Tx, e Entity, fields map[string]FieldChange) error {
	n := e.(*note)
	_, err := tx.ExecContext(ctx, "UPDATE notes SET body = ? WHERE id = ?", n.Body, n.ID)
	return err
}

func (p *notePersister) Delete(ctx context.Context, tx *sql.Tx, e Entity) error {
	n := e.(*note)
	_, err := tx.ExecContext(ctx, "DELETE FROM notes WHERE id = ?", n.ID)
	return err
}

func newTestStore(t *testing.T) *Store {
	t.Helper()

	db, err := sql.Open("duckdb", ":memory:")
	if err != nil {
		t.Fatalf("open duckdb: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if _, err := db.Exec("CREATE TABLE notes (id INTEGER PRIMARY KEY, body TEXT)"); err != nil {
		t.Fatalf("create table: %v", err)
	}

	return New(db)
}

func countNotes(t *testing.T, s *Store) int {
	t.Helper()
	var n int
	if err := s.DB().QueryRow("SELECT COUNT(*) FROM notes").Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}

func TestCommit_InsertUpdateDelete(t *testing.T) {
	s := newTestStore(t)
	s.RegisterPersister("note", &notePersister{})
	ctx := context.Background()

	uow := s.NewUnitOfWork()
	uow.StageCreate(&note{ID: 1, Body: "first"})
	uow.StageCreate(&note{ID: 2, Body: "second"})
	if err := uow.Commit(ctx, CommitInfo{}); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if got := countNotes(t, s); got != 2 {
		t.Fatalf("expected 2 rows, got %d", got)
	}

	uow = s.NewUnitOfWork()
	uow.StageUpdate(&note{ID: 1, Body: "updated"}, map[string]FieldChange{
		"body": {Old: "first", New: "updated"},
	})
	uow.StageDelete(&note{ID: 2})
	if err := uow.Commit(ctx, CommitInfo{}); err != nil {
		t.Fatalf("commit: %v", err)
	}

	var body string
	if err := s.DB().QueryRow("SELECT body FROM notes WHERE id = 1").Scan(&body); err != nil {
		t.Fatalf("query: %v", err)
	}
	if body != "updated" {
		t.Errorf("expected updated body, got %q", body)
	}
	if got := countNotes(t, s); got != 1 {
		t.Errorf("expected 1 row after delete, got %d", got)
	}
}

func TestCommit_EmptyUnitOfWorkIsNoop(t *testing.T) {
	s := newTestStore(t)
	if err := s.NewUnitOfWork().Commit(context.Background(), CommitInfo{}); err != nil {
		t.Fatalf("empty commit: %v", err)
	}
}

func TestCommit_MissingPersisterRollsBack(t *testing.T) {
	s := newTestStore(t)
	s.RegisterPersister("note", &notePersister{})
	ctx := context.Background()

	uow := s.NewUnitOfWork()
	uow.StageCreate(&note{ID: 1, Body: "kept?"})
	uow.Add(&unregistered{})

	err := uow.Commit(ctx, CommitInfo{})
	if !errors.Is(err, ErrNoPersister) {
		t.Fatalf("expected ErrNoPersister, got %v", err)
	}
	if got := countNotes(t, s); got != 0 {
		t.Errorf("expected rollback to leave 0 rows, got %d", got)
	}
}

type unregistered struct{}

func (u *unregistered) EntityKind() string { return "ghost" }
func (u *unregistered) TableName() string  { return "ghosts" }

func TestCommit_StorageFailureRollsBackWholeBatch(t *testing.T) {
	s := newTestStore(t)
	good := &notePersister{}
	s.RegisterPersister("note", good)
	ctx := context.Background()

	// First change flushes fine, second fails; neither may survive.
	uow := s.NewUnitOfWork()
	uow.StageCreate(&note{ID: 1, Body: "a"})
	uow.StageCreate(&note{ID: 2, Body: "b"})
	good.failInsert = false
	if err := uow.Commit(ctx, CommitInfo{}); err != nil {
		t.Fatalf("setup commit: %v", err)
	}

	failing := &notePersister{failInsert: true}
	s.RegisterPersister("note", failing)
	uow = s.NewUnitOfWork()
	uow.StageCreate(&note{ID: 3, Body: "c"})
	if err := uow.Commit(ctx, CommitInfo{}); err == nil {
		t.Fatal("expected commit to fail")
	}
	if got := countNotes(t, s); got != 2 {
		t.Errorf("expected failed commit to persist nothing, got %d rows", got)
	}
}

// addingInterceptor stages an extra note during interception.
type addingInterceptor struct {
	calls int
}

func (i *addingInterceptor) BeforeCommit(ctx context.Context, uow *UnitOfWork, info CommitInfo) error {
	i.calls++
	uow.Add(&note{ID: 99, Body: "from interceptor"})
	return nil
}

func TestCommit_InterceptorAdditionsFlushAtomically(t *testing.T) {
	s := newTestStore(t)
	s.RegisterPersister("note", &notePersister{})
	ic := &addingInterceptor{}
	s.RegisterInterceptor(ic)
	ctx := context.Background()

	uow := s.NewUnitOfWork()
	uow.StageCreate(&note{ID: 1, Body: "trigger"})
	if err := uow.Commit(ctx, CommitInfo{}); err != nil {
		t.Fatalf("commit: %v", err)
	}

	if ic.calls != 1 {
		t.Errorf("expected interceptor to run once, ran %d times", ic.calls)
	}
	if got := countNotes(t, s); got != 2 {
		t.Errorf("expected trigger + interceptor rows, got %d", got)
	}
}

type failingInterceptor struct{}

func (failingInterceptor) BeforeCommit(ctx context.Context, uow *UnitOfWork, info CommitInfo) error {
	return errors.New("interceptor refused")
}

func TestCommit_InterceptorErrorAbortsCommit(t *testing.T) {
	s := newTestStore(t)
	s.RegisterPersister("note", &notePersister{})
	s.RegisterInterceptor(failingInterceptor{})
	ctx := context.Background()

	uow := s.NewUnitOfWork()
	uow.StageCreate(&note{ID: 1, Body: "doomed"})
	if err := uow.Commit(ctx, CommitInfo{}); err == nil {
		t.Fatal("expected commit to fail")
	}
	if got := countNotes(t, s); got != 0 {
		t.Errorf("expected nothing persisted, got %d rows", got)
	}
}

func TestPendingChangesIsACopy(t *testing.T) {
	s := newTestStore(t)
	uow := s.NewUnitOfWork()
	uow.StageCreate(&note{ID: 1})

	pending := uow.PendingChanges()
	pending[0].Entity = nil

	if uow.PendingChanges()[0].Entity == nil {
		t.Error("mutating the returned slice affected the unit of work")
	}
}

func TestMutationString(t *testing.T) {
	tests := []struct {
		m        Mutation
		expected string
	}{
		{MutationCreate, "create"},
		{MutationUpdate, "update"},
		{MutationDelete, "delete"},
		{Mutation(42), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.m.String(); got != tt.expected {
			t.Errorf("Mutation(%d).String() = %q, want %q", tt.m, got, tt.expected)
		}
	}
}
