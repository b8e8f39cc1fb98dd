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

func newUserTestStore(t *testing.T) *UserStore {
	t.Helper()
	db, err := sql.Open("duckdb", ":memory:")
	if err != nil {
		t.Fatalf("open duckdb: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	us := NewUserStore(db)
	if err := us.CreateTable(context.Background()); err != nil {
		t.Fatalf("create table: %v", err)
	}
	return us
}

func TestUserStore_CreateAndAuthenticate(t *testing.T) {
	us := newUserTestStore(t)
	ctx := context.Background()

	created, err := us.Create(ctx, "alice", "s3cret-password")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.PasswordHash == "s3cret-password" {
		t.Fatal("password stored in clear")
	}

	user, err := us.Authenticate(ctx, "alice", "s3cret-password")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if user.ID != created.ID {
		t.Errorf("id mismatch: %s != %s", user.ID, created.ID)
	}
}

func TestUserStore_AuthenticateFailures(t *testing.T) {
	us := newUserTestStore(t)
	ctx := context.Background()

	if _, err := us.Create(ctx, "alice", "s3cret-password"); err != nil {
		t.Fatalf("create: %v", err)
	}

	// Wrong password and unknown user produce the same error so the API
	// cannot leak which usernames exist.
	if _, err := us.Authenticate(ctx, "alice", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("wrong password: %v", err)
	}
	if _, err := us.Authenticate(ctx, "nobody", "whatever"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("unknown user: %v", err)
	}
}

func TestUserStore_EnsureUserIdempotent(t *testing.T) {
	us := newUserTestStore(t)
	ctx := context.Background()

	first, err := us.EnsureUser(ctx, "admin", "initial-password")
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	second, err := us.EnsureUser(ctx, "admin", "different-password")
	if err != nil {
		t.Fatalf("ensure again: %v", err)
	}
	if first.ID != second.ID {
		t.Error("EnsureUser created a second account for the same username")
	}

	// The original password still works; EnsureUser never rehashes.
	if _, err := us.Authenticate(ctx, "admin", "initial-password"); err != nil {
		t.Errorf("authenticate: %v", err)
	}
}
