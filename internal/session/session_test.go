// IncidentGuard - Incident Report Request/Persistence Security Layer
// Copyright 2026 Montfort Systems
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/montfort/incidentguard

package session

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestNewSession(t *testing.T) {
	sess := New("user-1", "alice", time.Hour)

	if sess.ID == "" {
		t.Error("session ID not generated")
	}
	if sess.UserID != "user-1" || sess.Username != "alice" {
		t.Errorf("principal not carried: %+v", sess)
	}
	if sess.Fingerprint != "" {
		t.Error("new session must start unbound")
	}
	if sess.IsExpired() {
		t.Error("new session already expired")
	}
}

func TestSessionIDsAreUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := New("u", "n", time.Hour).ID
		if seen[id] {
			t.Fatalf("duplicate session ID %q", id)
		}
		seen[id] = true
	}
}

func testStoreLifecycle(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	sess := New("user-1", "alice", time.Hour)
	if err := store.Create(ctx, sess); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := store.Get(ctx, sess.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.UserID != "user-1" {
		t.Errorf("user id = %q", got.UserID)
	}

	// Binding happens exactly once.
	if err := store.SetFingerprint(ctx, sess.ID, "Mozilla/5.0"); err != nil {
		t.Fatalf("set fingerprint: %v", err)
	}
	if err := store.SetFingerprint(ctx, sess.ID, "other"); !errors.Is(err, ErrFingerprintBound) {
		t.Errorf("second bind: expected ErrFingerprintBound, got %v", err)
	}

	got, err = store.Get(ctx, sess.ID)
	if err != nil {
		t.Fatalf("get after bind: %v", err)
	}
	if got.Fingerprint != "Mozilla/5.0" {
		t.Errorf("fingerprint = %q, first bind must win", got.Fingerprint)
	}

	newExpiry := time.Now().Add(2 * time.Hour)
	if err := store.Touch(ctx, sess.ID, newExpiry); err != nil {
		t.Fatalf("touch: %v", err)
	}

	if err := store.Delete(ctx, sess.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Get(ctx, sess.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("get after delete: expected ErrNotFound, got %v", err)
	}

	// Deleting a missing session is not an error.
	if err := store.Delete(ctx, "missing"); err != nil {
		t.Errorf("delete missing: %v", err)
	}
}

func TestMemoryStore_Lifecycle(t *testing.T) {
	testStoreLifecycle(t, NewMemoryStore())
}

func TestBadgerStore_Lifecycle(t *testing.T) {
	db, err := OpenBadger("")
	if err != nil {
		t.Fatalf("open badger: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	testStoreLifecycle(t, NewBadgerStore(db))
}

func TestMemoryStore_ExpiredSession(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	sess := New("user-1", "alice", -time.Minute)
	if err := store.Create(ctx, sess); err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := store.Get(ctx, sess.ID); !errors.Is(err, ErrExpired) {
		t.Errorf("expected ErrExpired, got %v", err)
	}

	n, err := store.CleanupExpired(ctx)
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 cleaned session, got %d", n)
	}
}

func TestMemoryStore_GetReturnsCopy(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	sess := New("user-1", "alice", time.Hour)
	if err := store.Create(ctx, sess); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := store.Get(ctx, sess.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	got.Fingerprint = "tampered"

	again, err := store.Get(ctx, sess.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if again.Fingerprint != "" {
		t.Error("mutating a returned session affected the store")
	}
}
