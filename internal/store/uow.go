// IncidentGuard - Incident Report Request/Persistence Security Layer
// Copyright 2026 Montfort Systems
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/montfort/incidentguard

package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/montfort/incidentguard/internal/logging"
)

// ErrNoPersister is returned when a staged entity kind has no registered
// flush implementation. This is a wiring bug, not a runtime condition.
var ErrNoPersister = errors.New("store: no persister registered for entity kind")

// UnitOfWork batches pending mutations for one atomic commit. Scoped to a
// single request; not safe for concurrent use.
type UnitOfWork struct {
	store   *Store
	changes []Change
}

// StageCreate stages an insert.
func (u *UnitOfWork) StageCreate(e Entity) {
	u.changes = append(u.changes, Change{Entity: e, Mutation: MutationCreate})
}

// StageUpdate stages an update. fields must contain exactly the fields the
// caller modified, with their old and new values; unlisted fields are
// treated as unchanged.
func (u *UnitOfWork) StageUpdate(e Entity, fields map[string]FieldChange) {
	u.changes = append(u.changes, Change{Entity: e, Mutation: MutationUpdate, Fields: fields})
}

// StageDelete stages a delete.
func (u *UnitOfWork) StageDelete(e Entity) {
	u.changes = append(u.changes, Change{Entity: e, Mutation: MutationDelete})
}

// Add stages an insert on behalf of an interceptor. Entities added during
// interception are flushed in the same transaction as the changes that
// triggered them, but are not re-presented to interceptors.
func (u *UnitOfWork) Add(e Entity) {
	u.StageCreate(e)
}

// PendingChanges returns a copy of the currently staged changes.
func (u *UnitOfWork) PendingChanges() []Change {
	out := make([]Change, len(u.changes))
	copy(out, u.changes)
	return out
}

// Len reports the number of staged changes.
func (u *UnitOfWork) Len() int {
	return len(u.changes)
}

// Commit runs the registered interceptors over the staged changes, then
// flushes everything - the original changes plus anything the interceptors
// added - in one transaction. Any interceptor or storage error rolls the
// whole batch back; nothing staged in this attempt survives a failure.
func (u *UnitOfWork) Commit(ctx context.Context, info CommitInfo) error {
	if len(u.changes) == 0 {
		return nil
	}

	// Interceptors see the changes staged by business code; their own
	// additions are appended and flushed below without another
	// interception round.
	for _, ic := range u.store.interceptorList() {
		if err := ic.BeforeCommit(ctx, u, info); err != nil {
			return fmt.Errorf("pre-commit interceptor: %w", err)
		}
	}

	tx, err := u.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	for _, ch := range u.changes {
		kind := ch.Entity.EntityKind()
		p := u.store.persister(kind)
		if p == nil {
			rollback(tx)
			return fmt.Errorf("%w: %q", ErrNoPersister, kind)
		}

		var flushErr error
		switch ch.Mutation {
		case MutationCreate:
			flushErr = p.Insert(ctx, tx, ch.Entity)
		case MutationUpdate:
			flushErr = p.Update(ctx, tx, ch.Entity, ch.Fields)
		case MutationDelete:
			flushErr = p.Delete(ctx, tx, ch.Entity)
		}
		if flushErr != nil {
			rollback(tx)
			return fmt.Errorf("flush %s %s: %w", ch.Mutation, kind, flushErr)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	u.changes = nil
	return nil
}

func rollback(tx interface{ Rollback() error }) {
	if err := tx.Rollback(); err != nil {
		logging.Error().Err(err).Msg("transaction rollback failed")
	}
}
