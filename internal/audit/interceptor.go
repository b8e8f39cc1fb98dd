// IncidentGuard - Incident Report Request/Persistence Security Layer
// Copyright 2026 Montfort Systems
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/montfort/incidentguard

package audit

import (
	"context"

	"github.com/goccy/go-json"

	"github.com/montfort/incidentguard/internal/logging"
	"github.com/montfort/incidentguard/internal/store"
)

// Interceptor hooks the store's pre-commit phase and stages one Record per
// mapped pending change. It never fails a commit for business reasons: an
// unmapped tuple or a missing identity is a policy skip, and a details
// serialization failure degrades the record to a nil details document.
type Interceptor struct {
	actions *ActionMap
}

// NewInterceptor creates an audit interceptor over the given action map.
func NewInterceptor(actions *ActionMap) *Interceptor {
	return &Interceptor{actions: actions}
}

// BeforeCommit implements store.Interceptor.
func (i *Interceptor) BeforeCommit(ctx context.Context, uow *store.UnitOfWork, info store.CommitInfo) error {
	for _, ch := range uow.PendingChanges() {
		kind := ch.Entity.EntityKind()

		// Never audit the audit trail itself.
		if kind == EntityKind {
			continue
		}

		switch ch.Mutation {
		case store.MutationCreate, store.MutationUpdate, store.MutationDelete:
		default:
			continue
		}

		actionCode, ok := i.actions.Action(kind, ch.Mutation)
		if !ok {
			// Default-deny: unmapped tuples are deliberately unaudited.
			continue
		}

		table := ch.Entity.TableName()
		rec := &Record{
			ActionCode:      actionCode,
			RelatedEntityID: i.actions.EntityID(ch.Entity),
			RelatedTable:    &table,
			ActorID:         info.ActorID,
		}
		if info.ClientAddress != "" {
			addr := info.ClientAddress
			rec.ClientAddress = &addr
		}

		if ch.Mutation == store.MutationUpdate && len(ch.Fields) > 0 {
			details, err := json.Marshal(ch.Fields)
			if err != nil {
				// Degrade rather than abort: the record persists with a
				// nil details document and the commit proceeds.
				logging.Ctx(ctx).Warn().
					Err(err).
					Str("action_code", actionCode).
					Msg("audit details serialization failed, persisting without details")
			} else {
				rec.Details = details
			}
		}

		uow.Add(rec)
	}

	return nil
}
