// IncidentGuard - Incident Report Request/Persistence Security Layer
// Copyright 2026 Montfort Systems
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/montfort/incidentguard

// Package audit derives an immutable audit trail from the mutations pending
// in a unit of work. Business code never logs anything itself: the
// Interceptor inspects the pending change set at commit time, consults the
// ActionMap, and stages one Record per mapped change into the same unit of
// work, so audit rows commit atomically with the rows that triggered them.
//
// The ActionMap is a closed, explicit table. A (kind, mutation) tuple with no
// row is silently skipped - new entity kinds are unaudited until a maintainer
// adds a row. This is default-deny by design, not automatic auditing.
package audit

import (
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

const (
	// EntityKind is the logical kind of audit records inside a unit of
	// work. Changes of this kind are never audited themselves.
	EntityKind = "audit_record"

	// Table is the physical audit table name.
	Table = "audit_log"
)

// Record is one captured mutation. Created only during interception,
// immutable afterwards; the application never updates or deletes audit rows
// (retention is an operational concern).
type Record struct {
	// ID is the store-assigned surrogate key.
	ID int64 `json:"id"`

	// ActionCode is the stable action code from the ActionMap
	// (e.g. "REPORT_CREATE").
	ActionCode string `json:"action_code"`

	// RelatedEntityID identifies the mutated row, best effort. Entities
	// without a registered identity accessor yield nil, which is not an
	// error.
	RelatedEntityID *int32 `json:"related_entity_id,omitempty"`

	// RelatedTable is the physical name of the mutated table.
	RelatedTable *string `json:"related_table,omitempty"`

	// ActorID identifies the acting principal. Nil signals a system or
	// background operation.
	ActorID *uuid.UUID `json:"actor_id,omitempty"`

	// ClientAddress is supplied by the calling layer; the interceptor
	// never derives it itself.
	ClientAddress *string `json:"client_address,omitempty"`

	// Details holds, for updates, a map of changed-field-name to
	// {old, new}. Nil for inserts and deletes, and when serialization of
	// the field diff failed.
	Details json.RawMessage `json:"details,omitempty"`

	// OccurredAt is assigned by the store at commit time, giving a total
	// order consistent with transaction commit order.
	OccurredAt time.Time `json:"occurred_at"`
}

// EntityKind implements store.Entity.
func (r *Record) EntityKind() string { return EntityKind }

// TableName implements store.Entity.
func (r *Record) TableName() string { return Table }
