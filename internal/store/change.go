// IncidentGuard - Incident Report Request/Persistence Security Layer
// Copyright 2026 Montfort Systems
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/montfort/incidentguard

// Package store provides the unit-of-work persistence layer: business
// handlers stage entity mutations, registered interceptors inspect the
// pending set at commit time, and everything - staged rows plus whatever the
// interceptors add - is flushed in one DuckDB transaction.
package store

import "github.com/google/uuid"

// Mutation is the kind of pending change. Reads never enter a unit of work.
type Mutation int

const (
	MutationCreate Mutation = iota
	MutationUpdate
	MutationDelete
)

// String returns the mutation name.
func (m Mutation) String() string {
	switch m {
	case MutationCreate:
		return "create"
	case MutationUpdate:
		return "update"
	case MutationDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Entity is a persisted record participating in a unit of work.
type Entity interface {
	// EntityKind is the logical type name ("report", "user").
	EntityKind() string

	// TableName is the physical name of the backing table.
	TableName() string
}

// FieldChange carries the before and after values of one modified field.
type FieldChange struct {
	Old any `json:"old"`
	New any `json:"new"`
}

// Change is one pending mutation tracked by a unit of work.
type Change struct {
	Entity   Entity
	Mutation Mutation

	// Fields holds old/new values for fields the caller flagged as
	// modified. Populated for updates only; absent fields were not
	// modified.
	Fields map[string]FieldChange
}

// CommitInfo carries the ambient facts of a commit as explicit parameters.
// The interceptors never reach into request infrastructure for them.
type CommitInfo struct {
	// ActorID identifies the acting principal. Nil signals a system or
	// background operation, never an error.
	ActorID *uuid.UUID

	// ClientAddress is the caller-observed client address, when the commit
	// originates from a request. Empty for system operations.
	ClientAddress string
}
