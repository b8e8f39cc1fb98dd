// IncidentGuard - Incident Report Request/Persistence Security Layer
// Copyright 2026 Montfort Systems
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/montfort/incidentguard

package audit

import (
	"github.com/montfort/incidentguard/internal/store"
)

// IDAccessor extracts an entity's integer identity. Returning ok=false means
// the entity has no usable identity; the audit record is still written with a
// nil related id.
type IDAccessor func(e store.Entity) (int32, bool)

type actionKey struct {
	kind     string
	mutation store.Mutation
}

// ActionMap is the static table from (entity kind, mutation) to a stable
// action code, plus the per-kind identity accessor. Every row is enumerated
// explicitly at wiring time; there are no wildcard or reflection-based
// defaults. The map is populated during startup and read-only afterwards, so
// lookups need no locking.
type ActionMap struct {
	actions   map[actionKey]string
	accessors map[string]IDAccessor
}

// NewActionMap creates an empty action map.
func NewActionMap() *ActionMap {
	return &ActionMap{
		actions:   make(map[actionKey]string),
		accessors: make(map[string]IDAccessor),
	}
}

// RegisterEntity registers the identity accessor for an entity kind.
// Kinds whose entities carry no integer identity may skip registration.
func (m *ActionMap) RegisterEntity(kind string, id IDAccessor) *ActionMap {
	m.accessors[kind] = id
	return m
}

// RegisterAction adds one (kind, mutation) -> actionCode row.
func (m *ActionMap) RegisterAction(kind string, mutation store.Mutation, actionCode string) *ActionMap {
	m.actions[actionKey{kind: kind, mutation: mutation}] = actionCode
	return m
}

// Action looks up the action code for a (kind, mutation) tuple.
// Absence means the change is deliberately unaudited.
func (m *ActionMap) Action(kind string, mutation store.Mutation) (string, bool) {
	code, ok := m.actions[actionKey{kind: kind, mutation: mutation}]
	return code, ok
}

// EntityID resolves an entity's identity via its registered accessor.
// Returns nil for kinds without an accessor or entities without a usable
// identity; never an error.
func (m *ActionMap) EntityID(e store.Entity) *int32 {
	accessor, ok := m.accessors[e.EntityKind()]
	if !ok {
		return nil
	}
	id, ok := accessor(e)
	if !ok {
		return nil
	}
	return &id
}
