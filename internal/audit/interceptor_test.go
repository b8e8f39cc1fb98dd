// IncidentGuard - Incident Report Request/Persistence Security Layer
// Copyright 2026 Montfort Systems
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/montfort/incidentguard

package audit

import (
	"context"
	"testing"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/montfort/incidentguard/internal/store"
)

// report is a stand-in audited entity.
type report struct {
	id    int32
	title string
}

func (r *report) EntityKind() string { return "report" }
func (r *report) TableName() string  { return "reports" }

// anonymous has no identity accessor registered.
type anonymous struct{}

func (a *anonymous) EntityKind() string { return "anonymous" }
func (a *anonymous) TableName() string  { return "anonymous_things" }

func testActionMap() *ActionMap {
	return NewActionMap().
		RegisterEntity("report", func(e store.Entity) (int32, bool) {
			return e.(*report).id, true
		}).
		RegisterAction("report", store.MutationCreate, "REPORT_CREATE").
		RegisterAction("report", store.MutationUpdate, "REPORT_UPDATE").
		RegisterAction("report", store.MutationDelete, "REPORT_DELETE").
		RegisterAction("anonymous", store.MutationCreate, "ANON_CREATE")
}

// stagedRecords returns the audit records an interceptor added to the uow.
func stagedRecords(uow *store.UnitOfWork) []*Record {
	var out []*Record
	for _, ch := range uow.PendingChanges() {
		if rec, ok := ch.Entity.(*Record); ok {
			out = append(out, rec)
		}
	}
	return out
}

func newUow() *store.UnitOfWork {
	return store.New(nil).NewUnitOfWork()
}

func TestInterceptor_MappedCreate(t *testing.T) {
	ic := NewInterceptor(testActionMap())
	actor := uuid.New()

	uow := newUow()
	uow.StageCreate(&report{id: 7, title: "outage"})

	info := store.CommitInfo{ActorID: &actor, ClientAddress: "203.0.113.9"}
	if err := ic.BeforeCommit(context.Background(), uow, info); err != nil {
		t.Fatalf("BeforeCommit: %v", err)
	}

	recs := stagedRecords(uow)
	if len(recs) != 1 {
		t.Fatalf("expected exactly 1 audit record, got %d", len(recs))
	}
	rec := recs[0]

	if rec.ActionCode != "REPORT_CREATE" {
		t.Errorf("action code = %q, want REPORT_CREATE", rec.ActionCode)
	}
	if rec.RelatedEntityID == nil || *rec.RelatedEntityID != 7 {
		t.Errorf("related entity id = %v, want 7", rec.RelatedEntityID)
	}
	if rec.RelatedTable == nil || *rec.RelatedTable != "reports" {
		t.Errorf("related table = %v, want reports", rec.RelatedTable)
	}
	if rec.ActorID == nil || *rec.ActorID != actor {
		t.Errorf("actor id = %v, want %v", rec.ActorID, actor)
	}
	if rec.ClientAddress == nil || *rec.ClientAddress != "203.0.113.9" {
		t.Errorf("client address = %v, want 203.0.113.9", rec.ClientAddress)
	}
	if rec.Details != nil {
		t.Errorf("create must have nil details, got %s", rec.Details)
	}
}

func TestInterceptor_UnmappedKindIsSkipped(t *testing.T) {
	// The map knows "report" but this uow stages an unknown kind.
	ic := NewInterceptor(NewActionMap().
		RegisterAction("report", store.MutationCreate, "REPORT_CREATE"))

	uow := newUow()
	uow.StageCreate(&anonymous{})

	if err := ic.BeforeCommit(context.Background(), uow, store.CommitInfo{}); err != nil {
		t.Fatalf("BeforeCommit: %v", err)
	}
	if got := stagedRecords(uow); len(got) != 0 {
		t.Errorf("unmapped kind produced %d records, want 0", len(got))
	}
}

func TestInterceptor_UnmappedMutationIsSkipped(t *testing.T) {
	// Only create is mapped; the delete must be silently skipped.
	ic := NewInterceptor(NewActionMap().
		RegisterAction("report", store.MutationCreate, "REPORT_CREATE"))

	uow := newUow()
	uow.StageDelete(&report{id: 1})

	if err := ic.BeforeCommit(context.Background(), uow, store.CommitInfo{}); err != nil {
		t.Fatalf("BeforeCommit: %v", err)
	}
	if got := stagedRecords(uow); len(got) != 0 {
		t.Errorf("unmapped mutation produced %d records, want 0", len(got))
	}
}

func TestInterceptor_NeverAuditsItself(t *testing.T) {
	ic := NewInterceptor(testActionMap())

	uow := newUow()
	uow.StageCreate(&Record{ActionCode: "REPORT_CREATE"})

	if err := ic.BeforeCommit(context.Background(), uow, store.CommitInfo{}); err != nil {
		t.Fatalf("BeforeCommit: %v", err)
	}
	if uow.Len() != 1 {
		t.Errorf("audit record mutation spawned further records: %d staged", uow.Len())
	}
}

func TestInterceptor_UpdateDetailsContainsOnlyChangedFields(t *testing.T) {
	ic := NewInterceptor(testActionMap())

	uow := newUow()
	uow.StageUpdate(&report{id: 3}, map[string]store.FieldChange{
		"title":       {Old: "before", New: "after"},
		"description": {Old: "x", New: "y"},
	})

	if err := ic.BeforeCommit(context.Background(), uow, store.CommitInfo{}); err != nil {
		t.Fatalf("BeforeCommit: %v", err)
	}

	recs := stagedRecords(uow)
	if len(recs) != 1 {
		t.Fatalf("expected 1 record, got %d", len(recs))
	}

	var details map[string]struct {
		Old any `json:"old"`
		New any `json:"new"`
	}
	if err := json.Unmarshal(recs[0].Details, &details); err != nil {
		t.Fatalf("unmarshal details: %v", err)
	}
	if len(details) != 2 {
		t.Fatalf("expected 2 changed fields, got %d: %v", len(details), details)
	}
	if details["title"].Old != "before" || details["title"].New != "after" {
		t.Errorf("title diff = %+v", details["title"])
	}
	if _, ok := details["status"]; ok {
		t.Error("unchanged field leaked into details")
	}
}

func TestInterceptor_UpdateWithoutFlaggedFieldsHasNilDetails(t *testing.T) {
	ic := NewInterceptor(testActionMap())

	uow := newUow()
	uow.StageUpdate(&report{id: 3}, nil)

	if err := ic.BeforeCommit(context.Background(), uow, store.CommitInfo{}); err != nil {
		t.Fatalf("BeforeCommit: %v", err)
	}

	recs := stagedRecords(uow)
	if len(recs) != 1 {
		t.Fatalf("expected 1 record, got %d", len(recs))
	}
	if recs[0].Details != nil {
		t.Errorf("expected nil details, got %s", recs[0].Details)
	}
}

func TestInterceptor_UnserializableDetailsDegradeToNil(t *testing.T) {
	ic := NewInterceptor(testActionMap())

	// A channel cannot be marshalled; the record must still be staged, with
	// nil details, and the commit must proceed.
	uow := newUow()
	uow.StageUpdate(&report{id: 3}, map[string]store.FieldChange{
		"title": {Old: "before", New: make(chan int)},
	})

	if err := ic.BeforeCommit(context.Background(), uow, store.CommitInfo{}); err != nil {
		t.Fatalf("BeforeCommit: %v", err)
	}

	recs := stagedRecords(uow)
	if len(recs) != 1 {
		t.Fatalf("expected 1 record, got %d", len(recs))
	}
	if recs[0].Details != nil {
		t.Errorf("expected nil details, got %s", recs[0].Details)
	}
	if recs[0].ActionCode != "REPORT_UPDATE" {
		t.Errorf("action code = %q", recs[0].ActionCode)
	}
}

func TestInterceptor_MissingIdentityAccessorYieldsNilID(t *testing.T) {
	ic := NewInterceptor(testActionMap())

	uow := newUow()
	uow.StageCreate(&anonymous{})

	if err := ic.BeforeCommit(context.Background(), uow, store.CommitInfo{}); err != nil {
		t.Fatalf("BeforeCommit: %v", err)
	}

	recs := stagedRecords(uow)
	if len(recs) != 1 {
		t.Fatalf("expected 1 record, got %d", len(recs))
	}
	if recs[0].RelatedEntityID != nil {
		t.Errorf("expected nil related entity id, got %v", *recs[0].RelatedEntityID)
	}
	if recs[0].ActionCode != "ANON_CREATE" {
		t.Errorf("action code = %q", recs[0].ActionCode)
	}
}

func TestInterceptor_NilActorIsSystemOperation(t *testing.T) {
	ic := NewInterceptor(testActionMap())

	uow := newUow()
	uow.StageCreate(&report{id: 1})

	if err := ic.BeforeCommit(context.Background(), uow, store.CommitInfo{}); err != nil {
		t.Fatalf("BeforeCommit: %v", err)
	}

	recs := stagedRecords(uow)
	if len(recs) != 1 {
		t.Fatalf("expected 1 record, got %d", len(recs))
	}
	if recs[0].ActorID != nil {
		t.Errorf("expected nil actor for system operation, got %v", recs[0].ActorID)
	}
	if recs[0].ClientAddress != nil {
		t.Errorf("expected nil client address, got %v", recs[0].ClientAddress)
	}
}

func TestInterceptor_OneRecordPerMappedChange(t *testing.T) {
	ic := NewInterceptor(testActionMap())

	uow := newUow()
	uow.StageCreate(&report{id: 1})
	uow.StageUpdate(&report{id: 2}, map[string]store.FieldChange{"title": {Old: "a", New: "b"}})
	uow.StageDelete(&report{id: 3})

	if err := ic.BeforeCommit(context.Background(), uow, store.CommitInfo{}); err != nil {
		t.Fatalf("BeforeCommit: %v", err)
	}

	recs := stagedRecords(uow)
	if len(recs) != 3 {
		t.Fatalf("expected 3 records, got %d", len(recs))
	}
	codes := map[string]bool{}
	for _, rec := range recs {
		codes[rec.ActionCode] = true
	}
	for _, want := range []string{"REPORT_CREATE", "REPORT_UPDATE", "REPORT_DELETE"} {
		if !codes[want] {
			t.Errorf("missing action code %s", want)
		}
	}
}
