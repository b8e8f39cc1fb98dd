// IncidentGuard - Incident Report Request/Persistence Security Layer
// Copyright 2026 Montfort Systems
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/montfort/incidentguard

// Package models defines the persistent domain entities: incident reports
// and the user accounts that submit them.
package models

import (
	"time"

	"github.com/google/uuid"
)

// ReportEntityKind identifies reports in the change pipeline.
const ReportEntityKind = "report"

// ReportTable is the backing table for reports.
const ReportTable = "reports"

// Report is an incident report submitted through the API. All free-text
// fields hold sanitized values; sanitization happens at the request layer
// before a report is staged for persistence.
type Report struct {
	ID             int32      `json:"id"`
	Title          string     `json:"title"`
	Description    string     `json:"description"`
	Severity       string     `json:"severity"`
	Status         string     `json:"status"`
	AttachmentName string     `json:"attachment_name,omitempty"`
	SourceURL      string     `json:"source_url,omitempty"`
	ReporterEmail  string     `json:"reporter_email,omitempty"`
	CreatedBy      *uuid.UUID `json:"created_by,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Report statuses.
const (
	ReportStatusOpen     = "open"
	ReportStatusResolved = "resolved"
	ReportStatusClosed   = "closed"
)

// EntityKind implements store.Entity.
func (r *Report) EntityKind() string {
	return ReportEntityKind
}

// TableName implements store.Entity.
func (r *Report) TableName() string {
	return ReportTable
}
