// IncidentGuard - Incident Report Request/Persistence Security Layer
// Copyright 2026 Montfort Systems
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/montfort/incidentguard

package validation

import (
	"strings"
	"testing"
)

type reportRequest struct {
	Title       string `validate:"required,min=3,max=200"`
	Description string `validate:"required,max=10000"`
	Email       string `validate:"omitempty,email"`
	SourceURL   string `validate:"omitempty,url"`
	Severity    string `validate:"required,oneof=low medium high critical"`
}

func validRequest() reportRequest {
	return reportRequest{
		Title:       "Broken street light",
		Description: "The light on Elm Street has been out for a week.",
		Email:       "reporter@example.com",
		SourceURL:   "https://example.com/photo.jpg",
		Severity:    "low",
	}
}

func TestValidateStruct_Valid(t *testing.T) {
	req := validRequest()
	if err := ValidateStruct(&req); err != nil {
		t.Errorf("unexpected validation error: %v", err)
	}
}

func TestValidateStruct_FieldFailures(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*reportRequest)
		field   string
		tag     string
		wantMsg string
	}{
		{
			name:    "missing title",
			mutate:  func(r *reportRequest) { r.Title = "" },
			field:   "Title",
			tag:     "required",
			wantMsg: "Title is required",
		},
		{
			name:    "title too short",
			mutate:  func(r *reportRequest) { r.Title = "ab" },
			field:   "Title",
			tag:     "min",
			wantMsg: "Title must be at least 3 characters",
		},
		{
			name:    "bad email",
			mutate:  func(r *reportRequest) { r.Email = "not-an-email" },
			field:   "Email",
			tag:     "email",
			wantMsg: "Email must be a valid email address",
		},
		{
			name:    "bad severity",
			mutate:  func(r *reportRequest) { r.Severity = "urgent" },
			field:   "Severity",
			tag:     "oneof",
			wantMsg: "Severity must be one of: low medium high critical",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest()
			tt.mutate(&req)

			err := ValidateStruct(&req)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if len(err.Errors()) != 1 {
				t.Fatalf("expected 1 error, got %d: %v", len(err.Errors()), err)
			}

			fe := err.Errors()[0]
			if fe.Field() != tt.field {
				t.Errorf("field = %q, want %q", fe.Field(), tt.field)
			}
			if fe.Tag() != tt.tag {
				t.Errorf("tag = %q, want %q", fe.Tag(), tt.tag)
			}
			if fe.Error() != tt.wantMsg {
				t.Errorf("message = %q, want %q", fe.Error(), tt.wantMsg)
			}
		})
	}
}

func TestToAPIError_SingleError(t *testing.T) {
	req := validRequest()
	req.Title = ""

	apiErr := ValidateStruct(&req).ToAPIError()
	if apiErr.Code != "VALIDATION_ERROR" {
		t.Errorf("code = %q", apiErr.Code)
	}
	if apiErr.Message != "Title is required" {
		t.Errorf("message = %q", apiErr.Message)
	}
	if apiErr.Details["field"] != "Title" {
		t.Errorf("details.field = %v", apiErr.Details["field"])
	}
}

func TestToAPIError_MultipleErrors(t *testing.T) {
	req := validRequest()
	req.Title = ""
	req.Severity = ""

	apiErr := ValidateStruct(&req).ToAPIError()
	if apiErr.Code != "VALIDATION_ERROR" {
		t.Errorf("code = %q", apiErr.Code)
	}
	if !strings.Contains(apiErr.Message, "Title") || !strings.Contains(apiErr.Message, "Severity") {
		t.Errorf("message does not list both fields: %q", apiErr.Message)
	}
	fields, ok := apiErr.Details["fields"].([]map[string]interface{})
	if !ok || len(fields) != 2 {
		t.Errorf("details.fields = %v", apiErr.Details["fields"])
	}
}
