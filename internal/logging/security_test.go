// IncidentGuard - Incident Report Request/Persistence Security Layer
// Copyright 2026 Montfort Systems
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/montfort/incidentguard

package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestMaskSessionID(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"empty", "", ""},
		{"short", "abc123", "***"},
		{"exactly 12", "abcdefghijkl", "***"},
		{"long", "abc123def456ghi", "abc1...6ghi"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MaskSessionID(tt.input); got != tt.expected {
				t.Errorf("MaskSessionID(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestMaskUsername(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"", ""},
		{"jo", "***"},
		{"johndoe", "jo***"},
	}

	for _, tt := range tests {
		if got := MaskUsername(tt.input); got != tt.expected {
			t.Errorf("MaskUsername(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestMaskEmail(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"", ""},
		{"no-at-sign", "***"},
		{"@example.com", "***"},
		{"jo@example.com", "***@example.com"},
		{"john.doe@example.com", "jo***@example.com"},
	}

	for _, tt := range tests {
		if got := MaskEmail(tt.input); got != tt.expected {
			t.Errorf("MaskEmail(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestSecurityLogger_FingerprintMismatch(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	sl := NewSecurityLoggerWithLogger(logger)

	sl.LogFingerprintMismatch("user-12345678", "abc123def456ghi", "10.0.0.1", "Mozilla/5.0")

	out := buf.String()
	if !strings.Contains(out, "session_fingerprint_mismatch") {
		t.Errorf("expected event name in output, got %q", out)
	}
	if !strings.Contains(out, `"status":"failed"`) {
		t.Errorf("expected failed status, got %q", out)
	}
	// Raw session IDs must never appear in the log.
	if strings.Contains(out, "abc123def456ghi") {
		t.Errorf("unmasked session ID leaked into log: %q", out)
	}
	if !strings.Contains(out, "abc1...6ghi") {
		t.Errorf("expected masked session ID, got %q", out)
	}
}

func TestSecurityLogger_LogEventTruncatesUserAgent(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	sl := NewSecurityLoggerWithLogger(logger)

	sl.LogEvent(&SecurityEvent{
		Event:     "session_fingerprint_bound",
		UserAgent: strings.Repeat("x", 300),
		Success:   true,
	})

	if strings.Contains(buf.String(), strings.Repeat("x", 150)) {
		t.Error("user agent was not truncated")
	}
}
