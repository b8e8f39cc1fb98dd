// IncidentGuard - Incident Report Request/Persistence Security Layer
// Copyright 2026 Montfort Systems
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/montfort/incidentguard

package logging

import (
	"strings"

	"github.com/rs/zerolog"
)

// SecurityEvent represents a security-relevant event for the structured
// security log. Fields are masked before emission; raw session identifiers
// and tokens never reach the log output.
type SecurityEvent struct {
	// Event is the type of event (e.g., "fingerprint_mismatch", "session_bound").
	Event string
	// UserID is the acting user's identifier (if known).
	UserID string
	// Username is the acting user's username (if known).
	Username string
	// SessionID is the session identifier (masked before logging).
	SessionID string
	// IPAddress is the client's IP address.
	IPAddress string
	// UserAgent is the client's user agent (truncated).
	UserAgent string
	// Success indicates whether the operation succeeded.
	Success bool
	// Error is the failure reason, if any.
	Error string
	// Details contains additional sanitized details.
	Details map[string]string
}

// SecurityLogger emits security events with automatic masking of
// sensitive identifiers.
type SecurityLogger struct {
	logger zerolog.Logger
}

// NewSecurityLogger creates a security logger on the global logger.
func NewSecurityLogger() *SecurityLogger {
	return &SecurityLogger{
		logger: With().Str("component", "security").Logger(),
	}
}

// NewSecurityLoggerWithLogger creates a security logger with a custom zerolog logger.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func NewSecurityLoggerWithLogger(logger zerolog.Logger) *SecurityLogger {
	return &SecurityLogger{
		logger: logger.With().Str("component", "security").Logger(),
	}
}

// LogEvent logs a security event with automatic sanitization.
func (l *SecurityLogger) LogEvent(event *SecurityEvent) {
	e := l.logger.Info().Str("event", event.Event)

	if event.Success {
		e = e.Str("status", "success")
	} else {
		e = e.Str("status", "failed")
	}

	if event.UserID != "" {
		e = e.Str("user_id", MaskUserID(event.UserID))
	}
	if event.Username != "" {
		e = e.Str("username", MaskUsername(event.Username))
	}
	if event.SessionID != "" {
		e = e.Str("session_id", MaskSessionID(event.SessionID))
	}
	if event.IPAddress != "" {
		e = e.Str("ip", event.IPAddress)
	}
	if event.UserAgent != "" {
		e = e.Str("user_agent", truncateString(event.UserAgent, 100))
	}
	if event.Error != "" && !event.Success {
		e = e.Str("error", truncateString(event.Error, 200))
	}

	for k, v := range event.Details {
		e = e.Str(k, v)
	}

	e.Msg("")
}

// LogSessionBound logs the first-time binding of a client signature to a session.
func (l *SecurityLogger) LogSessionBound(userID, sessionID, ip, userAgent string) {
	l.LogEvent(&SecurityEvent{
		Event:     "session_fingerprint_bound",
		UserID:    userID,
		SessionID: sessionID,
		IPAddress: ip,
		UserAgent: userAgent,
		Success:   true,
	})
}

// LogFingerprintMismatch logs a session hijack signal: the client signature
// no longer matches the one bound at authentication time.
func (l *SecurityLogger) LogFingerprintMismatch(userID, sessionID, ip, userAgent string) {
	l.LogEvent(&SecurityEvent{
		Event:     "session_fingerprint_mismatch",
		UserID:    userID,
		SessionID: sessionID,
		IPAddress: ip,
		UserAgent: userAgent,
		Success:   false,
		Error:     "client signature changed mid-session",
	})
}

// LogSessionRevoked logs a forced session termination.
func (l *SecurityLogger) LogSessionRevoked(userID, sessionID, ip, reason string) {
	l.LogEvent(&SecurityEvent{
		Event:     "session_revoked",
		UserID:    userID,
		SessionID: sessionID,
		IPAddress: ip,
		Success:   true,
		Details: map[string]string{
			"reason": reason,
		},
	})
}

// LogSanitizationRejected logs a fail-closed rejection of unsafe input.
func (l *SecurityLogger) LogSanitizationRejected(ip, field, reason string) {
	l.LogEvent(&SecurityEvent{
		Event:     "input_rejected",
		IPAddress: ip,
		Success:   false,
		Error:     reason,
		Details: map[string]string{
			"field": field,
		},
	})
}

// MaskSessionID masks a session ID, showing only first and last 4 characters.
// Example: "abc123def456ghi" -> "abc1...6ghi"
func MaskSessionID(sessionID string) string {
	if sessionID == "" {
		return ""
	}
	if len(sessionID) <= 12 {
		return "***"
	}
	return sessionID[:4] + "..." + sessionID[len(sessionID)-4:]
}

// MaskUserID masks a user ID for privacy.
func MaskUserID(userID string) string {
	if userID == "" {
		return ""
	}
	if len(userID) <= 8 {
		return "***"
	}
	return userID[:4] + "..." + userID[len(userID)-4:]
}

// MaskUsername masks a username, keeping the first 2 characters.
// Example: "johndoe" -> "jo***"
func MaskUsername(username string) string {
	if username == "" {
		return ""
	}
	if len(username) <= 2 {
		return "***"
	}
	return username[:2] + "***"
}

// MaskEmail masks an email address, keeping the domain.
// Example: "john.doe@example.com" -> "jo***@example.com"
func MaskEmail(email string) string {
	if email == "" {
		return ""
	}

	atIndex := strings.Index(email, "@")
	if atIndex <= 0 {
		return "***"
	}

	localPart := email[:atIndex]
	domain := email[atIndex:]

	if len(localPart) <= 2 {
		return "***" + domain
	}
	return localPart[:2] + "***" + domain
}

// truncateString truncates a string to a maximum length.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
