// IncidentGuard - Incident Report Request/Persistence Security Layer
// Copyright 2026 Montfort Systems
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/montfort/incidentguard

// Package session provides session tracking and the fingerprint guard that
// detects session hijacking by binding each session to the client signature
// observed at authentication time.
package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"sync"
	"time"
)

var (
	// ErrNotFound is returned when a session is not in the store.
	ErrNotFound = errors.New("session not found")

	// ErrExpired is returned when a session exists but has expired.
	ErrExpired = errors.New("session expired")

	// ErrFingerprintBound is returned when SetFingerprint is called on a
	// session that already carries a fingerprint. The binding happens
	// exactly once per session.
	ErrFingerprintBound = errors.New("session fingerprint already bound")
)

// Session represents an authenticated user session.
type Session struct {
	// ID is the opaque session identifier.
	ID string `json:"id"`

	// UserID is the authenticated principal's identifier.
	UserID string `json:"user_id"`

	// Username is the authenticated principal's username.
	Username string `json:"username"`

	// Fingerprint is the client signature bound on the first
	// authenticated request. Empty until bound; compared, never mutated,
	// afterwards.
	Fingerprint string `json:"fingerprint,omitempty"`

	// CreatedAt is when the session was created.
	CreatedAt time.Time `json:"created_at"`

	// ExpiresAt is when the session expires.
	ExpiresAt time.Time `json:"expires_at"`

	// LastAccessedAt is when the session was last accessed.
	LastAccessedAt time.Time `json:"last_accessed_at"`
}

// IsExpired returns true if the session has expired.
func (s *Session) IsExpired() bool {
	return time.Now().After(s.ExpiresAt)
}

// New creates a session for the given principal.
func New(userID, username string, ttl time.Duration) *Session {
	now := time.Now()
	return &Session{
		ID:             generateID(),
		UserID:         userID,
		Username:       username,
		CreatedAt:      now,
		ExpiresAt:      now.Add(ttl),
		LastAccessedAt: now,
	}
}

// generateID generates a cryptographically secure session ID.
func generateID() string {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		// Fallback to a less secure but still unique ID.
		return hex.EncodeToString([]byte(time.Now().String()))
	}
	return hex.EncodeToString(bytes)
}

// Store defines the session storage backend. Implementations serialize
// access per key; callers never hold store locks across request handling.
type Store interface {
	// Create stores a new session.
	Create(ctx context.Context, session *Session) error

	// Get retrieves a session by ID. Returns ErrNotFound or ErrExpired.
	Get(ctx context.Context, id string) (*Session, error)

	// Delete removes a session by ID. Deleting a missing session is not
	// an error.
	Delete(ctx context.Context, id string) error

	// Touch updates the last-accessed time and extends expiry.
	Touch(ctx context.Context, id string, newExpiry time.Time) error

	// SetFingerprint binds the client signature to the session. Returns
	// ErrFingerprintBound if a fingerprint is already stored.
	SetFingerprint(ctx context.Context, id, fingerprint string) error

	// CleanupExpired removes all expired sessions and returns the count.
	CleanupExpired(ctx context.Context) (int, error)
}

// MemoryStore is an in-memory Store for development and tests.
// For production use BadgerStore.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewMemoryStore creates an in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*Session),
	}
}

// Create stores a new session.
func (s *MemoryStore) Create(ctx context.Context, session *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *session
	s.sessions[session.ID] = &copied
	return nil
}

// Get retrieves a session by ID.
func (s *MemoryStore) Get(ctx context.Context, id string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	if session.IsExpired() {
		return nil, ErrExpired
	}

	copied := *session
	return &copied, nil
}

// Delete removes a session by ID.
func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

// Touch updates the last-accessed time and extends expiry.
func (s *MemoryStore) Touch(ctx context.Context, id string, newExpiry time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok {
		return ErrNotFound
	}
	session.LastAccessedAt = time.Now()
	session.ExpiresAt = newExpiry
	return nil
}

// SetFingerprint binds the client signature to the session, once.
func (s *MemoryStore) SetFingerprint(ctx context.Context, id, fingerprint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok {
		return ErrNotFound
	}
	if session.Fingerprint != "" {
		return ErrFingerprintBound
	}
	session.Fingerprint = fingerprint
	return nil
}

// CleanupExpired removes all expired sessions.
func (s *MemoryStore) CleanupExpired(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for id, session := range s.sessions {
		if session.IsExpired() {
			delete(s.sessions, id)
			count++
		}
	}
	return count, nil
}
