// IncidentGuard - Incident Report Request/Persistence Security Layer
// Copyright 2026 Montfort Systems
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/montfort/incidentguard

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/montfort/incidentguard/internal/metrics"
	"github.com/montfort/incidentguard/internal/models"
)

var (
	// ErrUserNotFound is returned when a user does not exist.
	ErrUserNotFound = errors.New("store: user not found")

	// ErrInvalidCredentials is returned when a password does not match.
	// It is indistinguishable from ErrUserNotFound at the API layer so
	// login responses do not leak which usernames exist.
	ErrInvalidCredentials = errors.New("store: invalid credentials")
)

// UserStore persists user accounts in DuckDB.
type UserStore struct {
	db *sql.DB
}

// NewUserStore creates a DuckDB-backed user store.
func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{db: db}
}

// CreateTable creates the users table. Called during database
// initialization.
func (s *UserStore) CreateTable(ctx context.Context) error {
	ddl := `
		CREATE TABLE IF NOT EXISTS users (
			id UUID PRIMARY KEY,
			username VARCHAR NOT NULL UNIQUE,
			password_hash VARCHAR NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT current_timestamp
		);
	`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create users table: %w", err)
	}
	return nil
}

// Create hashes the password with bcrypt and stores a new user.
func (s *UserStore) Create(ctx context.Context, username, password string) (*models.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &models.User{
		ID:        uuid.New(),
		Username:  username,
		CreatedAt: time.Now().UTC(),
	}

	start := time.Now()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO users (id, username, password_hash, created_at)
		VALUES (?, ?, ?, ?)`,
		user.ID.String(), user.Username, string(hash), user.CreatedAt,
	)
	metrics.RecordDBQuery("insert", "users", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return user, nil
}

// GetByUsername fetches one user by username.
func (s *UserStore) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	start := time.Now()
	var (
		user models.User
		id   string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, username, password_hash, created_at
		FROM users WHERE username = ?`, username).
		Scan(&id, &user.Username, &user.PasswordHash, &user.CreatedAt)
	metrics.RecordDBQuery("select", "users", time.Since(start), err)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user %q: %w", username, err)
	}

	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("parse user id: %w", err)
	}
	user.ID = parsed
	return &user, nil
}

// Authenticate checks a username/password pair. Both unknown-user and
// wrong-password return ErrInvalidCredentials.
func (s *UserStore) Authenticate(ctx context.Context, username, password string) (*models.User, error) {
	user, err := s.GetByUsername(ctx, username)
	if errors.Is(err, ErrUserNotFound) {
		// Burn a comparison anyway to keep timing flat across the
		// known/unknown username boundary.
		_ = bcrypt.CompareHashAndPassword(
			[]byte("$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"),
			[]byte(password))
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// EnsureUser creates the user if it does not exist. Used to seed the
// initial admin account at startup.
func (s *UserStore) EnsureUser(ctx context.Context, username, password string) (*models.User, error) {
	user, err := s.GetByUsername(ctx, username)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return nil, err
	}
	return s.Create(ctx, username, password)
}
