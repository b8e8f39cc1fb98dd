// IncidentGuard - Incident Report Request/Persistence Security Layer
// Copyright 2026 Montfort Systems
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/montfort/incidentguard

package store

import (
	"context"
	"database/sql"
	"fmt"
	"runtime"
	"sync"
	"time"

	_ "github.com/duckdb/duckdb-go/v2" // registers the "duckdb" driver

	"github.com/montfort/incidentguard/internal/logging"
)

// Persister flushes one entity kind to storage inside a transaction.
// Registered per entity kind; a staged change for an unregistered kind fails
// the whole commit.
type Persister interface {
	Insert(ctx context.Context, tx *sql.Tx, e Entity) error
	Update(ctx context.Context, tx *sql.Tx, e Entity, fields map[string]FieldChange) error
	Delete(ctx context.Context, tx *sql.Tx, e Entity) error
}

// Interceptor runs once per commit attempt, before the pending changes are
// flushed. It may stage additional entities into the same unit of work; those
// ride in the same transaction. An error aborts the commit and rolls back
// everything.
type Interceptor interface {
	BeforeCommit(ctx context.Context, uow *UnitOfWork, info CommitInfo) error
}

// Config holds storage configuration.
type Config struct {
	// Path is the DuckDB database file, or ":memory:".
	Path string `koanf:"path"`

	// MaxMemory bounds DuckDB memory usage (e.g. "2GB").
	MaxMemory string `koanf:"max_memory"`

	// Threads is the DuckDB thread count. 0 means runtime.NumCPU().
	Threads int `koanf:"threads"`
}

// Store owns the database handle and the registries consulted at commit
// time. Registration happens during startup wiring; commits may run
// concurrently afterwards.
type Store struct {
	db *sql.DB

	mu           sync.RWMutex
	persisters   map[string]Persister
	interceptors []Interceptor
}

// Open opens the DuckDB database and verifies the connection.
func Open(cfg Config) (*Store, error) {
	threads := cfg.Threads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	maxMemory := cfg.MaxMemory
	if maxMemory == "" {
		maxMemory = "1GB"
	}

	connStr := fmt.Sprintf("%s?access_mode=read_write&threads=%d&max_memory=%s",
		cfg.Path, threads, maxMemory)

	db, err := sql.Open("duckdb", connStr)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping duckdb: %w", err)
	}

	logging.Info().Str("path", cfg.Path).Int("threads", threads).Msg("store opened")
	return New(db), nil
}

// New wraps an existing database handle. Used by tests with in-memory
// databases.
func New(db *sql.DB) *Store {
	return &Store{
		db:         db,
		persisters: make(map[string]Persister),
	}
}

// DB exposes the underlying handle for collaborators that query outside a
// unit of work (audit search, schema setup).
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// RegisterPersister registers the flush implementation for an entity kind.
func (s *Store) RegisterPersister(kind string, p Persister) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.persisters[kind] = p
}

// RegisterInterceptor appends a pre-commit interceptor. Interceptors run in
// registration order on every commit attempt.
func (s *Store) RegisterInterceptor(i Interceptor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.interceptors = append(s.interceptors, i)
}

// NewUnitOfWork starts an empty unit of work. A unit of work is scoped to
// one request and is not safe for concurrent use.
func (s *Store) NewUnitOfWork() *UnitOfWork {
	return &UnitOfWork{store: s}
}

func (s *Store) persister(kind string) Persister {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.persisters[kind]
}

func (s *Store) interceptorList() []Interceptor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Interceptor, len(s.interceptors))
	copy(out, s.interceptors)
	return out
}
