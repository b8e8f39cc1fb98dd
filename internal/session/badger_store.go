// IncidentGuard - Incident Report Request/Persistence Security Layer
// Copyright 2026 Montfort Systems
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/montfort/incidentguard

package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
)

const sessionKeyPrefix = "session:"

// BadgerStore implements Store on BadgerDB. Sessions survive restarts, which
// keeps fingerprint bindings intact across deployments.
type BadgerStore struct {
	db *badger.DB
}

// NewBadgerStore creates a BadgerDB-backed session store.
func NewBadgerStore(db *badger.DB) *BadgerStore {
	return &BadgerStore{db: db}
}

// OpenBadger opens the session database at path. An empty path opens an
// in-memory database (tests).
func OpenBadger(path string) (*badger.DB, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %q: %w", path, err)
	}
	return db, nil
}

func sessionKey(id string) []byte {
	return []byte(sessionKeyPrefix + id)
}

// Create stores a new session with a TTL matching its expiry.
func (s *BadgerStore) Create(ctx context.Context, session *Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry(sessionKey(session.ID), data).
			WithTTL(time.Until(session.ExpiresAt))
		return txn.SetEntry(entry)
	})
}

// Get retrieves a session by ID.
func (s *BadgerStore) Get(ctx context.Context, id string) (*Session, error) {
	var session Session

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(sessionKey(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("get session: %w", err)
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &session)
		})
	})
	if err != nil {
		return nil, err
	}

	if session.IsExpired() {
		return nil, ErrExpired
	}
	return &session, nil
}

// Delete removes a session by ID.
func (s *BadgerStore) Delete(ctx context.Context, id string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(sessionKey(id))
	})
}

// Touch updates the last-accessed time and extends expiry.
func (s *BadgerStore) Touch(ctx context.Context, id string, newExpiry time.Time) error {
	return s.update(id, func(session *Session) error {
		session.LastAccessedAt = time.Now()
		session.ExpiresAt = newExpiry
		return nil
	})
}

// SetFingerprint binds the client signature to the session, once.
func (s *BadgerStore) SetFingerprint(ctx context.Context, id, fingerprint string) error {
	return s.update(id, func(session *Session) error {
		if session.Fingerprint != "" {
			return ErrFingerprintBound
		}
		session.Fingerprint = fingerprint
		return nil
	})
}

// update applies fn to the stored session inside one transaction.
func (s *BadgerStore) update(id string, fn func(*Session) error) error {
	return s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(sessionKey(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("get session: %w", err)
		}

		var session Session
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &session)
		}); err != nil {
			return fmt.Errorf("unmarshal session: %w", err)
		}

		if err := fn(&session); err != nil {
			return err
		}

		data, err := json.Marshal(&session)
		if err != nil {
			return fmt.Errorf("marshal session: %w", err)
		}
		entry := badger.NewEntry(sessionKey(id), data).
			WithTTL(time.Until(session.ExpiresAt))
		return txn.SetEntry(entry)
	})
}

// CleanupExpired removes expired sessions. Badger's TTL already evicts most
// of them; this sweeps any stragglers.
func (s *BadgerStore) CleanupExpired(ctx context.Context) (int, error) {
	var expired []string

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(sessionKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var session Session
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &session)
			}); err != nil {
				continue
			}
			if session.IsExpired() {
				expired = append(expired, session.ID)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	for _, id := range expired {
		if err := s.Delete(ctx, id); err != nil {
			return 0, err
		}
	}
	return len(expired), nil
}
