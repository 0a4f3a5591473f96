// Stallcast - Market Inventory Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stallcast

package signals

import (
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tomtom215/stallcast/internal/models"
)

// ErrSnapshotMissing is returned when no snapshot exists for a key.
var ErrSnapshotMissing = errors.New("snapshot missing")

// SnapshotStore keeps the last successful provider answer per key.
type SnapshotStore interface {
	Put(key string, value any, fetchedAt time.Time) error
	Get(key string, dst any) (fetchedAt time.Time, err error)
}

// snapshotTTL bounds how long badger keeps a snapshot at all. Adapters apply their
// own, shorter max age on read.
const snapshotTTL = 30 * 24 * time.Hour

type snapshotEnvelope struct {
	FetchedAt time.Time       `json:"fetched_at"`
	Value     json.RawMessage `json:"value"`
}

// BadgerSnapshotStore persists snapshots in badger under "<signal>:<venue>:<date>" keys.
type BadgerSnapshotStore struct {
	db *badger.DB
}

// OpenBadgerSnapshotStore opens a store at path; an empty path keeps it in memory.
func OpenBadgerSnapshotStore(path string) (*BadgerSnapshotStore, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open snapshot store: %w", err)
	}
	return &BadgerSnapshotStore{db: db}, nil
}

// NewBadgerSnapshotStore wraps an already open badger database.
func NewBadgerSnapshotStore(db *badger.DB) *BadgerSnapshotStore {
	return &BadgerSnapshotStore{db: db}
}

// Put stores value as the latest snapshot for key.
func (s *BadgerSnapshotStore) Put(key string, value any, fetchedAt time.Time) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	data, err := json.Marshal(snapshotEnvelope{FetchedAt: fetchedAt.UTC(), Value: raw})
	if err != nil {
		return fmt.Errorf("marshal snapshot envelope: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry([]byte(key), data).WithTTL(snapshotTTL))
	})
}

// Get decodes the snapshot for key into dst and returns when it was fetched.
func (s *BadgerSnapshotStore) Get(key string, dst any) (time.Time, error) {
	var env snapshotEnvelope
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrSnapshotMissing
		}
		if err != nil {
			return fmt.Errorf("get snapshot: %w", err)
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &env)
		})
	})
	if err != nil {
		return time.Time{}, err
	}
	if err := json.Unmarshal(env.Value, dst); err != nil {
		return time.Time{}, fmt.Errorf("decode snapshot %s: %w", key, err)
	}
	return env.FetchedAt, nil
}

// Close closes the underlying database.
func (s *BadgerSnapshotStore) Close() error {
	return s.db.Close()
}

func snapshotKey(signal string, q Query) string {
	return signal + ":" + q.VenueID + ":" + models.Day(q.Date).Format(models.DateLayout)
}
