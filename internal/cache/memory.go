// Stallcast - Market Inventory Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stallcast

package cache

import (
	"bytes"
	"context"
	"sync"
	"time"

	"github.com/tomtom215/stallcast/internal/metrics"
)

// memEntry is a node in the LRU list.
type memEntry struct {
	key       string
	value     []byte
	expiresAt time.Time
	prev      *memEntry
	next      *memEntry
}

// MemoryStore is an in-process Store with absolute expiry and LRU eviction once
// capacity is reached. Get, Set and Delete are O(1).
//
// head.next is the most recently used entry, tail.prev the least.
type MemoryStore struct {
	mu       sync.Mutex
	capacity int
	items    map[string]*memEntry
	head     *memEntry
	tail     *memEntry
	now      func() time.Time
}

// NewMemoryStore creates a store bounded to capacity entries (default 10000).
func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = 10000
	}
	s := &MemoryStore{
		capacity: capacity,
		items:    make(map[string]*memEntry),
		head:     &memEntry{},
		tail:     &memEntry{},
		now:      time.Now,
	}
	s.head.next = s.tail
	s.tail.prev = s.head
	return s
}

// Name implements Store.
func (s *MemoryStore) Name() string { return "memory" }

// Get implements Store. Expired entries are removed lazily. The returned slice is a
// copy so callers cannot mutate the cached bytes.
func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.items[key]
	if !ok {
		return nil, false, nil
	}
	if !s.now().Before(e.expiresAt) {
		s.removeEntry(e)
		return nil, false, nil
	}
	s.moveToFront(e)
	return bytes.Clone(e.value), true, nil
}

// Set implements Store.
func (s *MemoryStore) Set(_ context.Context, key string, value []byte, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.items[key]; ok {
		e.value = bytes.Clone(value)
		e.expiresAt = expiresAt
		s.moveToFront(e)
		return nil
	}

	e := &memEntry{key: key, value: bytes.Clone(value), expiresAt: expiresAt}
	s.addToFront(e)
	s.items[key] = e
	for len(s.items) > s.capacity {
		s.removeEntry(s.tail.prev)
	}
	metrics.CacheEntries.Set(float64(len(s.items)))
	return nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.items[key]; ok {
		s.removeEntry(e)
	}
	return nil
}

// DeleteMatching implements Store.
func (s *MemoryStore) DeleteMatching(_ context.Context, sel Selector) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, e := range s.items {
		if k, ok := parseKey(key); ok && sel.Matches(k) {
			s.removeEntry(e)
			removed++
		}
	}
	return removed, nil
}

// Clear implements Store.
func (s *MemoryStore) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = make(map[string]*memEntry)
	s.head.next = s.tail
	s.tail.prev = s.head
	metrics.CacheEntries.Set(0)
	return nil
}

// Sweep removes every entry expired at now.
func (s *MemoryStore) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for e := s.tail.prev; e != s.head; {
		prev := e.prev
		if !now.Before(e.expiresAt) {
			s.removeEntry(e)
			removed++
		}
		e = prev
	}
	return removed
}

// size returns the number of entries, expired ones included until swept.
func (s *MemoryStore) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Internal list helpers; the caller holds mu.

func (s *MemoryStore) addToFront(e *memEntry) {
	e.prev = s.head
	e.next = s.head.next
	s.head.next.prev = e
	s.head.next = e
}

func (s *MemoryStore) moveToFront(e *memEntry) {
	e.prev.next = e.next
	e.next.prev = e.prev
	s.addToFront(e)
}

func (s *MemoryStore) removeEntry(e *memEntry) {
	e.prev.next = e.next
	e.next.prev = e.prev
	delete(s.items, e.key)
	metrics.CacheEntries.Set(float64(len(s.items)))
}
