// Stallcast - Market Inventory Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stallcast

// Package cache stores finished recommendation sets keyed by (seller, venue, date).
//
// Values are the exact bytes returned to the caller, so a hit is byte-identical to
// the response that populated it. Entries expire at the end of their sale date and
// are dropped early by explicit invalidation. The cache is a derived view: clearing
// it only costs recomputation.
//
// Two backends implement Store: MemoryStore (single process, LRU bounded) and
// RedisStore (shared between replicas).
package cache

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/tomtom215/stallcast/internal/logging"
	"github.com/tomtom215/stallcast/internal/metrics"
	"github.com/tomtom215/stallcast/internal/models"
)

// Invalidation reasons, used as metric labels.
const (
	ReasonTransactions = "transactions_synced"
	ReasonSignals      = "signals_updated"
	ReasonCatalog      = "catalog_changed"
	ReasonManual       = "manual"
)

// Key identifies one cached recommendation set.
type Key struct {
	SellerID string
	VenueID  string
	Date     time.Time
}

// String encodes the key as seller:venue:YYYY-MM-DD. Seller and venue ids are
// query-escaped, so neither can contain the separator or a Redis glob character.
func (k Key) String() string {
	return url.QueryEscape(k.SellerID) + ":" + url.QueryEscape(k.VenueID) + ":" + models.Day(k.Date).Format(models.DateLayout)
}

// ExpiresAt is the end of the key's sale date.
func (k Key) ExpiresAt() time.Time {
	return models.Day(k.Date).AddDate(0, 0, 1)
}

// parseKey reverses String.
func parseKey(s string) (Key, bool) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return Key{}, false
	}
	seller, err := url.QueryUnescape(parts[0])
	if err != nil {
		return Key{}, false
	}
	venue, err := url.QueryUnescape(parts[1])
	if err != nil {
		return Key{}, false
	}
	date, err := models.ParseDate(parts[2])
	if err != nil {
		return Key{}, false
	}
	return Key{SellerID: seller, VenueID: venue, Date: date}, true
}

// Selector matches a set of keys. Empty fields match anything.
type Selector struct {
	SellerID string
	VenueID  string
	Date     time.Time
}

// Matches reports whether k is selected.
func (s Selector) Matches(k Key) bool {
	if s.SellerID != "" && s.SellerID != k.SellerID {
		return false
	}
	if s.VenueID != "" && s.VenueID != k.VenueID {
		return false
	}
	if !s.Date.IsZero() && !models.Day(s.Date).Equal(models.Day(k.Date)) {
		return false
	}
	return true
}

// pattern renders the selector as a Redis glob.
func (s Selector) pattern() string {
	part := func(v string) string {
		if v == "" {
			return "*"
		}
		return url.QueryEscape(v)
	}
	date := "*"
	if !s.Date.IsZero() {
		date = models.Day(s.Date).Format(models.DateLayout)
	}
	return part(s.SellerID) + ":" + part(s.VenueID) + ":" + date
}

// globEscaper quotes the backend key prefix, which is not query-escaped.
var globEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

// Store is a byte-valued key-value backend with absolute expiry.
type Store interface {
	// Name labels metrics ("memory", "redis").
	Name() string
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, expiresAt time.Time) error
	Delete(ctx context.Context, key string) error
	// DeleteMatching removes every key selected by sel and returns how many.
	DeleteMatching(ctx context.Context, sel Selector) (int, error)
	Clear(ctx context.Context) error
}

// Sweeper is implemented by backends that need expired entries removed actively.
type Sweeper interface {
	Sweep(now time.Time) int
}

// Cache is the recommendation cache.
type Cache struct {
	store Store
	now   func() time.Time
}

// New wraps store.
func New(store Store) *Cache {
	return &Cache{store: store, now: time.Now}
}

// Get returns the cached payload. Backend errors are logged and reported as misses.
func (c *Cache) Get(ctx context.Context, k Key) ([]byte, bool) {
	data, ok, err := c.store.Get(ctx, k.String())
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("key", k.String()).Msg("Recommendation cache read failed")
		ok = false
	}
	metrics.RecordCacheLookup(c.store.Name(), ok)
	return data, ok
}

// Put stores payload until the end of the key's date. Writes for dates that have
// already passed are dropped. Concurrent writers of the same key race; the last
// write wins.
func (c *Cache) Put(ctx context.Context, k Key, payload []byte) error {
	expires := k.ExpiresAt()
	if !expires.After(c.now()) {
		return nil
	}
	if err := c.store.Set(ctx, k.String(), payload, expires); err != nil {
		return fmt.Errorf("cache put %s: %w", k, err)
	}
	return nil
}

// Invalidate drops one key.
func (c *Cache) Invalidate(ctx context.Context, k Key, reason string) error {
	if err := c.store.Delete(ctx, k.String()); err != nil {
		return fmt.Errorf("cache invalidate %s: %w", k, err)
	}
	metrics.CacheInvalidations.WithLabelValues(reason).Inc()
	return nil
}

// InvalidateMatching drops every key selected by sel.
func (c *Cache) InvalidateMatching(ctx context.Context, sel Selector, reason string) (int, error) {
	n, err := c.store.DeleteMatching(ctx, sel)
	if err != nil {
		return n, fmt.Errorf("cache invalidate %s: %w", sel.pattern(), err)
	}
	if n > 0 {
		metrics.CacheInvalidations.WithLabelValues(reason).Add(float64(n))
	}
	logging.Ctx(ctx).Debug().Str("selector", sel.pattern()).Str("reason", reason).Int("removed", n).
		Msg("Invalidated recommendation cache entries")
	return n, nil
}

// InvalidateVenueDate drops every seller's set for one venue and date.
func (c *Cache) InvalidateVenueDate(ctx context.Context, venueID string, date time.Time, reason string) (int, error) {
	return c.InvalidateMatching(ctx, Selector{VenueID: venueID, Date: date}, reason)
}

// InvalidateSeller drops every set of one seller.
func (c *Cache) InvalidateSeller(ctx context.Context, sellerID, reason string) (int, error) {
	return c.InvalidateMatching(ctx, Selector{SellerID: sellerID}, reason)
}

// Clear drops everything.
func (c *Cache) Clear(ctx context.Context, reason string) error {
	if err := c.store.Clear(ctx); err != nil {
		return fmt.Errorf("cache clear: %w", err)
	}
	metrics.CacheInvalidations.WithLabelValues(reason).Inc()
	return nil
}

// Sweep removes expired entries when the backend needs it and returns the count.
func (c *Cache) Sweep() int {
	if s, ok := c.store.(Sweeper); ok {
		return s.Sweep(c.now())
	}
	return 0
}

// Backend returns the store name.
func (c *Cache) Backend() string {
	return c.store.Name()
}
