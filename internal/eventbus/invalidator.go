// Stallcast - Market Inventory Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stallcast

package eventbus

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/tomtom215/stallcast/internal/cache"
	"github.com/tomtom215/stallcast/internal/logging"
	"github.com/tomtom215/stallcast/internal/models"
	"github.com/tomtom215/stallcast/internal/signals"
)

// CacheInvalidator is the part of the recommendation cache the consumer needs.
type CacheInvalidator interface {
	InvalidateSeller(ctx context.Context, sellerID, reason string) (int, error)
	InvalidateVenueDate(ctx context.Context, venueID string, date time.Time, reason string) (int, error)
}

// Invalidator consumes data-change events and drops the cached recommendation
// sets they make stale. Handler failures are logged and the message is acked: the
// cache entry still expires at the end of its date.
type Invalidator struct {
	bus   *Bus
	cache CacheInvalidator

	handled   atomic.Int64
	ready     chan struct{}
	readyOnce sync.Once
}

// NewInvalidator creates the consumer.
func NewInvalidator(bus *Bus, c CacheInvalidator) *Invalidator {
	return &Invalidator{bus: bus, cache: c, ready: make(chan struct{})}
}

// Serve subscribes and processes events until ctx ends. It implements
// suture.Service.
func (inv *Invalidator) Serve(ctx context.Context) error {
	txns, err := inv.bus.Subscribe(ctx, TopicTransactionsSynced)
	if err != nil {
		return err
	}
	sigs, err := inv.bus.Subscribe(ctx, TopicSignalsUpdated)
	if err != nil {
		return err
	}
	catalog, err := inv.bus.Subscribe(ctx, TopicCatalogChanged)
	if err != nil {
		return err
	}
	inv.readyOnce.Do(func() { close(inv.ready) })

	logger := logging.WithComponent("cache-invalidator")
	logger.Info().Msg("Cache invalidator started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-txns:
			if !ok {
				return fmt.Errorf("%s subscription closed", TopicTransactionsSynced)
			}
			inv.handle(ctx, msg, inv.onTransactions)
		case msg, ok := <-sigs:
			if !ok {
				return fmt.Errorf("%s subscription closed", TopicSignalsUpdated)
			}
			inv.handle(ctx, msg, inv.onSignals)
		case msg, ok := <-catalog:
			if !ok {
				return fmt.Errorf("%s subscription closed", TopicCatalogChanged)
			}
			inv.handle(ctx, msg, inv.onCatalog)
		}
	}
}

// Ready is closed once every subscription is live.
func (inv *Invalidator) Ready() <-chan struct{} {
	return inv.ready
}

// handledCount returns the number of processed messages.
func (inv *Invalidator) handledCount() int64 {
	return inv.handled.Load()
}

func (inv *Invalidator) String() string { return "cache-invalidator" }

func (inv *Invalidator) handle(ctx context.Context, msg *message.Message, fn func(context.Context, *message.Message) error) {
	if err := fn(ctx, msg); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("message_id", msg.UUID).Msg("Cache invalidation failed")
	}
	msg.Ack()
	inv.handled.Add(1)
}

func (inv *Invalidator) onTransactions(ctx context.Context, msg *message.Message) error {
	ctx, ev, err := Decode[TransactionsSynced](ctx, msg)
	if err != nil {
		return err
	}
	_, err = inv.cache.InvalidateSeller(ctx, ev.SellerID, cache.ReasonTransactions)
	return err
}

func (inv *Invalidator) onCatalog(ctx context.Context, msg *message.Message) error {
	ctx, ev, err := Decode[CatalogChanged](ctx, msg)
	if err != nil {
		return err
	}
	_, err = inv.cache.InvalidateSeller(ctx, ev.SellerID, cache.ReasonCatalog)
	return err
}

func (inv *Invalidator) onSignals(ctx context.Context, msg *message.Message) error {
	ctx, ev, err := Decode[SignalsUpdated](ctx, msg)
	if err != nil {
		return err
	}
	date, err := models.ParseDate(ev.Date)
	if err != nil {
		return fmt.Errorf("signals.updated date %q: %w", ev.Date, err)
	}
	_, err = inv.cache.InvalidateVenueDate(ctx, ev.VenueID, date, cache.ReasonSignals)
	return err
}

// SignalChangePublisher returns a hook that publishes SignalsUpdated for every
// changed live lookup reported by the weather and event adapters.
func SignalChangePublisher(bus *Bus) signals.ChangeHook {
	return func(signal string, q signals.Query) {
		ev := SignalsUpdated{Signal: signal, VenueID: q.VenueID, Date: models.Day(q.Date).Format(models.DateLayout)}
		if err := bus.Publish(context.Background(), TopicSignalsUpdated, ev); err != nil {
			logging.Warn().Err(err).Str("signal", signal).Str("venue_id", q.VenueID).Msg("Failed to publish signal change")
		}
	}
}
