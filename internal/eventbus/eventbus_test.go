// Stallcast - Market Inventory Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stallcast

package eventbus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/stallcast/internal/logging"
	"github.com/tomtom215/stallcast/internal/signals"
)

type recordingCache struct {
	mu      sync.Mutex
	sellers []string
	venues  []string
}

func (r *recordingCache) InvalidateSeller(_ context.Context, sellerID, _ string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sellers = append(r.sellers, sellerID)
	return 1, nil
}

func (r *recordingCache) InvalidateVenueDate(_ context.Context, venueID string, date time.Time, _ string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.venues = append(r.venues, venueID+"@"+date.Format("2006-01-02"))
	return 1, nil
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for condition")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func startInvalidator(t *testing.T) (*Bus, *recordingCache, *Invalidator) {
	t.Helper()
	bus := New(16)
	rec := &recordingCache{}
	inv := NewInvalidator(bus, rec)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = inv.Serve(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		_ = bus.Close()
	})

	select {
	case <-inv.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("invalidator did not subscribe")
	}
	return bus, rec, inv
}

func TestInvalidatorTransactions(t *testing.T) {
	t.Parallel()

	bus, rec, inv := startInvalidator(t)
	ctx := logging.ContextWithCorrelationID(context.Background(), "corr-1")
	if err := bus.Publish(ctx, TopicTransactionsSynced, TransactionsSynced{SellerID: "s1", VenueIDs: []string{"v1"}, Count: 3}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	waitFor(t, func() bool { return inv.handledCount() == 1 })
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.sellers) != 1 || rec.sellers[0] != "s1" {
		t.Errorf("sellers invalidated = %v", rec.sellers)
	}
}

func TestInvalidatorCatalog(t *testing.T) {
	t.Parallel()

	bus, rec, inv := startInvalidator(t)
	if err := bus.Publish(context.Background(), TopicCatalogChanged, CatalogChanged{SellerID: "s7", ProductID: "jam"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	waitFor(t, func() bool { return inv.handledCount() == 1 })
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.sellers) != 1 || rec.sellers[0] != "s7" {
		t.Errorf("sellers invalidated = %v", rec.sellers)
	}
}

func TestInvalidatorSignals(t *testing.T) {
	t.Parallel()

	bus, rec, inv := startInvalidator(t)
	hook := SignalChangePublisher(bus)
	hook(signals.SignalWeather, signals.Query{VenueID: "v9", Date: time.Date(2026, 11, 7, 8, 0, 0, 0, time.UTC)})

	// A malformed event is acked and skipped.
	if err := bus.Publish(context.Background(), TopicSignalsUpdated, SignalsUpdated{VenueID: "v9", Date: "not-a-date"}); err != nil {
		t.Fatal(err)
	}

	waitFor(t, func() bool { return inv.handledCount() == 2 })
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.venues) != 1 || rec.venues[0] != "v9@2026-11-07" {
		t.Errorf("venues invalidated = %v", rec.venues)
	}
}

func TestDecodeRestoresCorrelationID(t *testing.T) {
	t.Parallel()

	bus := New(4)
	defer func() { _ = bus.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, err := bus.Subscribe(ctx, TopicFeedbackRecorded)
	if err != nil {
		t.Fatal(err)
	}

	pubCtx := logging.ContextWithCorrelationID(context.Background(), "abc123")
	if err := bus.Publish(pubCtx, TopicFeedbackRecorded, FeedbackRecorded{ProductID: "p1", Accurate: true}); err != nil {
		t.Fatal(err)
	}

	select {
	case msg := <-ch:
		gotCtx, ev, err := Decode[FeedbackRecorded](context.Background(), msg)
		msg.Ack()
		if err != nil {
			t.Fatal(err)
		}
		if ev.ProductID != "p1" || !ev.Accurate {
			t.Errorf("decoded %+v", ev)
		}
		if logging.CorrelationIDFromContext(gotCtx) != "abc123" {
			t.Error("correlation id not restored")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no message delivered")
	}
}
