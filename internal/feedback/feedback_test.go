// Stallcast - Market Inventory Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stallcast

package feedback

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tomtom215/stallcast/internal/models"
)

type fakeStore struct {
	mu          sync.Mutex
	appearances map[string]*models.Appearance
	products    map[string]*models.Product
	recommended map[string]int
	feedback    map[string]*models.Feedback
	statuses    map[string]models.AppearanceStatus
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		appearances: map[string]*models.Appearance{},
		products:    map[string]*models.Product{},
		recommended: map[string]int{},
		feedback:    map[string]*models.Feedback{},
		statuses:    map[string]models.AppearanceStatus{},
	}
}

func (f *fakeStore) GetAppearance(_ context.Context, id string) (*models.Appearance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.appearances[id]
	if !ok {
		return nil, fmt.Errorf("appearance %s: %w", id, models.ErrNotFound)
	}
	cp := *a
	return &cp, nil
}

func (f *fakeStore) GetProduct(_ context.Context, id string) (*models.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.products[id]
	if !ok {
		return nil, fmt.Errorf("product %s: %w", id, models.ErrNotFound)
	}
	return p, nil
}

func (f *fakeStore) RecommendedQuantity(_ context.Context, appearanceID, productID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	q, ok := f.recommended[appearanceID+"/"+productID]
	if !ok {
		return 0, models.ErrNotFound
	}
	return q, nil
}

func (f *fakeStore) InsertFeedback(_ context.Context, fb *models.Feedback) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := fb.AppearanceID + "/" + fb.ProductID
	if _, ok := f.feedback[key]; ok {
		return fmt.Errorf("feedback %s: %w", key, models.ErrConflict)
	}
	f.feedback[key] = fb
	return nil
}

func (f *fakeStore) UpdateAppearanceStatus(_ context.Context, id string, status models.AppearanceStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[id] = status
	return nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	topics []string
}

func (p *recordingPublisher) Publish(_ context.Context, topic string, _ any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	return nil
}

var today = time.Date(2026, 6, 10, 14, 0, 0, 0, time.UTC)

func setup(t *testing.T) (*Ingestor, *fakeStore, *recordingPublisher) {
	t.Helper()
	store := newFakeStore()
	store.appearances["a-past"] = &models.Appearance{ID: "a-past", SellerID: "s1", VenueID: "v1",
		Date: today.AddDate(0, 0, -3), Status: models.AppearancePlanned}
	store.appearances["a-today"] = &models.Appearance{ID: "a-today", SellerID: "s1", VenueID: "v1",
		Date: models.Day(today), Status: models.AppearancePlanned}
	store.appearances["a-cancelled"] = &models.Appearance{ID: "a-cancelled", SellerID: "s1", VenueID: "v1",
		Date: today.AddDate(0, 0, -7), Status: models.AppearanceCancelled}
	store.products["sourdough"] = &models.Product{ID: "sourdough", SellerID: "s1", Name: "Sourdough", Unit: "loaf"}
	store.products["cookies"] = &models.Product{ID: "cookies", SellerID: "s1", Name: "Cookies", Unit: "each"}
	store.products["other"] = &models.Product{ID: "other", SellerID: "s2", Name: "Jam"}
	store.recommended["a-past/sourdough"] = 23

	pub := &recordingPublisher{}
	in := NewIngestor(store, pub)
	in.now = func() time.Time { return today }
	return in, store, pub
}

func TestSubmitAccepted(t *testing.T) {
	t.Parallel()

	in, store, pub := setup(t)
	fb, err := in.Submit(context.Background(), Submission{SellerID: "s1", AppearanceID: "a-past", ProductID: "sourdough", Actual: 20})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if fb.Recommended != 23 || fb.Variance != -3 || !fb.Accurate {
		t.Errorf("feedback = %+v", fb)
	}
	if fb.VenueID != "v1" || !fb.Date.Equal(models.Day(today.AddDate(0, 0, -3))) {
		t.Errorf("feedback context = %s %v", fb.VenueID, fb.Date)
	}
	if store.statuses["a-past"] != models.AppearanceCompleted {
		t.Error("a planned appearance must complete on its first feedback")
	}
	if len(pub.topics) != 1 {
		t.Errorf("published %v", pub.topics)
	}
}

func TestSubmitWithoutRecommendation(t *testing.T) {
	t.Parallel()

	in, _, _ := setup(t)
	fb, err := in.Submit(context.Background(), Submission{SellerID: "s1", AppearanceID: "a-past", ProductID: "cookies", Actual: 12})
	if err != nil {
		t.Fatal(err)
	}
	if fb.Recommended != 0 || fb.Variance != 12 || fb.Accurate {
		t.Errorf("feedback = %+v", fb)
	}
}

func TestSubmitRejections(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		sub  Submission
		want error
	}{
		{"today has not passed", Submission{SellerID: "s1", AppearanceID: "a-today", ProductID: "sourdough", Actual: 1}, models.ErrInvalidAppearance},
		{"cancelled", Submission{SellerID: "s1", AppearanceID: "a-cancelled", ProductID: "sourdough", Actual: 1}, models.ErrInvalidAppearance},
		{"unknown appearance", Submission{SellerID: "s1", AppearanceID: "nope", ProductID: "sourdough", Actual: 1}, models.ErrNotFound},
		{"foreign appearance", Submission{SellerID: "s2", AppearanceID: "a-past", ProductID: "other", Actual: 1}, models.ErrNotFound},
		{"foreign product", Submission{SellerID: "s1", AppearanceID: "a-past", ProductID: "other", Actual: 1}, models.ErrNotFound},
		{"negative quantity", Submission{SellerID: "s1", AppearanceID: "a-past", ProductID: "sourdough", Actual: -2}, models.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			in, _, _ := setup(t)
			if _, err := in.Submit(context.Background(), tt.sub); !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestSubmitAtMostOnce(t *testing.T) {
	t.Parallel()

	in, store, _ := setup(t)
	sub := Submission{SellerID: "s1", AppearanceID: "a-past", ProductID: "sourdough", Actual: 20}

	var wg sync.WaitGroup
	var ok, conflict atomic.Int32
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := in.Submit(context.Background(), sub)
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, models.ErrConflict):
				conflict.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if ok.Load() != 1 || conflict.Load() != 7 {
		t.Errorf("accepted %d, conflicts %d", ok.Load(), conflict.Load())
	}
	if got := store.feedback["a-past/sourdough"].Actual; got != 20 {
		t.Errorf("stored actual %v must not be overwritten", got)
	}
	if len(in.locks.m) != 0 {
		t.Errorf("lock table leaked %d keys", len(in.locks.m))
	}
}

func TestAccurate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		rec    int
		actual float64
		want   bool
	}{
		{20, 20, true},
		{20, 24, true},
		{20, 16, true},
		{20, 24.5, false},
		{20, 15, false},
		{0, 0, true},
		{0, 1, false},
	}
	for _, tt := range tests {
		if got := Accurate(tt.rec, tt.actual, DefaultAccuracyBand); got != tt.want {
			t.Errorf("Accurate(%d, %v) = %v, want %v", tt.rec, tt.actual, got, tt.want)
		}
	}
}
