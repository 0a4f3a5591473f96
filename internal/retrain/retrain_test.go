// Stallcast - Market Inventory Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stallcast

package retrain

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/stallcast/internal/features"
	"github.com/tomtom215/stallcast/internal/models"
	"github.com/tomtom215/stallcast/internal/predict"
)

// memStore is an in-memory Store.
type memStore struct {
	mu          sync.Mutex
	txns        []models.Transaction
	products    []models.Product
	appearances []models.Appearance
	feedback    []models.Feedback
	trained     map[int64]*models.TrainedModel
	alerts      []models.RegressionAlert
	nextVersion int64
}

func newMemStore() *memStore {
	return &memStore{trained: map[int64]*models.TrainedModel{}, nextVersion: 10}
}

func (m *memStore) QueryTransactions(_ context.Context, q models.TransactionQuery) ([]models.Transaction, error) {
	var out []models.Transaction
	for _, t := range m.txns {
		if t.SoldAt.Before(q.From) || !t.SoldAt.Before(q.To) {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func (m *memStore) ListAllProducts(context.Context) ([]models.Product, error) {
	return m.products, nil
}

func (m *memStore) ListAppearancesSince(_ context.Context, from time.Time) ([]models.Appearance, error) {
	var out []models.Appearance
	for _, a := range m.appearances {
		if !a.Date.Before(from) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *memStore) ListFeedbackSince(_ context.Context, from time.Time) ([]models.Feedback, error) {
	var out []models.Feedback
	for _, f := range m.feedback {
		if !f.Date.Before(from) {
			out = append(out, f)
		}
	}
	return out, nil
}

func (m *memStore) NextModelVersion(context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v := m.nextVersion
	m.nextVersion++
	return v, nil
}

func (m *memStore) SaveModel(_ context.Context, tm *models.TrainedModel) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.trained[tm.Version]; ok {
		return models.ErrConflict
	}
	cp := *tm
	m.trained[tm.Version] = &cp
	return nil
}

func (m *memStore) ActivateModel(_ context.Context, version int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.trained[version]; !ok {
		return models.ErrNotFound
	}
	for v, tm := range m.trained {
		tm.Active = v == version
	}
	return nil
}

func (m *memStore) ActiveModel(context.Context) (*models.TrainedModel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, tm := range m.trained {
		if tm.Active {
			return tm, nil
		}
	}
	return nil, models.ErrNotFound
}

func (m *memStore) GetModel(_ context.Context, version int64) (*models.TrainedModel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tm, ok := m.trained[version]
	if !ok {
		return nil, models.ErrNotFound
	}
	return tm, nil
}

func (m *memStore) PruneModels(_ context.Context, keep int) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var inactive []int64
	for v, tm := range m.trained {
		if !tm.Active {
			inactive = append(inactive, v)
		}
	}
	slices.Sort(inactive)
	slices.Reverse(inactive)
	var pruned []int64
	if len(inactive) > keep {
		pruned = inactive[keep:]
	}
	for _, v := range pruned {
		delete(m.trained, v)
	}
	return pruned, nil
}

func (m *memStore) InsertAlert(_ context.Context, a *models.RegressionAlert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts = append(m.alerts, *a)
	return nil
}

// oracleModel knows the true weather ratio of the seeded market.
type oracleModel struct{ version int64 }

func (o oracleModel) Version() int64 { return o.version }
func (o oracleModel) PredictRatio(fv *features.FeatureVector) (float64, float64) {
	if fv.Condition == models.ConditionRain {
		return 0.5, 0
	}
	return 1.5, 0
}

type constModel struct {
	version int64
	ratio   float64
}

func (c constModel) Version() int64 { return c.version }
func (c constModel) PredictRatio(*features.FeatureVector) (float64, float64) {
	return c.ratio, 0
}

var cutoff = time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

// seedMarket stores 30 weekly market days at one venue. Rainy weeks sell 10 loaves,
// clear weeks 30, so the four-week rolling mean is always 20.
func seedMarket(s *memStore) {
	s.products = []models.Product{{ID: "sourdough", SellerID: "s1", Name: "Sourdough", Category: models.CategoryBakedGoods, Active: true}}
	for w := 30; w >= 1; w-- {
		day := models.Day(cutoff).AddDate(0, 0, -7*w)
		cond, qty := models.ConditionClear, 30.0
		if w%2 == 0 {
			cond, qty = models.ConditionRain, 10.0
		}
		s.txns = append(s.txns, models.Transaction{
			ID: fmt.Sprintf("t%d", w), SellerID: "s1", ProductID: "sourdough", VenueID: "v1",
			Quantity: qty, SoldAt: day.Add(10 * time.Hour),
		})
		s.appearances = append(s.appearances, models.Appearance{
			ID: fmt.Sprintf("a%d", w), SellerID: "s1", VenueID: "v1", Date: day,
			Status:  models.AppearanceCompleted,
			Weather: &models.WeatherSignal{TemperatureC: 15, PrecipitationProb: 0.1, Condition: cond},
		})
	}
}

func testConfig() Config {
	return Config{
		Timeout:          time.Minute,
		Tolerance:        0.05,
		HoldoutFraction:  0.2,
		RetainedVersions: 3,
		Corpus: CorpusConfig{
			WindowDays:          730,
			HistoryWindow:       4,
			MaxFeedbackVariance: 3,
			Thresholds:          features.AttendanceThresholds{Large: 5000, Medium: 1000},
		},
		Train: predict.DefaultTrainConfig(),
	}
}

func newTestScheduler(t *testing.T, store *memStore, cfg Config) *Scheduler {
	t.Helper()
	s, err := New(store, predict.NewRegistry(cfg.RetainedVersions), predict.NewEngine(predict.DefaultConfig()), nil, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s.now = func() time.Time { return cutoff }
	t.Cleanup(s.Close)
	return s
}

func TestBuildCorpus(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	seedMarket(store)
	last := models.Day(cutoff).AddDate(0, 0, -7)
	store.feedback = []models.Feedback{
		// Overrides the 30 recorded in transactions.
		{AppearanceID: "a1", ProductID: "sourdough", SellerID: "s1", VenueID: "v1", Date: last, Recommended: 25, Actual: 28, Variance: 3},
		// Filtered: 100 against a recommendation of 20.
		{AppearanceID: "a2", ProductID: "sourdough", SellerID: "s1", VenueID: "v1", Date: last.AddDate(0, 0, -7), Recommended: 20, Actual: 100, Variance: 80},
	}

	rows, stats, err := BuildCorpus(context.Background(), store, cutoff, testConfig().Corpus)
	if err != nil {
		t.Fatalf("BuildCorpus: %v", err)
	}
	// The first market day has no earlier sales and yields no row.
	if len(rows) != 29 || stats.Rows != 29 {
		t.Fatalf("rows = %d, want 29", len(rows))
	}
	if stats.Feedback != 1 || stats.FeedbackFiltered != 1 {
		t.Errorf("stats = %+v", stats)
	}
	for i := 1; i < len(rows); i++ {
		if rows[i].Date.Before(rows[i-1].Date) {
			t.Fatal("rows must be date ordered")
		}
	}

	final := rows[len(rows)-1]
	if final.Actual != 28 {
		t.Errorf("final actual = %v, want feedback override 28", final.Actual)
	}
	if final.Vector.Condition != models.ConditionClear {
		t.Errorf("condition = %s, want weather stored on the appearance", final.Vector.Condition)
	}
	if final.Vector.VenueVisits != 29 {
		t.Errorf("visits = %d, want 29 earlier visits", final.Vector.VenueVisits)
	}
	if got := final.Vector.VenueRollingMean.Value; got != 20 {
		t.Errorf("rolling mean = %v, want 20", got)
	}
}

func TestSplitHoldout(t *testing.T) {
	t.Parallel()

	day := func(d int) time.Time { return time.Date(2026, 1, d, 0, 0, 0, 0, time.UTC) }
	rows := []predict.Row{{Date: day(1)}, {Date: day(2)}, {Date: day(3)}, {Date: day(4)}, {Date: day(4)}, {Date: day(5)}}

	train, holdout, err := SplitHoldout(rows, 0.4)
	if err != nil {
		t.Fatal(err)
	}
	// round(6*0.6) = 4 lands inside day 4, so the split moves past it.
	if len(train) != 5 || len(holdout) != 1 {
		t.Errorf("split = %d/%d, want 5/1", len(train), len(holdout))
	}

	if _, _, err := SplitHoldout(rows[:1], 0.2); !errors.Is(err, models.ErrInsufficientData) {
		t.Errorf("err = %v, want ErrInsufficientData", err)
	}
	if _, _, err := SplitHoldout(rows, 1.5); !errors.Is(err, models.ErrInvalidInput) {
		t.Errorf("err = %v, want ErrInvalidInput", err)
	}
}

func TestTriggerPromotesFirstModel(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	seedMarket(store)
	s := newTestScheduler(t, store, testConfig())

	res, err := s.Trigger(context.Background(), TriggerManual)
	if err != nil {
		t.Fatalf("Trigger: %v", err)
	}
	if res.Outcome != OutcomePromoted || res.CandidateVersion != 10 {
		t.Fatalf("result = %+v", res)
	}
	if s.registry.ActiveVersion() != 10 {
		t.Errorf("registry active = %d", s.registry.ActiveVersion())
	}
	if rec, err := store.ActiveModel(context.Background()); err != nil || rec.Version != 10 || len(rec.Artifact) == 0 {
		t.Errorf("stored active = %+v, %v", rec, err)
	}
	if s.State() != StateIdle {
		t.Errorf("state = %s after run", s.State())
	}
	if st := s.Status(); st.LastRun == nil || st.LastRun.Outcome != OutcomePromoted {
		t.Errorf("status = %+v", st)
	}
}

func TestTriggerPromotesBetterCandidate(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	seedMarket(store)
	s := newTestScheduler(t, store, testConfig())
	s.registry.Promote(constModel{version: 1, ratio: 3})

	res, err := s.Trigger(context.Background(), TriggerManual)
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != OutcomePromoted || res.CandidateMAE >= res.ActiveMAE {
		t.Fatalf("result = %+v", res)
	}
	if s.registry.ActiveVersion() != res.CandidateVersion {
		t.Error("better candidate must become active")
	}
	if _, ok := s.registry.Get(1); !ok {
		t.Error("superseded version must be retained")
	}
}

func TestTriggerRollsBackRegression(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	seedMarket(store)
	cfg := testConfig()
	// A single-leaf ensemble cannot see the weather and must lose to the oracle.
	cfg.Train.MinLeaf = 1000
	s := newTestScheduler(t, store, cfg)
	s.registry.Promote(oracleModel{version: 4})

	res, err := s.Trigger(context.Background(), TriggerSchedule)
	if err != nil {
		t.Fatalf("a regression is not a caller error: %v", err)
	}
	if res.Outcome != OutcomeRolledBack {
		t.Fatalf("outcome = %s, want rolled_back (candidate %.3f, active %.3f)", res.Outcome, res.CandidateMAE, res.ActiveMAE)
	}
	if s.registry.ActiveVersion() != 4 {
		t.Errorf("active = %d, want the previous model", s.registry.ActiveVersion())
	}
	if len(store.alerts) != 1 || store.alerts[0].CandidateVersion != res.CandidateVersion || store.alerts[0].ActiveVersion != 4 {
		t.Errorf("alerts = %+v", store.alerts)
	}
	rec, err := store.GetModel(context.Background(), res.CandidateVersion)
	if err != nil || rec.Active {
		t.Errorf("rejected candidate must be stored inactive: %+v, %v", rec, err)
	}
}

func TestTriggerCoalesces(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	seedMarket(store)
	s := newTestScheduler(t, store, testConfig())

	s.running.Lock()
	if _, err := s.Trigger(context.Background(), TriggerManual); !errors.Is(err, models.ErrTrainingInProgress) {
		t.Errorf("err = %v, want ErrTrainingInProgress", err)
	}
	if s.TriggerAsync(context.Background(), TriggerManual) {
		t.Error("a trigger during a run must be coalesced")
	}
	if err := s.Activate(context.Background(), 1); !errors.Is(err, models.ErrTrainingInProgress) {
		t.Errorf("Activate err = %v", err)
	}
	s.running.Unlock()

	if !s.TriggerAsync(context.Background(), TriggerManual) {
		t.Fatal("trigger must start once idle")
	}
	deadline := time.Now().Add(10 * time.Second)
	for s.Status().LastRun == nil {
		if time.Now().After(deadline) {
			t.Fatal("background run did not finish")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestLoadActiveAndManualActivate(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	seedMarket(store)
	first := newTestScheduler(t, store, testConfig())
	if _, err := first.Trigger(context.Background(), TriggerManual); err != nil {
		t.Fatal(err)
	}
	if _, err := first.Trigger(context.Background(), TriggerManual); err != nil {
		t.Fatal(err)
	}
	// Equal data trains an equal candidate, which is within tolerance.
	if first.registry.ActiveVersion() != 11 {
		t.Fatalf("active = %d, want 11", first.registry.ActiveVersion())
	}

	restarted := newTestScheduler(t, store, testConfig())
	if err := restarted.LoadActive(context.Background()); err != nil {
		t.Fatalf("LoadActive: %v", err)
	}
	if restarted.registry.ActiveVersion() != 11 {
		t.Errorf("loaded version = %d", restarted.registry.ActiveVersion())
	}

	if err := restarted.Activate(context.Background(), 10); err != nil {
		t.Fatalf("Activate: %v", err)
	}
	if restarted.registry.ActiveVersion() != 10 {
		t.Errorf("active after rollback = %d", restarted.registry.ActiveVersion())
	}
	if rec, _ := store.ActiveModel(context.Background()); rec.Version != 10 {
		t.Errorf("stored active = %d", rec.Version)
	}
	if err := restarted.Activate(context.Background(), 99); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("unknown version err = %v", err)
	}

	// Version 10 is still retained by the first scheduler and is swapped back in place.
	retained, ok := first.registry.Get(10)
	if !ok {
		t.Fatal("version 10 must be retained")
	}
	if err := first.Activate(context.Background(), 10); err != nil {
		t.Fatalf("Activate(retained): %v", err)
	}
	if first.registry.Active() != retained {
		t.Error("a retained version must be reactivated without a reload")
	}
}

func TestLoadActiveEmptyStore(t *testing.T) {
	t.Parallel()

	s := newTestScheduler(t, newMemStore(), testConfig())
	if err := s.LoadActive(context.Background()); err != nil {
		t.Fatal(err)
	}
	if s.registry.Active() != nil {
		t.Error("registry must stay empty")
	}
}

func TestNewRejectsBadSchedule(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Enabled = true
	cfg.Schedule = "every sunday"
	if _, err := New(newMemStore(), predict.NewRegistry(1), predict.NewEngine(predict.DefaultConfig()), nil, cfg); err == nil {
		t.Error("invalid cron expression must be rejected")
	}
}
