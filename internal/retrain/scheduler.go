// Stallcast - Market Inventory Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stallcast

// Package retrain rebuilds the prediction model from history and feedback and
// promotes it only when it is not worse than the active one.
//
// A run moves through Idle → Training → Validating → Promoting | RollingBack → Idle.
// Only one run executes at a time; triggers that arrive while a run is active are
// coalesced into it. Requests are never blocked: they keep using whichever model the
// registry held when they started, and promotion is a single pointer swap.
//
// A rejected candidate is stored inactive and recorded as a regression alert. The
// active model stays in place, so a regression is invisible to callers.
package retrain

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/tomtom215/stallcast/internal/eventbus"
	"github.com/tomtom215/stallcast/internal/logging"
	"github.com/tomtom215/stallcast/internal/metrics"
	"github.com/tomtom215/stallcast/internal/models"
	"github.com/tomtom215/stallcast/internal/predict"
)

// State is the scheduler's position in the retraining state machine.
type State int32

// States. The numeric values are exported through the retrain_state gauge.
const (
	StateIdle State = iota
	StateTraining
	StateValidating
	StatePromoting
	StateRollingBack
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateTraining:
		return "training"
	case StateValidating:
		return "validating"
	case StatePromoting:
		return "promoting"
	case StateRollingBack:
		return "rolling_back"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Triggers that start a run.
const (
	TriggerSchedule = "schedule"
	TriggerStartup  = "startup"
	TriggerManual   = "manual"
)

// Outcomes of a run, also used as metric labels.
const (
	OutcomePromoted   = "promoted"
	OutcomeRolledBack = "rolled_back"
	OutcomeFailed     = "failed"
	OutcomeCoalesced  = "coalesced"
)

// Store is the persistence the scheduler needs.
type Store interface {
	CorpusStore
	NextModelVersion(ctx context.Context) (int64, error)
	SaveModel(ctx context.Context, m *models.TrainedModel) error
	ActivateModel(ctx context.Context, version int64) error
	ActiveModel(ctx context.Context) (*models.TrainedModel, error)
	GetModel(ctx context.Context, version int64) (*models.TrainedModel, error)
	PruneModels(ctx context.Context, keep int) ([]int64, error)
	InsertAlert(ctx context.Context, a *models.RegressionAlert) error
}

// Config tunes the scheduler.
type Config struct {
	Enabled          bool
	Schedule         string
	TrainOnStartup   bool
	Timeout          time.Duration
	Tolerance        float64
	HoldoutFraction  float64
	RetainedVersions int
	Corpus           CorpusConfig
	Train            predict.TrainConfig
}

// Result describes one finished run.
type Result struct {
	Trigger          string        `json:"trigger"`
	Outcome          string        `json:"outcome"`
	CandidateVersion int64         `json:"candidate_version,omitempty"`
	ActiveVersion    int64         `json:"active_version"`
	CandidateMAE     float64       `json:"candidate_mae"`
	ActiveMAE        float64       `json:"active_mae,omitempty"`
	Corpus           CorpusStats   `json:"corpus"`
	TrainRows        int           `json:"train_rows"`
	HoldoutRows      int           `json:"holdout_rows"`
	StartedAt        time.Time     `json:"started_at"`
	Duration         time.Duration `json:"duration"`
	Error            string        `json:"error,omitempty"`
}

// Status is a snapshot for the admin API.
type Status struct {
	State           string  `json:"state"`
	ActiveVersion   int64   `json:"active_version"`
	PendingFeedback int64   `json:"pending_feedback"`
	LastRun         *Result `json:"last_run,omitempty"`
}

// Scheduler runs retraining on a cron schedule and on demand.
type Scheduler struct {
	store    Store
	registry *predict.Registry
	engine   *predict.Engine
	bus      *eventbus.Bus
	cfg      Config
	logger   zerolog.Logger

	running sync.Mutex
	state   atomic.Int32
	pending atomic.Int64
	last    atomic.Pointer[Result]

	// runs started by TriggerAsync derive from base so Close can stop them.
	base       context.Context
	cancelBase context.CancelFunc
	wg         sync.WaitGroup

	now func() time.Time
}

// New creates a scheduler. bus may be nil; then pending feedback is not counted.
func New(store Store, registry *predict.Registry, engine *predict.Engine, bus *eventbus.Bus, cfg Config) (*Scheduler, error) {
	if cfg.Enabled {
		if _, err := cron.ParseStandard(cfg.Schedule); err != nil {
			return nil, fmt.Errorf("invalid retrain schedule %q: %w", cfg.Schedule, err)
		}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Minute
	}
	if cfg.RetainedVersions < 1 {
		cfg.RetainedVersions = 1
	}
	base, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		store:      store,
		registry:   registry,
		engine:     engine,
		bus:        bus,
		cfg:        cfg,
		logger:     logging.WithComponent("retrain"),
		base:       base,
		cancelBase: cancel,
		now:        time.Now,
	}
	s.setState(StateIdle)
	return s, nil
}

// State returns the current state.
func (s *Scheduler) State() State {
	return State(s.state.Load())
}

func (s *Scheduler) setState(st State) {
	s.state.Store(int32(st))
	metrics.RetrainState.Set(float64(st))
}

// Status returns a snapshot of the scheduler.
func (s *Scheduler) Status() Status {
	return Status{
		State:           s.State().String(),
		ActiveVersion:   s.registry.ActiveVersion(),
		PendingFeedback: s.pending.Load(),
		LastRun:         s.last.Load(),
	}
}

// LoadActive restores the active model from the store. A store without models
// leaves the registry empty and requests use the heuristic path.
func (s *Scheduler) LoadActive(ctx context.Context) error {
	record, err := s.store.ActiveModel(ctx)
	if errors.Is(err, models.ErrNotFound) {
		s.logger.Info().Msg("No trained model stored, using heuristic estimates until the first retrain")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load active model: %w", err)
	}
	ens, err := decode(record)
	if err != nil {
		return err
	}
	s.registry.Promote(ens)
	s.logger.Info().Int64("version", record.Version).Float64("holdout_mae", record.HoldoutMAE).
		Msg("Loaded active model")
	return nil
}

// Activate makes a stored version active again, for manual rollback. It waits for
// no run; while one is active it returns models.ErrTrainingInProgress.
func (s *Scheduler) Activate(ctx context.Context, version int64) error {
	if !s.running.TryLock() {
		return models.ErrTrainingInProgress
	}
	defer s.running.Unlock()

	// Versions pruned from memory are reloaded from their stored artifact.
	var reloaded predict.Model
	if _, ok := s.registry.Get(version); !ok {
		record, err := s.store.GetModel(ctx, version)
		if err != nil {
			return fmt.Errorf("model version %d: %w", version, err)
		}
		ens, err := decode(record)
		if err != nil {
			return err
		}
		reloaded = ens
	}
	if err := s.store.ActivateModel(ctx, version); err != nil {
		return err
	}
	if reloaded != nil {
		s.registry.Promote(reloaded)
	} else if err := s.registry.Activate(version); err != nil {
		return err
	}
	s.logger.Warn().Int64("version", version).Msg("Model manually activated")
	return nil
}

// Trigger runs retraining synchronously. It returns models.ErrTrainingInProgress
// when a run is already active.
func (s *Scheduler) Trigger(ctx context.Context, trigger string) (*Result, error) {
	if !s.running.TryLock() {
		metrics.RecordRetrain(OutcomeCoalesced, 0)
		return nil, models.ErrTrainingInProgress
	}
	defer s.running.Unlock()

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()
	return s.run(ctx, trigger)
}

// TriggerAsync starts a run in the background and reports whether it started. A
// false return means the trigger was coalesced into the active run.
func (s *Scheduler) TriggerAsync(ctx context.Context, trigger string) bool {
	if !s.running.TryLock() {
		metrics.RecordRetrain(OutcomeCoalesced, 0)
		s.logger.Debug().Str("trigger", trigger).Msg("Retrain already running, trigger coalesced")
		return false
	}

	runCtx, cancel := context.WithTimeout(s.base, s.cfg.Timeout)
	if id := logging.CorrelationIDFromContext(ctx); id != "" {
		runCtx = logging.ContextWithCorrelationID(runCtx, id)
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.running.Unlock()
		defer cancel()
		if _, err := s.run(runCtx, trigger); err != nil {
			s.logger.Error().Err(err).Str("trigger", trigger).Msg("Retrain failed")
		}
	}()
	return true
}

// Serve schedules retraining with cron and counts feedback events until ctx ends.
// It implements suture.Service.
func (s *Scheduler) Serve(ctx context.Context) error {
	var feedback <-chan *message.Message
	if s.bus != nil {
		ch, err := s.bus.Subscribe(ctx, eventbus.TopicFeedbackRecorded)
		if err != nil {
			return err
		}
		feedback = ch
	}

	var c *cron.Cron
	if s.cfg.Enabled {
		c = cron.New(cron.WithLocation(time.UTC))
		if _, err := c.AddFunc(s.cfg.Schedule, func() { s.TriggerAsync(ctx, TriggerSchedule) }); err != nil {
			return fmt.Errorf("schedule retrain: %w", err)
		}
		c.Start()
		s.logger.Info().Str("schedule", s.cfg.Schedule).Msg("Retrain scheduler started")
		defer func() { <-c.Stop().Done() }()
	}
	if s.cfg.TrainOnStartup && s.registry.Active() == nil {
		s.TriggerAsync(ctx, TriggerStartup)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-feedback:
			if !ok {
				return fmt.Errorf("%s subscription closed", eventbus.TopicFeedbackRecorded)
			}
			s.pending.Add(1)
			msg.Ack()
		}
	}
}

func (s *Scheduler) String() string { return "retrain-scheduler" }

// Close cancels background runs and waits for them.
func (s *Scheduler) Close() {
	s.cancelBase()
	s.wg.Wait()
}

// run executes one pass of the state machine. The caller holds s.running.
func (s *Scheduler) run(ctx context.Context, trigger string) (res *Result, err error) {
	start := s.now()
	res = &Result{Trigger: trigger, StartedAt: start.UTC(), ActiveVersion: s.registry.ActiveVersion()}
	logger := logging.CtxWith(ctx).Str("component", "retrain").Logger()
	logger.Info().Str("trigger", trigger).Msg("Retrain started")

	defer func() {
		res.Duration = s.now().Sub(start)
		if err != nil {
			res.Outcome = OutcomeFailed
			res.Error = err.Error()
		}
		metrics.RecordRetrain(res.Outcome, res.Duration)
		s.last.Store(res)
		s.setState(StateIdle)
	}()

	// Training
	s.setState(StateTraining)
	pendingAtStart := s.pending.Load()
	rows, stats, err := BuildCorpus(ctx, s.store, start, s.cfg.Corpus)
	res.Corpus = stats
	if err != nil {
		return res, err
	}
	train, holdout, err := SplitHoldout(rows, s.cfg.HoldoutFraction)
	if err != nil {
		return res, err
	}
	res.TrainRows, res.HoldoutRows = len(train), len(holdout)
	candidate, err := predict.Train(train, s.cfg.Train)
	if err != nil {
		return res, fmt.Errorf("train candidate: %w", err)
	}
	version, err := s.store.NextModelVersion(ctx)
	if err != nil {
		return res, err
	}
	candidate.ModelVersion = version
	res.CandidateVersion = version

	// Validating
	s.setState(StateValidating)
	res.CandidateMAE, _ = s.engine.MAE(candidate, holdout)
	metrics.ModelHoldoutError.WithLabelValues("candidate").Set(res.CandidateMAE)
	active := s.registry.Active()
	regressed := false
	if active != nil {
		res.ActiveMAE, _ = s.engine.MAE(active, holdout)
		metrics.ModelHoldoutError.WithLabelValues("active").Set(res.ActiveMAE)
		regressed = res.CandidateMAE > res.ActiveMAE*(1+s.cfg.Tolerance)
	}

	artifact, checksum, err := predict.MarshalArtifact(candidate)
	if err != nil {
		return res, err
	}
	record := &models.TrainedModel{
		Version:        version,
		TrainedAt:      candidate.TrainedAt,
		TrainingCutoff: models.Day(start),
		TrainingRows:   candidate.Rows,
		HoldoutMAE:     res.CandidateMAE,
		Checksum:       checksum,
		Artifact:       artifact,
	}
	if err := s.store.SaveModel(ctx, record); err != nil {
		return res, err
	}

	if regressed {
		s.setState(StateRollingBack)
		res.Outcome = OutcomeRolledBack
		alert := &models.RegressionAlert{
			ID:               uuid.NewString(),
			CandidateVersion: version,
			ActiveVersion:    active.Version(),
			CandidateError:   res.CandidateMAE,
			ActiveError:      res.ActiveMAE,
			Tolerance:        s.cfg.Tolerance,
			Message: fmt.Sprintf("candidate v%d held-out MAE %.3f exceeds active v%d MAE %.3f by more than %.0f%%",
				version, res.CandidateMAE, active.Version(), res.ActiveMAE, s.cfg.Tolerance*100),
			CreatedAt: s.now().UTC(),
		}
		if err := s.store.InsertAlert(ctx, alert); err != nil {
			logger.Error().Err(err).Msg("Failed to record regression alert")
		}
		logger.Warn().
			Err(models.ErrModelRegression).
			Int64("candidate_version", version).
			Int64("active_version", active.Version()).
			Float64("candidate_mae", res.CandidateMAE).
			Float64("active_mae", res.ActiveMAE).
			Msg("Candidate model rejected, keeping active model")
		return res, nil
	}

	// Promoting
	s.setState(StatePromoting)
	if err := s.store.ActivateModel(ctx, version); err != nil {
		return res, err
	}
	s.registry.Promote(candidate)
	res.Outcome = OutcomePromoted
	res.ActiveVersion = version
	s.pending.Add(-pendingAtStart)

	if pruned, err := s.store.PruneModels(ctx, s.cfg.RetainedVersions-1); err != nil {
		logger.Warn().Err(err).Msg("Failed to prune superseded models")
	} else if len(pruned) > 0 {
		logger.Debug().Ints64("versions", pruned).Msg("Pruned superseded models")
	}

	logger.Info().
		Int64("version", version).
		Float64("holdout_mae", res.CandidateMAE).
		Int("train_rows", res.TrainRows).
		Int("holdout_rows", res.HoldoutRows).
		Msg("Model promoted")
	return res, nil
}

func decode(record *models.TrainedModel) (*predict.Ensemble, error) {
	ens, err := predict.UnmarshalArtifact(record.Artifact, record.Checksum)
	if err != nil {
		return nil, fmt.Errorf("model version %d: %w", record.Version, err)
	}
	ens.ModelVersion = record.Version
	return ens, nil
}
