package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Nazarious-ucu/rain-notifier/internal/config"
	"github.com/Nazarious-ucu/rain-notifier/internal/models"
	"github.com/Nazarious-ucu/rain-notifier/internal/repository/lock"
	"github.com/Nazarious-ucu/rain-notifier/internal/services/artifacts"
	"github.com/Nazarious-ucu/rain-notifier/internal/services/classifier"
)

// ErrRunInProgress is returned when a trigger arrives while another run holds the lock.
var ErrRunInProgress = errors.New("a run is already in progress")

type forecastFetcher interface {
	Fetch(ctx context.Context, query models.ForecastQuery) (models.ForecastResponse, error)
}

type notifier interface {
	Send(ctx context.Context) error
	Message() string
}

type runStore interface {
	CreateRun(ctx context.Context, run models.RunRecord) error
	FinishRun(ctx context.Context, id string, state models.RunState, raining *bool, runErr string, at time.Time) error
}

type pendingWaiter interface {
	Wait()
}

type runObserver interface {
	ObserveRun(state string, d time.Duration)
	ObserveDecision(raining bool)
}

// Settings are the per-flow inputs that do not change between runs.
type Settings struct {
	City    string
	APIKey  config.SecretString
	Timeout time.Duration
}

// Flow runs fetch, classify and notify once per call.
type Flow struct {
	settings  Settings
	fetcher   forecastFetcher
	rain      notifier
	dry       notifier
	store     runStore
	artifacts pendingWaiter
	locker    lock.Locker
	m         runObserver
	logger    zerolog.Logger
	now       func() time.Time
}

// New wires a Flow. store, artifacts and m may be nil; locker defaults to an in-process lock.
func New(
	settings Settings,
	fetcher forecastFetcher,
	rain, dry notifier,
	store runStore,
	artifacts pendingWaiter,
	locker lock.Locker,
	m runObserver,
	logger zerolog.Logger,
) *Flow {
	if locker == nil {
		locker = lock.NewMemoryLock()
	}
	return &Flow{
		settings:  settings,
		fetcher:   fetcher,
		rain:      rain,
		dry:       dry,
		store:     store,
		artifacts: artifacts,
		locker:    locker,
		m:         m,
		logger:    logger.With().Str("component", "RainFlow").Logger(),
		now:       time.Now,
	}
}

// Run executes one pipeline run. A fetch failure aborts before any notifier is called.
func (f *Flow) Run(ctx context.Context) (models.RunResult, error) {
	release, err := f.locker.Acquire(ctx)
	if err != nil {
		if errors.Is(err, lock.ErrHeld) {
			f.logger.Warn().Ctx(ctx).Msg("run skipped, previous run still in progress")
			return models.RunResult{}, ErrRunInProgress
		}
		return models.RunResult{}, fmt.Errorf("acquire run lock: %w", err)
	}
	defer release()

	if f.settings.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.settings.Timeout)
		defer cancel()
	}

	runID := uuid.NewString()
	ctx = artifacts.WithRunID(ctx, runID)
	logger := f.logger.With().Str("run_id", runID).Str("city", f.settings.City).Logger()
	start := f.now()

	f.createRun(ctx, logger, models.RunRecord{
		ID:        runID,
		City:      f.settings.City,
		State:     models.RunStateRunning,
		StartedAt: start,
	})
	logger.Info().Msg("run started")

	result, err := f.execute(ctx, logger, runID)

	// Wait for artifact writes so the run record is complete when Run returns.
	if f.artifacts != nil {
		f.artifacts.Wait()
	}

	state := models.RunStateSuccess
	var raining *bool
	errMsg := ""
	if err != nil {
		state = models.RunStateFailed
		errMsg = err.Error()
	} else {
		raining = &result.Raining
	}

	f.finishRun(ctx, logger, runID, state, raining, errMsg)

	duration := f.now().Sub(start)
	if f.m != nil {
		f.m.ObserveRun(string(state), duration)
		if raining != nil {
			f.m.ObserveDecision(*raining)
		}
	}

	if err != nil {
		logger.Error().Err(err).Dur("duration", duration).Msg("run failed")
		return models.RunResult{RunID: runID, City: f.settings.City}, err
	}

	logger.Info().
		Bool("raining", result.Raining).
		Dur("duration", duration).
		Msg("run completed")
	return result, nil
}

func (f *Flow) execute(ctx context.Context, logger zerolog.Logger, runID string) (models.RunResult, error) {
	data, err := f.fetcher.Fetch(ctx, models.ForecastQuery{
		City:   f.settings.City,
		APIKey: f.settings.APIKey.Unmask(),
	})
	if err != nil {
		return models.RunResult{}, fmt.Errorf("fetch forecast: %w", err)
	}

	raining := classifier.IsRainingThisWeek(data)
	logger.Info().
		Int("entries", len(data.List)).
		Int("rainy_entries", classifier.RainyEntries(data)).
		Bool("raining", raining).
		Msg("forecast classified")

	n := f.dry
	if raining {
		n = f.rain
	}

	if err := n.Send(ctx); err != nil {
		return models.RunResult{}, fmt.Errorf("notify: %w", err)
	}

	return models.RunResult{
		RunID:   runID,
		City:    f.settings.City,
		Raining: raining,
		Message: n.Message(),
	}, nil
}

func (f *Flow) createRun(ctx context.Context, logger zerolog.Logger, run models.RunRecord) {
	if f.store == nil {
		return
	}
	if err := f.store.CreateRun(context.WithoutCancel(ctx), run); err != nil {
		logger.Warn().Err(err).Msg("failed to record run start")
	}
}

func (f *Flow) finishRun(
	ctx context.Context,
	logger zerolog.Logger,
	runID string,
	state models.RunState,
	raining *bool,
	errMsg string,
) {
	if f.store == nil {
		return
	}
	if err := f.store.FinishRun(context.WithoutCancel(ctx), runID, state, raining, errMsg, f.now()); err != nil {
		logger.Warn().Err(err).Msg("failed to record run result")
	}
}
