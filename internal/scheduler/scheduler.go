package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/Nazarious-ucu/rain-notifier/internal/models"
	"github.com/Nazarious-ucu/rain-notifier/internal/pipeline"
)

const (
	SourceCron = "cron"
	SourceLock = "lock"
)

var parser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

type runner interface {
	Run(ctx context.Context) (models.RunResult, error)
}

type skipObserver interface {
	ObserveSkippedTrigger(source string)
}

// Scheduler fires the rain flow on a cron schedule in a fixed timezone.
type Scheduler struct {
	flow     runner
	schedule cron.Schedule
	location *time.Location
	cron     *cron.Cron
	cancel   context.CancelFunc
	m        skipObserver
	logger   zerolog.Logger
}

// New validates the 5-field spec and timezone. Overlapping triggers are skipped, never queued.
func New(flow runner, spec, timezone string, m skipObserver, logger zerolog.Logger) (*Scheduler, error) {
	logger = logger.With().Str("component", "Scheduler").Logger()

	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule timezone %q: %w", timezone, err)
	}

	schedule, err := parser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid cron spec %q: %w", spec, err)
	}

	s := &Scheduler{
		flow:     flow,
		schedule: schedule,
		location: loc,
		m:        m,
		logger:   logger,
	}

	cl := cronLogger{logger: logger, onSkip: func() { s.skipped(SourceCron) }}
	s.cron = cron.New(
		cron.WithLocation(loc),
		cron.WithParser(parser),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)

	return s, nil
}

// Start registers the job and starts the cron loop.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.cron.Schedule(s.schedule, cron.FuncJob(func() { s.Trigger(ctx) }))
	s.cron.Start()

	s.logger.Info().
		Str("timezone", s.location.String()).
		Time("next_run", s.Next(time.Now())).
		Msg("Rain scheduler started")
}

// Stop cancels in-flight runs and waits for the running job to return.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	s.logger.Info().Msg("All cron jobs finished, scheduler stopped")
}

// Next reports the first trigger strictly after t.
func (s *Scheduler) Next(t time.Time) time.Time {
	return s.schedule.Next(t.In(s.location))
}

// Trigger runs the flow once. A run already in progress elsewhere counts as a skip.
func (s *Scheduler) Trigger(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	res, err := s.flow.Run(ctx)
	switch {
	case errors.Is(err, pipeline.ErrRunInProgress):
		s.skipped(SourceLock)
	case err != nil:
		s.logger.Error().Err(err).Msg("scheduled run failed")
	default:
		s.logger.Info().
			Str("run_id", res.RunID).
			Bool("raining", res.Raining).
			Msg("scheduled run completed")
	}
}

func (s *Scheduler) skipped(source string) {
	s.logger.Warn().Str("source", source).Msg("trigger skipped, previous run still in progress")
	if s.m != nil {
		s.m.ObserveSkippedTrigger(source)
	}
}

// cronLogger routes robfig/cron logging into zerolog.
type cronLogger struct {
	logger zerolog.Logger
	onSkip func()
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	// SkipIfStillRunning reports a dropped trigger as "skip".
	if msg == "skip" && l.onSkip != nil {
		l.onSkip()
		return
	}
	l.logger.Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}
