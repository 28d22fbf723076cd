package forecast

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/Nazarious-ucu/rain-notifier/internal/models"
)

const (
	attemptSuccess = "success"
	attemptFailure = "failure"
)

type RetryConfig struct {
	MaxRetries uint64
	Delay      time.Duration
}

// RetryClient re-runs a failed fetch up to MaxRetries more times with a fixed delay.
// Invalid queries are not retried. Wrap the retry client in a BreakerClient, not the
// other way round, so one run counts as one breaker sample.
type RetryClient struct {
	cfg      RetryConfig
	wrapped  client
	observer AttemptObserver
	logger   zerolog.Logger
}

func NewRetryClient(cfg RetryConfig, wrapped client, observer AttemptObserver, logger zerolog.Logger) *RetryClient {
	if observer == nil {
		observer = noopObserver{}
	}
	return &RetryClient{
		cfg:      cfg,
		wrapped:  wrapped,
		observer: observer,
		logger:   logger.With().Str("component", "RetryClient").Logger(),
	}
}

func (r *RetryClient) Fetch(ctx context.Context, query models.ForecastQuery) (models.ForecastResponse, error) {
	var (
		data    models.ForecastResponse
		attempt int
	)

	operation := func() error {
		attempt++
		res, err := r.wrapped.Fetch(ctx, query)
		if err != nil {
			r.observer.ObserveFetchAttempt(attemptFailure)
			if errors.Is(err, ErrInvalidQuery) {
				return backoff.Permanent(err)
			}
			return err
		}
		r.observer.ObserveFetchAttempt(attemptSuccess)
		data = res
		return nil
	}

	notify := func(err error, wait time.Duration) {
		r.logger.Warn().
			Ctx(ctx).
			Err(err).
			Int("attempt", attempt).
			Dur("retry_in", wait).
			Str("city", query.City).
			Msg("forecast fetch failed, retrying")
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(r.cfg.Delay), r.cfg.MaxRetries),
		ctx,
	)

	if err := backoff.RetryNotify(operation, policy, notify); err != nil {
		r.logger.Error().
			Ctx(ctx).
			Err(err).
			Int("attempts", attempt).
			Str("city", query.City).
			Msg("forecast fetch giving up")
		return models.ForecastResponse{}, err
	}

	if attempt > 1 {
		r.logger.Info().
			Ctx(ctx).
			Int("attempts", attempt).
			Str("city", query.City).
			Msg("forecast fetch succeeded after retry")
	}
	return data, nil
}
