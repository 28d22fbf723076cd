package forecast

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"github.com/Nazarious-ucu/rain-notifier/internal/models"
)

type BreakerConfig struct {
	TimeInterval time.Duration
	TimeTimeOut  time.Duration
	RepeatNumber uint32
}

// BreakerClient short-circuits fetches after RepeatNumber consecutive failures.
type BreakerClient struct {
	name    string
	cb      *gobreaker.CircuitBreaker
	wrapped client
}

func NewBreakerClient(name string, cfg BreakerConfig, wrapped client) *BreakerClient {
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    cfg.TimeInterval,
		Timeout:     cfg.TimeTimeOut,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.RepeatNumber
		},
		// A rejected query says nothing about provider health.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrInvalidQuery)
		},
	}
	return &BreakerClient{
		name:    name,
		cb:      gobreaker.NewCircuitBreaker(settings),
		wrapped: wrapped,
	}
}

func (b *BreakerClient) Fetch(ctx context.Context, query models.ForecastQuery) (models.ForecastResponse, error) {
	result, err := b.cb.Execute(func() (interface{}, error) {
		return b.wrapped.Fetch(ctx, query)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return models.ForecastResponse{},
				&FetchError{Err: fmt.Errorf("%s unavailable: %w", b.name, err)}
		}
		return models.ForecastResponse{},
			fmt.Errorf("%s unavailable: %w", b.name, err)
	}
	res, ok := result.(models.ForecastResponse)
	if !ok {
		return models.ForecastResponse{},
			fmt.Errorf("%s returned unexpected result", b.name)
	}
	return res, nil
}

func (b *BreakerClient) State() gobreaker.State {
	return b.cb.State()
}
