//go:build unit

package forecast_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Nazarious-ucu/rain-notifier/internal/models"
	"github.com/Nazarious-ucu/rain-notifier/internal/services/forecast"
	"github.com/Nazarious-ucu/rain-notifier/pkg/logger"
)

var retryCfg = forecast.RetryConfig{MaxRetries: 2, Delay: 10 * time.Millisecond}

type attemptCounter struct {
	mu     sync.Mutex
	counts map[string]int
}

func (a *attemptCounter) ObserveFetchAttempt(result string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.counts == nil {
		a.counts = map[string]int{}
	}
	a.counts[result]++
}

// flakyServer fails the first `failures` requests with 500 and then serves forecastBody.
func flakyServer(t *testing.T, failures int32) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		n := calls.Add(1)
		if n <= failures {
			http.Error(w, fmt.Sprintf("attempt %d failed", n), http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(forecastBody))
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestRetryClient_SucceedsOnThirdAttempt(t *testing.T) {
	srv, calls := flakyServer(t, 2)

	l, err := logger.NewLogger("", "retry_test_third_attempt")
	require.NoError(t, err)

	observer := &attemptCounter{}
	c := forecast.NewRetryClient(retryCfg,
		forecast.NewClientOpenWeatherMap(srv.URL, srv.Client(), nil, l), observer, l)

	data, err := c.Fetch(context.Background(), models.ForecastQuery{City: testCity, APIKey: testAPIKey})
	require.NoError(t, err)

	assert.Equal(t, int32(3), calls.Load())
	assert.Len(t, data.List, 3)
	assert.Equal(t, 2, observer.counts["failure"])
	assert.Equal(t, 1, observer.counts["success"])
}

func TestRetryClient_GivesUpAfterThreeAttempts(t *testing.T) {
	srv, calls := flakyServer(t, 100)

	l, err := logger.NewLogger("", "retry_test_give_up")
	require.NoError(t, err)

	c := forecast.NewRetryClient(retryCfg,
		forecast.NewClientOpenWeatherMap(srv.URL, srv.Client(), nil, l), nil, l)

	_, err = c.Fetch(context.Background(), models.ForecastQuery{City: testCity, APIKey: testAPIKey})
	require.Error(t, err)

	var fetchErr *forecast.FetchError
	require.True(t, errors.As(err, &fetchErr))
	assert.Equal(t, http.StatusInternalServerError, fetchErr.StatusCode)
	assert.Equal(t, int32(3), calls.Load())
}

func TestRetryClient_WaitsBetweenAttempts(t *testing.T) {
	srv, _ := flakyServer(t, 2)

	l, err := logger.NewLogger("", "retry_test_delay")
	require.NoError(t, err)

	cfg := forecast.RetryConfig{MaxRetries: 2, Delay: 50 * time.Millisecond}
	c := forecast.NewRetryClient(cfg, forecast.NewClientOpenWeatherMap(srv.URL, srv.Client(), nil, l), nil, l)

	start := time.Now()
	_, err = c.Fetch(context.Background(), models.ForecastQuery{City: testCity, APIKey: testAPIKey})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
}

func TestRetryClient_InvalidQueryNotRetried(t *testing.T) {
	wrapped := new(mockWrapped)
	invalid := models.ForecastQuery{City: testCity}
	wrapped.On("Fetch", mock.Anything, invalid).
		Return(models.ForecastResponse{}, fmt.Errorf("%w: api key", forecast.ErrInvalidQuery)).Once()

	l, err := logger.NewLogger("", "retry_test_invalid")
	require.NoError(t, err)

	c := forecast.NewRetryClient(retryCfg, wrapped, nil, l)

	_, err = c.Fetch(context.Background(), invalid)
	assert.ErrorIs(t, err, forecast.ErrInvalidQuery)
	wrapped.AssertNumberOfCalls(t, "Fetch", 1)
}

func TestRetryClient_StopsOnCancel(t *testing.T) {
	wrapped := new(mockWrapped)
	wrapped.On("Fetch", mock.Anything, query).
		Return(models.ForecastResponse{}, errors.New("down"))

	l, err := logger.NewLogger("", "retry_test_cancel")
	require.NoError(t, err)

	c := forecast.NewRetryClient(forecast.RetryConfig{MaxRetries: 2, Delay: time.Hour}, wrapped, nil, l)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = c.Fetch(ctx, query)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	wrapped.AssertNumberOfCalls(t, "Fetch", 1)
}

func TestBreakerOverRetry_ConsecutiveRunsKeepFullRetryBudget(t *testing.T) {
	// Three failures for the first run, then two more before the provider recovers.
	srv, calls := flakyServer(t, 5)

	l, err := logger.NewLogger("", "retry_test_consecutive_runs")
	require.NoError(t, err)

	c := forecast.NewBreakerClient(breakerName, breakerCfg,
		forecast.NewRetryClient(retryCfg, forecast.NewClientOpenWeatherMap(srv.URL, srv.Client(), nil, l), nil, l),
	)
	q := models.ForecastQuery{City: testCity, APIKey: testAPIKey}

	_, err = c.Fetch(context.Background(), q)
	var fetchErr *forecast.FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, http.StatusInternalServerError, fetchErr.StatusCode)
	assert.Equal(t, int32(3), calls.Load())

	data, err := c.Fetch(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, int32(6), calls.Load())
	assert.Len(t, data.List, 3)
}
