package forecast

import (
	"context"
	"net/http"

	"github.com/Nazarious-ucu/rain-notifier/internal/models"
)

type client interface {
	Fetch(ctx context.Context, query models.ForecastQuery) (models.ForecastResponse, error)
}

type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// LinkRecorder stores a link for the run carried by ctx. It must not block the caller.
type LinkRecorder interface {
	RecordLink(ctx context.Context, link string)
}

// AttemptObserver is told the outcome of every fetch attempt.
type AttemptObserver interface {
	ObserveFetchAttempt(result string)
}

type noopRecorder struct{}

func (noopRecorder) RecordLink(context.Context, string) {}

type noopObserver struct{}

func (noopObserver) ObserveFetchAttempt(string) {}
