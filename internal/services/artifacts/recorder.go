package artifacts

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const writeTimeout = 5 * time.Second

type ctxKey struct{}

// WithRunID attaches the current run id so stages can attribute artifacts.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, runID)
}

func RunIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ctxKey{}).(string)
	return id, ok && id != ""
}

type linkStore interface {
	AddLinkArtifact(ctx context.Context, runID, link string) error
}

// Recorder writes link artifacts in the background. Failures are logged and dropped.
type Recorder struct {
	store  linkStore
	logger zerolog.Logger
	wg     sync.WaitGroup
}

func NewRecorder(store linkStore, logger zerolog.Logger) *Recorder {
	return &Recorder{
		store:  store,
		logger: logger.With().Str("component", "ArtifactRecorder").Logger(),
	}
}

// RecordLink returns immediately. Links recorded outside a run are dropped.
func (r *Recorder) RecordLink(ctx context.Context, link string) {
	runID, ok := RunIDFromContext(ctx)
	if !ok {
		r.logger.Debug().Str("link", link).Msg("no run in context, link artifact dropped")
		return
	}

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer cancel()

		if err := r.store.AddLinkArtifact(writeCtx, runID, link); err != nil {
			r.logger.Warn().Err(err).Str("run_id", runID).Msg("failed to record link artifact")
			return
		}
		r.logger.Info().Str("run_id", runID).Str("link", link).Msg("link artifact recorded")
	}()
}

// Wait blocks until every pending write has finished.
func (r *Recorder) Wait() {
	r.wg.Wait()
}
