package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/Nazarious-ucu/rain-notifier/internal/models"
)

var ErrRunNotFound = errors.New("run not found")

// RunRepository persists run records and their link artifacts.
type RunRepository struct {
	DB  *sql.DB
	log zerolog.Logger
}

func NewRunRepository(db *sql.DB, logger zerolog.Logger) *RunRepository {
	logger = logger.With().Str("component", "RunRepository").Logger()
	return &RunRepository{DB: db, log: logger}
}

func (r *RunRepository) CreateRun(ctx context.Context, run models.RunRecord) error {
	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO runs (id, city, state, raining, error, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.City, string(run.State), nullBool(run.Raining), run.Error,
		run.StartedAt.UTC(), nullTime(run.FinishedAt),
	)
	if err != nil {
		r.log.Error().Err(err).Ctx(ctx).Str("run_id", run.ID).Msg("failed to insert run")
		return err
	}

	r.log.Debug().Ctx(ctx).Str("run_id", run.ID).Str("state", string(run.State)).Msg("run created")
	return nil
}

// FinishRun sets the final state of a run.
func (r *RunRepository) FinishRun(
	ctx context.Context,
	id string,
	state models.RunState,
	raining *bool,
	runErr string,
	finishedAt time.Time,
) error {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE runs SET state = ?, raining = ?, error = ?, finished_at = ? WHERE id = ?`,
		string(state), nullBool(raining), runErr, finishedAt.UTC(), id,
	)
	if err != nil {
		r.log.Error().Err(err).Ctx(ctx).Str("run_id", id).Msg("failed to finish run")
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return fmt.Errorf("finish run %s: %w", id, ErrRunNotFound)
	}

	r.log.Debug().Ctx(ctx).Str("run_id", id).Str("state", string(state)).Msg("run finished")
	return nil
}

func (r *RunRepository) GetRun(ctx context.Context, id string) (models.RunRecord, error) {
	row := r.DB.QueryRowContext(ctx,
		`SELECT id, city, state, raining, error, started_at, finished_at FROM runs WHERE id = ?`, id)

	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.RunRecord{}, ErrRunNotFound
	}
	return run, err
}

// ListRuns returns the most recent runs first.
func (r *RunRepository) ListRuns(ctx context.Context, limit int) ([]models.RunRecord, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id, city, state, raining, error, started_at, finished_at
		 FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		r.log.Error().Err(err).Ctx(ctx).Msg("failed to list runs")
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			r.log.Error().Err(cerr).Msg("failed to close rows")
		}
	}()

	runs := make([]models.RunRecord, 0, limit)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (r *RunRepository) AddLinkArtifact(ctx context.Context, runID, link string) error {
	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO link_artifacts (run_id, link, created_at) VALUES (?, ?, ?)`,
		runID, link, time.Now().UTC(),
	)
	if err != nil {
		r.log.Error().Err(err).Ctx(ctx).Str("run_id", runID).Msg("failed to insert link artifact")
	}
	return err
}

func (r *RunRepository) ListArtifacts(ctx context.Context, runID string) ([]models.LinkArtifact, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id, run_id, link, created_at FROM link_artifacts WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			r.log.Error().Err(cerr).Msg("failed to close rows")
		}
	}()

	var artifacts []models.LinkArtifact
	for rows.Next() {
		var a models.LinkArtifact
		if err := rows.Scan(&a.ID, &a.RunID, &a.Link, &a.CreatedAt); err != nil {
			return nil, err
		}
		artifacts = append(artifacts, a)
	}
	return artifacts, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (models.RunRecord, error) {
	var (
		run      models.RunRecord
		state    string
		raining  sql.NullBool
		finished sql.NullTime
	)
	if err := s.Scan(&run.ID, &run.City, &state, &raining, &run.Error, &run.StartedAt, &finished); err != nil {
		return models.RunRecord{}, err
	}
	run.State = models.RunState(state)
	if raining.Valid {
		v := raining.Bool
		run.Raining = &v
	}
	if finished.Valid {
		t := finished.Time
		run.FinishedAt = &t
	}
	return run, nil
}

func nullBool(b *bool) sql.NullBool {
	if b == nil {
		return sql.NullBool{}
	}
	return sql.NullBool{Bool: *b, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
