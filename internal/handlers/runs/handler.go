package runs

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/Nazarious-ucu/rain-notifier/internal/models"
	"github.com/Nazarious-ucu/rain-notifier/internal/pipeline"
	"github.com/Nazarious-ucu/rain-notifier/internal/repository/sqlite"
)

const (
	defaultLimit = 20
	maxLimit     = 100
)

type flowRunner interface {
	Run(ctx context.Context) (models.RunResult, error)
}

type runReader interface {
	GetRun(ctx context.Context, id string) (models.RunRecord, error)
	ListRuns(ctx context.Context, limit int) ([]models.RunRecord, error)
	ListArtifacts(ctx context.Context, runID string) ([]models.LinkArtifact, error)
}

type skipObserver interface {
	ObserveSkippedTrigger(source string)
}

type Handler struct {
	flow   flowRunner
	store  runReader
	m      skipObserver
	logger zerolog.Logger
}

func NewHandler(flow flowRunner, store runReader, m skipObserver, logger zerolog.Logger) *Handler {
	return &Handler{
		flow:   flow,
		store:  store,
		m:      m,
		logger: logger.With().Str("component", "RunsHandler").Logger(),
	}
}

// Trigger starts one run and blocks until it finishes.
func (h *Handler) Trigger(c *gin.Context) {
	res, err := h.flow.Run(c.Request.Context())
	if err != nil {
		if errors.Is(err, pipeline.ErrRunInProgress) {
			if h.m != nil {
				h.m.ObserveSkippedTrigger("manual")
			}
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		h.logger.Error().Err(err).Str("run_id", res.RunID).Msg("manual run failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "run_id": res.RunID})
		return
	}

	c.JSON(http.StatusOK, res)
}

func (h *Handler) List(c *gin.Context) {
	limit := defaultLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = min(n, maxLimit)
	}

	runs, err := h.store.ListRuns(c.Request.Context(), limit)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list runs")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list runs"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

func (h *Handler) Artifacts(c *gin.Context) {
	id := c.Param("id")
	ctx := c.Request.Context()

	if _, err := h.store.GetRun(ctx, id); err != nil {
		if errors.Is(err, sqlite.ErrRunNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
			return
		}
		h.logger.Error().Err(err).Str("run_id", id).Msg("failed to load run")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load run"})
		return
	}

	artifacts, err := h.store.ListArtifacts(ctx, id)
	if err != nil {
		h.logger.Error().Err(err).Str("run_id", id).Msg("failed to list artifacts")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list artifacts"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"run_id": id, "artifacts": artifacts})
}

func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
