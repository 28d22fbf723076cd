package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.uber.org/zap"

	"github.com/Nazarious-ucu/rain-notifier/internal/config"
	"github.com/Nazarious-ucu/rain-notifier/internal/handlers/runs"
	"github.com/Nazarious-ucu/rain-notifier/internal/models"
	"github.com/Nazarious-ucu/rain-notifier/internal/pipeline"
	"github.com/Nazarious-ucu/rain-notifier/internal/repository/lock"
	"github.com/Nazarious-ucu/rain-notifier/internal/repository/sqlite"
	"github.com/Nazarious-ucu/rain-notifier/internal/scheduler"
	"github.com/Nazarious-ucu/rain-notifier/internal/services/artifacts"
	"github.com/Nazarious-ucu/rain-notifier/internal/services/forecast"
	loggerT "github.com/Nazarious-ucu/rain-notifier/internal/services/logger"
	metricsSvc "github.com/Nazarious-ucu/rain-notifier/internal/services/metrics"
	"github.com/Nazarious-ucu/rain-notifier/internal/services/slack"
	fLogger "github.com/Nazarious-ucu/rain-notifier/pkg/logger"
)

const (
	shutdownTimeout = 5 * time.Second
	secretsTimeout  = 15 * time.Second
	providerName    = "OpenWeather"
)

// ServiceContainer holds initialized dependencies for the scheduler and HTTP server.
type ServiceContainer struct {
	Flow      *pipeline.Flow
	Scheduler *scheduler.Scheduler
	Runs      *sqlite.RunRepository
	Recorder  *artifacts.Recorder

	Router *gin.Engine
	Srv    *http.Server
	Db     *sql.DB
	Redis  *redis.Client

	fileLogger *zap.Logger
}

// App ties together config, logger, and metrics for startup/shutdown.
type App struct {
	cfg config.Config
	l   zerolog.Logger
	m   *metricsSvc.Metrics
}

// New prepares a new App with given config, zerolog logger, and metrics.
func New(cfg config.Config, logger zerolog.Logger, met *metricsSvc.Metrics) *App {
	return &App{
		cfg: cfg,
		l:   logger,
		m:   met,
	}
}

// Start runs the scheduler and the ops HTTP server until ctx is cancelled.
func (a *App) Start(ctx context.Context) error {
	srvContainer, err := a.init(ctx)
	if err != nil {
		_ = a.Shutdown(srvContainer)
		return err
	}

	a.registerRoutes(srvContainer)
	srvContainer.Scheduler.Start(ctx)

	serveErr := make(chan error, 1)
	go func() {
		a.l.Info().Str("address", srvContainer.Srv.Addr).Msg("HTTP server running")
		if err := srvContainer.Srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	a.l.Info().
		Str("city", a.cfg.Forecast.City).
		Str("schedule", a.cfg.Schedule.Cron).
		Str("timezone", a.cfg.Schedule.Timezone).
		Msg("rain notifier started successfully")

	var runErr error
	select {
	case <-ctx.Done():
		a.l.Info().Msg("shutdown signal received, stopping rain notifier")
	case err, ok := <-serveErr:
		if ok {
			a.l.Error().Err(err).Msg("HTTP server failed")
			runErr = fmt.Errorf("http server: %w", err)
		}
	}

	if err := a.Shutdown(srvContainer); err != nil {
		a.l.Error().Err(err).Msg("failed to shutdown application")
		return errors.Join(runErr, err)
	}
	a.l.Info().Msg("application shutdown successfully")
	return runErr
}

// RunOnce executes a single run without the scheduler or HTTP server.
func (a *App) RunOnce(ctx context.Context) (models.RunResult, error) {
	srvContainer, err := a.init(ctx)
	if err != nil {
		_ = a.Shutdown(srvContainer)
		return models.RunResult{}, err
	}

	res, runErr := srvContainer.Flow.Run(ctx)

	if err := a.Shutdown(srvContainer); err != nil {
		a.l.Error().Err(err).Msg("failed to shutdown application")
	}
	return res, runErr
}

// Shutdown stops the scheduler, the HTTP server and closes storage.
func (a *App) Shutdown(srvContainer ServiceContainer) error {
	a.l.Info().Msg("stopping rain notifier…")

	defer func(logger *zap.Logger) {
		if err := logger.Sync(); err != nil {
			a.l.Error().Err(err).Msg("failed to sync file logger")
		}
	}(srvContainer.fileLogger)

	var errs []error

	if srvContainer.Scheduler != nil {
		srvContainer.Scheduler.Stop()
	}

	if srvContainer.Srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srvContainer.Srv.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		} else {
			a.l.Info().Msg("HTTP server stopped")
		}
	}

	if srvContainer.Recorder != nil {
		srvContainer.Recorder.Wait()
	}

	if srvContainer.Redis != nil {
		if err := srvContainer.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis close: %w", err))
		}
	}

	if srvContainer.Db != nil {
		if err := srvContainer.Db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("db close: %w", err))
		} else {
			a.l.Info().Msg("database closed")
		}
	}

	a.l.Info().Msg("shutdown complete")
	return errors.Join(errs...)
}

func (a *App) registerRoutes(srvContainer ServiceContainer) {
	router := srvContainer.Router
	router.GET("/healthz", runs.Health)
	router.GET("/metrics", gin.WrapH(a.m.Handler()))

	runsHandler := runs.NewHandler(srvContainer.Flow, srvContainer.Runs, a.m, a.l)
	api := router.Group("/api")
	{
		api.POST("/runs", runsHandler.Trigger)
		api.GET("/runs", runsHandler.List)
		api.GET("/runs/:id/artifacts", runsHandler.Artifacts)
	}
}

// init resolves secrets and builds every dependency without starting anything.
// On error the partially built container is returned so Shutdown can release it.
func (a *App) init(ctx context.Context) (ServiceContainer, error) {
	a.l.Info().
		Str("city", a.cfg.Forecast.City).
		Str("secrets_provider", a.cfg.Secrets.Provider).
		Bool("redis_lock", a.cfg.Redis.Enabled()).
		Msg("initializing rain notifier")

	var srvContainer ServiceContainer

	fileLogger, err := fLogger.NewFileLogger(a.cfg.HTTPLogsPath)
	if err != nil {
		a.l.Error().Err(err).Msg("failed to create file logger, outbound HTTP will not be logged")
		fileLogger = zap.NewNop()
	}
	srvContainer.fileLogger = fileLogger

	// The webhook secret lives in the URL path, so Slack traffic is logged path-redacted.
	providerHTTP := &http.Client{
		Transport: loggerT.NewRoundTripper(fileLogger),
		Timeout:   a.cfg.Forecast.HTTPTimeout,
	}
	slackHTTP := &http.Client{
		Transport: loggerT.NewPathRedactingRoundTripper(fileLogger),
		Timeout:   a.cfg.Forecast.HTTPTimeout,
	}

	secretsCtx, cancel := context.WithTimeout(ctx, secretsTimeout)
	defer cancel()
	secrets, err := config.ResolveSecrets(secretsCtx, config.NewSecretProvider(a.cfg.Secrets), a.cfg.Secrets)
	if err != nil {
		return srvContainer, err
	}

	db, err := sqlite.CreateSqliteDb(a.cfg.DB.Dialect, a.cfg.DB.Source)
	if err != nil {
		return srvContainer, fmt.Errorf("open database: %w", err)
	}
	srvContainer.Db = db

	if err := sqlite.InitSqliteDb(db, a.cfg.DB.Dialect); err != nil {
		return srvContainer, fmt.Errorf("migrate database: %w", err)
	}

	runRepo := sqlite.NewRunRepository(db, a.l)
	recorder := artifacts.NewRecorder(runRepo, a.l)
	srvContainer.Runs = runRepo
	srvContainer.Recorder = recorder

	breakerCfg := forecast.BreakerConfig{
		TimeInterval: time.Duration(a.cfg.Breaker.TimeInterval) * time.Second,
		TimeTimeOut:  time.Duration(a.cfg.Breaker.TimeTimeOut) * time.Second,
		RepeatNumber: a.cfg.Breaker.RepeatNumber,
	}
	// One run's retries form one breaker sample; an open breaker fails the run without a request.
	fetcher := forecast.NewBreakerClient(providerName, breakerCfg,
		forecast.NewRetryClient(
			forecast.RetryConfig{MaxRetries: a.cfg.Forecast.MaxRetries, Delay: a.cfg.Forecast.RetryDelay},
			forecast.NewClientOpenWeatherMap(a.cfg.Forecast.URL, providerHTTP, recorder, a.l),
			a.m, a.l,
		),
	)

	notifyRetry := slack.RetryConfig{MaxRetries: a.cfg.Notify.MaxRetries, Delay: a.cfg.Notify.RetryDelay}
	rain := slack.NewNotifier(slack.KindRain, models.RainMessage, secrets.SlackWebhook,
		slackHTTP, notifyRetry, a.m, a.l)
	dry := slack.NewNotifier(slack.KindDry, models.DryMessage, secrets.SlackWebhook,
		slackHTTP, notifyRetry, a.m, a.l)

	locker := lock.Chain{lock.NewMemoryLock()}
	if a.cfg.Redis.Enabled() {
		rc := newRedisConnection(a.cfg.Redis.Address(), a.cfg.Redis.DbType)
		if err := rc.Ping(ctx).Err(); err != nil {
			_ = rc.Close()
			return srvContainer, fmt.Errorf("connect redis %s: %w", a.cfg.Redis.Address(), err)
		}
		srvContainer.Redis = rc
		locker = append(locker, lock.NewRedisLock(rc, a.cfg.Redis.LockKey, a.cfg.Redis.LockTTL, a.l))
	}

	flow := pipeline.New(
		pipeline.Settings{
			City:    a.cfg.Forecast.City,
			APIKey:  secrets.WeatherAPIKey,
			Timeout: a.cfg.RunTimeout,
		},
		fetcher, rain, dry, runRepo, recorder, locker, a.m, a.l,
	)
	srvContainer.Flow = flow

	sched, err := scheduler.New(flow, a.cfg.Schedule.Cron, a.cfg.Schedule.Timezone, a.m, a.l)
	if err != nil {
		return srvContainer, err
	}
	srvContainer.Scheduler = sched

	router := gin.New()
	router.Use(gin.Recovery(), a.m.HTTPMiddleware())
	srvContainer.Router = router
	srvContainer.Srv = &http.Server{
		Addr:        a.cfg.ServerAddress(),
		Handler:     router,
		ReadTimeout: time.Duration(a.cfg.Server.ReadTimeout) * time.Second,
	}

	return srvContainer, nil
}

func newRedisConnection(connString string, dbType int) *redis.Client {
	return redis.NewClient(&redis.Options{Addr: connString, DB: dbType})
}
