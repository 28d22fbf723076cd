package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/Nazarious-ucu/rain-notifier/internal/app"
	"github.com/Nazarious-ucu/rain-notifier/internal/config"
	"github.com/Nazarious-ucu/rain-notifier/internal/services/metrics"
	"github.com/Nazarious-ucu/rain-notifier/pkg/logger"
)

const (
	serviceName      = "rain-notifier"
	metricsNamespace = "rain_notifier"
)

func main() {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("No .env file found: %v", err)
	}

	cfg, err := config.NewConfig()
	if err != nil {
		log.Panicf("failed to load configuration: %v", err)
	}

	l, err := logger.NewLoggerWithLevel(cfg.LogsPath, serviceName, logger.ParseLevel(cfg.LogLevel))
	if err != nil {
		log.Panicf("failed to create logger: %v", err)
	}

	metr := metrics.NewMetrics(metricsNamespace)

	application := app.New(*cfg, l, metr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.RunOnce {
		res, err := application.RunOnce(ctx)
		if err != nil {
			l.Error().Err(err).Str("run_id", res.RunID).Msg("run failed")
			stop()
			os.Exit(1)
		}
		l.Info().Str("run_id", res.RunID).Str("message", res.Message).Msg("run succeeded")
		return
	}

	if err := application.Start(ctx); err != nil {
		l.Error().Err(err).Msg("application stopped with error")
		stop()
		os.Exit(1)
	}
}
