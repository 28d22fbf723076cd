package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	ProviderEnv = "env"
	ProviderSSM = "ssm"
)

type Server struct {
	Host        string `envconfig:"SERVER_HOST" default:"0.0.0.0"`
	Port        string `envconfig:"SERVER_PORT" default:"8080"`
	ReadTimeout int    `envconfig:"SERVER_TIMEOUT" default:"10"`
}

type Forecast struct {
	City        string        `envconfig:"CITY" default:"San Francisco"`
	URL         string        `envconfig:"FORECAST_URL" default:"http://api.openweathermap.org/data/2.5/forecast"`
	MaxRetries  uint64        `envconfig:"FETCH_MAX_RETRIES" default:"2"`
	RetryDelay  time.Duration `envconfig:"FETCH_RETRY_DELAY" default:"5s"`
	HTTPTimeout time.Duration `envconfig:"HTTP_TIMEOUT" default:"10s"`
}

type Notify struct {
	MaxRetries uint64        `envconfig:"NOTIFY_MAX_RETRIES" default:"0"`
	RetryDelay time.Duration `envconfig:"NOTIFY_RETRY_DELAY" default:"5s"`
}

// Secrets names where the API key and webhook URL live in the configured provider.
// With the env provider these are environment variable names, with ssm they are parameter paths.
type Secrets struct {
	Provider      string `envconfig:"SECRETS_PROVIDER" default:"env"`
	AWSRegion     string `envconfig:"AWS_REGION" default:"us-west-2"`
	WeatherAPIKey string `envconfig:"WEATHER_API_KEY_SECRET" default:"WEATHER_API_KEY"`
	SlackWebhook  string `envconfig:"SLACK_WEBHOOK_SECRET" default:"SLACK_WEBHOOK_URL_MHQ"`
}

type Schedule struct {
	Cron     string `envconfig:"SCHEDULE_CRON" default:"0 12 * * 1-5"`
	Timezone string `envconfig:"SCHEDULE_TZ" default:"US/Pacific"`
}

type Breaker struct {
	TimeInterval int    `envconfig:"BREAKER_INTERVAL" default:"30"`
	TimeTimeOut  int    `envconfig:"BREAKER_TIMEOUT" default:"10"`
	RepeatNumber uint32 `envconfig:"BREAKER_REPEAT_NUM" default:"5"`
}

// Redis is optional; an empty Host keeps the run lock in-process.
type Redis struct {
	Host    string        `envconfig:"REDIS_HOST"`
	Port    string        `envconfig:"REDIS_PORT" default:"6379"`
	DbType  int           `envconfig:"REDIS_DB_TYPE" default:"0"`
	LockKey string        `envconfig:"REDIS_LOCK_KEY" default:"rain-notifier:run-lock"`
	LockTTL time.Duration `envconfig:"REDIS_LOCK_TTL" default:"5m"`
}

type Db struct {
	Dialect string `envconfig:"DB_DIALECT" default:"sqlite"`
	Source  string `envconfig:"DB_NAME" default:"rain-notifier.db"`
}

type Config struct {
	Forecast Forecast
	Notify   Notify
	Secrets  Secrets
	Schedule Schedule
	Breaker  Breaker
	Redis    Redis
	DB       Db
	Server   Server

	RunOnce    bool          `envconfig:"RUN_ONCE" default:"false"`
	RunTimeout time.Duration `envconfig:"RUN_TIMEOUT" default:"2m"`

	LogLevel     string `envconfig:"LOG_LEVEL" default:"debug"`
	LogsPath     string `envconfig:"LOGS_PATH" default:"./log/rain-notifier.log"`
	HTTPLogsPath string `envconfig:"HTTP_LOGS_PATH" default:"./log/rain-notifier-http.log"`
}

func NewConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if cfg.Secrets.Provider != ProviderEnv && cfg.Secrets.Provider != ProviderSSM {
		return nil, fmt.Errorf("unknown SECRETS_PROVIDER %q", cfg.Secrets.Provider)
	}
	return &cfg, nil
}

func (c *Config) ServerAddress() string {
	return c.Server.Host + ":" + c.Server.Port
}

func (r *Redis) Address() string {
	return r.Host + ":" + r.Port
}

func (r *Redis) Enabled() bool {
	return r.Host != ""
}
