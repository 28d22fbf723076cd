package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/Nazarious-ucu/rain-notifier/internal/config"
)

const (
	KindRain = "rain"
	KindDry  = "dry"

	maxResponseBodyRead = 4096
)

type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// DeliveryObserver is told the outcome of every delivery.
type DeliveryObserver interface {
	ObserveNotification(kind, result string)
}

// NotifyError is a failed webhook delivery. StatusCode is zero for transport failures.
type NotifyError struct {
	StatusCode int
	Err        error
}

func (e *NotifyError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("slack notify failed: status %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("slack notify failed: %v", e.Err)
}

func (e *NotifyError) Unwrap() error {
	return e.Err
}

type payload struct {
	Text string `json:"text"`
}

type RetryConfig struct {
	MaxRetries uint64
	Delay      time.Duration
}

// Notifier posts one fixed message to a Slack incoming webhook.
type Notifier struct {
	kind     string
	message  string
	webhook  config.SecretString
	client   HTTPClient
	retry    RetryConfig
	observer DeliveryObserver
	logger   zerolog.Logger
}

// NewNotifier builds a notifier for a single static message. A nil observer is allowed.
func NewNotifier(
	kind, message string,
	webhook config.SecretString,
	client HTTPClient,
	retry RetryConfig,
	observer DeliveryObserver,
	logger zerolog.Logger,
) *Notifier {
	logger = logger.With().Str("component", "SlackNotifier").Str("kind", kind).Logger()
	return &Notifier{
		kind:     kind,
		message:  message,
		webhook:  webhook,
		client:   client,
		retry:    retry,
		observer: observer,
		logger:   logger,
	}
}

func (n *Notifier) Kind() string {
	return n.kind
}

func (n *Notifier) Message() string {
	return n.message
}

// Send delivers the message. With MaxRetries zero a failure is returned immediately.
func (n *Notifier) Send(ctx context.Context) error {
	start := time.Now()
	n.logger.Debug().Ctx(ctx).Msg("sending slack notification")

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(n.retry.Delay), n.retry.MaxRetries),
		ctx,
	)
	err := backoff.RetryNotify(func() error { return n.post(ctx) }, policy, func(err error, wait time.Duration) {
		n.logger.Warn().Ctx(ctx).Err(err).Dur("retry_in", wait).Msg("slack notification failed, retrying")
	})
	duration := time.Since(start)

	if err != nil {
		n.observe("failure")
		n.logger.Error().
			Ctx(ctx).
			Err(err).
			Dur("duration", duration).
			Msg("slack notification failed")
		return err
	}

	n.observe("success")
	n.logger.Info().
		Ctx(ctx).
		Dur("duration", duration).
		Msg("slack notification sent successfully")
	return nil
}

func (n *Notifier) observe(result string) {
	if n.observer != nil {
		n.observer.ObserveNotification(n.kind, result)
	}
}

func (n *Notifier) post(ctx context.Context) error {
	body, err := json.Marshal(payload{Text: n.message})
	if err != nil {
		return backoff.Permanent(&NotifyError{Err: err})
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhook.Unmask(), bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(&NotifyError{Err: err})
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return &NotifyError{Err: err}
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			n.logger.Error().Err(cerr).Msg("failed to close response body")
		}
	}()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodyRead))
	if err := ValidateResponse(resp.StatusCode, respBody); err != nil {
		nerr := &NotifyError{StatusCode: resp.StatusCode, Err: err}
		if resp.StatusCode >= http.StatusBadRequest && resp.StatusCode < http.StatusInternalServerError &&
			resp.StatusCode != http.StatusTooManyRequests {
			return backoff.Permanent(nerr)
		}
		return nerr
	}
	return nil
}

// ValidateResponse treats non-2xx statuses and Slack's 200-with-error bodies as failures.
func ValidateResponse(statusCode int, body []byte) error {
	if statusCode < http.StatusOK || statusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("unexpected status %d: %s", statusCode, strings.TrimSpace(string(body)))
	}

	bodyStr := strings.TrimSpace(string(body))
	if bodyStr == "" || bodyStr == "ok" {
		return nil
	}

	var resp struct {
		OK    *bool  `json:"ok"`
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &resp); err == nil && resp.OK != nil && !*resp.OK {
		if resp.Error == "" {
			resp.Error = "unknown error"
		}
		return fmt.Errorf("API error: %s", resp.Error)
	}

	knownErrors := []string{
		"no_text",
		"invalid_token",
		"channel_not_found",
		"channel_is_archived",
		"invalid_payload",
		"no_service",
	}
	for _, known := range knownErrors {
		if bodyStr == known {
			return errors.New("API error: " + bodyStr)
		}
	}

	return nil
}
