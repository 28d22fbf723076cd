package logger

import (
	"bytes"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/Nazarious-ucu/rain-notifier/pkg/logger"
)

const maxLoggedBody = 2048

// RoundTripper writes one zap entry per outbound request. URLs pass through Redact first.
type RoundTripper struct {
	Logger *zap.Logger
	Proxy  http.RoundTripper
	Redact func(*url.URL) string
}

// NewRoundTripper logs with query-string secrets redacted.
func NewRoundTripper(l *zap.Logger) *RoundTripper {
	return &RoundTripper{
		Logger: l,
		Proxy:  http.DefaultTransport,
		Redact: logger.RedactedURL,
	}
}

// NewPathRedactingRoundTripper hides the whole path, for webhook URLs.
func NewPathRedactingRoundTripper(l *zap.Logger) *RoundTripper {
	rt := NewRoundTripper(l)
	rt.Redact = logger.RedactPath
	return rt
}

func (l *RoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := l.Proxy.RoundTrip(req)
	duration := time.Since(start)
	safeURL := l.Redact(req.URL)

	if err != nil {
		l.Logger.Error("HTTP request failed",
			zap.String("method", req.Method),
			zap.String("url", safeURL),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return nil, err
	}

	bodyBytes, err := io.ReadAll(resp.Body)
	if cerr := resp.Body.Close(); cerr != nil {
		l.Logger.Warn("Failed to close response body", zap.Error(cerr))
	}
	if err != nil {
		l.Logger.Error("Failed to read response body",
			zap.String("method", req.Method),
			zap.String("url", safeURL),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return nil, err
	}

	resp.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))

	snippet := bodyBytes
	if len(snippet) > maxLoggedBody {
		snippet = snippet[:maxLoggedBody]
	}

	l.Logger.Info("HTTP request completed",
		zap.String("method", req.Method),
		zap.String("url", safeURL),
		zap.ByteString("body_snipped", snippet),
		zap.Int("status_code", resp.StatusCode),
		zap.Duration("duration", duration),
	)

	return resp, nil
}
