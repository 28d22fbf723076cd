//go:build unit

package metrics_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Nazarious-ucu/rain-notifier/internal/services/metrics"
)

func TestMetrics_PipelineCounters(t *testing.T) {
	m := metrics.NewMetrics("rain_test")

	m.ObserveFetchAttempt("failure")
	m.ObserveFetchAttempt("failure")
	m.ObserveFetchAttempt("success")
	m.ObserveNotification("rain", "success")
	m.ObserveRun("success", 150*time.Millisecond)
	m.ObserveDecision(true)
	m.ObserveSkippedTrigger("cron")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.FetchAttempts.WithLabelValues("failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FetchAttempts.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.NotificationsSent.WithLabelValues("rain", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RunsTotal.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LastRainDecision))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TriggersSkipped.WithLabelValues("cron")))

	m.ObserveDecision(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.LastRainDecision))
}

func TestMetrics_IndependentRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		metrics.NewMetrics("rain_test")
		metrics.NewMetrics("rain_test")
	})
}

func TestMetrics_HTTPMiddlewareAndHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := metrics.NewMetrics("rain_test")

	r := gin.New()
	r.Use(m.HTTPMiddleware())
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/metrics", gin.WrapH(m.Handler()))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, 1.0, testutil.ToFloat64(
		m.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/healthz", "2xx")))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "rain_test_http_requests_total")
}
