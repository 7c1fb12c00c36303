package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusMetricsClient(t *testing.T) {
	client := NewPrometheusMetricsClient("taskstream")
	defer client.Close()

	labels := map[string]string{"integration": "slack"}
	client.IncrementCounter("sync_attempts_total", 1, labels)
	client.IncrementCounter("sync_attempts_total", 2, labels)
	client.RecordGauge("integrations_registered", 3, nil)
	client.RecordHistogram("sync_duration_seconds", 0.25, labels)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	client.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `taskstream_sync_attempts_total{integration="slack"} 3`)
	assert.Contains(t, body, "taskstream_integrations_registered 3")
	assert.Contains(t, body, "taskstream_sync_duration_seconds_bucket")
}

func TestNoopClientsAreSafe(t *testing.T) {
	logger := NewNoopLogger()
	logger.Info("ignored", map[string]interface{}{"k": "v"})
	logger.WithPrefix("sub").Error("also ignored", nil)

	metrics := NewNoopMetricsClient()
	metrics.IncrementCounter("x", 1, nil)
	metrics.RecordGauge("y", 2, nil)
	metrics.RecordHistogram("z", 3, nil)
	assert.NoError(t, metrics.Close())
	assert.NotNil(t, metrics.Handler())
}
