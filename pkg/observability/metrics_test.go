package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveRequest("api.example.com", 200)
		m.ObserveRetry("api.example.com", "rate_limited")
		m.ObserveRateLimitExhausted("api.example.com")
		m.ObserveFetched("ethereum", 3)
		m.ObserveCache(true)
		m.StreamOpened()
		m.StreamClosed()
	})
}

func TestMetrics_Counters(t *testing.T) {
	m := NewMetrics("test")

	m.ObserveRequest("api.example.com", 429)
	m.ObserveRequest("api.example.com", 429)
	m.ObserveRetry("api.example.com", "rate_limited")
	m.ObserveFetched("ethereum", 5)
	m.ObserveCache(true)
	m.ObserveCache(false)
	m.ObserveCache(false)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.UpstreamRequests.WithLabelValues("api.example.com", "429")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.UpstreamRetries.WithLabelValues("api.example.com", "rate_limited")))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.TransactionsFetched.WithLabelValues("ethereum")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheHits))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CacheMisses))
}

func TestMetrics_Handler(t *testing.T) {
	m := NewMetrics("test")
	m.StreamOpened()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "test_stream_active 1")
}
