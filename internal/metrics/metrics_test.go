package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveRefresh(t *testing.T) {
	m := New()
	m.ObserveRefresh("ok", 12, 20*time.Millisecond)
	m.ObserveRefresh("unavailable", 0, time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RefreshTotal.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RefreshTotal.WithLabelValues("unavailable")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.RefreshRows))
}

func TestObserveProfile(t *testing.T) {
	m := New()
	m.ObserveProfile(2, true)
	m.ObserveProfile(0, false)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.MalformedAnswers))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FallbackProfiles))
}

func TestSetBreakerState(t *testing.T) {
	m := New()
	m.SetBreakerState("catalog", "open")
	assert.Equal(t, 2.0, testutil.ToFloat64(m.BreakerState.WithLabelValues("catalog")))
	m.SetBreakerState("catalog", "closed")
	assert.Equal(t, 0.0, testutil.ToFloat64(m.BreakerState.WithLabelValues("catalog")))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveRefresh("ok", 1, time.Second)
		m.ObserveProfile(1, true)
		m.ObserveScored(3)
		m.StoreError("insert")
		m.SetBreakerState("catalog", "open")
		m.ObserveHTTP("GET", "/api/health", 200, time.Millisecond)
	})
}

func TestHandler_ServesRegistry(t *testing.T) {
	m := New()
	m.ObserveHTTP("GET", "/api/health", 200, time.Millisecond)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `stylematch_http_requests_total{method="GET",route="/api/health",status="200"} 1`)
}
