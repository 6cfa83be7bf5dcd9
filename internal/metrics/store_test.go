package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProbeRecorder(t *testing.T) {
	store := NewStore()
	rec := store.ProbeRecorder()

	rec.SetGateBusy(true)
	assert.Equal(t, 1.0, testutil.ToFloat64(store.gateBusy))
	rec.SetGateBusy(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(store.gateBusy))

	rec.ObserveProbe("success", 5*time.Second)
	rec.ObserveProbe("no_result", 0)
	rec.ObserveProbe("no_result", time.Second)
	assert.Equal(t, 1.0, testutil.ToFloat64(store.probes.WithLabelValues("success")))
	assert.Equal(t, 2.0, testutil.ToFloat64(store.probes.WithLabelValues("no_result")))
	assert.Equal(t, 0.0, testutil.ToFloat64(store.probes.WithLabelValues("spawn_failure")))
	assert.Equal(t, uint64(2), sampleCount(t, store.probeDuration))

	rec.ObserveGateWait(250 * time.Millisecond)
	assert.Equal(t, uint64(1), sampleCount(t, store.gateWait))
}

func sampleCount(t *testing.T, h prometheus.Histogram) uint64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, h.Write(&m))
	return m.GetHistogram().GetSampleCount()
}

func TestObserveReadinessCountsTransitions(t *testing.T) {
	store := NewStore()

	store.ObserveReadiness(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(store.transitions.WithLabelValues("not_ready")))

	store.ObserveReadiness(true)
	store.ObserveReadiness(true)
	assert.Equal(t, 1.0, testutil.ToFloat64(store.transitions.WithLabelValues("ready")))
	assert.Equal(t, 1.0, testutil.ToFloat64(store.ready))

	store.ObserveReadiness(false)
	assert.Equal(t, 1.0, testutil.ToFloat64(store.transitions.WithLabelValues("not_ready")))
	assert.Equal(t, 0.0, testutil.ToFloat64(store.ready))
}

func TestHTTPHandler(t *testing.T) {
	store := NewStore()
	store.ProbeRecorder().ObserveProbe("success", time.Second)
	handler := NewHTTPHandler(store)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.True(t, strings.Contains(body, `iperf_exporter_probes_total{outcome="success"} 1`), body)
	assert.Contains(t, body, "iperf_exporter_gate_busy 0")
	assert.Contains(t, body, "go_goroutines")

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/metrics", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}
