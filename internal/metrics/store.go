package metrics

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "iperf_exporter"

// Store holds the exporter's own telemetry in a private registry, separate
// from the per-probe iperf_metrics family.
type Store struct {
	registry *prometheus.Registry

	probes        *prometheus.CounterVec
	probeDuration prometheus.Histogram
	gateWait      prometheus.Histogram
	gateBusy      prometheus.Gauge
	ready         prometheus.Gauge
	transitions   *prometheus.CounterVec

	readyState atomic.Int32
}

// NewStore registers all collectors, including the Go runtime and process collectors.
func NewStore() *Store {
	s := &Store{
		registry: prometheus.NewRegistry(),
		probes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "probes_total",
			Help:      "Total probe requests by outcome.",
		}, []string{"outcome"}),
		probeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "probe_duration_seconds",
			Help:      "Wall time of iperf3 runs, excluding time spent waiting for the gate.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		}),
		gateWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "gate_wait_seconds",
			Help:      "Time probe requests spent waiting for the in-flight probe to finish.",
			Buckets:   []float64{0.001, 0.01, 0.1, 1, 5, 10, 30, 60, 120},
		}),
		gateBusy: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "gate_busy",
			Help:      "Whether a probe is currently running (1=busy).",
		}),
		ready: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ready",
			Help:      "Whether the exporter considers itself ready (1=ready).",
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ready_transitions_total",
			Help:      "Count of readiness state transitions by resulting state.",
		}, []string{"state"}),
	}
	s.registry.MustRegister(
		s.probes,
		s.probeDuration,
		s.gateWait,
		s.gateBusy,
		s.ready,
		s.transitions,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	for _, outcome := range []string{"success", "spawn_failure", "encoding_failure", "malformed_result", "no_result", "invalid_request", "aborted"} {
		s.probes.WithLabelValues(outcome)
	}
	s.transitions.WithLabelValues("ready")
	s.transitions.WithLabelValues("not_ready")
	return s
}

// ProbeRecorder returns an implementation of ProbeRecorder backed by the store.
func (s *Store) ProbeRecorder() ProbeRecorder {
	return probeRecorder{store: s}
}

type probeRecorder struct {
	store *Store
}

func (r probeRecorder) ObserveGateWait(d time.Duration) {
	r.store.gateWait.Observe(d.Seconds())
}

func (r probeRecorder) SetGateBusy(busy bool) {
	if busy {
		r.store.gateBusy.Set(1)
		return
	}
	r.store.gateBusy.Set(0)
}

func (r probeRecorder) ObserveProbe(outcome string, d time.Duration) {
	r.store.probes.WithLabelValues(outcome).Inc()
	if d > 0 {
		r.store.probeDuration.Observe(d.Seconds())
	}
}

// ObserveReadiness records the latest readiness evaluation and counts changes.
func (s *Store) ObserveReadiness(ready bool) {
	next := int32(0)
	if ready {
		next = 1
	}
	prev := s.readyState.Swap(next)
	if prev != next {
		if ready {
			s.transitions.WithLabelValues("ready").Inc()
		} else {
			s.transitions.WithLabelValues("not_ready").Inc()
		}
	}
	s.ready.Set(float64(next))
}

// NewHTTPHandler returns an http.Handler that serves the store's registry.
func NewHTTPHandler(store *Store) http.Handler {
	inner := promhttp.HandlerFor(store.registry, promhttp.HandlerOpts{})
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		inner.ServeHTTP(w, r)
	})
}
