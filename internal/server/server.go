package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/pingsantohq/iperf-exporter/internal/config"
	"github.com/pingsantohq/iperf-exporter/internal/exporter"
	"github.com/pingsantohq/iperf-exporter/internal/exposition"
	"github.com/pingsantohq/iperf-exporter/internal/health"
	"github.com/pingsantohq/iperf-exporter/internal/iperf"
	"github.com/pingsantohq/iperf-exporter/internal/metrics"
)

const (
	measurePath   = "/probe"
	noMetricsBody = "No metrics"
)

// Config controls HTTP server settings.
type Config struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// Prober runs one probe. *exporter.Exporter satisfies it.
type Prober interface {
	NewRequest(target, bitrate, duration string) iperf.Request
	Probe(ctx context.Context, req iperf.Request) (exporter.Report, error)
}

// Dependencies holds external collaborators required by the server.
type Dependencies struct {
	Logger  *zerolog.Logger
	Prober  Prober
	Metrics *metrics.Store
	Checker *health.Checker
	Now     func() time.Time
}

// Server wraps http.Server for convenience.
type Server struct {
	*http.Server
	cfg  Config
	deps Dependencies
}

// New constructs an HTTP server exposing the probe, metrics and health endpoints.
func New(cfg Config, deps Dependencies) *Server {
	if cfg.Addr == "" {
		cfg.Addr = config.DefaultListenAddr
	}
	if deps.Logger == nil {
		nop := zerolog.Nop()
		deps.Logger = &nop
	}
	if deps.Prober == nil {
		deps.Prober = exporter.New(exporter.Config{}, exporter.Dependencies{Logger: deps.Logger})
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewStore()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	r := mux.NewRouter()
	r.HandleFunc(measurePath, probeHandler(deps)).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.NewHTTPHandler(deps.Metrics)).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	r.HandleFunc("/readyz", readyHandler(deps)).Methods(http.MethodGet)

	s := &http.Server{
		Addr:         cfg.Addr,
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return &Server{Server: s, cfg: cfg, deps: deps}
}

func probeHandler(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		target := q.Get("target")
		if strings.TrimSpace(target) == "" {
			http.Error(w, "target is required", http.StatusBadRequest)
			return
		}
		req := deps.Prober.NewRequest(target, q.Get("bitrate"), q.Get("duration"))

		report, err := deps.Prober.Probe(r.Context(), req)
		if report.ID != "" {
			w.Header().Set("X-Probe-ID", report.ID)
		}
		switch {
		case err == nil:
		case errors.Is(err, iperf.ErrInvalidRequest):
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		case isToolFailure(err):
			http.Error(w, noMetricsBody, http.StatusNotFound)
			return
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			http.Error(w, "probe abandoned", http.StatusServiceUnavailable)
			return
		default:
			http.Error(w, noMetricsBody, http.StatusNotFound)
			return
		}

		w.Header().Set("Content-Type", exposition.ContentType)
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write(report.Body); err != nil {
			deps.Logger.Warn().Err(err).Str("probe_id", report.ID).Msg("write probe response")
		}
	}
}

// isToolFailure reports whether iperf3 was started or attempted and yielded no
// usable result. A run killed by its deadline counts as one.
func isToolFailure(err error) bool {
	var perr *iperf.ProbeError
	return errors.As(err, &perr)
}

func readyHandler(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Checker == nil {
			w.WriteHeader(http.StatusOK)
			return
		}
		ready, reasons := deps.Checker.Ready(deps.Now().UTC())
		if !ready {
			if ts, outcome := deps.Checker.LastProbe(); outcome != "" {
				reasons = append(reasons, "last run "+outcome+" at "+ts.UTC().Format(time.RFC3339))
			}
			http.Error(w, strings.Join(reasons, "; "), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}
