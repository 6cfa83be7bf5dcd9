// Package exporter ties the probe pipeline together: gate, iperf3 run and
// exposition rendering.
package exporter

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/pingsantohq/iperf-exporter/internal/exposition"
	"github.com/pingsantohq/iperf-exporter/internal/gate"
	"github.com/pingsantohq/iperf-exporter/internal/iperf"
	"github.com/pingsantohq/iperf-exporter/internal/metrics"
)

// Runner executes a single measurement.
type Runner interface {
	Run(ctx context.Context, req iperf.Request) (iperf.Result, error)
}

type Config struct {
	Defaults iperf.Request
	Limits   iperf.Limits
	Validate bool
	// MinInterval is the minimum spacing between the starts of two probes.
	MinInterval time.Duration
}

// Dependencies holds external collaborators required by the exporter.
type Dependencies struct {
	Logger   *zerolog.Logger
	Gate     *gate.Gate
	Runner   Runner
	Recorder metrics.ProbeRecorder
	// Observe is called with the outcome of every probe that reached iperf3.
	Observe func(time.Time, error)
	Now     func() time.Time
	NewID   func() string
}

// Report is the product of a successful probe.
type Report struct {
	ID      string
	Request iperf.Request
	Result  iperf.Result
	Body    []byte
}

type Exporter struct {
	cfg     Config
	deps    Dependencies
	limiter *rate.Limiter
}

func New(cfg Config, deps Dependencies) *Exporter {
	if deps.Logger == nil {
		nop := zerolog.Nop()
		deps.Logger = &nop
	}
	if deps.Gate == nil {
		deps.Gate = gate.New()
	}
	if deps.Runner == nil {
		deps.Runner = iperf.NewRunner(iperf.Config{}, iperf.Dependencies{})
	}
	if deps.Recorder == nil {
		deps.Recorder = metrics.NoopProbeRecorder{}
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.NewID == nil {
		deps.NewID = func() string { return uuid.NewString() }
	}
	e := &Exporter{cfg: cfg, deps: deps}
	if cfg.MinInterval > 0 {
		e.limiter = rate.NewLimiter(rate.Every(cfg.MinInterval), 1)
	}
	return e
}

// NewRequest applies the configured defaults to caller supplied parameters.
func (e *Exporter) NewRequest(target, bitrate, duration string) iperf.Request {
	return iperf.NewRequest(target, bitrate, duration, e.cfg.Defaults)
}

// Gate exposes the gate guarding iperf3 runs.
func (e *Exporter) Gate() *gate.Gate {
	return e.deps.Gate
}

// Probe waits for exclusive use of iperf3, runs one measurement and renders
// it. The returned Report always carries the probe ID, also on error.
//
// ctx bounds only the wait for the gate. Once iperf3 has started it runs to
// completion even if ctx is cancelled, and the gate is held until it exits.
func (e *Exporter) Probe(ctx context.Context, req iperf.Request) (Report, error) {
	report := Report{ID: e.deps.NewID(), Request: req}
	logger := e.deps.Logger.With().
		Str("probe_id", report.ID).
		Str("target", req.Target).
		Str("bitrate", req.Bitrate).
		Str("duration", req.Duration).
		Logger()

	if e.cfg.Validate {
		if err := req.Validate(e.cfg.Limits); err != nil {
			logger.Info().Err(err).Msg("probe rejected")
			e.deps.Recorder.ObserveProbe(iperf.Outcome(err), 0)
			return report, err
		}
	}

	waitStart := e.deps.Now()
	release, err := e.deps.Gate.Acquire(ctx)
	if err != nil {
		logger.Info().Err(err).Msg("caller left while waiting for running probe")
		e.deps.Recorder.ObserveProbe(iperf.Outcome(err), 0)
		return report, errors.Wrap(err, "wait for probe gate")
	}
	defer release()
	e.deps.Recorder.SetGateBusy(true)
	defer e.deps.Recorder.SetGateBusy(false)
	e.deps.Recorder.ObserveGateWait(e.deps.Now().Sub(waitStart))

	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			// Wait fails early, without a context error, when the next slot
			// lies past ctx's deadline.
			if ctx.Err() == nil {
				err = errors.Wrapf(context.DeadlineExceeded, "%v", err)
			}
			logger.Info().Err(err).Msg("caller left while waiting for probe interval")
			e.deps.Recorder.ObserveProbe(iperf.Outcome(err), 0)
			return report, errors.Wrap(err, "wait for probe interval")
		}
	}

	logger.Debug().Msg("starting iperf3")
	start := e.deps.Now()
	result, err := e.deps.Runner.Run(context.WithoutCancel(ctx), req)
	finished := e.deps.Now()
	elapsed := finished.Sub(start)
	e.deps.Recorder.ObserveProbe(iperf.Outcome(err), elapsed)
	if e.deps.Observe != nil {
		e.deps.Observe(finished, err)
	}
	if err != nil {
		logger.Warn().Err(err).Str("outcome", iperf.Outcome(err)).Dur("elapsed", elapsed).Msg("probe produced no metrics")
		return report, err
	}

	body, err := exposition.Render(result)
	if err != nil {
		logger.Error().Err(err).Msg("render probe result")
		return report, errors.Wrap(err, "render probe result")
	}
	report.Result = result
	report.Body = body

	logger.Info().
		Float64("received_bps", result.Received.BitsPerSecond).
		Float64("jitter_ms", result.Received.JitterMilliseconds).
		Float64("lost_percent", result.Received.LostPercent).
		Dur("elapsed", elapsed).
		Msg("probe finished")
	return report, nil
}
