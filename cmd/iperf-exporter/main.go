package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pingsantohq/iperf-exporter/internal/config"
	"github.com/pingsantohq/iperf-exporter/internal/exporter"
	"github.com/pingsantohq/iperf-exporter/internal/health"
	"github.com/pingsantohq/iperf-exporter/internal/iperf"
	"github.com/pingsantohq/iperf-exporter/internal/logging"
	"github.com/pingsantohq/iperf-exporter/internal/metrics"
	"github.com/pingsantohq/iperf-exporter/internal/server"
)

const shutdownTimeout = 10 * time.Second

func main() {
	ctx := context.Background()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	var err error

	switch cmd {
	case "run":
		err = run(ctx, os.Args[2:])
	case "probe":
		err = probeOnce(ctx, os.Args[2:], os.Stdout)
	case "-h", "--help", "help":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "command %s failed: %v\n", cmd, err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("iperf3 Prometheus exporter")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  iperf-exporter run [--config exporter.yaml]")
	fmt.Println("  iperf-exporter probe --target HOST [--bitrate 0] [--duration 5] [--config exporter.yaml]")
}

func loadConfig(ctx context.Context, path string) (config.Config, error) {
	if path == "" {
		return config.LoadFromEnv(ctx)
	}
	return config.Load(ctx, path)
}

func newRunner(cfg config.Config) *iperf.Runner {
	return iperf.NewRunner(iperf.Config{
		Binary:       cfg.Probe.Binary,
		TimeoutGrace: cfg.Probe.TimeoutGrace,
	}, iperf.Dependencies{})
}

func newExporter(cfg config.Config, deps exporter.Dependencies) *exporter.Exporter {
	return exporter.New(exporter.Config{
		Defaults: iperf.Request{
			Bitrate:  cfg.Probe.DefaultBitrate,
			Duration: cfg.Probe.DefaultDuration,
		},
		Limits:      iperf.Limits{MaxDurationSeconds: cfg.Probe.MaxDuration},
		Validate:    cfg.Probe.ValidateRequests(),
		MinInterval: cfg.Probe.MinInterval,
	}, deps)
}

func run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to exporter configuration file")

	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(ctx, *configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := logging.New(cfg.Log.Level, cfg.Log.Format)

	runner := newRunner(cfg)
	if err := runner.Available(); err != nil {
		logger.Warn().Err(err).Msg("iperf3 not found, probes will fail until it is installed")
	}

	store := metrics.NewStore()
	checker := health.NewChecker(store, runner.Available)
	exp := newExporter(cfg, exporter.Dependencies{
		Logger:   &logger,
		Runner:   runner,
		Recorder: store.ProbeRecorder(),
		Observe:  checker.ObserveProbe,
	})

	srv := server.New(server.Config{
		Addr:         cfg.Server.ListenAddr,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}, server.Dependencies{
		Logger:  &logger,
		Prober:  exp,
		Metrics: store,
		Checker: checker,
	})

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	grp, groupCtx := errgroup.WithContext(runCtx)
	grp.Go(func() error {
		logger.Info().Str("addr", srv.Addr).Str("binary", runner.Binary()).Msg("exporter listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	grp.Go(func() error {
		<-groupCtx.Done()
		logger.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		return nil
	})

	if err := grp.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info().Msg("exporter stopped")
	return nil
}

func probeOnce(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("probe", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to exporter configuration file")
	target := fs.String("target", "", "iperf3 server to measure against")
	bitrate := fs.String("bitrate", "", "Target bitrate, 0 for unlimited (default from config)")
	duration := fs.String("duration", "", "Test length in seconds (default from config)")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if *target == "" {
		return fmt.Errorf("--target is required")
	}

	cfg, err := loadConfig(ctx, *configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := logging.NewWithWriter(os.Stderr, cfg.Log.Level, "console")
	exp := newExporter(cfg, exporter.Dependencies{
		Logger: &logger,
		Runner: newRunner(cfg),
	})

	report, err := exp.Probe(ctx, exp.NewRequest(*target, *bitrate, *duration))
	if err != nil {
		return fmt.Errorf("probe %s: %w", *target, err)
	}
	_, err = out.Write(report.Body)
	return err
}
