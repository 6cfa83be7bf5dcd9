package iperf

import (
	"context"
	"os/exec"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/pkg/errors"
)

const DefaultBinary = "iperf3"

// Config controls how the iperf3 process is launched.
type Config struct {
	Binary string
	// TimeoutGrace is added to the requested duration to form a hard deadline
	// for the process. Zero disables the deadline.
	TimeoutGrace time.Duration
}

// Dependencies provides optional overrides for testing.
type Dependencies struct {
	RunCommand func(ctx context.Context, name string, args ...string) ([]byte, error)
	LookPath   func(file string) (string, error)
}

// Runner executes iperf3 and turns its output into a Result.
type Runner struct {
	cfg  Config
	deps Dependencies
}

func NewRunner(cfg Config, deps Dependencies) *Runner {
	if cfg.Binary == "" {
		cfg.Binary = DefaultBinary
	}
	if deps.RunCommand == nil {
		deps.RunCommand = func(ctx context.Context, name string, args ...string) ([]byte, error) {
			cmd := exec.CommandContext(ctx, name, args...)
			cmd.WaitDelay = 5 * time.Second
			return cmd.Output()
		}
	}
	if deps.LookPath == nil {
		deps.LookPath = exec.LookPath
	}
	return &Runner{cfg: cfg, deps: deps}
}

// Binary returns the configured executable name.
func (r *Runner) Binary() string {
	return r.cfg.Binary
}

// Available reports whether the iperf3 binary can be resolved.
func (r *Runner) Available() error {
	if _, err := r.deps.LookPath(r.cfg.Binary); err != nil {
		return errors.Wrapf(err, "resolve %s", r.cfg.Binary)
	}
	return nil
}

// Run launches exactly one iperf3 process for req and blocks until it exits.
func (r *Runner) Run(ctx context.Context, req Request) (Result, error) {
	if timeout := r.deadline(req); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	stdout, err := r.deps.RunCommand(ctx, r.cfg.Binary, req.Args()...)
	if err != nil {
		return Result{}, classify(ctx, stdout, err)
	}
	if !utf8.Valid(stdout) {
		return Result{}, newProbeError(ErrEncodingFailure, errors.Errorf("%d bytes of output", len(stdout)))
	}
	return ParseResult(stdout)
}

func (r *Runner) deadline(req Request) time.Duration {
	if r.cfg.TimeoutGrace <= 0 {
		return 0
	}
	seconds, err := strconv.Atoi(req.Duration)
	if err != nil || seconds <= 0 {
		return 0
	}
	return time.Duration(seconds)*time.Second + r.cfg.TimeoutGrace
}

func classify(ctx context.Context, stdout []byte, err error) error {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if ctx.Err() != nil {
			return newProbeError(ErrNoResult, errors.Errorf("iperf3 did not finish: %v", ctx.Err()))
		}
		if msg := reportedError(stdout); msg != "" {
			return newProbeError(ErrNoResult, errors.Errorf("%s (%s)", msg, exitErr.ProcessState))
		}
		if stderr := strings.TrimSpace(string(exitErr.Stderr)); stderr != "" {
			return newProbeError(ErrNoResult, errors.Errorf("%s (%s)", stderr, exitErr.ProcessState))
		}
		return newProbeError(ErrNoResult, exitErr)
	}
	if ctx.Err() != nil {
		return newProbeError(ErrNoResult, errors.Errorf("iperf3 did not finish: %v", err))
	}
	return newProbeError(ErrSpawnFailure, err)
}
