package iperf

import (
	"github.com/pkg/errors"
)

// Failure kinds. Every error returned by Runner.Run matches exactly one of them
// under errors.Is.
var (
	ErrSpawnFailure    = errors.New("iperf3 could not be started")
	ErrEncodingFailure = errors.New("iperf3 output is not valid utf-8")
	ErrMalformedResult = errors.New("iperf3 output is malformed")
	ErrNoResult        = errors.New("iperf3 produced no result")
)

// ProbeError pairs a failure kind with its underlying cause.
type ProbeError struct {
	Kind error
	Err  error
}

func newProbeError(kind, err error) *ProbeError {
	return &ProbeError{Kind: kind, Err: err}
}

func (e *ProbeError) Error() string {
	if e.Err == nil {
		return e.Kind.Error()
	}
	return e.Kind.Error() + ": " + e.Err.Error()
}

func (e *ProbeError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Outcome returns a short label for err suitable for logs and metric labels.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrSpawnFailure):
		return "spawn_failure"
	case errors.Is(err, ErrEncodingFailure):
		return "encoding_failure"
	case errors.Is(err, ErrMalformedResult):
		return "malformed_result"
	case errors.Is(err, ErrNoResult):
		return "no_result"
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	default:
		return "aborted"
	}
}
