package iperf

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

const (
	DefaultBitrate  = "0"
	DefaultDuration = "5"
)

// ErrInvalidRequest is returned by Request.Validate.
var ErrInvalidRequest = errors.New("invalid probe request")

var bitratePattern = regexp.MustCompile(`^[0-9]+(\.[0-9]+)?[KMGkmg]?(/[0-9]+)?$`)

// Request holds the parameters of one measurement. Values are handed to iperf3
// as opaque argv entries.
type Request struct {
	Target   string
	Bitrate  string
	Duration string
}

// NewRequest fills empty bitrate and duration with the supplied defaults,
// falling back to DefaultBitrate and DefaultDuration.
func NewRequest(target, bitrate, duration string, defaults Request) Request {
	if defaults.Bitrate == "" {
		defaults.Bitrate = DefaultBitrate
	}
	if defaults.Duration == "" {
		defaults.Duration = DefaultDuration
	}
	req := Request{
		Target:   strings.TrimSpace(target),
		Bitrate:  strings.TrimSpace(bitrate),
		Duration: strings.TrimSpace(duration),
	}
	if req.Bitrate == "" {
		req.Bitrate = defaults.Bitrate
	}
	if req.Duration == "" {
		req.Duration = defaults.Duration
	}
	return req
}

// Limits bounds the values Validate accepts.
type Limits struct {
	MaxDurationSeconds int
}

// Validate rejects values iperf3 would misinterpret as flags or that exceed
// the configured limits.
func (r Request) Validate(limits Limits) error {
	if r.Target == "" {
		return errors.Wrap(ErrInvalidRequest, "target is required")
	}
	if strings.HasPrefix(r.Target, "-") || strings.ContainsAny(r.Target, " \t\r\n") {
		return errors.Wrapf(ErrInvalidRequest, "target %q is not a host or address", r.Target)
	}
	if !bitratePattern.MatchString(r.Bitrate) {
		return errors.Wrapf(ErrInvalidRequest, "bitrate %q is not a number with optional K/M/G suffix", r.Bitrate)
	}
	seconds, err := strconv.Atoi(r.Duration)
	if err != nil || seconds <= 0 {
		return errors.Wrapf(ErrInvalidRequest, "duration %q is not a positive number of seconds", r.Duration)
	}
	if limits.MaxDurationSeconds > 0 && seconds > limits.MaxDurationSeconds {
		return errors.Wrapf(ErrInvalidRequest, "duration %d exceeds limit of %d seconds", seconds, limits.MaxDurationSeconds)
	}
	return nil
}

// Args returns the iperf3 argument list for the request.
func (r Request) Args() []string {
	return []string{
		"-J",
		"-u",
		"-b", r.Bitrate,
		"-t", r.Duration,
		"-c", r.Target,
	}
}
