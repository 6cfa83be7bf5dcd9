package iperf

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// Summary is one aggregate section (sum_sent or sum_received) of an iperf3 UDP run.
type Summary struct {
	Start              float64
	End                float64
	Seconds            float64
	Bytes              int64
	BitsPerSecond      float64
	JitterMilliseconds float64
	LostPackets        int64
	Packets            int64
	LostPercent        float64
	Sender             bool
}

// Result is the parsed outcome of a single probe.
type Result struct {
	Sent     Summary
	Received Summary
}

type rawResult struct {
	End *struct {
		SumSent     *rawSummary `json:"sum_sent"`
		SumReceived *rawSummary `json:"sum_received"`
	} `json:"end"`
}

type rawSummary struct {
	Start         *float64 `json:"start"`
	End           *float64 `json:"end"`
	Seconds       *float64 `json:"seconds"`
	Bytes         *int64   `json:"bytes"`
	BitsPerSecond *float64 `json:"bits_per_second"`
	JitterMs      *float64 `json:"jitter_ms"`
	LostPackets   *int64   `json:"lost_packets"`
	Packets       *int64   `json:"packets"`
	LostPercent   *float64 `json:"lost_percent"`
	Sender        *bool    `json:"sender"`
}

// ParseResult decodes an iperf3 JSON document. Either every required field of
// both sections is present and well typed, or ErrMalformedResult is returned.
func ParseResult(payload []byte) (Result, error) {
	var raw rawResult
	if err := json.Unmarshal(payload, &raw); err != nil {
		return Result{}, newProbeError(ErrMalformedResult, errors.Wrap(err, "decode payload"))
	}
	if raw.End == nil {
		return Result{}, newProbeError(ErrMalformedResult, errors.New("missing end"))
	}
	sent, err := raw.End.SumSent.summary("end.sum_sent")
	if err != nil {
		return Result{}, newProbeError(ErrMalformedResult, err)
	}
	received, err := raw.End.SumReceived.summary("end.sum_received")
	if err != nil {
		return Result{}, newProbeError(ErrMalformedResult, err)
	}
	return Result{Sent: sent, Received: received}, nil
}

func (r *rawSummary) summary(section string) (Summary, error) {
	if r == nil {
		return Summary{}, errors.Errorf("missing %s", section)
	}
	missing := func(field string) error {
		return errors.Errorf("missing %s.%s", section, field)
	}
	switch {
	case r.Start == nil:
		return Summary{}, missing("start")
	case r.End == nil:
		return Summary{}, missing("end")
	case r.Seconds == nil:
		return Summary{}, missing("seconds")
	case r.Bytes == nil:
		return Summary{}, missing("bytes")
	case r.BitsPerSecond == nil:
		return Summary{}, missing("bits_per_second")
	case r.JitterMs == nil:
		return Summary{}, missing("jitter_ms")
	case r.LostPackets == nil:
		return Summary{}, missing("lost_packets")
	case r.Packets == nil:
		return Summary{}, missing("packets")
	case r.LostPercent == nil:
		return Summary{}, missing("lost_percent")
	case r.Sender == nil:
		return Summary{}, missing("sender")
	}
	if *r.Bytes < 0 || *r.LostPackets < 0 || *r.Packets < 0 || *r.BitsPerSecond < 0 {
		return Summary{}, errors.Errorf("negative counter in %s", section)
	}
	return Summary{
		Start:              *r.Start,
		End:                *r.End,
		Seconds:            *r.Seconds,
		Bytes:              *r.Bytes,
		BitsPerSecond:      *r.BitsPerSecond,
		JitterMilliseconds: *r.JitterMs,
		LostPackets:        *r.LostPackets,
		Packets:            *r.Packets,
		LostPercent:        *r.LostPercent,
		Sender:             *r.Sender,
	}, nil
}

// reportedError extracts the "error" member iperf3 writes in JSON mode when a
// run fails. It returns "" when the payload carries none.
func reportedError(payload []byte) string {
	var raw struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(payload, &raw); err != nil {
		return ""
	}
	return raw.Error
}
