package metrics

import "time"

type ProbeRecorder interface {
	ObserveGateWait(d time.Duration)
	SetGateBusy(busy bool)
	ObserveProbe(outcome string, d time.Duration)
}

type NoopProbeRecorder struct{}

func (NoopProbeRecorder) ObserveGateWait(d time.Duration)              {}
func (NoopProbeRecorder) SetGateBusy(busy bool)                        {}
func (NoopProbeRecorder) ObserveProbe(outcome string, d time.Duration) {}
