package health

import (
	"fmt"
	"sync"
	"time"

	"github.com/pingsantohq/iperf-exporter/internal/iperf"
	"github.com/pingsantohq/iperf-exporter/internal/metrics"
)

const defaultSpawnFailureLimit = 3

// Checker evaluates readiness conditions for the exporter.
type Checker struct {
	metrics           *metrics.Store
	available         func() error
	spawnFailureLimit int

	mu            sync.RWMutex
	spawnFailures int
	lastProbe     time.Time
	lastOutcome   string
}

// NewChecker constructs a readiness checker. available reports whether the
// iperf3 binary can currently be resolved; store may be nil.
func NewChecker(store *metrics.Store, available func() error) *Checker {
	return &Checker{
		metrics:           store,
		available:         available,
		spawnFailureLimit: defaultSpawnFailureLimit,
	}
}

// ObserveProbe records the outcome of a finished probe.
func (c *Checker) ObserveProbe(ts time.Time, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastProbe = ts
	c.lastOutcome = iperf.Outcome(err)
	if c.lastOutcome == "spawn_failure" {
		c.spawnFailures++
		return
	}
	if c.lastOutcome != "invalid_request" && c.lastOutcome != "aborted" {
		c.spawnFailures = 0
	}
}

// LastProbe returns when the most recent probe finished and how.
func (c *Checker) LastProbe() (time.Time, string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastProbe, c.lastOutcome
}

// Ready evaluates all readiness conditions and returns the overall status and reasons for failure.
func (c *Checker) Ready(now time.Time) (bool, []string) {
	reasons := make([]string, 0, 2)

	if c.available != nil {
		if err := c.available(); err != nil {
			reasons = append(reasons, fmt.Sprintf("iperf3 unavailable: %v", err))
		}
	}

	c.mu.RLock()
	failures := c.spawnFailures
	lastProbe := c.lastProbe
	c.mu.RUnlock()

	if c.spawnFailureLimit > 0 && failures >= c.spawnFailureLimit {
		reasons = append(reasons, fmt.Sprintf("last %d probes failed to start iperf3 (latest %s ago)", failures, now.Sub(lastProbe).Round(time.Second)))
	}

	ready := len(reasons) == 0
	if c.metrics != nil {
		c.metrics.ObserveReadiness(ready)
	}
	if !ready {
		return false, reasons
	}
	return true, nil
}
