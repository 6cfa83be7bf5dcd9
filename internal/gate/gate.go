package gate

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// State is the occupancy of a Gate.
type State int32

const (
	Idle State = iota
	Busy
)

func (s State) String() string {
	if s == Busy {
		return "busy"
	}
	return "idle"
}

// Gate admits one holder at a time. Waiters are served in arrival order.
type Gate struct {
	sem   *semaphore.Weighted
	state atomic.Int32
}

func New() *Gate {
	return &Gate{sem: semaphore.NewWeighted(1)}
}

// Acquire blocks until the gate is free or ctx is done. On success the
// returned release func must be called exactly once; further calls are no-ops.
func (g *Gate) Acquire(ctx context.Context) (func(), error) {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	g.state.Store(int32(Busy))
	var once sync.Once
	return func() {
		once.Do(func() {
			g.state.Store(int32(Idle))
			g.sem.Release(1)
		})
	}, nil
}

// Do runs fn while holding the gate. The gate is released when fn returns or panics.
func (g *Gate) Do(ctx context.Context, fn func() error) error {
	release, err := g.Acquire(ctx)
	if err != nil {
		return err
	}
	defer release()
	return fn()
}

func (g *Gate) State() State {
	return State(g.state.Load())
}
