package hook

import (
	"context"
	"sync"
	"sync/atomic"
)

// tracker counts pipeline runs in progress so shutdown can wait for them.
// Once closed, new runs are refused and events are only forwarded.
type tracker struct {
	active atomic.Int64
	closed atomic.Bool

	mu   sync.Mutex
	idle chan struct{} // closed and replaced when active drops to zero
}

func newTracker() *tracker {
	return &tracker{idle: make(chan struct{})}
}

// enter registers a run. The increment happens before the closed check, so
// a drain that has set closed either sees the run or the run sees closed.
func (t *tracker) enter() bool {
	t.active.Add(1)
	if t.closed.Load() {
		t.exit()
		return false
	}
	return true
}

func (t *tracker) exit() {
	if t.active.Add(-1) != 0 {
		return
	}
	t.mu.Lock()
	close(t.idle)
	t.idle = make(chan struct{})
	t.mu.Unlock()
}

// drain refuses new runs and waits until the running ones finish.
func (t *tracker) drain(ctx context.Context) error {
	t.closed.Store(true)
	for {
		t.mu.Lock()
		idle := t.idle
		t.mu.Unlock()
		if t.active.Load() == 0 {
			return nil
		}
		select {
		case <-idle:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
