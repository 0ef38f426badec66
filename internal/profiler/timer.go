package profiler

import (
	"sync"
	"time"
)

// flushTimer is a re-arming one-shot: each fire calls onFire once and
// then either stops or waits to be reset, never ticks on its own.
// Grounded on original_source/src/jrd/ProfilerManager.cpp's TimerImpl
// usage (reset(interval) / stop()), implemented with stdlib
// time.Timer — see DESIGN.md for why no third-party scheduler fits a
// single re-arming timer better than the standard one.
type flushTimer struct {
	mu      sync.Mutex
	timer   *time.Timer
	onFire  func()
	stopped bool
}

func newFlushTimer(onFire func()) *flushTimer {
	return &flushTimer{onFire: onFire, stopped: true}
}

// Reset (re)arms the timer to fire once after interval.
func (t *flushTimer) Reset(interval time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.timer != nil {
		t.timer.Stop()
	}
	t.stopped = false
	t.timer = time.AfterFunc(interval, func() {
		t.mu.Lock()
		fired := !t.stopped
		t.mu.Unlock()
		if fired {
			t.onFire()
		}
	})
}

// Stop disarms the timer. Safe to call repeatedly and when never
// armed.
func (t *flushTimer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stopped = true
	if t.timer != nil {
		t.timer.Stop()
	}
}
