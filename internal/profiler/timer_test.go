package profiler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestFlushTimer_FiresOnceAfterReset(t *testing.T) {
	var fired atomic.Int32
	ft := newFlushTimer(func() { fired.Add(1) })

	ft.Reset(10 * time.Millisecond)
	time.Sleep(100 * time.Millisecond)

	if fired.Load() != 1 {
		t.Errorf("expected exactly 1 fire, got %d", fired.Load())
	}
}

func TestFlushTimer_StopPreventsFire(t *testing.T) {
	var fired atomic.Int32
	ft := newFlushTimer(func() { fired.Add(1) })

	ft.Reset(10 * time.Millisecond)
	ft.Stop()
	time.Sleep(50 * time.Millisecond)

	if fired.Load() != 0 {
		t.Errorf("expected no fire after Stop, got %d", fired.Load())
	}
}

func TestManager_TimedFlush_ReArmsAndFlushes(t *testing.T) {
	reg, p := registryWithMock()
	m := newTestManager(t, reg)

	interval := int32(1)
	flushInterval := interval
	if _, err := m.StartSession(context.Background(), &flushInterval, "default", "", ""); err != nil {
		t.Fatalf("StartSession: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) && p.flushed < 2 {
		time.Sleep(20 * time.Millisecond)
	}

	// A second flush only happens if the timer re-armed itself after the
	// first one.
	if p.flushed < 2 {
		t.Fatalf("expected the re-armed flush timer to trigger at least two plugin flushes, got %d", p.flushed)
	}
}
