package rpcprofiler

import (
	"context"
	"testing"
	"time"
)

func TestPostClearWait_LatchSemantics(t *testing.T) {
	ev := make(chan struct{}, 1)

	// wait before any post blocks until context expires.
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := wait(ctx, ev); err == nil {
		t.Fatalf("expected wait to time out with nothing posted")
	}

	post(ev)
	post(ev) // a second post while already posted must be a no-op, not block or grow

	if err := wait(context.Background(), ev); err != nil {
		t.Fatalf("wait after post: %v", err)
	}

	// the single buffered post was drained by the wait above; a second
	// wait must block again.
	ctx2, cancel2 := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel2()
	if err := wait(ctx2, ev); err == nil {
		t.Fatalf("expected wait to time out after the post was already drained")
	}
}

func TestClear_DrainsPendingPost(t *testing.T) {
	ev := make(chan struct{}, 1)
	post(ev)
	clear(ev)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := wait(ctx, ev); err == nil {
		t.Fatalf("expected wait to time out after clear drained the pending post")
	}
}
