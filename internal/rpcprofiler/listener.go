package rpcprofiler

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Listener is the in-process analog of ProfilerListener: one per
// remote-profiled attachment, woken by serverEvent whenever a client
// has posted a command on that attachment's channel, and torn down
// via the same startup-semaphore handshake the original uses to avoid
// a race between construction and the first command.
type Listener struct {
	logger *slog.Logger
	ch     *channel
	disp   Dispatcher

	exiting atomic.Bool
	startup chan struct{} // closed after the watcher loop's first pass, just before its first wait; mirrors startupSemaphore.release()
	done    chan struct{}

	shutdownTimeout time.Duration
}

// newListener constructs and starts a Listener's watcher goroutine,
// mirroring ProfilerListener's constructor calling cleanupSync.run.
func newListener(ch *channel, disp Dispatcher, shutdownTimeout time.Duration, logger *slog.Logger) *Listener {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Listener{
		logger:          logger.With("component", "rpcprofiler.listener", "attachment_id", ch.attachmentID),
		ch:              ch,
		disp:            disp,
		startup:         make(chan struct{}),
		done:            make(chan struct{}),
		shutdownTimeout: shutdownTimeout,
	}
	go l.watcherLoop()
	return l
}

// watcherLoop is ProfilerListener::watcherThread: on each pass, clear
// the server event, dispatch whatever tag is currently set (a no-op
// the very first time through, since nothing has posted yet), release
// the startup handshake after that first pass regardless of whether a
// real command arrived, then block waiting for the next post. This
// ordering — clear/dispatch/release-startup before the blocking wait —
// matters: it's what lets Close() tear down a listener that never
// received a single command without waiting out its full shutdown
// timeout.
func (l *Listener) watcherLoop() {
	defer close(l.done)

	startupReleased := false
	releaseStartup := func() {
		if !startupReleased {
			startupReleased = true
			close(l.startup)
		}
	}

	for !l.exiting.Load() {
		clear(l.ch.serverEvent)

		// No ch.mu here: the client holds it across its own blocking
		// wait for the whole exchange (it serializes concurrent
		// callers, not listener-vs-client access), and the
		// post/wait pair below already gives the happens-before edge
		// this read needs.
		tag := l.ch.header.tag

		if tag != TagNop {
			l.processCommand()
		}

		releaseStartup()

		if l.exiting.Load() {
			return
		}

		if err := wait(context.Background(), l.ch.serverEvent); err != nil {
			return
		}
	}
}

// processCommand is ProfilerListener::processCommand: check the
// privilege bit, dispatch by tag, write the response or exception back
// into the header, then post clientEvent.
func (l *Listener) processCommand() {
	ctx, cancel := context.WithTimeout(context.Background(), exchangeTimeout)
	defer cancel()

	tag := l.ch.header.tag
	userName := l.ch.header.userName
	payload := l.ch.header.payload

	respond := func(tag Tag, payload any) {
		l.ch.header.tag = tag
		l.ch.header.payload = payload
		post(l.ch.clientEvent)
	}

	if userName != "" && userName != l.disp.OwnerUserName() {
		respond(TagException, "insufficient privilege: PROFILE_ANY_ATTACHMENT")
		return
	}

	var err error
	var out any

	switch tag {
	case TagCancelSession:
		err = l.disp.CancelSession(ctx)
	case TagDiscard:
		err = l.disp.Discard(ctx)
	case TagFinishSession:
		in, _ := payload.(FinishSessionInput)
		err = l.disp.FinishSession(ctx, in.Flush)
	case TagFlush:
		err = l.disp.Flush(ctx)
	case TagPauseSession:
		in, _ := payload.(PauseSessionInput)
		err = l.disp.PauseSession(ctx, in.Flush)
	case TagResumeSession:
		err = l.disp.ResumeSession(ctx)
	case TagSetFlushInterval:
		in, _ := payload.(SetFlushIntervalInput)
		err = l.disp.SetFlushInterval(ctx, in.FlushInterval)
	case TagStartSession:
		in, _ := payload.(StartSessionInput)
		out, err = l.disp.StartSession(ctx, in)
	default:
		respond(TagException, "invalid profiler remote command")
		return
	}

	if err != nil {
		respond(TagException, err.Error())
		return
	}
	respond(TagResponse, out)
}

// Close tears a Listener down: wait (bounded) for it to finish its
// first pass through the loop so a spawn racing with a close doesn't
// leak a goroutine, then wake it one last time and block until it
// exits — ~ProfilerListener::~ProfilerListener.
func (l *Listener) Close() {
	select {
	case <-l.startup:
	case <-time.After(l.shutdownTimeout):
		l.logger.Warn("timed out waiting for listener startup before close")
	}

	l.exiting.Store(true)
	post(l.ch.serverEvent)
	<-l.done
}
