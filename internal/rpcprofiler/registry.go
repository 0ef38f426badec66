package rpcprofiler

import (
	"log/slog"
	"sync"
	"time"
)

// Registry owns one channel and at most one Listener per attachment,
// lazily spawning the listener the first time any caller addresses
// that attachment remotely — the Go shape of
// ProfilerManager::blockingAst's `if (!profilerManager->listener)`
// check.
type Registry struct {
	logger          *slog.Logger
	shutdownTimeout time.Duration

	mu        sync.Mutex
	channels  map[int64]*channel
	listeners map[int64]*Listener
}

func NewRegistry(shutdownTimeout time.Duration, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		logger:          logger.With("component", "rpcprofiler.registry"),
		shutdownTimeout: shutdownTimeout,
		channels:        make(map[int64]*channel),
		listeners:       make(map[int64]*Listener),
	}
}

func (r *Registry) channelFor(attachmentID int64) *channel {
	r.mu.Lock()
	defer r.mu.Unlock()

	ch, ok := r.channels[attachmentID]
	if !ok {
		ch = newChannel(attachmentID)
		r.channels[attachmentID] = ch
	}
	return ch
}

// ensureListener spawns attachmentID's Listener if one doesn't already
// exist, mirroring blockingAst's lazy-create-once-under-lock pattern.
// resolve supplies the Dispatcher; if it reports the attachment is
// gone, no listener is created.
func (r *Registry) ensureListener(attachmentID int64, resolve ResolveDispatcher) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.listeners[attachmentID]; ok {
		return
	}

	disp, ok := resolve(attachmentID)
	if !ok {
		return
	}

	ch, chOk := r.channels[attachmentID]
	if !chOk {
		ch = newChannel(attachmentID)
		r.channels[attachmentID] = ch
	}

	r.listeners[attachmentID] = newListener(ch, disp, r.shutdownTimeout, r.logger)
}

// CloseListener tears down attachmentID's listener, if any — called
// when an attachment detaches (spec section 3's lifecycle teardown).
func (r *Registry) CloseListener(attachmentID int64) {
	r.mu.Lock()
	l, ok := r.listeners[attachmentID]
	if ok {
		delete(r.listeners, attachmentID)
		delete(r.channels, attachmentID)
	}
	r.mu.Unlock()

	if ok {
		l.Close()
	}
}
