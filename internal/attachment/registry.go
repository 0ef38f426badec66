package attachment

import (
	"log/slog"
	"sync"

	"github.com/nmslite/profilerd/internal/profiler"
	"github.com/nmslite/profilerd/internal/profiler/plugin"
	"github.com/nmslite/profilerd/internal/rpcprofiler"
)

// Registry tracks every currently-connected Attachment, standing in
// for the engine's attachment table. It supplies the two hooks
// internal/rpcprofiler needs to reach a remote attachment without
// importing this package: a liveness check (the LCK_EX/LCK_NO_WAIT
// probe) and a Dispatcher resolver (what blockingAst's
// getProfilerManager would return). It also owns the dependencies
// every attachment's profiler.Manager needs, so Attach can construct
// one as part of connecting.
type Registry struct {
	pluginRegistry   *plugin.Registry
	maxFlushInterval int32
	logger           *slog.Logger
	notifier         profiler.Notifier

	mu          sync.RWMutex
	attachments map[int64]*Attachment

	rpc *rpcprofiler.Registry
}

func NewRegistry(rpc *rpcprofiler.Registry, pluginRegistry *plugin.Registry, maxFlushInterval int32, logger *slog.Logger, notifier profiler.Notifier) *Registry {
	return &Registry{
		pluginRegistry:   pluginRegistry,
		maxFlushInterval: maxFlushInterval,
		logger:           logger,
		notifier:         notifier,
		attachments:      make(map[int64]*Attachment),
		rpc:              rpc,
	}
}

// Attach registers a newly-connected attachment and creates its
// profiler.Manager, matching spec section 3's "attachment connects"
// lifecycle event. Re-attaching an id already registered returns the
// existing Attachment unchanged.
func (r *Registry) Attach(id int64, userName string) *Attachment {
	r.mu.Lock()
	defer r.mu.Unlock()

	if a, ok := r.attachments[id]; ok {
		return a
	}

	manager := profiler.NewManager(id, r.pluginRegistry, r.maxFlushInterval, r.logger, r.notifier)
	a := newAttachment(id, userName, manager)
	r.attachments[id] = a
	return a
}

// Detach tears an attachment's profiler manager and remote listener
// down and removes it from the registry — spec section 3's
// "attachment disconnects".
func (r *Registry) Detach(id int64) {
	r.mu.Lock()
	a, ok := r.attachments[id]
	if ok {
		delete(r.attachments, id)
	}
	r.mu.Unlock()

	if !ok {
		return
	}

	r.rpc.CloseListener(id)
	a.closeManager()
}

// Get returns the attachment registered under id.
func (r *Registry) Get(id int64) (*Attachment, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.attachments[id]
	return a, ok
}

// IsAlive implements rpcprofiler.LivenessChecker.
func (r *Registry) IsAlive(id int64) bool {
	_, ok := r.Get(id)
	return ok
}

// Resolve implements rpcprofiler.ResolveDispatcher.
func (r *Registry) Resolve(id int64) (rpcprofiler.Dispatcher, bool) {
	a, ok := r.Get(id)
	if !ok {
		return nil, false
	}
	return a, true
}

// Active reports every currently-connected attachment id.
func (r *Registry) Active() []int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]int64, 0, len(r.attachments))
	for id := range r.attachments {
		ids = append(ids, id)
	}
	return ids
}
