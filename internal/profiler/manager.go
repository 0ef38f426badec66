// Package profiler implements the per-attachment profiler manager:
// session lifecycle, define-on-first-use statement/cursor/record-source
// registration, and the flush timer. Grounded on
// original_source/src/jrd/ProfilerManager.cpp's ProfilerManager class
// (lines ~360-640), adapted to Go idioms (explicit error returns, a
// closure-based pause guard instead of AutoSetRestore<bool>).
package profiler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nmslite/profilerd/internal/profiler/accesspath"
	"github.com/nmslite/profilerd/internal/profiler/errs"
	"github.com/nmslite/profilerd/internal/profiler/plugin"
)

// LifecycleEvent is published to an optional Notifier on every
// session state transition. Purely observational — see
// internal/eventhub for the websocket-backed implementation.
type LifecycleEvent struct {
	AttachmentID int64
	SessionID    int64
	Type         string // "started","paused","resumed","finished","cancelled","discarded","flushed"
	Timestamp    time.Time
}

// Notifier receives lifecycle events. nil-safe: Manager checks for a
// nil Notifier before publishing.
type Notifier interface {
	Notify(LifecycleEvent)
}

// Clock abstracts time.Now so tests can control timestamps without
// sleeping — the same seam internal/poller.SchedulerImpl leaves via
// its injected config, just narrower here.
type Clock func() time.Time

// Manager is the per-attachment profiler manager described in spec
// section 4.1. One is created lazily per attachment and destroyed
// with it (Close stops the flush timer).
type Manager struct {
	attachmentID int64
	registry     *plugin.Registry
	logger       *slog.Logger
	notifier     Notifier
	now          Clock

	maxFlushInterval int32

	mu            sync.Mutex
	activePlugins map[string]plugin.Plugin
	current       *session
	paused        bool
	flushInterval int32 // seconds; 0 disables timed flush

	timer *flushTimer
}

// NewManager constructs a Manager for one attachment. maxFlushInterval
// bounds SetFlushInterval (spec: "positive values must fit the timer's
// resolution — fail otherwise").
func NewManager(attachmentID int64, registry *plugin.Registry, maxFlushInterval int32, logger *slog.Logger, notifier Notifier) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		attachmentID:     attachmentID,
		registry:         registry,
		logger:           logger.With("component", "profiler", "attachment_id", attachmentID),
		notifier:         notifier,
		now:              time.Now,
		maxFlushInterval: maxFlushInterval,
		activePlugins:    make(map[string]plugin.Plugin),
	}
	m.timer = newFlushTimer(m.onFlushTimer)
	return m
}

// Close stops the flush timer. Must be called when the owning
// attachment is destroyed (spec section 3, Lifecycles).
func (m *Manager) Close() {
	m.timer.Stop()
}

// pauseGuard sets paused=true for the duration of the caller's scope
// and restores the previous value on return — the Go equivalent of
// AutoSetRestore<bool> used around startSession and flush in the
// original (see SPEC_FULL.md section C.3).
func (m *Manager) pauseGuard() func() {
	prev := m.paused
	m.paused = true
	return func() { m.paused = prev }
}

func (m *Manager) notify(eventType string, sessionID int64) {
	if m.notifier == nil {
		return
	}
	m.notifier.Notify(LifecycleEvent{
		AttachmentID: m.attachmentID,
		SessionID:    sessionID,
		Type:         eventType,
		Timestamp:    m.now(),
	})
}

// IsActive reports whether a session currently exists.
func (m *Manager) IsActive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current != nil
}

// IsPaused reports the pause flag observer hooks must respect (spec
// invariant: "paused = true ... observer hooks must treat paused as
// skip timing / skip record-source definition").
func (m *Manager) IsPaused() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.paused
}

func checkFlushInterval(interval int32, max int32) error {
	if interval < 0 {
		return errs.New(errs.KindInvalidFlushInterval, fmt.Sprintf("flush interval must be non-negative, got %d", interval))
	}
	if interval > max {
		return errs.New(errs.KindInvalidFlushInterval, fmt.Sprintf("flush interval %d exceeds maximum resolution %d", interval, max))
	}
	return nil
}

// StartSession implements spec section 4.1's startSession: if a
// session exists, finish it first; resolve (or load) the named
// plugin; start a new plugin session; arm the flush timer if
// requested.
func (m *Manager) StartSession(ctx context.Context, flushInterval *int32, pluginName, description, options string) (int64, error) {
	if flushInterval != nil {
		if err := checkFlushInterval(*flushInterval, m.maxFlushInterval); err != nil {
			return 0, err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	restore := m.pauseGuard()
	defer restore()

	timestamp := m.now()

	if m.current != nil {
		if err := m.current.pluginSession.Finish(ctx, timestamp); err != nil {
			m.logger.Error("plugin finish failed during startSession handoff", "error", err)
		}
		m.current = nil
	}

	p, ok := m.activePlugins[pluginName]
	if !ok {
		var err error
		p, err = m.registry.New(pluginName)
		if err != nil {
			return 0, errs.Wrap(errs.KindPluginNotFound, fmt.Sprintf("plugin %q not found", pluginName), err)
		}
		if err := p.Init(ctx, uint64(time.Second)); err != nil {
			return 0, fmt.Errorf("init plugin %q: %w", pluginName, err)
		}
		m.activePlugins[pluginName] = p
	}

	pluginSession, err := p.StartSession(ctx, description, options, timestamp)
	if err != nil {
		return 0, fmt.Errorf("plugin %q start session: %w", pluginName, err)
	}

	m.current = newSession(pluginSession.ID(), pluginName, p, pluginSession)
	m.paused = false

	if flushInterval != nil {
		m.flushInterval = *flushInterval
		m.updateFlushTimerLocked(true)
	}

	m.notify("started", m.current.id)
	return m.current.id, nil
}

// CancelSession implements spec section 4.1's cancelSession: drop the
// session without flushing.
func (m *Manager) CancelSession(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		return
	}
	if err := m.current.pluginSession.Cancel(ctx); err != nil {
		m.logger.Error("plugin cancel failed", "error", err)
	}
	id := m.current.id
	m.current = nil
	m.notify("cancelled", id)
}

// FinishSession implements spec section 4.1's finishSession.
func (m *Manager) FinishSession(ctx context.Context, flushData bool) error {
	m.mu.Lock()
	var finishedID int64
	if m.current != nil {
		timestamp := m.now()
		if err := m.current.pluginSession.Finish(ctx, timestamp); err != nil {
			m.logger.Error("plugin finish failed", "error", err)
		}
		finishedID = m.current.id
		m.current = nil
		m.notify("finished", finishedID)
	}
	m.mu.Unlock()

	if flushData {
		return m.Flush(ctx, true)
	}
	return nil
}

// PauseSession implements spec section 4.1's pauseSession.
func (m *Manager) PauseSession(ctx context.Context, flushData bool) error {
	m.mu.Lock()
	if m.current != nil {
		m.paused = true
		m.notify("paused", m.current.id)
	}
	m.mu.Unlock()

	if flushData {
		return m.Flush(ctx, true)
	}
	return nil
}

// ResumeSession implements spec section 4.1's resumeSession.
func (m *Manager) ResumeSession(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		return nil
	}
	m.paused = false
	m.updateFlushTimerLocked(true)
	m.notify("resumed", m.current.id)
	return nil
}

// SetFlushInterval implements spec section 4.1's setFlushInterval.
func (m *Manager) SetFlushInterval(ctx context.Context, interval int32) error {
	if err := checkFlushInterval(interval, m.maxFlushInterval); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.flushInterval = interval
	m.updateFlushTimerLocked(true)
	return nil
}

// Flush implements spec section 4.1's flush: pause for the duration,
// flush every active plugin, garbage-collect plugins no current
// session references, then optionally re-arm the timer.
func (m *Manager) Flush(ctx context.Context, updateTimer bool) error {
	m.mu.Lock()
	restore := m.pauseGuard()

	var firstErr error
	for name, p := range m.activePlugins {
		if err := p.Flush(ctx); err != nil {
			m.logger.Error("plugin flush failed", "plugin", name, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
		if m.current == nil || m.current.plugin != p {
			delete(m.activePlugins, name)
		}
	}

	restore()
	if m.current != nil {
		m.notify("flushed", m.current.id)
	}
	if updateTimer {
		m.updateFlushTimerLocked(true)
	}
	m.mu.Unlock()

	return firstErr
}

// Discard implements spec section 4.1's discard: drop the session
// without notifying its plugin, and clear the active-plugin map.
func (m *Manager) Discard() {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := int64(0)
	if m.current != nil {
		id = m.current.id
	}
	m.current = nil
	m.activePlugins = make(map[string]plugin.Plugin)
	m.notify("discarded", id)
}

// onFlushTimer is the flush timer's callback: flush(false) then
// re-arm (or stop) via updateFlushTimer(false) — spec section 4.1.
func (m *Manager) onFlushTimer() {
	if err := m.Flush(context.Background(), false); err != nil {
		m.logger.Error("timed flush failed", "error", err)
	}
	m.mu.Lock()
	m.updateFlushTimerLocked(false)
	m.mu.Unlock()
}

// updateFlushTimerLocked arms the timer iff a session exists, isn't
// paused, and flushInterval > 0; otherwise stops it iff canStop.
// Caller must hold m.mu.
func (m *Manager) updateFlushTimerLocked(canStop bool) {
	if m.current != nil && !m.paused && m.flushInterval > 0 {
		m.timer.Reset(time.Duration(m.flushInterval) * time.Second)
	} else if canStop {
		m.timer.Stop()
	}
}

// statementForLocked resolves the Statement record for req's leaf
// statement, walking up through ParentStatement and calling
// defineStatement for every newly seen ancestor — spec section 4.1's
// "Define-on-first-use of statements". Returns nil if no session is
// active. Caller must hold m.mu.
func (m *Manager) statementForLocked(ctx context.Context, req *accesspath.Request) (*statement, error) {
	if m.current == nil {
		return nil, nil
	}
	if req == nil || req.Statement == nil {
		return nil, nil
	}

	if main, ok := m.current.statements[req.Statement.ID]; ok {
		return main, nil
	}

	var mainStatement *statement

	for st := req.Statement; st != nil; st = st.ParentStatement {
		if _, ok := m.current.statements[st.ID]; ok {
			break
		}

		var parentID int64
		if st.ParentStatement != nil {
			parentID = st.ParentStatement.ID
		}

		if err := m.current.pluginSession.DefineStatement(ctx, st.ID, parentID, string(st.Type), st.PackageName, st.RoutineOrTrigger, st.SQLText); err != nil {
			m.logger.Error("defineStatement failed", "statement_id", st.ID, "error", err)
		}

		rec := newStatement(st.ID)
		m.current.statements[st.ID] = rec
		if mainStatement == nil {
			mainStatement = rec
		}
	}

	return mainStatement, nil
}
