package profiler

import (
	"context"
	"time"

	"github.com/nmslite/profilerd/internal/profiler/accesspath"
	"github.com/nmslite/profilerd/internal/profiler/plugin"
)

// ObserveOpen wraps an access-path node's Open call with the scoped
// timer and define-on-first-use logic of spec section 4.1. The query
// executor calls this instead of node.Open directly for every node in
// every cursor it opens, in parent-before-child order.
func (m *Manager) ObserveOpen(ctx context.Context, cur *Cursor, node accesspath.AccessPath, req *accesspath.Request) error {
	m.mu.Lock()
	active := m.current != nil && !m.paused
	if active {
		if _, err := m.statementForLocked(ctx, req); err != nil {
			m.logger.Error("statement definition failed", "error", err)
		}
		if node == cur.Root {
			m.ensureCursorDefinedLocked(ctx, req, cur)
		}
		m.ensureRecordSourcesDefinedLocked(ctx, req, cur)
	}
	m.mu.Unlock()

	start := m.now()
	err := node.Open(ctx, req)
	elapsed := m.now().Sub(start)

	if active {
		m.accumulate(req, elapsed, 0)
	}
	return err
}

// ObserveGetRecord wraps an access-path node's GetRecord call the same
// way ObserveOpen wraps Open, reporting only while the session is
// active and not paused (spec section 4.1).
func (m *Manager) ObserveGetRecord(ctx context.Context, node accesspath.AccessPath, req *accesspath.Request) (bool, error) {
	m.mu.Lock()
	active := m.current != nil && !m.paused
	m.mu.Unlock()

	start := m.now()
	found, err := node.GetRecord(ctx, req)
	elapsed := m.now().Sub(start)

	if active {
		fetches := int64(0)
		if found {
			fetches = 1
		}
		m.accumulate(req, elapsed, fetches)
	}
	return found, err
}

// accumulate adds elapsed time and fetch counts to the in-flight
// per-request stats accumulator, created lazily on first use.
func (m *Manager) accumulate(req *accesspath.Request, elapsed time.Duration, fetches int64) {
	if req == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return
	}
	stats, ok := m.current.requests[req.ID]
	if !ok {
		stats = &plugin.Stats{}
		m.current.requests[req.ID] = stats
	}
	stats.ElapsedNanos += elapsed.Nanoseconds()
	stats.Fetches += fetches
}

// ensureCursorDefinedLocked calls defineCursor at most once per
// (session, cursor). Caller must hold m.mu.
func (m *Manager) ensureCursorDefinedLocked(ctx context.Context, req *accesspath.Request, cur *Cursor) {
	st, _ := m.statementForLocked(ctx, req)
	if st == nil || st.definedCursors[cur.ID] {
		return
	}
	if err := m.current.pluginSession.DefineCursor(ctx, st.id, cur.ID, cur.Name, cur.Line, cur.Column); err != nil {
		m.logger.Error("defineCursor failed", "cursor_id", cur.ID, "error", err)
	}
	st.definedCursors[cur.ID] = true
}

// ensureRecordSourcesDefinedLocked flattens cur.Root in pre-order and
// calls defineRecordSource for every node not yet registered by
// RecSourceID, allocating the next sequence number for the cursor as
// it goes — spec section 4.1's "Define-on-first-use of cursors /
// record sources". Membership is checked before assigning sequences,
// so re-entry (e.g. re-opening an already-defined cursor) is safe.
// Caller must hold m.mu.
func (m *Manager) ensureRecordSourcesDefinedLocked(ctx context.Context, req *accesspath.Request, cur *Cursor) {
	st, _ := m.statementForLocked(ctx, req)
	if st == nil {
		return
	}

	counter, ok := st.cursorNextSequence[cur.ID]
	if !ok {
		zero := uint32(0)
		counter = &zero
		st.cursorNextSequence[cur.ID] = counter
	}

	idToSequence := make(map[int64]uint32)
	depth := make(map[accesspath.AccessPath]int)

	for _, entry := range accesspath.Walk(cur.Root) {
		recSourceID := entry.Node.RecSourceID()

		level := 0
		if entry.Parent != nil {
			level = depth[entry.Parent] + 1
		}
		depth[entry.Node] = level

		if seq, already := st.recSourceSequence[recSourceID]; already {
			idToSequence[recSourceID] = seq
			continue
		}

		*counter++
		sequence := *counter
		idToSequence[recSourceID] = sequence

		var parentSequence uint32
		if entry.Parent != nil {
			parentSequence = idToSequence[entry.Parent.RecSourceID()]
		}

		if err := m.current.pluginSession.DefineRecordSource(ctx, st.id, cur.ID, sequence, uint32(level), entry.Node.Plan(), parentSequence); err != nil {
			m.logger.Error("defineRecordSource failed", "rec_source_id", recSourceID, "error", err)
		}

		st.recSourceSequence[recSourceID] = sequence
	}
}

// FinishRequest implements spec section 4.1's "Request completion":
// if req has accumulated stats, reports them via onRequestFinish and
// drops the accumulator.
func (m *Manager) FinishRequest(ctx context.Context, req *accesspath.Request) {
	if req == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		return
	}
	stats, ok := m.current.requests[req.ID]
	if !ok {
		return
	}

	st, _ := m.statementForLocked(ctx, req)
	if st != nil {
		if err := m.current.pluginSession.OnRequestFinish(ctx, st.id, req.ID, m.now(), *stats); err != nil {
			m.logger.Error("onRequestFinish failed", "error", err)
		}
	}
	delete(m.current.requests, req.ID)
}
