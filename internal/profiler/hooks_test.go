package profiler

import (
	"context"
	"testing"

	"github.com/nmslite/profilerd/internal/profiler/accesspath"
)

func testRequest(statementID int64) *accesspath.Request {
	return &accesspath.Request{
		ID: statementID * 100,
		Statement: &accesspath.Statement{
			ID:   statementID,
			Type: accesspath.StatementProcedure,
		},
	}
}

func TestObserveOpen_RecordSourceSequenceAndParent(t *testing.T) {
	reg, p := registryWithMock()
	m := newTestManager(t, reg)

	if _, err := m.StartSession(context.Background(), nil, "default", "", ""); err != nil {
		t.Fatalf("StartSession: %v", err)
	}

	scan := accesspath.NewScan(1, 10, "T", "")
	sort := accesspath.NewSort(1, 11, []string{"id"}, scan)
	cur := &Cursor{ID: 1, Root: sort, Name: "c1"}
	req := testRequest(1)

	if err := m.ObserveOpen(context.Background(), cur, sort, req); err != nil {
		t.Fatalf("ObserveOpen(root): %v", err)
	}
	if err := m.ObserveOpen(context.Background(), cur, scan, req); err != nil {
		t.Fatalf("ObserveOpen(child): %v", err)
	}

	session := p.sessions[0]
	if len(session.recordSources) != 2 {
		t.Fatalf("expected 2 defineRecordSource calls, got %d", len(session.recordSources))
	}
	if session.recordSources[0] != 1 || session.recordSources[1] != 2 {
		t.Errorf("expected sequences 1,2 in pre-order, got %v", session.recordSources)
	}
	if session.parentSequences[0] != 0 || session.parentSequences[1] != 1 {
		t.Errorf("expected parent sequences 0 (root), 1 (sort), got %v", session.parentSequences)
	}
	if len(session.cursors) != 1 {
		t.Errorf("expected defineCursor exactly once, got %d calls", len(session.cursors))
	}
}

func TestObserveOpen_DefinesRecordSourceOnlyOnce(t *testing.T) {
	reg, p := registryWithMock()
	m := newTestManager(t, reg)

	if _, err := m.StartSession(context.Background(), nil, "default", "", ""); err != nil {
		t.Fatalf("StartSession: %v", err)
	}

	scan := accesspath.NewScan(1, 10, "T", "")
	cur := &Cursor{ID: 1, Root: scan, Name: "c1"}
	req := testRequest(1)

	for i := 0; i < 3; i++ {
		if err := m.ObserveOpen(context.Background(), cur, scan, req); err != nil {
			t.Fatalf("ObserveOpen iteration %d: %v", i, err)
		}
	}

	session := p.sessions[0]
	if len(session.recordSources) != 1 {
		t.Errorf("re-opening an already-defined cursor must not redefine its record sources, got %d calls", len(session.recordSources))
	}
	if len(session.statements) != 1 {
		t.Errorf("a statement must be defined at most once per session, got %d calls", len(session.statements))
	}
}

func TestObserveOpen_PausedSkipsDefinitionAndTiming(t *testing.T) {
	reg, p := registryWithMock()
	m := newTestManager(t, reg)

	if _, err := m.StartSession(context.Background(), nil, "default", "", ""); err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	if err := m.PauseSession(context.Background(), false); err != nil {
		t.Fatalf("PauseSession: %v", err)
	}

	scan := accesspath.NewScan(1, 10, "T", "")
	cur := &Cursor{ID: 1, Root: scan, Name: "c1"}
	req := testRequest(1)

	if err := m.ObserveOpen(context.Background(), cur, scan, req); err != nil {
		t.Fatalf("ObserveOpen: %v", err)
	}

	session := p.sessions[0]
	if len(session.recordSources) != 0 || len(session.cursors) != 0 || len(session.statements) != 0 {
		t.Errorf("a paused session must not report any definitions, got statements=%d cursors=%d recordSources=%d",
			len(session.statements), len(session.cursors), len(session.recordSources))
	}

	m.mu.Lock()
	_, tracked := m.current.requests[req.ID]
	m.mu.Unlock()
	if tracked {
		t.Errorf("a paused session must not accumulate per-request timing stats")
	}
}

func TestFinishRequest_ReportsAndClearsAccumulator(t *testing.T) {
	reg, p := registryWithMock()
	m := newTestManager(t, reg)

	if _, err := m.StartSession(context.Background(), nil, "default", "", ""); err != nil {
		t.Fatalf("StartSession: %v", err)
	}

	scan := accesspath.NewScan(1, 10, "T", "")
	cur := &Cursor{ID: 1, Root: scan, Name: "c1"}
	req := testRequest(1)

	if err := m.ObserveOpen(context.Background(), cur, scan, req); err != nil {
		t.Fatalf("ObserveOpen: %v", err)
	}
	if _, err := m.ObserveGetRecord(context.Background(), scan, req); err != nil {
		t.Fatalf("ObserveGetRecord: %v", err)
	}

	m.FinishRequest(context.Background(), req)

	session := p.sessions[0]
	if len(session.requestsFinished) != 1 || session.requestsFinished[0] != req.ID {
		t.Errorf("expected onRequestFinish reported once for request %d, got %v", req.ID, session.requestsFinished)
	}

	m.mu.Lock()
	_, stillTracked := m.current.requests[req.ID]
	m.mu.Unlock()
	if stillTracked {
		t.Errorf("FinishRequest must drop the request's accumulator")
	}
}
