package profiler

import (
	"context"
	"testing"
	"time"

	"github.com/nmslite/profilerd/internal/profiler/plugin"
)

// mockSession is a minimal plugin.Session recording every call it
// receives, the same shape the teacher's scheduler tests use for
// mocking a Querier.
type mockSession struct {
	id    int64
	flags plugin.Flags

	statements     []int64
	cursors        []int64
	recordSources  []uint32
	parentSequences []uint32
	finished       bool
	cancelled      bool
	flushCount     int
	requestsFinished []int64
}

func (s *mockSession) ID() int64          { return s.id }
func (s *mockSession) Flags() plugin.Flags { return s.flags }

func (s *mockSession) DefineStatement(ctx context.Context, statementID, parentStatementID int64, kind, packageName, routineName, sqlText string) error {
	s.statements = append(s.statements, statementID)
	return nil
}

func (s *mockSession) DefineCursor(ctx context.Context, statementID, cursorID int64, name string, line, column uint32) error {
	s.cursors = append(s.cursors, cursorID)
	return nil
}

func (s *mockSession) DefineRecordSource(ctx context.Context, statementID, cursorID int64, sequence uint32, level uint32, description string, parentSequence uint32) error {
	s.recordSources = append(s.recordSources, sequence)
	s.parentSequences = append(s.parentSequences, parentSequence)
	return nil
}

func (s *mockSession) OnRequestFinish(ctx context.Context, statementID, profileRequestID int64, timestamp time.Time, stats plugin.Stats) error {
	s.requestsFinished = append(s.requestsFinished, profileRequestID)
	return nil
}

func (s *mockSession) Finish(ctx context.Context, timestamp time.Time) error { s.finished = true; return nil }
func (s *mockSession) Cancel(ctx context.Context) error                     { s.cancelled = true; return nil }
func (s *mockSession) Flush(ctx context.Context) error                      { s.flushCount++; return nil }

// mockPlugin hands out mockSessions with increasing ids.
type mockPlugin struct {
	nextID   int64
	inited   bool
	flushed  int
	sessions []*mockSession
}

func (p *mockPlugin) Init(ctx context.Context, frequencyHz uint64) error { p.inited = true; return nil }

func (p *mockPlugin) StartSession(ctx context.Context, description, options string, timestamp time.Time) (plugin.Session, error) {
	p.nextID++
	s := &mockSession{id: p.nextID}
	p.sessions = append(p.sessions, s)
	return s, nil
}

func (p *mockPlugin) Flush(ctx context.Context) error { p.flushed++; return nil }

func newTestManager(t *testing.T, reg *plugin.Registry) *Manager {
	t.Helper()
	return NewManager(1, reg, 3600, nil, nil)
}

func registryWithMock() (*plugin.Registry, *mockPlugin) {
	p := &mockPlugin{}
	reg := plugin.NewRegistry()
	reg.Register("default", func() plugin.Plugin { return p })
	return reg, p
}

func TestManager_StartSession_AtMostOneActive(t *testing.T) {
	reg, p := registryWithMock()
	m := newTestManager(t, reg)

	id1, err := m.StartSession(context.Background(), nil, "default", "d1", "")
	if err != nil {
		t.Fatalf("first StartSession: %v", err)
	}

	id2, err := m.StartSession(context.Background(), nil, "default", "d2", "")
	if err != nil {
		t.Fatalf("second StartSession: %v", err)
	}
	if id2 == id1 {
		t.Fatalf("expected a fresh session id, got the same one back")
	}

	if !p.sessions[0].finished {
		t.Errorf("starting a second session must finish the first one, not cancel or leak it")
	}
	if !m.IsActive() {
		t.Errorf("manager should report an active session after StartSession")
	}
}

func TestManager_CancelSession_DoesNotFinish(t *testing.T) {
	reg, p := registryWithMock()
	m := newTestManager(t, reg)

	if _, err := m.StartSession(context.Background(), nil, "default", "", ""); err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	m.CancelSession(context.Background())

	if !p.sessions[0].cancelled {
		t.Errorf("CancelSession must call the plugin session's Cancel")
	}
	if p.sessions[0].finished {
		t.Errorf("CancelSession must not call Finish")
	}
	if m.IsActive() {
		t.Errorf("manager should have no active session after CancelSession")
	}
}

func TestManager_FinishSession_OptionalFlush(t *testing.T) {
	reg, p := registryWithMock()
	m := newTestManager(t, reg)

	if _, err := m.StartSession(context.Background(), nil, "default", "", ""); err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	if err := m.FinishSession(context.Background(), true); err != nil {
		t.Fatalf("FinishSession: %v", err)
	}

	if !p.sessions[0].finished {
		t.Errorf("FinishSession must call Finish on the plugin session")
	}
	if p.flushed == 0 {
		t.Errorf("FinishSession(flush=true) must flush every active plugin")
	}
}

func TestManager_SetFlushInterval_RejectsOutOfRange(t *testing.T) {
	reg, _ := registryWithMock()
	m := newTestManager(t, reg)

	if err := m.SetFlushInterval(context.Background(), -1); err == nil {
		t.Errorf("expected an error for a negative flush interval")
	}
	if err := m.SetFlushInterval(context.Background(), m.maxFlushInterval+1); err == nil {
		t.Errorf("expected an error for a flush interval beyond the configured maximum")
	}
	if err := m.SetFlushInterval(context.Background(), 60); err != nil {
		t.Errorf("a valid flush interval must be accepted: %v", err)
	}
}

func TestManager_PauseSession_SuppressesIsPaused(t *testing.T) {
	reg, _ := registryWithMock()
	m := newTestManager(t, reg)

	if _, err := m.StartSession(context.Background(), nil, "default", "", ""); err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	if err := m.PauseSession(context.Background(), false); err != nil {
		t.Fatalf("PauseSession: %v", err)
	}
	if !m.IsPaused() {
		t.Errorf("manager should report paused after PauseSession")
	}

	if err := m.ResumeSession(context.Background()); err != nil {
		t.Fatalf("ResumeSession: %v", err)
	}
	if m.IsPaused() {
		t.Errorf("manager should report not paused after ResumeSession")
	}
}

func TestManager_Discard_DropsWithoutFinishing(t *testing.T) {
	reg, p := registryWithMock()
	m := newTestManager(t, reg)

	if _, err := m.StartSession(context.Background(), nil, "default", "", ""); err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	m.Discard()

	if p.sessions[0].finished || p.sessions[0].cancelled {
		t.Errorf("Discard must not call Finish or Cancel on the plugin session")
	}
	if m.IsActive() {
		t.Errorf("manager should have no active session after Discard")
	}
}
