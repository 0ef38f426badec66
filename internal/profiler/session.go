package profiler

import (
	"sync"

	"github.com/nmslite/profilerd/internal/profiler/accesspath"
	"github.com/nmslite/profilerd/internal/profiler/plugin"
)

// statement mirrors the original's Statement record: which cursors
// and record sources have already been reported to the plugin for
// this (session, statement) pair, per spec section 3.
type statement struct {
	id                 int64
	definedCursors     map[int64]bool
	recSourceSequence  map[int64]uint32 // recSourceId -> assigned sequence
	cursorNextSequence map[int64]*uint32 // cursorId -> running counter
}

func newStatement(id int64) *statement {
	return &statement{
		id:                 id,
		definedCursors:     make(map[int64]bool),
		recSourceSequence:  make(map[int64]uint32),
		cursorNextSequence: make(map[int64]*uint32),
	}
}

// session is the profiler manager's per-attachment active session,
// combining the plugin handle with the registries the define-on-
// first-use walk consults.
type session struct {
	mu sync.Mutex

	id            int64
	pluginName    string
	plugin        plugin.Plugin
	pluginSession plugin.Session
	flags         plugin.Flags

	statements map[int64]*statement          // by Firebird-style statementId
	requests   map[int64]*plugin.Stats       // in-flight request accumulators, by profileRequestId
}

func newSession(id int64, pluginName string, p plugin.Plugin, ps plugin.Session) *session {
	return &session{
		id:            id,
		pluginName:    pluginName,
		plugin:        p,
		pluginSession: ps,
		flags:         ps.Flags(),
		statements:    make(map[int64]*statement),
		requests:      make(map[int64]*plugin.Stats),
	}
}

// Cursor is what the query executor passes to the observer hooks: the
// access-path subtree root for one cursor, plus the metadata
// defineCursor needs. Grounded on original_source/src/jrd/recsrc/Cursor.h's
// Select/Cursor classes (name, line, column of the declaring cursor).
type Cursor struct {
	ID     int64
	Root   accesspath.AccessPath
	Name   string
	Line   uint32
	Column uint32
}
