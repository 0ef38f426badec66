// Package accesspath models the query executor's access-path tree —
// the composable cursor/iterator DAG the profiler observes. This is a
// Go re-architecture of Firebird's RecordSource virtual hierarchy
// (original_source/src/jrd/recsrc/*) as a trait/interface with the
// capability set spec section 9 calls for, instead of deep
// inheritance.
package accesspath

import "context"

// Request identifies the compiled statement invocation a node's
// open/getRecord calls belong to. The profiler manager walks
// Request.Statement upward through ParentStatement to define
// statements on first use (spec section 4.1).
type Request struct {
	ID        int64
	Statement *Statement
}

// Statement describes a compiled query, routine, trigger, or
// anonymous block — external metadata the profiler reads, not owned
// by it.
type Statement struct {
	ID              int64
	ParentStatement *Statement
	Type            StatementType
	PackageName     string
	RoutineOrTrigger string
	SQLText         string
}

// StatementType classifies a Statement for defineStatement.
type StatementType string

const (
	StatementProcedure StatementType = "PROCEDURE"
	StatementFunction  StatementType = "FUNCTION"
	StatementTrigger   StatementType = "TRIGGER"
	StatementBlock     StatementType = "BLOCK"
)

// AccessPath is the capability set every concrete record-source node
// implements. The profiler's observer hooks (package profiler) wrap
// this interface boundary, not the concrete variants.
type AccessPath interface {
	// CursorID identifies the cursor this node belongs to.
	CursorID() int64

	// RecSourceID stably identifies this node within its statement,
	// independent of traversal order.
	RecSourceID() int64

	// Plan renders a human-readable one-line plan description for
	// this node alone (not its subtree).
	Plan() string

	// Children returns this node's direct access-path children, in
	// the engine's well-defined evaluation order.
	Children() []AccessPath

	Open(ctx context.Context, req *Request) error
	Close(ctx context.Context) error
	GetRecord(ctx context.Context, req *Request) (found bool, err error)
	RefetchRecord(ctx context.Context) error
	LockRecord(ctx context.Context) error
	FindUsedStreams(streams *[]int64)
	InvalidateRecords(ctx context.Context)
	NullRecords(ctx context.Context)
	MarkRecursive()
}

// base gives every concrete node its ids, its children, and a
// default no-op for the capabilities most variants don't need,
// mirroring how the original RecordSource base class implements most
// of these as no-ops that only a few subclasses override.
type base struct {
	cursorID    int64
	recSourceID int64
	children    []AccessPath
}

func (b *base) CursorID() int64          { return b.cursorID }
func (b *base) RecSourceID() int64       { return b.recSourceID }
func (b *base) Children() []AccessPath   { return b.children }
func (b *base) RefetchRecord(context.Context) error { return nil }
func (b *base) LockRecord(context.Context) error    { return nil }
func (b *base) FindUsedStreams(streams *[]int64) {
	*streams = append(*streams, b.cursorID)
}
func (b *base) InvalidateRecords(context.Context) {}
func (b *base) NullRecords(context.Context)        {}
func (b *base) MarkRecursive()                     {}

// NodeAndParent is one entry of a pre-order traversal: a node plus
// its immediate access-path parent (nil for the cursor root).
type NodeAndParent struct {
	Node   AccessPath
	Parent AccessPath
}

// Walk flattens the subtree rooted at node into pre-order, the Go
// equivalent of the original's PlanEntry::asFlatList. Parents always
// precede their children, matching the engine's open ordering.
func Walk(node AccessPath) []NodeAndParent {
	var out []NodeAndParent
	var visit func(n, parent AccessPath)
	visit = func(n, parent AccessPath) {
		out = append(out, NodeAndParent{Node: n, Parent: parent})
		for _, c := range n.Children() {
			visit(c, n)
		}
	}
	visit(node, nil)
	return out
}
