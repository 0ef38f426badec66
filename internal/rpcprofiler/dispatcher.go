package rpcprofiler

import "context"

// Dispatcher is what a Listener's watcher loop calls into once a
// command has arrived on its channel — the Go shape of
// ProfilerListener::processCommand, minus the privilege check (the
// listener itself enforces that from the header's userName before
// calling in, since it alone knows which attachment it's listening
// for).
type Dispatcher interface {
	CancelSession(ctx context.Context) error
	Discard(ctx context.Context) error
	FinishSession(ctx context.Context, flush bool) error
	Flush(ctx context.Context) error
	PauseSession(ctx context.Context, flush bool) error
	ResumeSession(ctx context.Context) error
	SetFlushInterval(ctx context.Context, interval int32) error
	StartSession(ctx context.Context, in StartSessionInput) (StartSessionOutput, error)

	// OwnerUserName is the user name the listener's attachment runs
	// as — checked against header.userName to enforce
	// PROFILE_ANY_ATTACHMENT (an empty header.userName means the
	// caller held that privilege and the check is skipped).
	OwnerUserName() string
}

// ResolveDispatcher looks up the Dispatcher for attachmentID, lazily
// if needed. It returns ok=false if the attachment no longer exists.
type ResolveDispatcher func(attachmentID int64) (Dispatcher, bool)

// LivenessChecker reports whether attachmentID is currently alive,
// backing the exclusive no-wait lock probe of
// ProfilerIpc::internalSendAndReceive.
type LivenessChecker func(attachmentID int64) bool
