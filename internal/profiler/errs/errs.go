// Package errs defines the typed error kinds the profiler subsystem
// surfaces upward, per spec section 7.
package errs

import (
	"errors"
	"fmt"
)

// Kind identifies one of the profiler subsystem's well-known error
// conditions. Kept as a string rather than an int enum so the kind
// survives text serialization across the RPC channel unchanged.
type Kind string

const (
	KindPluginNotFound      Kind = "profiler/plugin-not-found"
	KindAttachmentNotActive Kind = "profiler/attachment-not-active"
	KindInvalidFlushInterval Kind = "profiler/invalid-flush-interval"
	KindInsufficientPrivilege Kind = "profiler/insufficient-privilege"
	KindIPCInit             Kind = "profiler/ipc-init"
	KindProtocol             Kind = "profiler/protocol"
)

// Error is a profiler error carrying a stable machine-readable Kind
// alongside a human-readable message, the same split
// internal/middleware.ErrorDetail gives HTTP errors in the teacher.
type Error struct {
	Kind    Kind
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

// Is reports whether err is a profiler error of the given kind.
func Is(err error, kind Kind) bool {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind == kind
	}
	return false
}
