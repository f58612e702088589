// Package eerr defines the uniform error-kind taxonomy shared by every
// Embranch component. Components never return ad-hoc error strings for
// anything user- or tool-visible; they narrow to one of these kinds and
// attach a human message plus, where a recovery path exists, an
// ActionRequired hint.
package eerr

import (
	"errors"
	"fmt"
)

// Kind is a machine-readable error classification. The set is closed and
// mirrors the propagation policy: only Kinds marked retryable in
// Retryable() are retried automatically by internal/retry.
type Kind string

const (
	NotInitialized      Kind = "NOT_INITIALIZED"
	AlreadyInitialized  Kind = "ALREADY_INITIALIZED"
	InvalidArgument     Kind = "INVALID_ARGUMENT"
	NotFound            Kind = "NOT_FOUND"
	Conflict            Kind = "CONFLICT"
	Busy                Kind = "BUSY"
	TimedOut            Kind = "TIMED_OUT"
	NetworkError        Kind = "NETWORK_ERROR"
	AuthFailed          Kind = "AUTH_FAILED"
	PermissionDenied    Kind = "PERMISSION_DENIED"
	Rejected            Kind = "REJECTED"
	SchemaMissing       Kind = "SCHEMA_MISSING"
	Corrupt             Kind = "CORRUPT"
	Internal            Kind = "INTERNAL"
)

// Error is the concrete error type every component surfaces across its
// public boundary. It implements error and Unwrap so errors.Is/As and
// %w wrapping keep working the way the rest of the stack expects.
type Error struct {
	Kind           Kind
	Message        string
	ActionRequired string
	Err            error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// New constructs a kind-tagged error with no underlying cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf is New with fmt.Sprintf-style formatting.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap narrows an arbitrary error to a kind, keeping it in the chain.
func Wrap(kind Kind, err error, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: message, Err: err}
}

// WithAction returns a copy of e with ActionRequired set, for attaching a
// recovery hint at the point where enough context exists to suggest one.
func (e *Error) WithAction(action string) *Error {
	cp := *e
	cp.ActionRequired = action
	return &cp
}

// As extracts the first *Error in err's chain, if any.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the Kind of err if it (or something it wraps) is an
// *Error, or Internal otherwise. Useful at boundaries that must always
// produce a kind (e.g. the tool surface).
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return Internal
}

// Retryable reports whether the propagation policy (spec §7) allows this
// kind to be retried automatically. Only transient, infrastructure-level
// failures qualify; anything requiring operator action does not.
func (k Kind) Retryable() bool {
	switch k {
	case NetworkError, TimedOut:
		return true
	default:
		return false
	}
}
