// Package apierrors defines the typed error taxonomy shared across the
// audit pipeline so callers can branch on Kind rather than string-matching
// error messages.
package apierrors

import (
	"errors"
	"fmt"
)

// Kind classifies an error into one of the pipeline's recognized failure
// modes. CLI and worker exit codes are derived from Kind.
type Kind string

const (
	KindInvalidEvent      Kind = "invalid_event"
	KindTransient         Kind = "transient"
	KindCircuitOpen       Kind = "circuit_open"
	KindRetryExhausted    Kind = "retry_exhausted"
	KindConfigValidation  Kind = "config_validation"
	KindConfigEncryption  Kind = "config_encryption"
	KindIntegrityMismatch Kind = "integrity_mismatch"
	KindForbidden         Kind = "forbidden"
	KindConflict          Kind = "conflict"
)

// Error is the concrete error type carried through the pipeline. It wraps
// an optional underlying cause while attaching a stable Kind and a
// human-readable message.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap allows errors.Is/errors.As to see through to Cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New builds an *Error of the given kind with no wrapped cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an *Error of the given kind wrapping cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// KindOf extracts the Kind from err if it (or something it wraps) is an
// *Error, returning ok=false otherwise.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

func IsInvalidEvent(err error) bool      { return Is(err, KindInvalidEvent) }
func IsTransient(err error) bool         { return Is(err, KindTransient) }
func IsCircuitOpen(err error) bool       { return Is(err, KindCircuitOpen) }
func IsRetryExhausted(err error) bool    { return Is(err, KindRetryExhausted) }
func IsConfigValidation(err error) bool  { return Is(err, KindConfigValidation) }
func IsConfigEncryption(err error) bool  { return Is(err, KindConfigEncryption) }
func IsIntegrityMismatch(err error) bool { return Is(err, KindIntegrityMismatch) }
func IsForbidden(err error) bool         { return Is(err, KindForbidden) }
func IsConflict(err error) bool          { return Is(err, KindConflict) }

// ExitCode maps a Kind to the CLI exit-code convention: 0 success
// (unused here), 1 operational failure, 2 usage/validation failure.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	kind, ok := KindOf(err)
	if !ok {
		return 1
	}
	switch kind {
	case KindInvalidEvent, KindConfigValidation, KindForbidden:
		return 2
	default:
		return 1
	}
}
