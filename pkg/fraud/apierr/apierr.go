// Package apierr defines the error taxonomy used at every layer of the
// investigation runtime and maps it to the canonical HTTP boundary codes.
package apierr

import (
	"errors"
	"fmt"
)

// Kind is the canonical error taxonomy. Every error that crosses a component
// boundary should be classifiable as one of these.
type Kind string

// Error kinds and their canonical codes.
const (
	KindNotFound         Kind = "OPS_AGENT_NOT_FOUND"
	KindInvalidRequest   Kind = "OPS_AGENT_INVALID_REQUEST"
	KindScopeForbidden   Kind = "OPS_AGENT_SCOPE_FORBIDDEN"
	KindConflict         Kind = "OPS_AGENT_CONFLICT"
	KindDependencyFailure Kind = "OPS_AGENT_DEPENDENCY_FAILURE"
	KindInternal         Kind = "OPS_AGENT_INTERNAL_ERROR"
)

// HTTPStatus returns the canonical HTTP status for a Kind.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindNotFound:
		return 404
	case KindInvalidRequest:
		return 422
	case KindScopeForbidden:
		return 403
	case KindConflict:
		return 409
	case KindDependencyFailure:
		return 503
	default:
		return 500
	}
}

// Error is a classified, boundary-safe error. Details is additional
// structured context safe to return to a caller — never an internal message
// or stack trace.
type Error struct {
	Kind    Kind
	Message string
	Details map[string]any
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the wrapped cause for errors.Is/errors.As chains.
func (e *Error) Unwrap() error { return e.cause }

// New builds a classified error with no wrapped cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds a classified error that wraps an underlying cause. The cause's
// message is never exposed at the HTTP boundary; only Message is.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

// WithDetails attaches structured, caller-safe detail fields.
func (e *Error) WithDetails(details map[string]any) *Error {
	e.Details = details
	return e
}

// NotFound is a convenience constructor for the common "X not found" case.
func NotFound(entity, id string) *Error {
	return New(KindNotFound, fmt.Sprintf("%s %q not found", entity, id))
}

// Conflict is a convenience constructor carrying a reference to the
// conflicting entity (e.g. the in-progress investigation_id).
func Conflict(message string, details map[string]any) *Error {
	return New(KindConflict, message).WithDetails(details)
}

// DependencyFailure classifies an unrecoverable external-collaborator error.
func DependencyFailure(collaborator string, cause error) *Error {
	return Wrap(KindDependencyFailure, fmt.Sprintf("%s dependency failed", collaborator), cause)
}

// As extracts a *Error from err, if present in its chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the classified Kind for err, defaulting to KindInternal for
// anything not wrapped in an *Error. Internal messages are never derived
// from err.Error() at the boundary — callers must use Message/KindOf only.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindInternal
}
