// Package apperr defines the Librarian daemon's closed error taxonomy.
// Every error that crosses a tool boundary is either an *Error with one of
// the Kinds below, or gets wrapped as Internal by the dispatch layer.
package apperr

import (
	"errors"
	"fmt"
)

// Kind is a closed enum of error categories a tool call can fail with.
type Kind string

const (
	InvalidArgument Kind = "invalid_argument"
	PermissionDenied Kind = "permission_denied"
	NotFound        Kind = "not_found"
	AlreadyExists   Kind = "already_exists"
	EditNotFound    Kind = "edit_not_found"
	EditAmbiguous   Kind = "edit_ambiguous"
	ParseError      Kind = "parse_error"
	Conflict        Kind = "conflict"
	Timeout         Kind = "timeout"
	Cancelled       Kind = "cancelled"
	UnknownTaskType Kind = "unknown_task_type"
	Internal        Kind = "internal"
)

// Error is the concrete error type carried across tool boundaries.
type Error struct {
	kind    Kind
	message string
	details map[string]any
	cause   error
}

func New(kind Kind, message string) *Error {
	return &Error{kind: kind, message: message}
}

func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{kind: kind, message: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, cause error, message string) *Error {
	return &Error{kind: kind, message: message, cause: cause}
}

func (e *Error) WithDetail(key string, value any) *Error {
	if e.details == nil {
		e.details = make(map[string]any)
	}
	e.details[key] = value
	return e
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

func (e *Error) Unwrap() error { return e.cause }

func (e *Error) Kind() Kind { return e.kind }

func (e *Error) Message() string { return e.message }

func (e *Error) Details() map[string]any { return e.details }

// KindOf extracts the Kind from err, defaulting to Internal for anything
// that isn't an *Error.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae.kind
	}
	return Internal
}
