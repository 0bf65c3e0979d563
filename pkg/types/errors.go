package types

import (
	"errors"
	"fmt"
)

// ErrorKind is the external classification of a failure. The API layer maps
// kinds to HTTP status codes; everything else wraps with %w as usual.
type ErrorKind string

const (
	ErrValidation      ErrorKind = "validation"
	ErrNotFound        ErrorKind = "not_found"
	ErrUnauthorized    ErrorKind = "unauthorized"
	ErrForbidden       ErrorKind = "forbidden"
	ErrTooManyRequests ErrorKind = "too_many_requests"
	ErrSandboxFailure  ErrorKind = "sandbox_failure"
)

// Error carries an external error kind alongside the message.
type Error struct {
	Kind ErrorKind
	Msg  string
}

func (e *Error) Error() string {
	return e.Msg
}

// E builds a kinded error.
func E(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// KindOf extracts the error kind from err, walking the wrap chain. Errors
// without a kind report as sandbox failures (internal).
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ErrSandboxFailure
}
