// Package apperr defines the error kinds shared by every service. Handlers
// return these unchanged and the HTTP error handler maps the kind to a status.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure independently of transport.
type Kind string

const (
	KindUnauthenticated       Kind = "unauthenticated"
	KindForbidden             Kind = "forbidden"
	KindNotFound              Kind = "not_found"
	KindValidationFailed      Kind = "validation_failed"
	KindPredictionUnavailable Kind = "prediction_unavailable"
	KindConflict              Kind = "conflict"
	KindInternal              Kind = "internal"
)

// Error carries a Kind, a caller-safe message and an optional cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error with the same Kind, so errors.Is(err, ErrNotFound)
// works for every not-found error regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == ""
}

// Sentinels for errors.Is comparisons.
var (
	ErrUnauthenticated       = &Error{Kind: KindUnauthenticated}
	ErrForbidden             = &Error{Kind: KindForbidden}
	ErrNotFound              = &Error{Kind: KindNotFound}
	ErrValidationFailed      = &Error{Kind: KindValidationFailed}
	ErrPredictionUnavailable = &Error{Kind: KindPredictionUnavailable}
	ErrConflict              = &Error{Kind: KindConflict}
	ErrInternal              = &Error{Kind: KindInternal}
)

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

func Unauthenticated(msg string) *Error { return New(KindUnauthenticated, msg) }
func Forbidden(msg string) *Error       { return New(KindForbidden, msg) }
func NotFound(msg string) *Error        { return New(KindNotFound, msg) }
func Conflict(msg string) *Error        { return New(KindConflict, msg) }

func Validation(format string, args ...interface{}) *Error {
	return Newf(KindValidationFailed, format, args...)
}

// InvalidOperation reports a request that is well-formed but breaks a
// business rule, such as a doctor assigning a patient to themself.
func InvalidOperation(msg string) *Error {
	return New(KindConflict, msg)
}

// KindOf returns the Kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// MessageOf returns the caller-safe message for err. Untyped errors get a
// generic message so internal details are never exposed.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind != KindInternal {
		return e.Message
	}
	return "internal server error"
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
