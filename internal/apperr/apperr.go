package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for callers and transport mapping
type Kind string

const (
	KindNotFound        Kind = "not_found"
	KindForbidden       Kind = "forbidden"
	KindAlreadyExists   Kind = "already_exists"
	KindInvalidArgument Kind = "invalid_argument"
	KindGone            Kind = "gone"
	KindInternal        Kind = "internal"
)

// Sentinels for errors.Is checks. An *Error matches the sentinel of its kind.
var (
	ErrNotFound        = &Error{Kind: KindNotFound, Msg: "not found"}
	ErrForbidden       = &Error{Kind: KindForbidden, Msg: "forbidden"}
	ErrAlreadyExists   = &Error{Kind: KindAlreadyExists, Msg: "already exists"}
	ErrInvalidArgument = &Error{Kind: KindInvalidArgument, Msg: "invalid argument"}
	ErrGone            = &Error{Kind: KindGone, Msg: "gone"}
)

// Error is the single error type crossing store, service and handler layers
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so errors.Is(err, ErrGone) works
// regardless of message.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

func newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...any) *Error { return newf(KindNotFound, format, args...) }

func Forbidden(format string, args ...any) *Error { return newf(KindForbidden, format, args...) }

func AlreadyExists(format string, args ...any) *Error {
	return newf(KindAlreadyExists, format, args...)
}

func InvalidArgument(format string, args ...any) *Error {
	return newf(KindInvalidArgument, format, args...)
}

func Gone(format string, args ...any) *Error { return newf(KindGone, format, args...) }

// Internal wraps an unexpected failure (driver, network) with context
func Internal(err error, format string, args ...any) *Error {
	e := newf(KindInternal, format, args...)
	e.Err = err
	return e
}

// KindOf reports the kind of err, or KindInternal for foreign errors
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
