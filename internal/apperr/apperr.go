// Package apperr defines the error kinds every use case returns, so callers
// switch on a kind instead of matching message text.
package apperr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	Invalid           Kind = "invalid"
	NotFound          Kind = "not_found"
	Conflict          Kind = "conflict"
	SeatUnavailable   Kind = "seat_unavailable"
	NotAllowed        Kind = "not_allowed"
	InvalidTransition Kind = "invalid_transition"
	GatewayRejected   Kind = "gateway_rejected"
	Unauthorized      Kind = "unauthorized"
	Forbidden         Kind = "forbidden"
	Internal          Kind = "internal"
)

// Machine-readable codes used by the seat allocation contract.
const (
	CodeSeatUnavailable       = "SEAT_UNAVAILABLE"
	CodePassengerNotFound     = "PASSENGER_NOT_FOUND"
	CodeBookingFlightNotFound = "BOOKINGFLIGHT_NOT_FOUND"
)

type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// WithCode returns a copy of e carrying code.
func (e *Error) WithCode(code string) *Error {
	cp := *e
	cp.Code = code
	return &cp
}

func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and message to err. A nil err yields nil.
func Wrap(err error, kind Kind, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: message, Err: err}
}

func InvalidErr(format string, args ...any) *Error  { return New(Invalid, format, args...) }
func NotFoundErr(format string, args ...any) *Error { return New(NotFound, format, args...) }
func ConflictErr(format string, args ...any) *Error { return New(Conflict, format, args...) }

func SeatUnavailableErr(format string, args ...any) *Error {
	return New(SeatUnavailable, format, args...).WithCode(CodeSeatUnavailable)
}

func NotAllowedErr(format string, args ...any) *Error { return New(NotAllowed, format, args...) }

func InvalidTransitionErr(format string, args ...any) *Error {
	return New(InvalidTransition, format, args...)
}

func InternalErr(err error, message string) *Error { return Wrap(err, Internal, message) }

func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the kind of err; errors without one are Internal.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return Internal
}

// Is reports whether err carries kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
