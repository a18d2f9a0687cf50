// Package apperr defines the error kinds shared by the match, chat and
// notification layers and maps them onto HTTP status codes.
package apperr

import (
	"errors"
	"net/http"
)

// Kind classifies an application error.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindInvalidAction
	KindUnauthenticated
	KindStoreFailure
	KindDeliveryFailure
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindInvalidAction:
		return "invalid_action"
	case KindUnauthenticated:
		return "unauthenticated"
	case KindStoreFailure:
		return "store_failure"
	case KindDeliveryFailure:
		return "delivery_failure"
	default:
		return "unknown"
	}
}

// Error is an application error carrying a Kind, a client-safe message and
// an optional underlying cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same Kind, so that
// errors.Is(err, apperr.ErrNotFound) matches any NotFound error.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Kind sentinels for use with errors.Is.
var (
	ErrNotFound        = &Error{Kind: KindNotFound, Message: "not found"}
	ErrInvalidAction   = &Error{Kind: KindInvalidAction, Message: "invalid action"}
	ErrUnauthenticated = &Error{Kind: KindUnauthenticated, Message: "unauthenticated"}
	ErrStoreFailure    = &Error{Kind: KindStoreFailure, Message: "store failure"}
	ErrDeliveryFailure = &Error{Kind: KindDeliveryFailure, Message: "delivery failure"}
)

func NotFound(msg string) *Error {
	return &Error{Kind: KindNotFound, Message: msg}
}

func InvalidAction(msg string) *Error {
	return &Error{Kind: KindInvalidAction, Message: msg}
}

func Unauthenticated(msg string) *Error {
	return &Error{Kind: KindUnauthenticated, Message: msg}
}

// Store wraps a persistence-layer error.
func Store(msg string, err error) *Error {
	return &Error{Kind: KindStoreFailure, Message: msg, Err: err}
}

// Delivery wraps a real-time publish or email send error.
func Delivery(msg string, err error) *Error {
	return &Error{Kind: KindDeliveryFailure, Message: msg, Err: err}
}

// KindOf returns the Kind of err, or KindUnknown if err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Status maps err to the HTTP status the API layer responds with.
func Status(err error) int {
	switch KindOf(err) {
	case KindNotFound:
		return http.StatusNotFound
	case KindInvalidAction:
		return http.StatusBadRequest
	case KindUnauthenticated:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage returns the message safe to show a client. Store and
// unknown failures collapse to a generic server error.
func PublicMessage(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return "server error"
	}
	switch e.Kind {
	case KindNotFound, KindInvalidAction, KindUnauthenticated:
		return e.Message
	default:
		return "server error"
	}
}
