// Package bridgeerr defines the bridge's single error type and the finite
// kind set used at the HTTP boundary.
package bridgeerr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is one of the error kinds the bridge surfaces at its HTTP boundary.
type Kind string

const (
	KindInvalidRequest    Kind = "invalid_request"
	KindPolicyViolation   Kind = "policy_violation"
	KindNotFound          Kind = "not_found"
	KindConflict          Kind = "conflict"
	KindRemoteUnreachable Kind = "remote_unreachable"
	KindRemoteTimeout     Kind = "remote_timeout"
	KindRemoteError       Kind = "remote_error"
	KindInternal          Kind = "internal"
)

var statusByKind = map[Kind]int{
	KindInvalidRequest:    http.StatusBadRequest,
	KindPolicyViolation:   http.StatusForbidden,
	KindNotFound:          http.StatusNotFound,
	KindConflict:          http.StatusConflict,
	KindRemoteUnreachable: http.StatusBadGateway,
	KindRemoteTimeout:     http.StatusGatewayTimeout,
	KindRemoteError:       http.StatusBadGateway,
	KindInternal:          http.StatusInternalServerError,
}

// Error is the bridge's single error type. Handlers construct it via the
// kind constructors below and the HTTP layer renders it as {detail: string}
// with the matching status code.
type Error struct {
	Kind     Kind
	Message  string
	Internal error
	Details  map[string]any
}

func (e *Error) Error() string {
	if e.Internal != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Internal)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Internal }

// Status returns the HTTP status code for this error's kind.
func (e *Error) Status() int {
	if s, ok := statusByKind[e.Kind]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// WithDetails attaches structured detail fields and returns the same error.
func (e *Error) WithDetails(details map[string]any) *Error {
	e.Details = details
	return e
}

func new(kind Kind, message string, internal error) *Error {
	return &Error{Kind: kind, Message: message, Internal: internal}
}

func Invalid(message string, internal error) *Error {
	if message == "" {
		message = "invalid request"
	}
	return new(KindInvalidRequest, message, internal)
}

func PolicyViolation(message string, internal error) *Error {
	if message == "" {
		message = "operation rejected by path policy"
	}
	return new(KindPolicyViolation, message, internal)
}

func NotFound(message string, internal error) *Error {
	if message == "" {
		message = "not found"
	}
	return new(KindNotFound, message, internal)
}

func Conflict(message string, internal error) *Error {
	if message == "" {
		message = "conflict"
	}
	return new(KindConflict, message, internal)
}

func RemoteUnreachable(message string, internal error) *Error {
	if message == "" {
		message = "remote sandbox unreachable"
	}
	return new(KindRemoteUnreachable, message, internal)
}

func RemoteTimeout(message string, internal error) *Error {
	if message == "" {
		message = "remote sandbox timed out"
	}
	return new(KindRemoteTimeout, message, internal)
}

func RemoteError(message string, internal error) *Error {
	if message == "" {
		message = "remote sandbox returned an error"
	}
	return new(KindRemoteError, message, internal)
}

func Internal(message string, internal error) *Error {
	if message == "" {
		message = "internal error"
	}
	return new(KindInternal, message, internal)
}

// As recovers a *Error from err, wrapping it as an internal error if err is
// not already one.
func As(err error) *Error {
	if err == nil {
		return nil
	}
	var be *Error
	if errors.As(err, &be) {
		return be
	}
	return Internal("", err)
}
