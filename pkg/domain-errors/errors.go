// Package domainerrors defines the typed error vocabulary shared by services,
// stores, and the HTTP transport. Services return these instead of raw errors
// so handlers can translate failures without string matching.
package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code classifies a failure for transport mapping and retry decisions.
type Code string

const (
	// CodeBadRequest marks an operation that is invalid for the entity's
	// current state (retrying a live distribution, removing a pending one).
	CodeBadRequest Code = "bad_request"
	// CodeValidation marks malformed caller input; never retried.
	CodeValidation Code = "validation_failed"
	// CodeUnauthorized marks missing or invalid credentials.
	CodeUnauthorized Code = "unauthorized"
	// CodeForbidden marks a caller acting on a release they do not own.
	CodeForbidden Code = "forbidden"
	// CodeNotFound marks a missing entity.
	CodeNotFound Code = "not_found"
	// CodeConflict marks uniqueness collisions (duplicate ISRC, duplicate row).
	CodeConflict Code = "conflict"
	// CodeCapacityExceeded marks an exhausted identifier space, such as a
	// registrant with no designation numbers left in a year. Retrying the
	// same computation cannot succeed.
	CodeCapacityExceeded Code = "capacity_exceeded"
	// CodeRetryExhausted marks a distribution whose retry budget is spent.
	CodeRetryExhausted Code = "retry_exhausted"
	// CodeInternal marks unexpected failures; details stay out of responses.
	CodeInternal Code = "internal"
)

// Error carries a code, a caller-safe message, and an optional wrapped cause.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New builds a domain error with no underlying cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf builds a domain error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and caller-safe message to an underlying error.
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// HasCode reports whether err (or anything it wraps) carries the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// Is is an alias for HasCode kept for call-site readability.
func Is(err error, code Code) bool {
	return HasCode(err, code)
}

// CodeOf extracts the code from err, defaulting to CodeInternal.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// MessageOf extracts the caller-safe message from err.
func MessageOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Message
	}
	return "internal error"
}

// ToHTTPStatus maps a domain error code to an HTTP status.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeBadRequest:
		return http.StatusBadRequest
	case CodeValidation:
		return http.StatusUnprocessableEntity
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict, CodeRetryExhausted, CodeCapacityExceeded:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
