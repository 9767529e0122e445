package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// Code classifies a service error for callers and transport mapping.
type Code string

const (
	ErrCodeNotFound          Code = "NOT_FOUND"
	ErrCodeInvalidTransition Code = "INVALID_TRANSITION"
	ErrCodeUnauthorized      Code = "UNAUTHORIZED"
	ErrCodeConflict          Code = "CONFLICT"
	ErrCodeInvalidInput      Code = "INVALID_INPUT"
	ErrCodeInternal          Code = "INTERNAL"
)

// Error is a typed service error. Logical codes (NOT_FOUND,
// INVALID_TRANSITION, UNAUTHORIZED, INVALID_INPUT) must never be retried by
// callers; CONFLICT is the only code safe to retry after re-reading.
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

func (e *Error) Unwrap() error { return e.Err }

// New creates a typed error.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap annotates an underlying error with a code and message.
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// NotFound reports a missing resource.
func NotFound(resource, id string) *Error {
	return &Error{Code: ErrCodeNotFound, Message: fmt.Sprintf("%s %q not found", resource, id)}
}

// InvalidInput reports a validation failure on a named field.
func InvalidInput(field, message string) *Error {
	return &Error{Code: ErrCodeInvalidInput, Message: fmt.Sprintf("%s: %s", field, message)}
}

// InvalidTransition reports a state-machine precondition violation.
func InvalidTransition(message string) *Error {
	return &Error{Code: ErrCodeInvalidTransition, Message: message}
}

// CodeOf extracts the code from an error chain, defaulting to INTERNAL.
func CodeOf(err error) Code {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code
	}
	return ErrCodeInternal
}

// HTTPStatus maps an error to the status code the HTTP layer should return.
func HTTPStatus(err error) int {
	switch CodeOf(err) {
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeInvalidTransition, ErrCodeConflict:
		return http.StatusConflict
	case ErrCodeUnauthorized:
		return http.StatusForbidden
	case ErrCodeInvalidInput:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
