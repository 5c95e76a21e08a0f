// Package errors defines the typed failures surfaced by the escrow engine.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies the kind of failure an operation produced.
type Code string

const (
	CodeInvalidArgument   Code = "invalid_argument"
	CodeInsufficientFunds Code = "insufficient_funds"
	CodeNotFound          Code = "not_found"
	CodeInvalidState      Code = "invalid_state"
	CodeUnauthorized      Code = "unauthorized"
	CodeInternal          Code = "internal"
)

// ServiceError carries a failure code, a caller-facing message and the HTTP
// status it maps to at the gateway.
type ServiceError struct {
	Code       Code   `json:"code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
	cause      error
}

func (e *ServiceError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause, if any.
func (e *ServiceError) Unwrap() error { return e.cause }

// Is matches two service errors by code so callers can use errors.Is with
// the constructor sentinels below.
func (e *ServiceError) Is(target error) bool {
	var se *ServiceError
	if !errors.As(target, &se) {
		return false
	}
	return e.Code == se.Code
}

// WithCause attaches an underlying error.
func (e *ServiceError) WithCause(err error) *ServiceError {
	clone := *e
	clone.cause = err
	return &clone
}

func newError(code Code, status int, format string, args ...any) *ServiceError {
	return &ServiceError{
		Code:       code,
		Message:    fmt.Sprintf(format, args...),
		HTTPStatus: status,
	}
}

// InvalidArgument reports malformed or out-of-range input.
func InvalidArgument(format string, args ...any) *ServiceError {
	return newError(CodeInvalidArgument, http.StatusBadRequest, format, args...)
}

// InsufficientFunds reports a balance too low for the requested amount.
func InsufficientFunds(format string, args ...any) *ServiceError {
	return newError(CodeInsufficientFunds, http.StatusPaymentRequired, format, args...)
}

// NotFound reports a missing task or record.
func NotFound(format string, args ...any) *ServiceError {
	return newError(CodeNotFound, http.StatusNotFound, format, args...)
}

// InvalidState reports an operation not valid for the task's current status.
func InvalidState(format string, args ...any) *ServiceError {
	return newError(CodeInvalidState, http.StatusConflict, format, args...)
}

// Unauthorized reports a caller lacking rights for the requested transition.
func Unauthorized(format string, args ...any) *ServiceError {
	return newError(CodeUnauthorized, http.StatusForbidden, format, args...)
}

// Internal reports an unexpected storage or wiring failure.
func Internal(format string, args ...any) *ServiceError {
	return newError(CodeInternal, http.StatusInternalServerError, format, args...)
}

// Sentinels for errors.Is checks.
var (
	ErrInvalidArgument   = InvalidArgument("invalid argument")
	ErrInsufficientFunds = InsufficientFunds("insufficient funds")
	ErrNotFound          = NotFound("not found")
	ErrInvalidState      = InvalidState("invalid state")
	ErrUnauthorized      = Unauthorized("unauthorized")
)

// HTTPStatusOf resolves the HTTP status for any error, defaulting to 500.
func HTTPStatusOf(err error) int {
	var se *ServiceError
	if errors.As(err, &se) {
		return se.HTTPStatus
	}
	return http.StatusInternalServerError
}

// CodeOf resolves the failure code for any error.
func CodeOf(err error) Code {
	var se *ServiceError
	if errors.As(err, &se) {
		return se.Code
	}
	return CodeInternal
}
