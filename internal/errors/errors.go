package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a companion error code.
type ErrorCode string

const (
	ErrInvalidRequest ErrorCode = "INVALID_REQUEST" // 400
	ErrUnauthorized   ErrorCode = "UNAUTHORIZED"    // 401
	ErrNotFound       ErrorCode = "NOT_FOUND"       // 404
	ErrUpstream       ErrorCode = "UPSTREAM"        // backend answered with an error status
	ErrBridge         ErrorCode = "BRIDGE"          // 502, host bridge or transport failure
	ErrInternal       ErrorCode = "INTERNAL"        // 500
)

// CompanionError represents a structured error with code, status, and details.
type CompanionError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any
	cause   error
}

// Error implements the error interface.
func (e *CompanionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *CompanionError) Unwrap() error {
	return e.cause
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *CompanionError {
	return &CompanionError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewUnauthorized creates a 401 error for missing or rejected bearer tokens.
func NewUnauthorized(msg string) *CompanionError {
	return &CompanionError{
		Code:    ErrUnauthorized,
		Status:  401,
		Message: msg,
	}
}

// NewNotFound creates a 404 error for an unknown case, automation or route.
func NewNotFound(kind, identifier string) *CompanionError {
	return &CompanionError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("%s not found: %s", kind, identifier),
		Details: map[string]any{"kind": kind, "identifier": identifier},
	}
}

// NewUpstream creates an error for a backend that replied with a non-2xx status.
// The backend status is carried through so callers can tell 404 from 500.
func NewUpstream(service string, status int, body string) *CompanionError {
	return &CompanionError{
		Code:    ErrUpstream,
		Status:  status,
		Message: fmt.Sprintf("%s returned HTTP %d", service, status),
		Details: map[string]any{"service": service, "body": body},
	}
}

// NewBridge creates a 502 error for a failed host bridge invocation.
func NewBridge(channel string, err error) *CompanionError {
	msg := fmt.Sprintf("bridge call %s failed", channel)
	if err != nil {
		msg = fmt.Sprintf("%s: %v", msg, err)
	}
	return &CompanionError{
		Code:    ErrBridge,
		Status:  502,
		Message: msg,
		Details: map[string]any{"channel": channel},
		cause:   err,
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
func NewInternal(err error) *CompanionError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &CompanionError{
		Code:    ErrInternal,
		Status:  500,
		Message: msg,
		cause:   err,
	}
}

// Is checks if err is, or wraps, a CompanionError with the given code.
func Is(err error, code ErrorCode) bool {
	var cErr *CompanionError
	if stderrors.As(err, &cErr) {
		return cErr.Code == code
	}
	return false
}

// As extracts a CompanionError from err, wrapping unknown errors as internal.
func As(err error) *CompanionError {
	var cErr *CompanionError
	if stderrors.As(err, &cErr) {
		return cErr
	}
	return NewInternal(err)
}
