// Package errors defines the error taxonomy shared by services and the API.
//
// Services return *Error values; the API layer maps Code to an HTTP status and
// serializes Code, Message and Details. Callers compare with errors.Is against
// the sentinels below, which match on Code only:
//
//	if errors.Is(err, errors.ErrAlreadyResolved) {
//	    // someone else resolved this signature first
//	}
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Re-export standard library functions for convenience.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	Join   = errors.Join
	New    = errors.New
)

// Code represents a machine-readable error code.
type Code string

// Error codes used throughout the application.
const (
	CodeValidation             Code = "VALIDATION"
	CodeNotApproved            Code = "NOT_APPROVED"
	CodeForbidden              Code = "FORBIDDEN"
	CodeNameConflict           Code = "NAME_CONFLICT"
	CodeDuplicateGuestResponse Code = "DUPLICATE_GUEST_RESPONSE"
	CodeAlreadyResolved        Code = "ALREADY_RESOLVED"
	CodeNotFlaggable           Code = "NOT_FLAGGABLE"
	CodeNotFound               Code = "NOT_FOUND"
	CodeUnauthorized           Code = "UNAUTHORIZED"
	CodeRateLimited            Code = "RATE_LIMITED"
	CodeInternal               Code = "INTERNAL"
)

// HTTPStatus returns the appropriate HTTP status code for an error code.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeValidation:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeNotApproved, CodeNameConflict, CodeDuplicateGuestResponse, CodeAlreadyResolved, CodeNotFlaggable:
		return http.StatusConflict
	case CodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Error is a domain error with a code, message, and optional details.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
	cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.cause
}

// Is reports whether target is an *Error with the same Code.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// HTTPStatus returns the HTTP status code for this error.
func (e *Error) HTTPStatus() int {
	return e.Code.HTTPStatus()
}

// WithDetails returns a copy carrying details.
func (e *Error) WithDetails(details any) *Error {
	return &Error{Code: e.Code, Message: e.Message, Details: details, cause: e.cause}
}

// WithCause returns a copy wrapping err.
func (e *Error) WithCause(err error) *Error {
	return &Error{Code: e.Code, Message: e.Message, Details: e.Details, cause: err}
}

// Sentinel errors for use with errors.Is().
var (
	ErrValidation             = &Error{Code: CodeValidation, Message: "validation error"}
	ErrNotApproved            = &Error{Code: CodeNotApproved, Message: "quote is not approved"}
	ErrForbidden              = &Error{Code: CodeForbidden, Message: "forbidden"}
	ErrNameConflict           = &Error{Code: CodeNameConflict, Message: "Guest name conflicts with an existing user"}
	ErrDuplicateGuestResponse = &Error{Code: CodeDuplicateGuestResponse, Message: "Guest has already responded"}
	ErrAlreadyResolved        = &Error{Code: CodeAlreadyResolved, Message: "signature already resolved"}
	ErrNotFlaggable           = &Error{Code: CodeNotFlaggable, Message: "quote is not visible"}
	ErrNotFound               = &Error{Code: CodeNotFound, Message: "not found"}
	ErrUnauthorized           = &Error{Code: CodeUnauthorized, Message: "unauthorized"}
	ErrRateLimited            = &Error{Code: CodeRateLimited, Message: "too many requests"}
	ErrInternal               = &Error{Code: CodeInternal, Message: "internal error"}
)

// NotFound creates a not found error.
func NotFound(msg string) *Error {
	return &Error{Code: CodeNotFound, Message: msg}
}

// NotFoundf creates a not found error with formatted message.
func NotFoundf(format string, args ...any) *Error {
	return &Error{Code: CodeNotFound, Message: fmt.Sprintf(format, args...)}
}

// Forbidden creates a forbidden error.
func Forbidden(msg string) *Error {
	return &Error{Code: CodeForbidden, Message: msg}
}

// Unauthorized creates an unauthorized error.
func Unauthorized(msg string) *Error {
	return &Error{Code: CodeUnauthorized, Message: msg}
}

// Validation creates a validation error.
func Validation(msg string) *Error {
	return &Error{Code: CodeValidation, Message: msg}
}

// Validationf creates a validation error with formatted message.
func Validationf(format string, args ...any) *Error {
	return &Error{Code: CodeValidation, Message: fmt.Sprintf(format, args...)}
}

// ValidationWithDetails creates a validation error with details.
func ValidationWithDetails(msg string, details any) *Error {
	return &Error{Code: CodeValidation, Message: msg, Details: details}
}

// NotApproved reports an action that requires an approved quote.
func NotApproved(quoteID string) *Error {
	return &Error{Code: CodeNotApproved, Message: ErrNotApproved.Message, Details: map[string]string{"quote_id": quoteID}}
}

// AlreadyResolved reports a signature that left the pending state before this action.
func AlreadyResolved(state string) *Error {
	return &Error{Code: CodeAlreadyResolved, Message: ErrAlreadyResolved.Message, Details: map[string]string{"state": state}}
}

// Internal creates an internal error.
func Internal(msg string) *Error {
	return &Error{Code: CodeInternal, Message: msg}
}

// Wrap wraps an error with a code and message.
func Wrap(err error, code Code, msg string) *Error {
	return &Error{Code: code, Message: msg, cause: err}
}

// Wrapf wraps an error with a code and formatted message.
func Wrapf(err error, code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), cause: err}
}
