package store

import (
	"fmt"
	"net/http"

	"github.com/quotevault/quotevault-server/internal/domain"
)

// Error is a persistence error with an HTTP status code.
type Error struct {
	Code    int    // HTTP status code
	Message string // User-facing message
	Err     error  // Underlying error (optional)

	// origin is the sentinel a copy was derived from.
	origin *Error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether e is target or was derived from it.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && (e == t || e.origin == t)
}

func (e *Error) root() *Error {
	if e.origin != nil {
		return e.origin
	}
	return e
}

// HTTPCode returns the HTTP status code associated with this error.
func (e *Error) HTTPCode() int { return e.Code }

// WithMessage returns a new error with a custom message.
func (e *Error) WithMessage(msg string) *Error {
	return &Error{Code: e.Code, Message: msg, Err: e.Err, origin: e.root()}
}

// WithCause wraps an underlying error.
func (e *Error) WithCause(err error) *Error {
	return &Error{Code: e.Code, Message: e.Message, Err: err, origin: e.root()}
}

// Sentinel errors.
var (
	ErrNotFound = &Error{
		Code:    http.StatusNotFound,
		Message: "resource not found",
	}

	ErrAlreadyExists = &Error{
		Code:    http.StatusConflict,
		Message: "resource already exists",
	}

	ErrConflict = &Error{
		Code:    http.StatusConflict,
		Message: "row changed state",
	}

	ErrNotApproved = &Error{
		Code:    http.StatusConflict,
		Message: "quote is not approved",
	}

	ErrInvalidInput = &Error{
		Code:    http.StatusBadRequest,
		Message: "invalid input",
	}
)

// StateConflictError reports a signature row that had already left the
// pending state when a conditional write ran. It matches ErrConflict.
type StateConflictError struct {
	State domain.SignatureState
}

func (e *StateConflictError) Error() string {
	return "signature is " + string(e.State)
}

// Is matches ErrConflict.
func (e *StateConflictError) Is(target error) bool {
	return target == ErrConflict
}
