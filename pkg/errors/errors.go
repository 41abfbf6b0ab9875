package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	Err     error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is reports whether target carries the same code, so clones match their sentinel.
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}
	var t *Error
	if !errors.As(target, &t) || t == nil {
		return false
	}
	return e.Code == t.Code
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Predefined errors. The interview workflow kinds are stable identifiers that
// callers surface as inline messages.
var (
	ErrInvalidCredentials     = New("INVALID_CREDENTIALS", http.StatusUnauthorized, "invalid email or password")
	ErrInactiveAccount        = New("ACCOUNT_INACTIVE", http.StatusForbidden, "account is inactive")
	ErrUnauthenticated        = New("UNAUTHENTICATED", http.StatusUnauthorized, "authentication required")
	ErrUnauthorized           = New("UNAUTHORIZED", http.StatusForbidden, "not authorized for this subject")
	ErrNotFound               = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrAlreadyFinalized       = New("ALREADY_FINALIZED", http.StatusConflict, "interview subject already finalized")
	ErrAlreadyScheduled       = New("ALREADY_SCHEDULED", http.StatusConflict, "an interview is already confirmed for this subject")
	ErrInvalidState           = New("INVALID_STATE", http.StatusConflict, "operation not allowed in the current state")
	ErrNotPending             = New("NOT_PENDING", http.StatusConflict, "availability request is not pending")
	ErrInvalidTimeWindow      = New("INVALID_TIME_WINDOW", http.StatusBadRequest, "invalid or missing timestamp")
	ErrTooManyPendingRequests = New("TOO_MANY_PENDING_REQUESTS", http.StatusConflict, "too many pending availability requests")
	ErrInterviewNotCompleted  = New("INTERVIEW_NOT_COMPLETED", http.StatusPreconditionFailed, "interview has not been completed")
	ErrValidation             = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInternal               = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
	ErrCacheMiss              = New("CACHE_MISS", http.StatusNotFound, "cache miss")
)

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}

// Internal wraps an unexpected failure with a caller supplied message.
func Internal(err error, message string) *Error {
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, message)
}

// Is reports whether err carries the code of kind anywhere in its chain.
func Is(err error, kind *Error) bool {
	if err == nil || kind == nil {
		return false
	}
	return errors.Is(err, kind)
}
