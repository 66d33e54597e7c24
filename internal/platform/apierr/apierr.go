package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is a typed, caller-recoverable error carried verbatim to the HTTP
// layer. Meta holds structured details the UI needs (attempts used/allowed,
// conflicting timestamps).
type Error struct {
	Status int
	Code   string
	Err    error
	Meta   map[string]any
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Code != "" {
		return e.Code
	}
	if e.Status != 0 {
		return fmt.Sprintf("api error (%d)", e.Status)
	}
	return "api error"
}

func (e *Error) Unwrap() error { return e.Err }

func New(status int, code string, err error) *Error {
	return &Error{Status: status, Code: code, Err: err}
}

func NotFound(resource string) *Error {
	return &Error{
		Status: http.StatusNotFound,
		Code:   "not_found",
		Err:    fmt.Errorf("%s not found", resource),
	}
}

func AccessDenied(resource string) *Error {
	return &Error{
		Status: http.StatusForbidden,
		Code:   "access_denied",
		Err:    fmt.Errorf("%s does not belong to caller", resource),
	}
}

func Validation(err error) *Error {
	return &Error{Status: http.StatusUnprocessableEntity, Code: "validation_error", Err: err}
}

func Validationf(format string, args ...any) *Error {
	return Validation(fmt.Errorf(format, args...))
}

// RetryLimitExceeded reports attempts used and allowed so the UI can disable
// resubmission.
func RetryLimitExceeded(used, allowed int) *Error {
	return &Error{
		Status: http.StatusTooManyRequests,
		Code:   "retry_limit_exceeded",
		Err:    fmt.Errorf("attempt limit reached: %d of %d used", used, allowed),
		Meta:   map[string]any{"attempts_used": used, "attempts_allowed": allowed},
	}
}

func Conflict(err error, meta map[string]any) *Error {
	return &Error{Status: http.StatusConflict, Code: "conflict", Err: err, Meta: meta}
}

// Internal wraps repository or transaction failures whose cause the caller
// cannot act on.
func Internal(err error) *Error {
	return &Error{Status: http.StatusInternalServerError, Code: "internal_error", Err: err}
}

// AsError returns the typed error inside err, or nil.
func AsError(err error) *Error {
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	return nil
}

// StatusOf maps any error to an HTTP status, defaulting to 500 for
// untyped errors.
func StatusOf(err error) int {
	if ae := AsError(err); ae != nil && ae.Status != 0 {
		return ae.Status
	}
	return http.StatusInternalServerError
}

// CodeOf maps any error to a stable machine-readable code.
func CodeOf(err error) string {
	if ae := AsError(err); ae != nil && ae.Code != "" {
		return ae.Code
	}
	return "internal_error"
}

// IsRecoverable reports whether the error is one of the typed kinds the
// caller can act on (anything except internal).
func IsRecoverable(err error) bool {
	ae := AsError(err)
	return ae != nil && ae.Code != "internal_error"
}
