package common

import (
	"errors"
	"net/http"
)

// Error kinds reported to API callers alongside the specific code.
const (
	KindValidation = "VALIDATION_ERROR"
	KindNotFound   = "NOT_FOUND"
	KindConflict   = "CONFLICT"
	KindInternal   = "INTERNAL"
)

// AppError represents an error with an attached code, kind and HTTP status.
type AppError struct {
	Code       string
	Kind       string
	Message    string
	HTTPStatus int
	Err        error
	Details    any
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

// Unwrap allows errors.Is/As to inspect the underlying error.
func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// WithDetails attaches structured details and returns the receiver.
func (e *AppError) WithDetails(details any) *AppError {
	e.Details = details
	return e
}

// NewAppError constructs an AppError. The kind is derived from the status.
func NewAppError(code, message string, status int, err error) *AppError {
	return &AppError{Code: code, Kind: kindForStatus(status), Message: message, HTTPStatus: status, Err: err}
}

// Validation builds a 400 error of kind VALIDATION_ERROR.
func Validation(code, message string, err error) *AppError {
	return NewAppError(code, message, http.StatusBadRequest, err)
}

// NotFound builds a 404 error of kind NOT_FOUND.
func NotFound(code, message string, err error) *AppError {
	return NewAppError(code, message, http.StatusNotFound, err)
}

// Conflict builds a 409 error of kind CONFLICT.
func Conflict(code, message string, err error) *AppError {
	return NewAppError(code, message, http.StatusConflict, err)
}

// Internal builds a server fault. Use http.StatusServiceUnavailable for retryable faults.
func Internal(code, message string, status int, err error) *AppError {
	if status < 500 {
		status = http.StatusInternalServerError
	}
	return NewAppError(code, message, status, err)
}

// IsAppError checks whether the error is an AppError.
func IsAppError(err error) bool {
	var target *AppError
	return errors.As(err, &target)
}

// WriteError renders err using the canonical error shape. Errors that are not
// AppErrors are reported as opaque internal failures.
func WriteError(w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		status := appErr.HTTPStatus
		if status == 0 {
			status = http.StatusInternalServerError
		}
		kind := appErr.Kind
		if kind == "" {
			kind = kindForStatus(status)
		}
		writeErrorBody(w, status, ErrorBody{Code: appErr.Code, Kind: kind, Message: appErr.Message, Details: appErr.Details})
		return
	}
	JSONError(w, http.StatusInternalServerError, "INTERNAL", "internal server error", nil)
}

func kindForStatus(status int) string {
	switch {
	case status == http.StatusNotFound:
		return KindNotFound
	case status == http.StatusConflict:
		return KindConflict
	case status >= 500:
		return KindInternal
	default:
		return KindValidation
	}
}
