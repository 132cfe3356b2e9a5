// Package errors defines the sentinel errors and the AppError wrapper used
// across the search engine, with a mapping to HTTP status codes for the
// transport adapter.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrValidation       = errors.New("validation failed")
	ErrNotFound         = errors.New("record not found")
	ErrSyncFailure      = errors.New("sync batch failed")
	ErrCorruption       = errors.New("index corruption detected")
	ErrCacheUnavailable = errors.New("cache unavailable")
	ErrTimeout          = errors.New("operation timed out")
)

// AppError wraps a sentinel with a human-readable message and an explicit
// HTTP status for the transport layer.
type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    message,
		StatusCode: statusCode,
	}
}

func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: statusCode,
	}
}

// Validationf builds a Bad-Request classified validation error.
func Validationf(format string, args ...any) *AppError {
	return Newf(ErrValidation, http.StatusBadRequest, format, args...)
}

// HTTPStatusCode resolves the HTTP status for any error, honouring an
// embedded AppError first and falling back to the sentinel mapping.
func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrTimeout):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
