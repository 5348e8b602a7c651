// Package errors defines the structured errors the assistant API reports.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode identifies a class of API failure.
type ErrorCode string

const (
	// ErrCodeInvalidArgument indicates invalid input parameters.
	ErrCodeInvalidArgument ErrorCode = "INVALID_ARGUMENT"
	// ErrCodeUnsupportedMedia indicates an upload that is not a usable image.
	ErrCodeUnsupportedMedia ErrorCode = "UNSUPPORTED_MEDIA"
	// ErrCodeRateLimitExceeded indicates rate limit has been exceeded.
	ErrCodeRateLimitExceeded ErrorCode = "RATE_LIMIT_EXCEEDED"
	// ErrCodeServiceUnavailable indicates a collaborator is not configured.
	ErrCodeServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
	// ErrCodeUpstreamFailed indicates a third-party API call failed.
	ErrCodeUpstreamFailed ErrorCode = "UPSTREAM_FAILED"
	// ErrCodeTimeout indicates the operation timed out.
	ErrCodeTimeout ErrorCode = "TIMEOUT"
	// ErrCodeInternal indicates an unexpected failure.
	ErrCodeInternal ErrorCode = "INTERNAL"
)

var httpStatus = map[ErrorCode]int{
	ErrCodeInvalidArgument:    http.StatusBadRequest,
	ErrCodeUnsupportedMedia:   http.StatusUnsupportedMediaType,
	ErrCodeRateLimitExceeded:  http.StatusTooManyRequests,
	ErrCodeServiceUnavailable: http.StatusServiceUnavailable,
	ErrCodeUpstreamFailed:     http.StatusBadGateway,
	ErrCodeTimeout:            http.StatusGatewayTimeout,
	ErrCodeInternal:           http.StatusInternalServerError,
}

// HTTPStatus returns the status code reported for c.
func (c ErrorCode) HTTPStatus() int {
	if s, ok := httpStatus[c]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// AppError is a failure with a code and a user-facing message.
type AppError struct {
	Code    ErrorCode
	Message string
	Cause   error
	Context map[string]any
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error.
func (e *AppError) WithContext(key string, value any) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// HTTPStatus returns the status code for the error.
func (e *AppError) HTTPStatus() int {
	return e.Code.HTTPStatus()
}

// InvalidArgument creates an invalid argument error.
func InvalidArgument(msg string) *AppError {
	return &AppError{Code: ErrCodeInvalidArgument, Message: msg}
}

// UnsupportedMedia creates an unsupported media error.
func UnsupportedMedia(msg string, cause error) *AppError {
	return &AppError{Code: ErrCodeUnsupportedMedia, Message: msg, Cause: cause}
}

// RateLimitExceeded creates a rate limit exceeded error.
func RateLimitExceeded(msg string) *AppError {
	return &AppError{Code: ErrCodeRateLimitExceeded, Message: msg}
}

// ServiceUnavailable creates a service unavailable error.
func ServiceUnavailable(msg string, cause error) *AppError {
	return &AppError{Code: ErrCodeServiceUnavailable, Message: msg, Cause: cause}
}

// UpstreamFailed creates an upstream failure error.
func UpstreamFailed(msg string, cause error) *AppError {
	return &AppError{Code: ErrCodeUpstreamFailed, Message: msg, Cause: cause}
}

// Internal creates an internal error.
func Internal(msg string, cause error) *AppError {
	return &AppError{Code: ErrCodeInternal, Message: msg, Cause: cause}
}

// Wrap wraps an existing error with a code and message.
func Wrap(cause error, code ErrorCode, msg string) *AppError {
	return &AppError{Code: code, Message: msg, Cause: cause}
}

// As returns the AppError in err's chain, if any.
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsCode checks if an error chain carries a specific code.
func IsCode(err error, code ErrorCode) bool {
	if appErr, ok := As(err); ok {
		return appErr.Code == code
	}
	return false
}

// GetCodeFromError extracts the error code from any error.
// Returns the provided default code if the error is not an AppError.
func GetCodeFromError(err error, defaultCode ErrorCode) ErrorCode {
	if appErr, ok := As(err); ok {
		return appErr.Code
	}
	return defaultCode
}
