package types

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ErrorCode represents a unified error code across the service.
type ErrorCode string

// Client input errors
const (
	ErrBadRequest           ErrorCode = "bad_request"
	ErrUnsupportedMediaType ErrorCode = "unsupported_media_type"
	ErrTierInvalid          ErrorCode = "tier_invalid"
)

// Authorization errors
const (
	ErrUnauthorized  ErrorCode = "unauthorized"
	ErrTierForbidden ErrorCode = "tier_forbidden"
	ErrAccessDenied  ErrorCode = "access_denied"
	ErrRateLimited   ErrorCode = "rate_limited"
)

// Upstream dependency errors
const (
	ErrSTT             ErrorCode = "stt_error"
	ErrLLM             ErrorCode = "llm_error"
	ErrTTS             ErrorCode = "tts_error"
	ErrProviderTimeout ErrorCode = "provider_timeout"
)

// Persistence and catch-all errors
const (
	ErrStorage  ErrorCode = "storage_error"
	ErrInternal ErrorCode = "internal_error"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code       ErrorCode         `json:"code"`
	Message    string            `json:"message"`
	HTTPStatus int               `json:"http_status,omitempty"`
	Retryable  bool              `json:"retryable"`
	Provider   string            `json:"provider,omitempty"`
	Details    map[string]string `json:"details,omitempty"`
	Cause      error             `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches another *Error by code, so sentinel errors work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithHTTPStatus sets the HTTP status code.
func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// WithProvider sets the provider name.
func (e *Error) WithProvider(provider string) *Error {
	e.Provider = provider
	return e
}

// WithDetail attaches a single detail entry.
func (e *Error) WithDetail(key, value string) *Error {
	if e.Details == nil {
		e.Details = make(map[string]string, 1)
	}
	e.Details[key] = value
	return e
}

// Status returns the explicit HTTP status, or the default one for the code.
func (e *Error) Status() int {
	if e.HTTPStatus != 0 {
		return e.HTTPStatus
	}
	return HTTPStatusFor(e.Code)
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsTimeout reports whether err represents a provider timeout: a context
// deadline, a network timeout, or an error tagged with ErrProviderTimeout.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if GetErrorCode(err) == ErrProviderTimeout {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// HTTPStatusFor maps an error code to the status exposed to callers.
func HTTPStatusFor(code ErrorCode) int {
	switch code {
	case ErrBadRequest, ErrTierInvalid:
		return http.StatusBadRequest
	case ErrUnsupportedMediaType:
		return http.StatusUnsupportedMediaType
	case ErrUnauthorized:
		return http.StatusUnauthorized
	case ErrTierForbidden, ErrAccessDenied:
		return http.StatusForbidden
	case ErrRateLimited:
		return http.StatusTooManyRequests
	case ErrSTT, ErrLLM, ErrTTS:
		return http.StatusBadGateway
	case ErrProviderTimeout:
		return http.StatusGatewayTimeout
	case ErrStorage:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
