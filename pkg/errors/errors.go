// Package errors defines the unified error taxonomy for gateway operations.
// Every failure surfaced to a caller is classified into one of the codes
// below; user-facing text is derived from the code, never from upstream
// wording, so failure presentation is stable regardless of provider.
package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Error codes.
const (
	CodeAuth       = "AUTH_ERROR"
	CodeQuota      = "QUOTA_ERROR"
	CodeRateLimit  = "RATE_LIMIT"
	CodeProvider   = "PROVIDER_ERROR"
	CodeTimeout    = "TIMEOUT_ERROR"
	CodeNetwork    = "NETWORK_ERROR"
	CodeValidation = "VALIDATION_ERROR"
	CodeCancelled  = "CANCELLED"
)

// userMessages maps codes to stable, presentation-ready text.
var userMessages = map[string]string{
	CodeAuth:       "authentication failed, please sign in again",
	CodeQuota:      "access to this model is not permitted for your account",
	CodeRateLimit:  "too many requests, please wait a moment and retry",
	CodeProvider:   "the answer service is temporarily unavailable",
	CodeTimeout:    "the answer service took too long to respond",
	CodeNetwork:    "could not reach the answer service",
	CodeValidation: "the request is incomplete or malformed",
	CodeCancelled:  "the request was cancelled",
}

// GatewayError is a classified failure from the gateway or an upstream
// provider.
type GatewayError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"status_code,omitempty"`
	Provider   string `json:"provider,omitempty"`
	Retryable  bool   `json:"-"`

	// Err preserves the underlying cause for errors.Is/As chains.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *GatewayError) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("[%s] %s (provider=%s, status=%d)", e.Code, e.Message, e.Provider, e.StatusCode)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *GatewayError) Unwrap() error { return e.Err }

// UserMessage returns the stable presentation text for the error's code.
func (e *GatewayError) UserMessage() string {
	if msg, ok := userMessages[e.Code]; ok {
		return msg
	}
	return userMessages[CodeProvider]
}

// FromStatus classifies an HTTP status from the backend or an upstream
// provider into the taxonomy.
func FromStatus(provider string, status int, message string) *GatewayError {
	e := &GatewayError{StatusCode: status, Message: message, Provider: provider}
	switch {
	case status == http.StatusUnauthorized:
		e.Code = CodeAuth
	case status == http.StatusForbidden:
		e.Code = CodeQuota
	case status == http.StatusTooManyRequests:
		e.Code = CodeRateLimit
		e.Retryable = true
	case status == http.StatusGatewayTimeout:
		e.Code = CodeTimeout
		e.Retryable = true
	case status >= 500:
		e.Code = CodeProvider
		e.Retryable = true
	case status == http.StatusBadRequest:
		e.Code = CodeValidation
	default:
		e.Code = CodeProvider
	}
	if e.Message == "" {
		e.Message = http.StatusText(status)
	}
	return e
}

// NewValidationError reports malformed caller input. Never retried.
func NewValidationError(message string) *GatewayError {
	return &GatewayError{Code: CodeValidation, Message: message}
}

// NewRateLimitError reports a local limiter denial or an upstream 429.
func NewRateLimitError(provider, message string) *GatewayError {
	return &GatewayError{
		Code:       CodeRateLimit,
		Message:    message,
		StatusCode: http.StatusTooManyRequests,
		Provider:   provider,
		Retryable:  true,
	}
}

// NewNetworkError reports a transport-level failure before any response.
func NewNetworkError(provider string, cause error) *GatewayError {
	return &GatewayError{
		Code:      CodeNetwork,
		Message:   "request failed before a response was received",
		Provider:  provider,
		Retryable: true,
		Err:       cause,
	}
}

// NewProviderError reports an upstream provider failure.
func NewProviderError(provider, message string) *GatewayError {
	return &GatewayError{
		Code:       CodeProvider,
		Message:    message,
		StatusCode: http.StatusBadGateway,
		Provider:   provider,
		Retryable:  true,
	}
}

// NewCancelledError reports a cooperative cancellation. It is a distinct
// outcome, not a provider failure, and is never retried.
func NewCancelledError(cause error) *GatewayError {
	return &GatewayError{Code: CodeCancelled, Message: "request cancelled", Err: cause}
}

// Wrap attaches a terminal code and message to an underlying error while
// preserving the cause chain.
func Wrap(code, message string, cause error) *GatewayError {
	return &GatewayError{Code: code, Message: message, Err: cause}
}

// CodeOf extracts the taxonomy code from err, or CodeProvider for
// unclassified errors. Context cancellation maps to CodeCancelled.
func CodeOf(err error) string {
	if err == nil {
		return ""
	}
	var ge *GatewayError
	if errors.As(err, &ge) {
		return ge.Code
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return CodeCancelled
	}
	return CodeProvider
}

// IsRetryable reports whether err is worth retrying within the transport's
// budget. Unclassified errors are treated as network-level and retryable.
func IsRetryable(err error) bool {
	var ge *GatewayError
	if errors.As(err, &ge) {
		return ge.Retryable
	}
	return !IsCancelled(err)
}

// IsCancelled reports whether err represents cooperative cancellation.
func IsCancelled(err error) bool {
	return CodeOf(err) == CodeCancelled
}
