// Package errors provides categorized errors for the wallet monitor.
// Every failure surfaced by the monitor core carries one of these
// categories so callers can decide between retrying, degrading a wallet,
// or reporting the error to the caller synchronously.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCategory represents the category of an error
type ErrorCategory string

const (
	// CategoryTransient represents retryable provider/network errors
	CategoryTransient ErrorCategory = "transient"
	// CategoryInvalidAddress represents a permanently unresolvable address
	CategoryInvalidAddress ErrorCategory = "invalid_address"
	// CategoryDuplicateAddress represents an add-wallet conflict
	CategoryDuplicateAddress ErrorCategory = "duplicate_address"
	// CategoryNotFound represents operations on an unknown wallet
	CategoryNotFound ErrorCategory = "not_found"
	// CategoryStoreUnavailable represents history store I/O failures
	CategoryStoreUnavailable ErrorCategory = "store_unavailable"
	// CategorySinkFailure represents alert delivery failures
	CategorySinkFailure ErrorCategory = "sink_failure"
	// CategoryRateLimited represents provider quota rejections
	CategoryRateLimited ErrorCategory = "rate_limited"
	// CategoryValidation represents caller-input validation errors
	CategoryValidation ErrorCategory = "validation"
	// CategoryUnknown represents unclassified failures
	CategoryUnknown ErrorCategory = "unknown"
)

// CategorizedError represents an error with category and HTTP status code
type CategorizedError struct {
	Category   ErrorCategory
	StatusCode int
	Code       string
	Message    string
	Details    map[string]interface{}
	Cause      error
}

// Error implements the error interface
func (e *CategorizedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause
func (e *CategorizedError) Unwrap() error {
	return e.Cause
}

// NewTransientError creates a retryable provider error
func NewTransientError(provider string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryTransient,
		StatusCode: http.StatusBadGateway,
		Code:       "TRANSIENT_PROVIDER_ERROR",
		Message:    fmt.Sprintf("transient error from provider %s", provider),
		Cause:      cause,
		Details: map[string]interface{}{
			"provider": provider,
		},
	}
}

// NewRateLimitedError creates a provider quota rejection error. It is
// transient for retry purposes but carries its own code so callers can
// back off harder.
func NewRateLimitedError(provider string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryRateLimited,
		StatusCode: http.StatusTooManyRequests,
		Code:       "PROVIDER_RATE_LIMIT",
		Message:    fmt.Sprintf("provider rate limit exceeded: %s", provider),
		Details: map[string]interface{}{
			"provider": provider,
		},
	}
}

// NewInvalidAddressError creates a permanent invalid-address error
func NewInvalidAddressError(address string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryInvalidAddress,
		StatusCode: http.StatusBadRequest,
		Code:       "INVALID_ADDRESS",
		Message:    fmt.Sprintf("provider rejected address as invalid: %s", address),
		Details: map[string]interface{}{
			"address": address,
		},
	}
}

// NewDuplicateAddressError creates an add-wallet conflict error
func NewDuplicateAddressError(address string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryDuplicateAddress,
		StatusCode: http.StatusConflict,
		Code:       "DUPLICATE_ADDRESS",
		Message:    fmt.Sprintf("wallet already monitored: %s", address),
		Details: map[string]interface{}{
			"address": address,
		},
	}
}

// NewNotFoundError creates an unknown-wallet error
func NewNotFoundError(address string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryNotFound,
		StatusCode: http.StatusNotFound,
		Code:       "WALLET_NOT_FOUND",
		Message:    fmt.Sprintf("wallet not monitored: %s", address),
		Details: map[string]interface{}{
			"address": address,
		},
	}
}

// NewStoreUnavailableError creates a history store I/O error
func NewStoreUnavailableError(operation string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryStoreUnavailable,
		StatusCode: http.StatusServiceUnavailable,
		Code:       "STORE_UNAVAILABLE",
		Message:    fmt.Sprintf("history store error during %s", operation),
		Cause:      cause,
		Details: map[string]interface{}{
			"operation": operation,
		},
	}
}

// NewSinkFailureError creates an alert delivery error
func NewSinkFailureError(sink string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategorySinkFailure,
		StatusCode: http.StatusBadGateway,
		Code:       "SINK_FAILURE",
		Message:    fmt.Sprintf("alert delivery failed via %s", sink),
		Cause:      cause,
		Details: map[string]interface{}{
			"sink": sink,
		},
	}
}

// NewValidationError creates a caller-input validation error
func NewValidationError(field string, reason string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryValidation,
		StatusCode: http.StatusBadRequest,
		Code:       "INVALID_PARAMETER",
		Message:    fmt.Sprintf("invalid parameter '%s': %s", field, reason),
		Details: map[string]interface{}{
			"parameter": field,
			"reason":    reason,
		},
	}
}

// CategoryOf returns the category of an error, unwrapping as needed.
// Uncategorized errors report CategoryUnknown.
func CategoryOf(err error) ErrorCategory {
	var catErr *CategorizedError
	if stderrors.As(err, &catErr) {
		return catErr.Category
	}
	return CategoryUnknown
}

// IsTransient reports whether an error should be retried. Rate-limit
// rejections count as transient: the provider recovers on its own.
func IsTransient(err error) bool {
	switch CategoryOf(err) {
	case CategoryTransient, CategoryRateLimited:
		return true
	default:
		return false
	}
}

// IsInvalidAddress reports whether the provider permanently rejected the address.
func IsInvalidAddress(err error) bool {
	return CategoryOf(err) == CategoryInvalidAddress
}

// IsNotFound reports whether an operation referenced an unknown wallet.
func IsNotFound(err error) bool {
	return CategoryOf(err) == CategoryNotFound
}

// IsDuplicateAddress reports whether an add-wallet operation conflicted.
func IsDuplicateAddress(err error) bool {
	return CategoryOf(err) == CategoryDuplicateAddress
}

// IsStoreUnavailable reports whether the history store failed.
func IsStoreUnavailable(err error) bool {
	return CategoryOf(err) == CategoryStoreUnavailable
}

// GetHTTPStatusCode returns the HTTP status code for an error
func GetHTTPStatusCode(err error) int {
	var catErr *CategorizedError
	if stderrors.As(err, &catErr) {
		return catErr.StatusCode
	}
	return http.StatusInternalServerError
}
