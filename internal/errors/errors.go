// Package errors provides categorized errors for the whale tracker pipeline.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"

	"github.com/whale-tracker/internal/types"
)

// ErrorCategory represents the category of an error
type ErrorCategory string

const (
	// CategoryNetwork represents transport failures and non-success responses
	CategoryNetwork ErrorCategory = "network"
	// CategoryParse represents malformed or unexpected payloads
	CategoryParse ErrorCategory = "parse"
	// CategoryMissingData represents absent raw or processed files for a wallet
	CategoryMissingData ErrorCategory = "missing_data"
	// CategoryPriceLookup represents a date absent from the price series
	CategoryPriceLookup ErrorCategory = "price_lookup"
	// CategoryDegenerate represents a zero or negative denominator
	CategoryDegenerate ErrorCategory = "degenerate_denominator"
	// CategoryFatalSetup represents missing reference data every wallet needs
	CategoryFatalSetup ErrorCategory = "fatal_setup"
	// CategoryDatabase represents database errors
	CategoryDatabase ErrorCategory = "database"
	// CategoryCache represents cache errors
	CategoryCache ErrorCategory = "cache"
	// CategoryNotification represents alert delivery errors
	CategoryNotification ErrorCategory = "notification"
	// CategoryValidation represents invalid input
	CategoryValidation ErrorCategory = "validation"
	// CategoryNotFound represents not found errors
	CategoryNotFound ErrorCategory = "not_found"
	// CategorySystem represents unexpected internal errors
	CategorySystem ErrorCategory = "system"
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

// ToServiceError converts to a ServiceError
func (e *CategorizedError) ToServiceError() *types.ServiceError {
	return &types.ServiceError{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
	}
}

// Pipeline errors

// NewNetworkError creates an error for a failed ledger or price request.
// statusCode is the remote status, or 0 for a transport failure.
func NewNetworkError(source string, statusCode int, cause error) *CategorizedError {
	msg := fmt.Sprintf("request to %s failed", source)
	if statusCode != 0 {
		msg = fmt.Sprintf("request to %s returned status %d", source, statusCode)
	}
	return &CategorizedError{
		Category:   CategoryNetwork,
		StatusCode: http.StatusBadGateway,
		Code:       "NETWORK_ERROR",
		Message:    msg,
		Cause:      cause,
		Details: map[string]interface{}{
			"source":         source,
			"upstreamStatus": statusCode,
		},
	}
}

// NewParseError creates an error for a malformed payload or file
func NewParseError(source string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryParse,
		StatusCode: http.StatusBadGateway,
		Code:       "PARSE_ERROR",
		Message:    fmt.Sprintf("malformed payload from %s", source),
		Cause:      cause,
		Details: map[string]interface{}{
			"source": source,
		},
	}
}

// NewMissingDataError creates an error for a wallet with no stored data for a stage
func NewMissingDataError(wallet string, what string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryMissingData,
		StatusCode: http.StatusNotFound,
		Code:       "MISSING_DATA",
		Message:    fmt.Sprintf("no %s for wallet %s", what, wallet),
		Details: map[string]interface{}{
			"wallet": wallet,
			"data":   what,
		},
	}
}

// NewPriceLookupMiss creates an error for a date absent from the price series
func NewPriceLookupMiss(date types.Date) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryPriceLookup,
		StatusCode: http.StatusNotFound,
		Code:       "PRICE_LOOKUP_MISS",
		Message:    fmt.Sprintf("no reference price for %s", date),
		Details: map[string]interface{}{
			"date": date.String(),
		},
	}
}

// NewDegenerateDenominatorError creates an error for a ratio with a zero or negative denominator
func NewDegenerateDenominatorError(quantity string, denominator float64) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryDegenerate,
		StatusCode: http.StatusUnprocessableEntity,
		Code:       "DEGENERATE_DENOMINATOR",
		Message:    fmt.Sprintf("%s undefined for denominator %v", quantity, denominator),
		Details: map[string]interface{}{
			"quantity":    quantity,
			"denominator": denominator,
		},
	}
}

// NewFatalSetupError creates an error for reference data the whole run depends on
func NewFatalSetupError(resource string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryFatalSetup,
		StatusCode: http.StatusServiceUnavailable,
		Code:       "FATAL_SETUP",
		Message:    fmt.Sprintf("required reference data unavailable: %s", resource),
		Cause:      cause,
		Details: map[string]interface{}{
			"resource": resource,
		},
	}
}

// Infrastructure errors

// NewDatabaseError creates a database error
func NewDatabaseError(operation string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryDatabase,
		StatusCode: http.StatusInternalServerError,
		Code:       "DATABASE_ERROR",
		Message:    fmt.Sprintf("database error during %s", operation),
		Cause:      cause,
		Details: map[string]interface{}{
			"operation": operation,
		},
	}
}

// NewCacheError creates a cache error
func NewCacheError(operation string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryCache,
		StatusCode: http.StatusInternalServerError,
		Code:       "CACHE_ERROR",
		Message:    fmt.Sprintf("cache error during %s", operation),
		Cause:      cause,
		Details: map[string]interface{}{
			"operation": operation,
		},
	}
}

// NewNotificationError creates an alert delivery error
func NewNotificationError(channel string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryNotification,
		StatusCode: http.StatusBadGateway,
		Code:       "NOTIFICATION_ERROR",
		Message:    fmt.Sprintf("failed to deliver alert via %s", channel),
		Cause:      cause,
		Details: map[string]interface{}{
			"channel": channel,
		},
	}
}

// NewInvalidParameterError creates an invalid parameter error
func NewInvalidParameterError(param string, reason string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryValidation,
		StatusCode: http.StatusBadRequest,
		Code:       "INVALID_PARAMETER",
		Message:    fmt.Sprintf("invalid parameter '%s': %s", param, reason),
		Details: map[string]interface{}{
			"parameter": param,
			"reason":    reason,
		},
	}
}

// NewNotFoundError creates a not found error
func NewNotFoundError(resource string, id string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryNotFound,
		StatusCode: http.StatusNotFound,
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found: %s", resource, id),
		Details: map[string]interface{}{
			"resource": resource,
			"id":       id,
		},
	}
}

// NewInternalError creates an internal error
func NewInternalError(message string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategorySystem,
		StatusCode: http.StatusInternalServerError,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		Cause:      cause,
	}
}

// Categorize finds the first CategorizedError in err's chain,
// or wraps err as an internal error
func Categorize(err error) *CategorizedError {
	if err == nil {
		return nil
	}

	var catErr *CategorizedError
	if stderrors.As(err, &catErr) {
		return catErr
	}

	return NewInternalError("unexpected error", err)
}

// CategoryOf returns the category of err, or "" for nil
func CategoryOf(err error) ErrorCategory {
	if catErr := Categorize(err); catErr != nil {
		return catErr.Category
	}
	return ""
}

// Is reports whether err carries the given category
func Is(err error, category ErrorCategory) bool {
	return err != nil && CategoryOf(err) == category
}

// GetHTTPStatusCode returns the HTTP status code for an error
func GetHTTPStatusCode(err error) int {
	if catErr := Categorize(err); catErr != nil {
		return catErr.StatusCode
	}
	return http.StatusInternalServerError
}

// IsFatal reports whether err must abort the whole run rather than one wallet
func IsFatal(err error) bool {
	return Is(err, CategoryFatalSetup)
}

// IsRetryable determines if an error is retryable
func IsRetryable(err error) bool {
	catErr := Categorize(err)
	if catErr == nil {
		return false
	}

	switch catErr.Category {
	case CategoryNetwork:
		// Client errors will not change on retry, except throttling
		status, _ := catErr.Details["upstreamStatus"].(int)
		return status == 0 || status == http.StatusTooManyRequests || status >= 500
	case CategoryDatabase, CategoryCache, CategoryNotification:
		return true
	default:
		return false
	}
}
