// Package errors provides the standardized error model shared by the
// application and notification services.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

// Request / domain errors
const (
	ErrCodeValidationFailed        ErrorCode = "VALIDATION_FAILED"
	ErrCodeApplicationNotFound     ErrorCode = "APPLICATION_NOT_FOUND"
	ErrCodeNotificationNotFound    ErrorCode = "NOTIFICATION_NOT_FOUND"
	ErrCodeProjectNotFound         ErrorCode = "PROJECT_NOT_FOUND"
	ErrCodeInvalidStatusTransition ErrorCode = "INVALID_STATUS_TRANSITION"
	ErrCodeConcurrentModification  ErrorCode = "CONCURRENT_MODIFICATION"
	ErrCodeRateLimitExceeded       ErrorCode = "RATE_LIMIT_EXCEEDED"
)

// Event channel errors
const (
	ErrCodeEventPublishFailed    ErrorCode = "EVENT_PUBLISH_FAILED"
	ErrCodeEventProcessingFailed ErrorCode = "EVENT_PROCESSING_FAILED"
	ErrCodeMalformedEvent        ErrorCode = "MALFORMED_EVENT"
	ErrCodeUnknownEventType      ErrorCode = "UNKNOWN_EVENT_TYPE"
)

// Infrastructure errors
const (
	ErrCodeDatabaseConnectionFailed ErrorCode = "DATABASE_CONNECTION_FAILED"
	ErrCodeDatabaseQueryFailed      ErrorCode = "DATABASE_QUERY_FAILED"
	ErrCodeDatabaseInsertFailed     ErrorCode = "DATABASE_INSERT_FAILED"
	ErrCodeExternalService          ErrorCode = "EXTERNAL_SERVICE_ERROR"
	ErrCodeTimeout                  ErrorCode = "TIMEOUT_ERROR"
	ErrCodeInternal                 ErrorCode = "INTERNAL_ERROR"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`

	cause error
}

func (e *StandardError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("StandardError[%s]: %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause, if any, to errors.Is / errors.As.
func (e *StandardError) Unwrap() error {
	return e.cause
}

// WithMetadata sets a metadata entry and returns the same error.
func (e *StandardError) WithMetadata(key string, value interface{}) *StandardError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

func newError(code ErrorCode, message, details string, retryable bool, cause error) *StandardError {
	return &StandardError{
		Code:      code,
		Message:   message,
		Details:   details,
		Retryable: retryable,
		Timestamp: time.Now().UTC(),
		cause:     cause,
	}
}

// ==========================
// 2. Error Constructors
// ==========================

// NewValidationError creates a non-retryable request validation error.
func NewValidationError(details string) *StandardError {
	return newError(ErrCodeValidationFailed, "Request validation failed", details, false, nil)
}

// NewApplicationNotFoundError creates a non-retryable not-found error.
func NewApplicationNotFoundError(id int64) *StandardError {
	return newError(ErrCodeApplicationNotFound, "Application not found",
		fmt.Sprintf("applicationId: %d", id), false, nil).
		WithMetadata("applicationId", id)
}

// NewNotificationNotFoundError creates a non-retryable not-found error.
func NewNotificationNotFoundError(id int64) *StandardError {
	return newError(ErrCodeNotificationNotFound, "Notification not found",
		fmt.Sprintf("notificationId: %d", id), false, nil).
		WithMetadata("notificationId", id)
}

// NewProjectNotFoundError is returned when a project cannot be resolved to an employer.
func NewProjectNotFoundError(projectID int64) *StandardError {
	return newError(ErrCodeProjectNotFound, "Project not found",
		fmt.Sprintf("projectId: %d", projectID), false, nil).
		WithMetadata("projectId", projectID)
}

// NewInvalidStatusTransitionError carries both ends of the rejected transition.
func NewInvalidStatusTransitionError(current, requested string) *StandardError {
	return newError(ErrCodeInvalidStatusTransition, "Invalid status transition",
		fmt.Sprintf("cannot transition from %s to %s", current, requested), false, nil).
		WithMetadata("currentStatus", current).
		WithMetadata("requestedStatus", requested)
}

// NewConcurrentModificationError is returned when a compare-and-set keeps losing.
func NewConcurrentModificationError(id int64) *StandardError {
	return newError(ErrCodeConcurrentModification, "Application was modified concurrently",
		fmt.Sprintf("applicationId: %d", id), true, nil).
		WithMetadata("applicationId", id)
}

// NewRateLimitExceededError creates a retryable throttling error.
func NewRateLimitExceededError(requestsPerSecond int) *StandardError {
	return newError(ErrCodeRateLimitExceeded, "Rate limit exceeded",
		fmt.Sprintf("limit: %d requests/second", requestsPerSecond), true, nil)
}

// NewEventPublishFailedError wraps a broker failure on the publish side.
func NewEventPublishFailedError(eventType string, err error) *StandardError {
	return newError(ErrCodeEventPublishFailed, "Lifecycle event publish failed",
		fmt.Sprintf("type: %s, error: %s", eventType, err.Error()), true, err)
}

// NewEventProcessingFailedError signals the channel that the event must be redelivered.
func NewEventProcessingFailedError(eventType string, err error) *StandardError {
	return newError(ErrCodeEventProcessingFailed, "Lifecycle event processing failed",
		fmt.Sprintf("type: %s, error: %s", eventType, err.Error()), true, err)
}

// NewMalformedEventError creates a non-retryable error for undecodable or invalid events.
func NewMalformedEventError(details string) *StandardError {
	return newError(ErrCodeMalformedEvent, "Malformed lifecycle event", details, false, nil)
}

// NewUnknownEventTypeError creates a non-retryable error for unrecognized event types.
func NewUnknownEventTypeError(eventType string) *StandardError {
	return newError(ErrCodeUnknownEventType, "Unknown lifecycle event type",
		fmt.Sprintf("type: %s", eventType), false, nil).
		WithMetadata("type", eventType)
}

// NewDatabaseConnectionFailedError creates a retryable database connection error.
func NewDatabaseConnectionFailedError(err error) *StandardError {
	return newError(ErrCodeDatabaseConnectionFailed, "Database connection error", err.Error(), true, err)
}

// NewDatabaseQueryFailedError creates a retryable query execution error.
func NewDatabaseQueryFailedError(operation string, err error) *StandardError {
	return newError(ErrCodeDatabaseQueryFailed, "Database query execution error",
		fmt.Sprintf("operation: %s, error: %s", operation, err.Error()), true, err)
}

// NewDatabaseInsertFailedError creates a retryable database insert error.
func NewDatabaseInsertFailedError(err error) *StandardError {
	return newError(ErrCodeDatabaseInsertFailed, "Database insert operation failed", err.Error(), true, err)
}

func NewExternalServiceError(service string, err error) *StandardError {
	return newError(ErrCodeExternalService, fmt.Sprintf("External service '%s' error", service), err.Error(), true, err)
}

func NewTimeoutError(service string, err error) *StandardError {
	return newError(ErrCodeTimeout, fmt.Sprintf("Service '%s' timeout", service), err.Error(), true, err)
}

func NewInternalError(err error) *StandardError {
	return newError(ErrCodeInternal, "Unexpected error", err.Error(), false, err)
}

// ==========================
// 3. HTTP Mapping
// ==========================

// HTTPStatusMapping maps internal error codes to response status codes.
var HTTPStatusMapping = map[ErrorCode]int{
	ErrCodeValidationFailed:         http.StatusBadRequest,
	ErrCodeApplicationNotFound:      http.StatusNotFound,
	ErrCodeNotificationNotFound:     http.StatusNotFound,
	ErrCodeProjectNotFound:          http.StatusNotFound,
	ErrCodeInvalidStatusTransition:  http.StatusConflict,
	ErrCodeConcurrentModification:   http.StatusConflict,
	ErrCodeRateLimitExceeded:        http.StatusTooManyRequests,
	ErrCodeEventPublishFailed:       http.StatusServiceUnavailable,
	ErrCodeEventProcessingFailed:    http.StatusServiceUnavailable,
	ErrCodeMalformedEvent:           http.StatusBadRequest,
	ErrCodeUnknownEventType:         http.StatusUnprocessableEntity,
	ErrCodeDatabaseConnectionFailed: http.StatusServiceUnavailable,
	ErrCodeDatabaseQueryFailed:      http.StatusInternalServerError,
	ErrCodeDatabaseInsertFailed:     http.StatusInternalServerError,
	ErrCodeExternalService:          http.StatusBadGateway,
	ErrCodeTimeout:                  http.StatusGatewayTimeout,
	ErrCodeInternal:                 http.StatusInternalServerError,
}

// GetHTTPStatus returns the response status for a code, 500 when unmapped.
func GetHTTPStatus(code ErrorCode) int {
	if status, ok := HTTPStatusMapping[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// ==========================
// 4. Utility Functions
// ==========================

// AsStandardError finds the first StandardError in err's chain.
func AsStandardError(err error) (*StandardError, bool) {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr, true
	}
	return nil, false
}

// HasCode reports whether err carries a StandardError with the given code.
func HasCode(err error, code ErrorCode) bool {
	stdErr, ok := AsStandardError(err)
	return ok && stdErr.Code == code
}

// Normalize always returns a StandardError, wrapping unknown errors as INTERNAL_ERROR.
func Normalize(err error) *StandardError {
	if stdErr, ok := AsStandardError(err); ok {
		return stdErr
	}
	return NewInternalError(err)
}

// IsRetryable reports whether the error (or its StandardError) is transient.
func IsRetryable(err error) bool {
	if stdErr, ok := AsStandardError(err); ok {
		return stdErr.Retryable
	}
	return false
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "EVENT"):
		return "EVENT_CHANNEL"
	case strings.Contains(codeStr, "DATABASE"):
		return "DATABASE"
	case strings.HasSuffix(codeStr, "NOT_FOUND"):
		return "NOT_FOUND"
	case strings.Contains(codeStr, "TRANSITION") || strings.Contains(codeStr, "CONCURRENT"):
		return "STATE"
	case strings.Contains(codeStr, "VALIDATION"):
		return "VALIDATION"
	case strings.Contains(codeStr, "EXTERNAL") || strings.Contains(codeStr, "TIMEOUT"):
		return "EXTERNAL"
	default:
		return "OTHER"
	}
}
