// Package errors provides the standardized error taxonomy of the review pipeline.
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

const (
	// Inbound requests
	ErrCodeUnauthorized     ErrorCode = "UNAUTHORIZED"
	ErrCodeMethodNotAllowed ErrorCode = "METHOD_NOT_ALLOWED"
	ErrCodeValidationFailed ErrorCode = "VALIDATION_FAILED"

	// Review platforms
	ErrCodeIntegrationUnavailable ErrorCode = "INTEGRATION_UNAVAILABLE"
	ErrCodePlatformError          ErrorCode = "PLATFORM_ERROR"
	ErrCodeTimeout                ErrorCode = "TIMEOUT"

	// Downstream actions
	ErrCodeReplyGenerationFailed      ErrorCode = "REPLY_GENERATION_FAILED"
	ErrCodeNotificationDeliveryFailed ErrorCode = "NOTIFICATION_DELIVERY_FAILED"

	// Storage
	ErrCodeDatabaseQueryFailed ErrorCode = "DATABASE_QUERY_FAILED"
	ErrCodeNotFound            ErrorCode = "NOT_FOUND"
	ErrCodeConflict            ErrorCode = "CONFLICT"

	// Workflow engine
	ErrCodeWorkflowEngine ErrorCode = "WORKFLOW_ENGINE_ERROR"

	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	cause     error
}

func (e *StandardError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("StandardError[%s]: %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

func (e *StandardError) Unwrap() error {
	return e.cause
}

// Is matches any StandardError carrying the same code, so sentinels such as
// ErrPlatform work with errors.Is.
func (e *StandardError) Is(target error) bool {
	t, ok := target.(*StandardError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Sentinels for errors.Is comparisons.
var (
	ErrUnauthorized           = &StandardError{Code: ErrCodeUnauthorized}
	ErrMethodNotAllowed       = &StandardError{Code: ErrCodeMethodNotAllowed}
	ErrValidation             = &StandardError{Code: ErrCodeValidationFailed}
	ErrIntegrationUnavailable = &StandardError{Code: ErrCodeIntegrationUnavailable}
	ErrPlatform               = &StandardError{Code: ErrCodePlatformError}
	ErrTimeout                = &StandardError{Code: ErrCodeTimeout}
	ErrReplyGeneration        = &StandardError{Code: ErrCodeReplyGenerationFailed}
	ErrNotificationDelivery   = &StandardError{Code: ErrCodeNotificationDeliveryFailed}
	ErrDatabase               = &StandardError{Code: ErrCodeDatabaseQueryFailed}
	ErrNotFound               = &StandardError{Code: ErrCodeNotFound}
	ErrConflict               = &StandardError{Code: ErrCodeConflict}
	ErrWorkflowEngine         = &StandardError{Code: ErrCodeWorkflowEngine}
)

// ==========================
// 2. BPMN Error Integration
// ==========================

// BPMNError represents an error that can be thrown to the Camunda workflow engine.
type BPMNError struct {
	Code           string                 `json:"code"`
	Message        string                 `json:"message"`
	Details        string                 `json:"details,omitempty"`
	Retryable      bool                   `json:"retryable"`
	Retries        int                    `json:"retries"`
	ErrorVariables map[string]interface{} `json:"errorVariables,omitempty"`
}

func (e *BPMNError) Error() string {
	return fmt.Sprintf("BPMNError[%s]: %s", e.Code, e.Message)
}

// ToErrorVariables returns a map suitable for setting Camunda job fail variables.
func (e *BPMNError) ToErrorVariables() map[string]interface{} {
	vars := map[string]interface{}{
		"errorCode":    e.Code,
		"errorMessage": e.Message,
		"errorDetails": e.Details,
		"retryable":    e.Retryable,
	}

	for k, v := range e.ErrorVariables {
		vars[k] = v
	}

	return vars
}

// ==========================
// 3. Error Constructors
// ==========================

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

// NewUnauthorizedError is returned for a missing or mismatched shared-secret token.
func NewUnauthorizedError(details string) *StandardError {
	return newError(ErrCodeUnauthorized, "Unauthorized", details, false, nil)
}

// NewMethodNotAllowedError rejects requests using a method the endpoint does not accept.
func NewMethodNotAllowedError(method string) *StandardError {
	return newError(ErrCodeMethodNotAllowed, "Method not allowed", fmt.Sprintf("method: %s", method), false, nil)
}

// NewValidationError creates a non-retryable input validation error.
func NewValidationError(details string) *StandardError {
	return newError(ErrCodeValidationFailed, "Validation failed", details, false, nil)
}

// NewIntegrationUnavailableError signals a disconnected or expired integration.
// Surfaced to the business owner; never retried automatically.
func NewIntegrationUnavailableError(platform, details string) *StandardError {
	e := newError(ErrCodeIntegrationUnavailable, "Integration unavailable", details, false, nil)
	e.Metadata = map[string]interface{}{"platform": platform}
	return e
}

// NewPlatformError signals an upstream error or rate limit. Retried on the
// scheduler's normal cadence.
func NewPlatformError(platform string, err error) *StandardError {
	e := newError(ErrCodePlatformError, "Review platform error", errDetails(err), true, err)
	e.Metadata = map[string]interface{}{"platform": platform}
	return e
}

// NewTimeoutError signals that an external call did not answer in time.
func NewTimeoutError(service string, err error) *StandardError {
	return newError(ErrCodeTimeout, fmt.Sprintf("Service '%s' timeout", service), errDetails(err), true, err)
}

// NewReplyGenerationError is logged and converted into fallback text by the
// reply draft generator; it never reaches HTTP callers.
func NewReplyGenerationError(err error) *StandardError {
	return newError(ErrCodeReplyGenerationFailed, "Reply generation failed", errDetails(err), true, err)
}

// NewNotificationDeliveryError wraps a channel send failure.
func NewNotificationDeliveryError(channel string, err error, retryable bool) *StandardError {
	return newError(ErrCodeNotificationDeliveryFailed, "Notification delivery failed",
		fmt.Sprintf("channel: %s, error: %s", channel, errDetails(err)), retryable, err)
}

// NewDatabaseError creates a retryable storage error.
func NewDatabaseError(operation string, err error) *StandardError {
	return newError(ErrCodeDatabaseQueryFailed, "Database query failed",
		fmt.Sprintf("operation: %s, error: %s", operation, errDetails(err)), true, err)
}

// NewNotFoundError creates a non-retryable not-found error.
func NewNotFoundError(resource, id string) *StandardError {
	return newError(ErrCodeNotFound, fmt.Sprintf("%s not found", resource), fmt.Sprintf("id: %s", id), false, nil)
}

// NewConflictError reports a state transition that is not allowed.
func NewConflictError(details string) *StandardError {
	return newError(ErrCodeConflict, "Conflict", details, false, nil)
}

// NewWorkflowEngineError wraps a failed Zeebe command.
func NewWorkflowEngineError(operation string, err error, retryable bool) *StandardError {
	return newError(ErrCodeWorkflowEngine, "Workflow engine error",
		fmt.Sprintf("operation: %s, error: %s", operation, errDetails(err)), retryable, err)
}

func errDetails(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// ==========================
// 4. Error Conversion
// ==========================

// Normalize ensures we always have a StandardError.
func Normalize(err error) *StandardError {
	if err == nil {
		return nil
	}
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr
	}
	return newError(ErrCodeInternal, "Unexpected error", err.Error(), false, err)
}

// GetRetryCount returns the recommended job retry count per error code.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeDatabaseQueryFailed,
		ErrCodePlatformError,
		ErrCodeNotificationDeliveryFailed,
		ErrCodeWorkflowEngine:
		return 3

	case ErrCodeTimeout:
		return 2

	case ErrCodeReplyGenerationFailed:
		return 1

	default:
		return 0
	}
}

// ConvertToBPMNError converts a StandardError to a BPMNError for Camunda.
func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
	retries := GetRetryCount(stdErr.Code)
	if !stdErr.Retryable {
		retries = 0
	}

	return &BPMNError{
		Code:      string(stdErr.Code),
		Message:   stdErr.Message,
		Details:   stdErr.Details,
		Retryable: stdErr.Retryable,
		Retries:   retries,
		ErrorVariables: map[string]interface{}{
			"originalErrorCode": string(stdErr.Code),
			"timestamp":         stdErr.Timestamp.Format(time.RFC3339),
		},
	}
}

// HTTPStatus maps an error onto the status code returned by the API.
func HTTPStatus(err error) int {
	switch Normalize(err).Code {
	case ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case ErrCodeMethodNotAllowed:
		return http.StatusMethodNotAllowed
	case ErrCodeValidationFailed:
		return http.StatusBadRequest
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeConflict:
		return http.StatusConflict
	case ErrCodeIntegrationUnavailable:
		return http.StatusFailedDependency
	case ErrCodePlatformError:
		return http.StatusBadGateway
	case ErrCodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// ==========================
// 5. Utility Functions
// ==========================

// IsRetryableErrorCode checks if an error code is retryable.
func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

// IsTransient reports whether err is one the scheduler should simply retry
// on its next run (upstream errors and timeouts).
func IsTransient(err error) bool {
	return stderrors.Is(err, ErrPlatform) || stderrors.Is(err, ErrTimeout)
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "UNAUTHORIZED") || strings.Contains(codeStr, "METHOD"):
		return "GATEWAY"
	case strings.Contains(codeStr, "INTEGRATION") || strings.Contains(codeStr, "PLATFORM"):
		return "INTEGRATION"
	case strings.Contains(codeStr, "DATABASE") || strings.Contains(codeStr, "NOT_FOUND") || strings.Contains(codeStr, "CONFLICT"):
		return "DATABASE"
	case strings.Contains(codeStr, "NOTIFICATION"):
		return "NOTIFICATION"
	case strings.Contains(codeStr, "REPLY"):
		return "AI"
	case strings.Contains(codeStr, "TIMEOUT"):
		return "TIMEOUT"
	case strings.Contains(codeStr, "WORKFLOW"):
		return "WORKFLOW"
	case strings.Contains(codeStr, "VALIDATION"):
		return "VALIDATION"
	default:
		return "OTHER"
	}
}
