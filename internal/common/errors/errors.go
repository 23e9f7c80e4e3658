// Package errors provides the standardized error taxonomy for the notification relay.
package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeConnectionFailure ErrorCode = "CONNECTION_FAILURE"
	ErrCodePublishFailure    ErrorCode = "PUBLISH_FAILURE"
	ErrCodeAckFailure        ErrorCode = "ACK_FAILURE"

	ErrCodeValidation ErrorCode = "VALIDATION_ERROR"

	ErrCodeTemplateNotFound ErrorCode = "TEMPLATE_NOT_FOUND"
	ErrCodeRenderFailure    ErrorCode = "RENDER_ERROR"

	ErrCodeSendFailure ErrorCode = "SEND_FAILURE"

	ErrCodeConsumerUnrecoverable ErrorCode = "CONSUMER_UNRECOVERABLE"

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

	cause error
}

func (e *StandardError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("StandardError[%s]: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

func (e *StandardError) Unwrap() error {
	return e.cause
}

// WithMetadata attaches a key to the error metadata and returns the error.
func (e *StandardError) WithMetadata(key string, value interface{}) *StandardError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// ==========================
// 2. Error Constructors
// ==========================

// NewConnectionFailureError is returned once every broker connection attempt failed.
func NewConnectionFailureError(attempts int, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeConnectionFailure,
		Message:   "Failed to connect to message broker",
		Details:   fmt.Sprintf("attempts: %d, error: %s", attempts, errString(err)),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// NewPublishFailureError wraps a failed publish on the given queue.
func NewPublishFailureError(queue string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodePublishFailure,
		Message:   "Failed to publish message",
		Details:   fmt.Sprintf("queue: %s, error: %s", queue, errString(err)),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// NewAckFailureError wraps a failed acknowledgement.
func NewAckFailureError(deliveryTag uint64, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeAckFailure,
		Message:   "Failed to acknowledge delivery",
		Details:   fmt.Sprintf("deliveryTag: %d, error: %s", deliveryTag, errString(err)),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// NewValidationError creates a non-retryable validation error.
func NewValidationError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeValidation,
		Message:   "Notification payload validation failed",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewTemplateNotFoundError creates a non-retryable template error.
func NewTemplateNotFoundError(templateID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeTemplateNotFound,
		Message:   "Template not found in registry",
		Details:   fmt.Sprintf("templateId: %s", templateID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewRenderFailureError lists the placeholders the data could not fill.
func NewRenderFailureError(templateID string, fields []string) *StandardError {
	return &StandardError{
		Code:      ErrCodeRenderFailure,
		Message:   "Template rendering failed",
		Details:   fmt.Sprintf("templateId: %s, fields: %s", templateID, strings.Join(fields, ",")),
		Retryable: false,
		Metadata:  map[string]interface{}{"fields": fields},
		Timestamp: time.Now().UTC(),
	}
}

// NewSendFailureError wraps a mail provider failure.
func NewSendFailureError(provider string, details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeSendFailure,
		Message:   "Notification delivery failed",
		Details:   fmt.Sprintf("provider: %s, error: %s", provider, details),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewConsumerUnrecoverableError is returned when the supervisor gives up.
func NewConsumerUnrecoverableError(restarts int, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeConsumerUnrecoverable,
		Message:   "Consumer exceeded restart ceiling",
		Details:   fmt.Sprintf("restarts: %d, lastError: %s", restarts, errString(err)),
		Retryable: false,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

func NewInternalError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeInternal,
		Message:   "Unexpected error",
		Details:   errString(err),
		Retryable: false,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// ==========================
// 3. Utility Functions
// ==========================

// AsStandardError normalizes any error into a StandardError.
func AsStandardError(err error) *StandardError {
	if err == nil {
		return nil
	}
	var stdErr *StandardError
	if errors.As(err, &stdErr) {
		return stdErr
	}
	return NewInternalError(err)
}

// CodeOf returns the code of err, or an empty code for nil.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	return AsStandardError(err).Code
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code ErrorCode) bool {
	return err != nil && CodeOf(err) == code
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "CONNECTION") || strings.Contains(codeStr, "PUBLISH") || strings.Contains(codeStr, "ACK"):
		return "BROKER"
	case strings.Contains(codeStr, "TEMPLATE") || strings.Contains(codeStr, "RENDER"):
		return "TEMPLATE"
	case strings.Contains(codeStr, "SEND"):
		return "DELIVERY"
	case strings.Contains(codeStr, "VALIDATION"):
		return "VALIDATION"
	case strings.Contains(codeStr, "CONSUMER"):
		return "CONSUMER"
	default:
		return "OTHER"
	}
}

func errString(err error) string {
	if err == nil {
		return "<nil>"
	}
	return err.Error()
}
