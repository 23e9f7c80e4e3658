// internal/common/errors/handler.go
package errors

import (
	"fmt"
	"strings"
)

// Disposition is what the consumer does with a delivery after a pipeline step failed.
type Disposition int

const (
	// DispositionDrop acknowledges the delivery so the broker forgets it.
	DispositionDrop Disposition = iota
	// DispositionDeadLetter copies the delivery to the dead-letter queue, then acknowledges it.
	DispositionDeadLetter
	// DispositionFatal ends the consumer session.
	DispositionFatal
)

func (d Disposition) String() string {
	switch d {
	case DispositionDrop:
		return "drop"
	case DispositionDeadLetter:
		return "dead_letter"
	case DispositionFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// RenderFailurePolicy selects how deliveries with unrenderable data are handled.
type RenderFailurePolicy string

const (
	RenderFailureDrop       RenderFailurePolicy = "drop"
	RenderFailureDeadLetter RenderFailurePolicy = "dead_letter"
)

// ParseRenderFailurePolicy accepts "drop" or "dead_letter" (case-insensitive); empty means drop.
func ParseRenderFailurePolicy(s string) (RenderFailurePolicy, error) {
	switch RenderFailurePolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", RenderFailureDrop:
		return RenderFailureDrop, nil
	case RenderFailureDeadLetter:
		return RenderFailureDeadLetter, nil
	default:
		return "", fmt.Errorf("unknown render failure policy %q", s)
	}
}

// DispositionFor maps an error code to the consumer action.
//
// Malformed payloads, unknown templates and provider failures are acknowledged
// and dropped; the job is not retried. Render failures follow the configured
// policy. Broker failures end the session.
func DispositionFor(code ErrorCode, policy RenderFailurePolicy) Disposition {
	switch code {
	case ErrCodeValidation, ErrCodeTemplateNotFound, ErrCodeSendFailure:
		return DispositionDrop
	case ErrCodeRenderFailure:
		if policy == RenderFailureDeadLetter {
			return DispositionDeadLetter
		}
		return DispositionDrop
	case ErrCodeAckFailure, ErrCodeConnectionFailure, ErrCodePublishFailure:
		return DispositionFatal
	default:
		return DispositionDrop
	}
}

// ErrorHandler classifies and logs per-delivery failures.
type ErrorHandler struct {
	logger Logger
	policy RenderFailurePolicy
}

type Logger interface {
	Error(msg string, fields map[string]interface{})
}

func NewErrorHandler(logger Logger, policy RenderFailurePolicy) *ErrorHandler {
	if policy == "" {
		policy = RenderFailureDrop
	}
	return &ErrorHandler{logger: logger, policy: policy}
}

// Policy returns the render failure policy in effect.
func (h *ErrorHandler) Policy() RenderFailurePolicy {
	return h.policy
}

// HandleDeliveryError normalizes err, logs it and returns the disposition to apply.
func (h *ErrorHandler) HandleDeliveryError(messageID string, deliveryTag uint64, err error) (*StandardError, Disposition) {
	stdErr := AsStandardError(err)
	disposition := DispositionFor(stdErr.Code, h.policy)

	h.logger.Error("Notification processing failed", map[string]interface{}{
		"messageId":     messageID,
		"deliveryTag":   deliveryTag,
		"errorCode":     string(stdErr.Code),
		"message":       stdErr.Message,
		"details":       stdErr.Details,
		"retryable":     stdErr.Retryable,
		"errorCategory": GetErrorCategory(stdErr.Code),
		"disposition":   disposition.String(),
	})

	return stdErr, disposition
}
