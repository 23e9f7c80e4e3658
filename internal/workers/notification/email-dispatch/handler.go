// internal/workers/notification/email-dispatch/handler.go
package emaildispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"notification-relay/internal/common/errors"
	"notification-relay/internal/common/logger"
	"notification-relay/internal/common/metrics"
	"notification-relay/internal/common/validation"
	"notification-relay/internal/models"
)

const unknownTemplate = "unknown"

// Handler runs validate, resolve, render, send and acknowledge for one delivery.
// It implements rabbitmq.Handler.
type Handler struct {
	config     *Config
	registry   TemplateRegistry
	sender     MailSender
	deadLetter Publisher
	errHandler *errors.ErrorHandler
	deps       Dependencies
	logger     logger.Logger
}

func NewHandler(config *Config, deps Dependencies) (*Handler, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid dispatch config: %w", err)
	}
	if deps.Registry == nil || deps.Sender == nil {
		return nil, fmt.Errorf("registry and sender are required")
	}
	if config.RenderFailurePolicy == errors.RenderFailureDeadLetter && deps.DeadLetter == nil {
		return nil, fmt.Errorf("dead_letter policy requires a publisher")
	}

	log := deps.Logger
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	log = log.Named("email-dispatch").WithFields(map[string]interface{}{"queue": config.Queue})

	errHandler := errors.NewErrorHandler(log, config.RenderFailurePolicy)
	log.Info("Dispatch handler configured", map[string]interface{}{
		"renderFailurePolicy": string(errHandler.Policy()),
		"deadLetterQueue":     config.DeadLetterQueue,
	})

	return &Handler{
		config:     config,
		registry:   deps.Registry,
		sender:     deps.Sender,
		deadLetter: deps.DeadLetter,
		errHandler: errHandler,
		deps:       deps,
		logger:     log,
	}, nil
}

// Handle processes d and settles it exactly once. Only a failed ack or nack
// is returned, which ends the consumer session.
func (h *Handler) Handle(ctx context.Context, d amqp.Delivery) error {
	start := time.Now()

	templateID, err := h.process(ctx, d)
	if err == nil {
		h.record(ctx, templateID, OutcomeSent, start)
		return h.ack(d)
	}

	stdErr, disposition := h.errHandler.HandleDeliveryError(d.MessageId, d.DeliveryTag, err)
	if errors.HasCode(stdErr, errors.ErrCodeValidation) || errors.HasCode(stdErr, errors.ErrCodeTemplateNotFound) {
		templateID = unknownTemplate
	}

	switch disposition {
	case errors.DispositionFatal:
		return stdErr

	case errors.DispositionDeadLetter:
		if dlErr := h.publishDeadLetter(ctx, d); dlErr != nil {
			h.logger.WithError(dlErr).Error("Dead-letter publish failed, rejecting delivery", map[string]interface{}{
				"deliveryTag": d.DeliveryTag,
			})
			h.record(ctx, templateID, OutcomeDiscarded, start)
			return h.reject(d)
		}
		metrics.NotificationsDeadLettered.Inc()
		h.record(ctx, templateID, OutcomeDeadLettered, start)
		return h.ack(d)

	default:
		outcome := OutcomeDropped
		if stdErr.Code == errors.ErrCodeSendFailure {
			outcome = OutcomeSendFailed
		}
		h.record(ctx, templateID, outcome, start)
		return h.ack(d)
	}
}

// process returns the template id it got as far as resolving, and the first step error.
func (h *Handler) process(ctx context.Context, d amqp.Delivery) (string, error) {
	job, err := decodeJob(d.Body)
	if err != nil {
		return "", err
	}

	tmpl, err := h.registry.Resolve(job.Template)
	if err != nil {
		return job.Template, err
	}

	msg, err := h.registry.Render(tmpl, job.Data)
	if err != nil {
		return job.Template, err
	}

	result := h.sender.Send(ctx, job.To, msg.Subject, msg.HTMLBody)
	if !result.Success {
		return job.Template, result.Err()
	}

	h.logger.Info("Notification sent", map[string]interface{}{
		"deliveryTag": d.DeliveryTag,
		"to":          job.To,
		"template":    job.Template,
		"provider":    result.Provider,
		"messageId":   result.MessageID,
	})
	return job.Template, nil
}

func decodeJob(body []byte) (*models.NotificationJob, error) {
	result, err := validation.ValidateJSON(body, models.NotificationJobSchema())
	if err != nil {
		return nil, errors.NewValidationError(err.Error())
	}
	if !result.Valid {
		return nil, errors.NewValidationError("missing or invalid fields: " + strings.Join(result.Fields(), ", "))
	}

	var job models.NotificationJob
	if err := json.Unmarshal(body, &job); err != nil {
		return nil, errors.NewValidationError(err.Error())
	}
	return &job, nil
}

func (h *Handler) publishDeadLetter(ctx context.Context, d amqp.Delivery) error {
	if h.deadLetter == nil {
		return fmt.Errorf("no dead-letter publisher configured")
	}
	return h.deadLetter.Publish(ctx, h.config.DeadLetterQueue, d.Body)
}

func (h *Handler) ack(d amqp.Delivery) error {
	if err := d.Ack(false); err != nil {
		return errors.NewAckFailureError(d.DeliveryTag, err)
	}
	return nil
}

// reject drops the delivery without requeueing it.
func (h *Handler) reject(d amqp.Delivery) error {
	if err := d.Nack(false, false); err != nil {
		return errors.NewAckFailureError(d.DeliveryTag, err)
	}
	return nil
}

func (h *Handler) record(ctx context.Context, templateID string, outcome Outcome, start time.Time) {
	if templateID == "" {
		templateID = unknownTemplate
	}
	metrics.NotificationsProcessed.WithLabelValues(templateID, string(outcome)).Inc()
	h.deps.Observability.RecordJobProcessed(ctx, templateID, string(outcome))
	h.deps.Observability.RecordJobDuration(ctx, time.Since(start), string(outcome))
}
