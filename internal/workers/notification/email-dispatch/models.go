// internal/workers/notification/email-dispatch/models.go
package emaildispatch

import (
	"context"

	"notification-relay/internal/common/logger"
	"notification-relay/internal/common/observability"
	emailsend "notification-relay/internal/workers/communication/email-send"
	templateregistry "notification-relay/internal/workers/infrastructure/template-registry"
)

// Outcome labels what happened to a delivery.
type Outcome string

const (
	OutcomeSent         Outcome = "sent"
	OutcomeDropped      Outcome = "dropped"
	OutcomeSendFailed   Outcome = "send_failed"
	OutcomeDeadLettered Outcome = "dead_lettered"
	// OutcomeDiscarded means dead-lettering failed and the delivery was rejected.
	OutcomeDiscarded Outcome = "discarded"
)

type TemplateRegistry interface {
	Resolve(id string) (*templateregistry.Template, error)
	Render(tmpl *templateregistry.Template, fields map[string]interface{}) (*templateregistry.RenderedMessage, error)
}

type MailSender interface {
	Send(ctx context.Context, to, subject, htmlBody string) *emailsend.SendResult
}

// Publisher copies a failed delivery to the dead-letter queue.
type Publisher interface {
	Publish(ctx context.Context, queue string, body []byte) error
}

type Dependencies struct {
	Registry      TemplateRegistry
	Sender        MailSender
	DeadLetter    Publisher
	Observability *observability.Observability
	Logger        logger.Logger
}
