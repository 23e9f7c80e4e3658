// internal/workers/communication/email-send/models.go
package emailsend

import (
	"context"
	"time"

	"notification-relay/internal/common/aws"
	"notification-relay/internal/common/errors"
	commonhttp "notification-relay/internal/common/http"
	"notification-relay/internal/common/logger"
)

// Message is one outbound HTML email.
type Message struct {
	From      string
	FromName  string
	To        string
	Subject   string
	HTMLBody  string
	MessageID string
	Date      time.Time
}

// SendResult describes the outcome of a single send. It is never persisted.
type SendResult struct {
	Success   bool      `json:"success"`
	MessageID string    `json:"message_id,omitempty"`
	Error     string    `json:"error,omitempty"`
	Provider  string    `json:"provider"`
	SentAt    time.Time `json:"sent_at,omitempty"`
}

// Err returns a SEND_FAILURE error for an unsuccessful result.
func (r *SendResult) Err() error {
	if r == nil || r.Success {
		return nil
	}
	return errors.NewSendFailureError(r.Provider, r.Error)
}

// Transport delivers a built message through one provider and returns the provider message id.
type Transport interface {
	Name() string
	Send(ctx context.Context, msg *Message, raw []byte) (string, error)
}

type ServiceDependencies struct {
	Logger     logger.Logger
	HTTPClient *commonhttp.Client
	SES        *aws.SESClient
}
