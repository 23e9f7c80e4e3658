package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"notification-relay/internal/common/errors"
	"notification-relay/internal/common/logger"
	"notification-relay/internal/common/metrics"
)

// Publisher sends persistent messages through a fresh connection per call.
type Publisher struct {
	client *Client
	logger logger.Logger
}

func NewPublisher(client *Client, log logger.Logger) *Publisher {
	return &Publisher{client: client, logger: log.Named("publisher")}
}

// Publish routes body to queue through the default exchange.
func (p *Publisher) Publish(ctx context.Context, queue string, body []byte) error {
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}

	err := p.client.WithChannel(ctx, func(ch Channel) error {
		return ch.PublishWithContext(ctx, "", queue, false, false, msg)
	})
	if err != nil {
		metrics.NotificationsPublishFailed.WithLabelValues(queue).Inc()
		p.logger.Error("Publish failed", map[string]interface{}{
			"queue": queue,
			"error": err.Error(),
		})
		if errors.HasCode(err, errors.ErrCodeConnectionFailure) {
			return err
		}
		return errors.NewPublishFailureError(queue, err)
	}

	metrics.NotificationsPublished.WithLabelValues(queue).Inc()
	p.logger.Debug("Message published", map[string]interface{}{
		"queue":     queue,
		"messageId": msg.MessageId,
	})
	return nil
}

// PublishJSON marshals v and publishes it.
func (p *Publisher) PublishJSON(ctx context.Context, queue string, v interface{}) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	return p.Publish(ctx, queue, body)
}
