// internal/workers/notification/email-dispatch/config.go
package emaildispatch

import (
	"fmt"

	"notification-relay/internal/common/errors"
)

type Config struct {
	Queue               string
	DeadLetterQueue     string
	RenderFailurePolicy errors.RenderFailurePolicy
}

func DefaultConfig() *Config {
	return &Config{
		Queue:               "email_notifications",
		DeadLetterQueue:     "email_notifications.dead",
		RenderFailurePolicy: errors.RenderFailureDrop,
	}
}

func (c *Config) Validate() error {
	if c.Queue == "" {
		return fmt.Errorf("queue is required")
	}
	if _, err := errors.ParseRenderFailurePolicy(string(c.RenderFailurePolicy)); err != nil {
		return err
	}
	if c.RenderFailurePolicy == errors.RenderFailureDeadLetter && c.DeadLetterQueue == "" {
		return fmt.Errorf("dead_letter policy requires a dead-letter queue")
	}
	return nil
}
