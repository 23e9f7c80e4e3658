// internal/workers/communication/email-send/service.go
package emailsend

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"notification-relay/internal/common/aws"
	commonhttp "notification-relay/internal/common/http"
	"notification-relay/internal/common/logger"
	"notification-relay/internal/common/metrics"
)

// Service sends rendered HTML messages through the configured provider.
type Service struct {
	config    *Config
	transport Transport
	logger    logger.Logger
	now       func() time.Time
}

// NewService builds the transport selected by config.Provider.
func NewService(ctx context.Context, deps ServiceDependencies, config *Config) (*Service, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid mail config: %w", err)
	}

	var transport Transport
	switch config.Provider {
	case ProviderGmail:
		httpClient := deps.HTTPClient
		if httpClient == nil {
			httpClient = commonhttp.NewClient(config.Timeout)
		}
		transport = newGmailTransport(config.Gmail, httpClient.Standard())
	case ProviderSES:
		client := deps.SES
		if client == nil {
			var err error
			client, err = aws.NewSESClient(ctx, config.SES.Region)
			if err != nil {
				return nil, err
			}
		}
		transport = &sesTransport{client: client}
	case ProviderSMTP:
		transport = newSMTPTransport(config.SMTP)
	}

	return NewServiceWithTransport(deps, config, transport), nil
}

// NewServiceWithTransport uses an explicit transport.
func NewServiceWithTransport(deps ServiceDependencies, config *Config, transport Transport) *Service {
	log := deps.Logger
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &Service{
		config:    config,
		transport: transport,
		logger:    log.Named("email-send").WithFields(map[string]interface{}{"provider": transport.Name()}),
		now:       time.Now,
	}
}

func (s *Service) Provider() string {
	return s.transport.Name()
}

// Send delivers one HTML message to one recipient. It never returns an error:
// every failure is reported in the result, and nothing is retried here.
func (s *Service) Send(ctx context.Context, to, subject, htmlBody string) *SendResult {
	provider := s.transport.Name()
	start := s.now()

	result := s.send(ctx, to, subject, htmlBody)
	result.Provider = provider

	outcome := "success"
	if !result.Success {
		outcome = "failure"
	}
	metrics.MailSendDuration.WithLabelValues(provider).Observe(time.Since(start).Seconds())
	metrics.MailSendTotal.WithLabelValues(provider, outcome).Inc()

	if result.Success {
		s.logger.Info("Email sent successfully", map[string]interface{}{
			"to":        to,
			"messageId": result.MessageID,
		})
	} else {
		s.logger.Error("Email send failed", map[string]interface{}{
			"to":    to,
			"error": result.Error,
		})
	}
	return result
}

func (s *Service) send(ctx context.Context, to, subject, htmlBody string) *SendResult {
	addr, err := mail.ParseAddress(to)
	if err != nil {
		return &SendResult{Error: fmt.Sprintf("invalid recipient %q: %v", to, err)}
	}

	msg := &Message{
		From:     s.config.Sender(),
		FromName: s.config.FromName,
		To:       addr.Address,
		Subject:  subject,
		HTMLBody: htmlBody,
		Date:     s.now(),
	}
	raw, err := BuildMIME(msg)
	if err != nil {
		return &SendResult{Error: err.Error()}
	}

	if s.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.Timeout)
		defer cancel()
	}

	id, err := s.transport.Send(ctx, msg, raw)
	if err != nil {
		return &SendResult{Error: err.Error()}
	}
	return &SendResult{Success: true, MessageID: id, SentAt: s.now()}
}
