// internal/workers/communication/email-send/config.go
package emailsend

import (
	"fmt"
	"strings"
	"time"

	"notification-relay/internal/common/config"
)

const (
	ProviderGmail = "gmail"
	ProviderSES   = "ses"
	ProviderSMTP  = "smtp"

	DefaultDelegatedUser = "contact@airton-climatisation.com"
)

type Config struct {
	Provider string
	From     string
	FromName string
	Timeout  time.Duration

	Gmail GmailConfig
	SES   SESConfig
	SMTP  SMTPConfig
}

type GmailConfig struct {
	// Credentials is the service account key JSON.
	Credentials   string
	DelegatedUser string
	// Endpoint overrides the Gmail API base URL.
	Endpoint string
}

type SESConfig struct {
	Region string
}

type SMTPConfig struct {
	Host               string
	Port               int
	Username           string
	Password           string
	InsecureSkipVerify bool
}

func DefaultConfig() *Config {
	return &Config{
		Provider: ProviderGmail,
		Timeout:  30 * time.Second,
		Gmail: GmailConfig{
			Credentials:   "{}",
			DelegatedUser: DefaultDelegatedUser,
		},
		SES:  SESConfig{Region: "eu-west-1"},
		SMTP: SMTPConfig{Port: 587},
	}
}

// ConfigFromApp maps the mail section of the service configuration.
func ConfigFromApp(m config.MailConfig) *Config {
	return &Config{
		Provider: strings.ToLower(m.Provider),
		From:     m.Sender(),
		FromName: m.FromName,
		Timeout:  config.GetDuration(m.Timeout),
		Gmail: GmailConfig{
			Credentials:   m.Gmail.Credentials,
			DelegatedUser: m.Gmail.DelegatedUser,
			Endpoint:      m.Gmail.Endpoint,
		},
		SES: SESConfig{Region: m.SES.Region},
		SMTP: SMTPConfig{
			Host:               m.SMTP.Host,
			Port:               m.SMTP.Port,
			Username:           m.SMTP.Username,
			Password:           m.SMTP.Password,
			InsecureSkipVerify: m.SMTP.InsecureSkipVerify,
		},
	}
}

// Sender is the mailbox messages are sent from.
func (c *Config) Sender() string {
	if c.From != "" {
		return c.From
	}
	return c.Gmail.DelegatedUser
}

// Validate checks structural settings only. Credentials are not parsed here;
// a bad key surfaces as a failed send.
func (c *Config) Validate() error {
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative")
	}
	if c.Sender() == "" {
		return fmt.Errorf("sender mailbox is required")
	}
	switch c.Provider {
	case ProviderGmail:
		if c.Gmail.DelegatedUser == "" {
			return fmt.Errorf("gmail delegated_user is required")
		}
	case ProviderSES:
		if c.SES.Region == "" {
			return fmt.Errorf("ses region is required")
		}
	case ProviderSMTP:
		if c.SMTP.Host == "" {
			return fmt.Errorf("smtp host is required")
		}
		if c.SMTP.Port <= 0 || c.SMTP.Port > 65535 {
			return fmt.Errorf("smtp port must be between 1 and 65535")
		}
	default:
		return fmt.Errorf("unknown mail provider %q", c.Provider)
	}
	return nil
}
