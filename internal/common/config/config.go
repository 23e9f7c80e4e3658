// internal/common/config/config.go
package config

import (
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Config is the main application configuration struct.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	RabbitMQ RabbitMQConfig `mapstructure:"rabbitmq"`
	Consumer ConsumerConfig `mapstructure:"consumer"`
	Mail     MailConfig     `mapstructure:"mail"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type HTTPConfig struct {
	Address            string   `mapstructure:"address"`
	CORSAllowedOrigins []string `mapstructure:"cors_allowed_origins"`
	ShutdownTimeout    int      `mapstructure:"shutdown_timeout"` // milliseconds
}

// AllowAllOrigins reports whether CORS is open to every origin.
func (h HTTPConfig) AllowAllOrigins() bool {
	if len(h.CORSAllowedOrigins) == 0 {
		return true
	}
	for _, o := range h.CORSAllowedOrigins {
		if strings.TrimSpace(o) == "*" {
			return true
		}
	}
	return false
}

type RabbitMQConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	VHost           string `mapstructure:"vhost"`
	ConnectRetries  int    `mapstructure:"connect_retries"`
	ConnectDelay    int    `mapstructure:"connect_delay"` // milliseconds
	EmailQueue      string `mapstructure:"email_queue"`
	SMSQueue        string `mapstructure:"sms_queue"`
	DeadLetterQueue string `mapstructure:"dead_letter_queue"`
}

// URL returns the AMQP connection URI.
func (r RabbitMQConfig) URL() string {
	return amqp.URI{
		Scheme:   "amqp",
		Host:     r.Host,
		Port:     r.Port,
		Username: r.User,
		Password: r.Password,
		Vhost:    r.VHost,
	}.String()
}

type ConsumerConfig struct {
	Prefetch            int    `mapstructure:"prefetch"`
	RestartBase         int    `mapstructure:"restart_base"` // milliseconds
	RestartMax          int    `mapstructure:"restart_max"`  // milliseconds
	MaxRestarts         int    `mapstructure:"max_restarts"`
	StableAfter         int    `mapstructure:"stable_after"` // milliseconds
	RenderFailurePolicy string `mapstructure:"render_failure_policy"`
}

type MailConfig struct {
	Provider string      `mapstructure:"provider"` // gmail, ses or smtp
	From     string      `mapstructure:"from"`
	FromName string      `mapstructure:"from_name"`
	Timeout  int         `mapstructure:"timeout"` // milliseconds
	Gmail    GmailConfig `mapstructure:"gmail"`
	SES      SESConfig   `mapstructure:"ses"`
	SMTP     SMTPConfig  `mapstructure:"smtp"`
}

type GmailConfig struct {
	Credentials   string `mapstructure:"credentials"` // service account JSON
	DelegatedUser string `mapstructure:"delegated_user"`
	Endpoint      string `mapstructure:"endpoint"`
}

type SESConfig struct {
	Region string `mapstructure:"region"`
}

type SMTPConfig struct {
	Host               string `mapstructure:"host"`
	Port               int    `mapstructure:"port"`
	Username           string `mapstructure:"username"`
	Password           string `mapstructure:"password"`
	InsecureSkipVerify bool   `mapstructure:"insecure_skip_verify"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Sender returns the mailbox used in the From header.
func (m MailConfig) Sender() string {
	if m.From != "" {
		return m.From
	}
	return m.Gmail.DelegatedUser
}

func (c ConsumerConfig) RestartBaseDuration() time.Duration { return GetDuration(c.RestartBase) }
func (c ConsumerConfig) RestartMaxDuration() time.Duration  { return GetDuration(c.RestartMax) }
func (c ConsumerConfig) StableAfterDuration() time.Duration { return GetDuration(c.StableAfter) }
