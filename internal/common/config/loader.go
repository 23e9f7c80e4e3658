// internal/common/config/loader.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Environment variables that do not follow the section_key naming.
var envBindings = map[string][]string{
	"mail.gmail.credentials":         {"GMAIL_API_CREDENTIALS"},
	"mail.gmail.delegated_user":      {"MAIL_DELEGATED_USER"},
	"mail.gmail.endpoint":            {"GMAIL_API_ENDPOINT"},
	"mail.ses.region":                {"AWS_REGION"},
	"mail.smtp.host":                 {"SMTP_HOST"},
	"mail.smtp.port":                 {"SMTP_PORT"},
	"mail.smtp.username":             {"SMTP_USERNAME"},
	"mail.smtp.password":             {"SMTP_PASSWORD"},
	"mail.smtp.insecure_skip_verify": {"SMTP_INSECURE_SKIP_VERIFY"},
	"consumer.render_failure_policy": {"RENDER_FAILURE_POLICY"},
	"http.cors_allowed_origins":      {"CORS_ALLOWED_ORIGINS"},
	"logging.level":                  {"LOG_LEVEL"},
	"logging.format":                 {"LOG_FORMAT"},
}

// Load reads .env, configs/config.yaml and the environment, in increasing precedence.
func Load() (*Config, error) {
	loadEnvFile()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")
	if root := findProjectRoot(); root != "" {
		v.AddConfigPath(filepath.Join(root, "configs"))
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	return load(v)
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	for key, envs := range envBindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return nil, fmt.Errorf("bind env for %s: %w", key, err)
		}
	}

	expandEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults registers every key so AutomaticEnv can override it during Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "notification-service")
	v.SetDefault("app.version", "dev")
	v.SetDefault("app.environment", "development")

	v.SetDefault("http.address", ":5000")
	v.SetDefault("http.cors_allowed_origins", []string{"*"})
	v.SetDefault("http.shutdown_timeout", 10000)

	v.SetDefault("rabbitmq.host", "localhost")
	v.SetDefault("rabbitmq.port", 5672)
	v.SetDefault("rabbitmq.user", "guest")
	v.SetDefault("rabbitmq.password", "guest")
	v.SetDefault("rabbitmq.vhost", "/")
	v.SetDefault("rabbitmq.connect_retries", 5)
	v.SetDefault("rabbitmq.connect_delay", 5000)
	v.SetDefault("rabbitmq.email_queue", "email_notifications")
	v.SetDefault("rabbitmq.sms_queue", "sms_notifications")
	v.SetDefault("rabbitmq.dead_letter_queue", "email_notifications.dead")

	v.SetDefault("consumer.prefetch", 1)
	v.SetDefault("consumer.restart_base", 1000)
	v.SetDefault("consumer.restart_max", 60000)
	v.SetDefault("consumer.max_restarts", 10)
	v.SetDefault("consumer.stable_after", 60000)
	v.SetDefault("consumer.render_failure_policy", "drop")

	v.SetDefault("mail.provider", "gmail")
	v.SetDefault("mail.from", "")
	v.SetDefault("mail.from_name", "")
	v.SetDefault("mail.timeout", 30000)
	v.SetDefault("mail.gmail.credentials", "{}")
	v.SetDefault("mail.gmail.delegated_user", "contact@airton-climatisation.com")
	v.SetDefault("mail.gmail.endpoint", "")
	v.SetDefault("mail.ses.region", "eu-west-1")
	v.SetDefault("mail.smtp.host", "")
	v.SetDefault("mail.smtp.port", 587)
	v.SetDefault("mail.smtp.username", "")
	v.SetDefault("mail.smtp.password", "")
	v.SetDefault("mail.smtp.insecure_skip_verify", false)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

func loadEnvFile() string {
	possiblePaths := []string{
		".env",
		"../.env",
		"../../.env",
		"../../../.env",
	}

	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			// godotenv.Load never overrides variables already set in the process.
			if err := godotenv.Load(path); err == nil {
				return path
			}
		}
	}
	return ""
}

// Find project root by looking for go.mod
func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

// expandEnvVars resolves ${VAR} placeholders in yaml string values.
func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		strVal, ok := v.Get(key).(string)
		if !ok {
			continue
		}
		if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
			expanded := os.ExpandEnv(strVal)
			if expanded != strVal && expanded != "" {
				v.Set(key, expanded)
			}
		}
	}
}

// applyDefaults repairs zero values that survive an explicit empty override.
func applyDefaults(cfg *Config) {
	if cfg.RabbitMQ.ConnectRetries <= 0 {
		cfg.RabbitMQ.ConnectRetries = 5
	}
	if cfg.RabbitMQ.ConnectDelay < 0 {
		cfg.RabbitMQ.ConnectDelay = 5000
	}
	if cfg.RabbitMQ.VHost == "" {
		cfg.RabbitMQ.VHost = "/"
	}

	if cfg.Consumer.Prefetch <= 0 {
		cfg.Consumer.Prefetch = 1
	}
	if cfg.Consumer.RestartBase <= 0 {
		cfg.Consumer.RestartBase = 1000
	}
	if cfg.Consumer.RestartMax < cfg.Consumer.RestartBase {
		cfg.Consumer.RestartMax = cfg.Consumer.RestartBase
	}

	if cfg.Mail.Timeout <= 0 {
		cfg.Mail.Timeout = 30000
	}
	if cfg.Mail.Gmail.Credentials == "" {
		cfg.Mail.Gmail.Credentials = "{}"
	}
	cfg.Mail.Provider = strings.ToLower(strings.TrimSpace(cfg.Mail.Provider))
	cfg.Consumer.RenderFailurePolicy = strings.ToLower(strings.TrimSpace(cfg.Consumer.RenderFailurePolicy))
	if cfg.Consumer.RenderFailurePolicy == "" {
		cfg.Consumer.RenderFailurePolicy = "drop"
	}

	var origins []string
	for _, o := range cfg.HTTP.CORSAllowedOrigins {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	cfg.HTTP.CORSAllowedOrigins = origins

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

// validateConfig validates critical configuration fields
func validateConfig(cfg *Config) error {
	if cfg.RabbitMQ.Host == "" {
		return fmt.Errorf("rabbitmq.host is required")
	}
	if cfg.RabbitMQ.Port <= 0 || cfg.RabbitMQ.Port > 65535 {
		return fmt.Errorf("rabbitmq.port must be between 1 and 65535")
	}
	if cfg.RabbitMQ.EmailQueue == "" {
		return fmt.Errorf("rabbitmq.email_queue is required")
	}
	if cfg.Consumer.MaxRestarts < 0 {
		return fmt.Errorf("consumer.max_restarts must not be negative")
	}

	switch cfg.Consumer.RenderFailurePolicy {
	case "drop", "dead_letter":
	default:
		return fmt.Errorf("consumer.render_failure_policy must be drop or dead_letter, got %q", cfg.Consumer.RenderFailurePolicy)
	}

	switch cfg.Mail.Provider {
	case "gmail":
		if cfg.Mail.Gmail.DelegatedUser == "" {
			return fmt.Errorf("mail.gmail.delegated_user is required")
		}
	case "ses":
		if cfg.Mail.SES.Region == "" {
			return fmt.Errorf("mail.ses.region is required")
		}
		if cfg.Mail.Sender() == "" {
			return fmt.Errorf("mail.from is required for ses")
		}
	case "smtp":
		if cfg.Mail.SMTP.Host == "" {
			return fmt.Errorf("mail.smtp.host is required")
		}
		if cfg.Mail.Sender() == "" {
			return fmt.Errorf("mail.from is required for smtp")
		}
	default:
		return fmt.Errorf("mail.provider must be gmail, ses or smtp, got %q", cfg.Mail.Provider)
	}

	if cfg.HTTP.Address == "" {
		return fmt.Errorf("http.address is required")
	}

	return nil
}

// GetDuration converts milliseconds from config to time.Duration
func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}
