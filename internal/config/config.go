package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"painel/internal/storage"
)

const minSessionSecretLen = 32

type Config struct {
	// HTTP Server
	Port         string
	CookieSecure bool

	// Database
	DatabaseURL string

	// Auth
	SessionSecret     string
	SessionTTL        time.Duration
	AdminUsername     string
	AdminPasswordHash string

	// AMQP (optional, empty URL disables change notifications)
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Logging
	LogLevel string
}

func Load() *Config {
	cfg := &Config{
		Port:         getEnv("PORT", "8050"),
		CookieSecure: getEnvBool("COOKIE_SECURE", false),

		DatabaseURL: getEnv("DATABASE_URL", "./data/painel.db"),

		SessionSecret:     getEnv("SESSION_SECRET", ""),
		SessionTTL:        getEnvDuration("SESSION_TTL", 12*time.Hour),
		AdminUsername:     getEnv("ADMIN_USERNAME", "admin"),
		AdminPasswordHash: getEnv("ADMIN_PASSWORD_HASH", ""),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "painel"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "record_changes"),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	return cfg
}

// Validate checks everything the dashboard server needs and reports every
// problem at once.
func (c *Config) Validate() error {
	var errors []string
	errors = append(errors, c.validateHTTP()...)
	errors = append(errors, c.validateStore()...)
	errors = append(errors, c.validateAuth()...)
	if c.AMQPURL != "" {
		errors = append(errors, c.validateAMQP()...)
	}
	errors = append(errors, c.validateLogging()...)
	return combine(errors)
}

// ValidateConsumer checks only what the change consumer uses: the store, the
// broker and logging. AMQP_URL is required here.
func (c *Config) ValidateConsumer() error {
	var errors []string
	errors = append(errors, c.validateStore()...)
	if c.AMQPURL == "" {
		errors = append(errors, "AMQP_URL is required for the change consumer")
	} else {
		errors = append(errors, c.validateAMQP()...)
	}
	errors = append(errors, c.validateLogging()...)
	return combine(errors)
}

func (c *Config) validateHTTP() []string {
	port, err := strconv.Atoi(c.Port)
	if err != nil {
		return []string{fmt.Sprintf("invalid port '%s': must be a number", c.Port)}
	}
	if port < 1 || port > 65535 {
		return []string{fmt.Sprintf("invalid port %d: must be between 1 and 65535", port)}
	}
	return nil
}

func (c *Config) validateStore() []string {
	if _, _, err := storage.ParseDatabaseURL(c.DatabaseURL); err != nil {
		return []string{fmt.Sprintf("invalid DATABASE_URL: %v", err)}
	}
	return nil
}

func (c *Config) validateAuth() []string {
	var errors []string
	if len(c.SessionSecret) < minSessionSecretLen {
		errors = append(errors, fmt.Sprintf("SESSION_SECRET must be at least %d bytes", minSessionSecretLen))
	}
	if c.SessionTTL < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid session TTL %v: must be at least 1 minute", c.SessionTTL))
	}

	if strings.TrimSpace(c.AdminUsername) == "" {
		errors = append(errors, "ADMIN_USERNAME cannot be empty")
	}
	if c.AdminPasswordHash == "" {
		errors = append(errors, "ADMIN_PASSWORD_HASH is required (generate one with cmd/hashpw)")
	} else if !strings.HasPrefix(c.AdminPasswordHash, "$2") {
		errors = append(errors, "ADMIN_PASSWORD_HASH must be a bcrypt hash")
	}
	return errors
}

func (c *Config) validateAMQP() []string {
	var errors []string
	if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
		errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
	} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
		errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
	}
	if c.AMQPExchange == "" {
		errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
	}
	if c.AMQPQueue == "" {
		errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
	}
	return errors
}

func (c *Config) validateLogging() []string {
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return []string{err.Error()}
	}
	return nil
}

func combine(errors []string) error {
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

// ParseLogLevel maps LOG_LEVEL values to slog levels.
func ParseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("invalid log level '%s': must be one of debug, info, warn, error", s)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
