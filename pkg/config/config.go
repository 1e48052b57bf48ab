// Package config loads the engine's runtime configuration from the
// environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// SessionEndpoint issues realtime session credentials. Required to
	// run the agent; migration-only runs leave it empty.
	SessionEndpoint string
	// APIKey authenticates against the session endpoint, if it requires one.
	APIKey string

	HandshakeTimeout time.Duration

	// Session orchestration.
	ShutdownGracePeriod time.Duration
	DeliveryRetries     int
	DeliveryBackoff     time.Duration
	ToolTimeout         time.Duration

	// DatabaseURL selects the Postgres store. Empty runs on the seeded
	// in-memory store.
	DatabaseURL string

	// Outbound notification mail. Empty host disables sending.
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string

	LogLevel string
}

func LoadFromEnv() (Config, error) {
	cfg := Config{
		SessionEndpoint:     envOr("VOLTDESK_SESSION_ENDPOINT", ""),
		APIKey:              envOr("VOLTDESK_API_KEY", ""),
		HandshakeTimeout:    envDurationOr("VOLTDESK_HANDSHAKE_TIMEOUT", 15*time.Second),
		ShutdownGracePeriod: envDurationOr("VOLTDESK_SHUTDOWN_GRACE_PERIOD", 5*time.Second),
		DeliveryRetries:     envIntOr("VOLTDESK_DELIVERY_RETRIES", 2),
		DeliveryBackoff:     envDurationOr("VOLTDESK_DELIVERY_BACKOFF", 100*time.Millisecond),
		ToolTimeout:         envDurationOr("VOLTDESK_TOOL_TIMEOUT", 8*time.Second),
		DatabaseURL:         envOr("VOLTDESK_DATABASE_URL", ""),
		SMTPHost:            envOr("VOLTDESK_SMTP_HOST", ""),
		SMTPPort:            envIntOr("VOLTDESK_SMTP_PORT", 587),
		SMTPUsername:        envOr("VOLTDESK_SMTP_USERNAME", ""),
		SMTPPassword:        envOr("VOLTDESK_SMTP_PASSWORD", ""),
		SMTPFrom:            envOr("VOLTDESK_SMTP_FROM", ""),
		LogLevel:            envOr("VOLTDESK_LOG_LEVEL", "info"),
	}

	if cfg.HandshakeTimeout <= 0 {
		return Config{}, fmt.Errorf("VOLTDESK_HANDSHAKE_TIMEOUT must be > 0")
	}
	if cfg.ShutdownGracePeriod <= 0 {
		return Config{}, fmt.Errorf("VOLTDESK_SHUTDOWN_GRACE_PERIOD must be > 0")
	}
	if cfg.DeliveryRetries < 0 {
		return Config{}, fmt.Errorf("VOLTDESK_DELIVERY_RETRIES must be >= 0")
	}
	if cfg.DeliveryBackoff <= 0 {
		return Config{}, fmt.Errorf("VOLTDESK_DELIVERY_BACKOFF must be > 0")
	}
	if cfg.ToolTimeout <= 0 {
		return Config{}, fmt.Errorf("VOLTDESK_TOOL_TIMEOUT must be > 0")
	}
	if cfg.SMTPPort <= 0 {
		return Config{}, fmt.Errorf("VOLTDESK_SMTP_PORT must be > 0")
	}
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return Config{}, fmt.Errorf("VOLTDESK_LOG_LEVEL must be one of debug|info|warn|error")
	}

	return cfg, nil
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envIntOr(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func envDurationOr(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}
