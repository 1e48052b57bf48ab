package config

import (
	"testing"
	"time"
)

func TestLoadFromEnvDefaults(t *testing.T) {
	t.Setenv("VOLTDESK_SESSION_ENDPOINT", "https://support.example.com/api/realtime/session")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}
	if cfg.ShutdownGracePeriod != 5*time.Second {
		t.Fatalf("grace=%v", cfg.ShutdownGracePeriod)
	}
	if cfg.DeliveryRetries != 2 || cfg.ToolTimeout != 8*time.Second {
		t.Fatalf("cfg=%+v", cfg)
	}
	if cfg.LogLevel != "info" || cfg.SMTPPort != 587 {
		t.Fatalf("cfg=%+v", cfg)
	}
}

func TestLoadFromEnvOverrides(t *testing.T) {
	t.Setenv("VOLTDESK_SESSION_ENDPOINT", "https://support.example.com/api/realtime/session")
	t.Setenv("VOLTDESK_TOOL_TIMEOUT", "2s")
	t.Setenv("VOLTDESK_DELIVERY_RETRIES", "5")
	t.Setenv("VOLTDESK_LOG_LEVEL", "debug")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}
	if cfg.ToolTimeout != 2*time.Second || cfg.DeliveryRetries != 5 || cfg.LogLevel != "debug" {
		t.Fatalf("cfg=%+v", cfg)
	}
}

func TestLoadFromEnvAllowsMissingEndpoint(t *testing.T) {
	// Migration-only runs carry no session endpoint.
	t.Setenv("VOLTDESK_SESSION_ENDPOINT", "")
	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}
	if cfg.SessionEndpoint != "" {
		t.Fatalf("endpoint=%q", cfg.SessionEndpoint)
	}
}

func TestLoadFromEnvRejectsBadLogLevel(t *testing.T) {
	t.Setenv("VOLTDESK_SESSION_ENDPOINT", "https://support.example.com/api/realtime/session")
	t.Setenv("VOLTDESK_LOG_LEVEL", "verbose")
	if _, err := LoadFromEnv(); err == nil {
		t.Fatal("expected error for invalid log level")
	}
}
