package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default configuration invalid: %v", err)
	}
}

func TestValidateRejectsBrokenConfigs(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty api base url", func(c *Config) { c.API.BaseURL = "" }},
		{"zero api timeout", func(c *Config) { c.API.Timeout = 0 }},
		{"zero page size", func(c *Config) { c.API.PageSize = 0 }},
		{"empty channel base url", func(c *Config) { c.Channel.BaseURL = "" }},
		{"zero write timeout", func(c *Config) { c.Channel.WriteTimeout = 0 }},
		{"zero reconnect base delay", func(c *Config) { c.Channel.ReconnectBaseDelay = 0 }},
		{"max delay below base", func(c *Config) {
			c.Channel.ReconnectBaseDelay = 10 * time.Second
			c.Channel.ReconnectMaxDelay = time.Second
		}},
		{"zero reconnect attempts", func(c *Config) { c.Channel.ReconnectMaxAttempts = 0 }},
		{"empty cache path", func(c *Config) { c.Cache.Path = "" }},
		{"zero cache ttl", func(c *Config) { c.Cache.MessagesTTL = 0 }},
		{"zero idle timeout", func(c *Config) { c.Typing.IdleTimeout = 0 }},
		{"zero polling interval", func(c *Config) { c.Polling.Interval = 0 }},
		{"zero visible cap", func(c *Config) { c.Notify.VisibleCap = 0 }},
		{"zero display timeout", func(c *Config) { c.Notify.DisplayTimeout = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected a validation error")
			}
		})
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := Default()
	if cfg.Channel.ReconnectBaseDelay != want.Channel.ReconnectBaseDelay {
		t.Errorf("reconnect base delay = %v, want %v", cfg.Channel.ReconnectBaseDelay, want.Channel.ReconnectBaseDelay)
	}
	if cfg.Notify.VisibleCap != want.Notify.VisibleCap {
		t.Errorf("visible cap = %d, want %d", cfg.Notify.VisibleCap, want.Notify.VisibleCap)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("CLASSWIRE_API_BASE_URL", "https://school.example/api")
	t.Setenv("CLASSWIRE_POLLING_INTERVAL", "9s")
	t.Setenv("CLASSWIRE_NOTIFY_VISIBLE_CAP", "3")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.API.BaseURL != "https://school.example/api" {
		t.Errorf("api base url = %q", cfg.API.BaseURL)
	}
	if cfg.Polling.Interval != 9*time.Second {
		t.Errorf("polling interval = %v", cfg.Polling.Interval)
	}
	if cfg.Notify.VisibleCap != 3 {
		t.Errorf("visible cap = %d", cfg.Notify.VisibleCap)
	}
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := []byte("channel:\n  reconnect_max_attempts: 8\ncache:\n  path: /tmp/other.db\n")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("writing config file: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Channel.ReconnectMaxAttempts != 8 {
		t.Errorf("reconnect max attempts = %d, want 8", cfg.Channel.ReconnectMaxAttempts)
	}
	if cfg.Cache.Path != "/tmp/other.db" {
		t.Errorf("cache path = %q", cfg.Cache.Path)
	}
	// Values absent from the file keep their defaults.
	if cfg.API.PageSize != Default().API.PageSize {
		t.Errorf("page size = %d", cfg.API.PageSize)
	}
}

func TestLoadRejectsMissingConfigFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected an error for a missing config file")
	}
}
