package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config carries every tunable of the messaging client.
type Config struct {
	API      APIConfig      `mapstructure:"api"`
	Channel  ChannelConfig  `mapstructure:"channel"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Typing   TypingConfig   `mapstructure:"typing"`
	Polling  PollingConfig  `mapstructure:"polling"`
	Notify   NotifyConfig   `mapstructure:"notify"`
	Rollbar  RollbarConfig  `mapstructure:"rollbar"`
}

// APIConfig locates the REST backend.
type APIConfig struct {
	BaseURL  string        `mapstructure:"base_url"`
	Timeout  time.Duration `mapstructure:"timeout"`
	PageSize int           `mapstructure:"page_size"`
}

// ChannelConfig tunes the live WebSocket channel and its reconnect
// backoff.
type ChannelConfig struct {
	BaseURL              string        `mapstructure:"base_url"`
	WriteTimeout         time.Duration `mapstructure:"write_timeout"`
	ReconnectBaseDelay   time.Duration `mapstructure:"reconnect_base_delay"`
	ReconnectMaxDelay    time.Duration `mapstructure:"reconnect_max_delay"`
	ReconnectMaxAttempts int           `mapstructure:"reconnect_max_attempts"`
}

// CacheConfig tunes the persistent response cache.
type CacheConfig struct {
	Path             string        `mapstructure:"path"`
	ConversationsTTL time.Duration `mapstructure:"conversations_ttl"`
	MessagesTTL      time.Duration `mapstructure:"messages_ttl"`
}

// TypingConfig tunes the typing indicator coordinator.
type TypingConfig struct {
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`
}

// PollingConfig tunes the REST polling fallback.
type PollingConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

// NotifyConfig tunes the notification surface.
type NotifyConfig struct {
	VisibleCap     int           `mapstructure:"visible_cap"`
	DisplayTimeout time.Duration `mapstructure:"display_timeout"`
}

// RollbarConfig enables remote error reporting when a token is set.
type RollbarConfig struct {
	Token       string `mapstructure:"token"`
	Environment string `mapstructure:"environment"`
}

// Default returns the configuration used when nothing is overridden.
// The reconnect and timing constants match the backend's expectations.
func Default() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:  "http://localhost:8000/api",
			Timeout:  15 * time.Second,
			PageSize: 20,
		},
		Channel: ChannelConfig{
			BaseURL:              "ws://localhost:8000/ws",
			WriteTimeout:         5 * time.Second,
			ReconnectBaseDelay:   time.Second,
			ReconnectMaxDelay:    30 * time.Second,
			ReconnectMaxAttempts: 5,
		},
		Cache: CacheConfig{
			Path:             "./classwire.db",
			ConversationsTTL: 5 * time.Minute,
			MessagesTTL:      10 * time.Minute,
		},
		Typing: TypingConfig{
			IdleTimeout: 3 * time.Second,
		},
		Polling: PollingConfig{
			Interval: 5 * time.Second,
		},
		Notify: NotifyConfig{
			VisibleCap:     5,
			DisplayTimeout: 5 * time.Second,
		},
		Rollbar: RollbarConfig{
			Environment: "development",
		},
	}
}

// Validate rejects configurations that would break the client at
// runtime.
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("api base URL cannot be empty")
	}
	if c.API.Timeout <= 0 {
		return fmt.Errorf("api timeout must be positive")
	}
	if c.API.PageSize <= 0 {
		return fmt.Errorf("api page size must be positive")
	}
	if c.Channel.BaseURL == "" {
		return fmt.Errorf("channel base URL cannot be empty")
	}
	if c.Channel.WriteTimeout <= 0 {
		return fmt.Errorf("channel write timeout must be positive")
	}
	if c.Channel.ReconnectBaseDelay <= 0 {
		return fmt.Errorf("reconnect base delay must be positive")
	}
	if c.Channel.ReconnectMaxDelay < c.Channel.ReconnectBaseDelay {
		return fmt.Errorf("reconnect max delay must be at least the base delay")
	}
	if c.Channel.ReconnectMaxAttempts <= 0 {
		return fmt.Errorf("reconnect max attempts must be positive")
	}
	if c.Cache.Path == "" {
		return fmt.Errorf("cache path cannot be empty")
	}
	if c.Cache.ConversationsTTL <= 0 || c.Cache.MessagesTTL <= 0 {
		return fmt.Errorf("cache TTLs must be positive")
	}
	if c.Typing.IdleTimeout <= 0 {
		return fmt.Errorf("typing idle timeout must be positive")
	}
	if c.Polling.Interval <= 0 {
		return fmt.Errorf("polling interval must be positive")
	}
	if c.Notify.VisibleCap <= 0 {
		return fmt.Errorf("notification visible cap must be positive")
	}
	if c.Notify.DisplayTimeout <= 0 {
		return fmt.Errorf("notification display timeout must be positive")
	}
	return nil
}

// Load builds the configuration from defaults, an optional .env file,
// CLASSWIRE_* environment variables and an optional config file, in
// increasing precedence.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	v.SetTypeByDefaultValue(true)

	def := Default()
	v.SetDefault("api.base_url", def.API.BaseURL)
	v.SetDefault("api.timeout", def.API.Timeout)
	v.SetDefault("api.page_size", def.API.PageSize)
	v.SetDefault("channel.base_url", def.Channel.BaseURL)
	v.SetDefault("channel.write_timeout", def.Channel.WriteTimeout)
	v.SetDefault("channel.reconnect_base_delay", def.Channel.ReconnectBaseDelay)
	v.SetDefault("channel.reconnect_max_delay", def.Channel.ReconnectMaxDelay)
	v.SetDefault("channel.reconnect_max_attempts", def.Channel.ReconnectMaxAttempts)
	v.SetDefault("cache.path", def.Cache.Path)
	v.SetDefault("cache.conversations_ttl", def.Cache.ConversationsTTL)
	v.SetDefault("cache.messages_ttl", def.Cache.MessagesTTL)
	v.SetDefault("typing.idle_timeout", def.Typing.IdleTimeout)
	v.SetDefault("polling.interval", def.Polling.Interval)
	v.SetDefault("notify.visible_cap", def.Notify.VisibleCap)
	v.SetDefault("notify.display_timeout", def.Notify.DisplayTimeout)
	v.SetDefault("rollbar.token", def.Rollbar.Token)
	v.SetDefault("rollbar.environment", def.Rollbar.Environment)

	// Load .env if present; ignore when it does not exist.
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			return nil, fmt.Errorf("loading .env: %w", err)
		}
	}

	v.SetEnvPrefix("CLASSWIRE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", configFile, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
