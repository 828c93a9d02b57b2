// Package config provides configuration loading for pulsed.
//
// Configuration is loaded from an optional YAML file and overridden by
// environment variables, with hardcoded defaults for everything else.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/pulsed/internal/notify"
)

// Config holds the complete pulsed configuration.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Log        LogConfig        `koanf:"log"`
	NATS       NATSConfig       `koanf:"nats"`
	Store      StoreConfig      `koanf:"store"`
	Classifier ClassifierConfig `koanf:"classifier"`
	Feed       FeedConfig       `koanf:"feed"`
	Notify     NotifyConfig     `koanf:"notify"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            int           `koanf:"http_port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// LogConfig holds logger configuration.
type LogConfig struct {
	Level  string `koanf:"level"`  // debug, info, warn, error
	Format string `koanf:"format"` // json or console
}

// NATSConfig holds messaging configuration.
type NATSConfig struct {
	URL string `koanf:"url"`

	// Embedded runs an in-process server instead of dialing URL,
	// useful for single-node deployments and development.
	Embedded bool `koanf:"embedded"`
}

// StoreConfig holds persistence configuration.
type StoreConfig struct {
	// Path is the SQLite database file. ":memory:" keeps records
	// in-process only.
	Path string `koanf:"path"`
}

// ClassifierConfig holds AI classifier configuration.
type ClassifierConfig struct {
	BaseURL string `koanf:"base_url"`
	Model   string `koanf:"model"`
	APIKey  string `koanf:"api_key"`

	// Disabled turns classification off entirely: every submission
	// posts directly without suggestions.
	Disabled bool `koanf:"disabled"`
}

// FeedConfig holds update-feed configuration.
type FeedConfig struct {
	// TriggerWords override the built-in growth-signal list when
	// non-empty.
	TriggerWords []string `koanf:"trigger_words"`
}

// NotifyConfig holds defaults for new notification sessions.
type NotifyConfig struct {
	SoundEnabled         bool `koanf:"sound_enabled"`
	DesktopEnabled       bool `koanf:"desktop_enabled"`
	CriticalOnly         bool `koanf:"critical_only"`
	FeedbackThreshold    int  `koanf:"feedback_threshold"`
	UtilizationThreshold int  `koanf:"utilization_threshold"`
}

// Settings converts the section into session defaults.
func (c NotifyConfig) Settings() notify.Settings {
	return notify.Settings{
		SoundEnabled:         c.SoundEnabled,
		DesktopEnabled:       c.DesktopEnabled,
		CriticalOnly:         c.CriticalOnly,
		FeedbackThreshold:    c.FeedbackThreshold,
		UtilizationThreshold: c.UtilizationThreshold,
	}
}

// applyDefaults fills zero values with defaults.
func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 9180
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.NATS.URL == "" {
		cfg.NATS.URL = "nats://127.0.0.1:4222"
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = "pulsed.db"
	}
	if cfg.Classifier.BaseURL == "" {
		cfg.Classifier.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Classifier.Model == "" {
		cfg.Classifier.Model = "gpt-4o-mini"
	}
	defaults := notify.DefaultSettings()
	if cfg.Notify == (NotifyConfig{}) {
		cfg.Notify.SoundEnabled = defaults.SoundEnabled
		cfg.Notify.DesktopEnabled = defaults.DesktopEnabled
		cfg.Notify.CriticalOnly = defaults.CriticalOnly
	}
	// Thresholds default per field: a section that sets only one toggle
	// must not lose the threshold defaults and fail validation.
	if cfg.Notify.FeedbackThreshold == 0 {
		cfg.Notify.FeedbackThreshold = defaults.FeedbackThreshold
	}
	if cfg.Notify.UtilizationThreshold == 0 {
		cfg.Notify.UtilizationThreshold = defaults.UtilizationThreshold
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return errors.New("shutdown timeout must be positive")
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("invalid log format: %q", c.Log.Format)
	}
	if !c.NATS.Embedded && c.NATS.URL == "" {
		return errors.New("nats url required when not embedded")
	}
	if c.Store.Path == "" {
		return errors.New("store path required")
	}
	if err := c.Notify.Settings().Validate(); err != nil {
		return fmt.Errorf("notify defaults: %w", err)
	}
	return nil
}
