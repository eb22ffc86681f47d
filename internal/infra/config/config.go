// Package config provides configuration loading from YAML files.
package config

import (
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Lastfm  LastfmConfig   `yaml:"lastfm"`
	Monitor MonitorConfig  `yaml:"monitor"`
	Players []PlayerConfig `yaml:"players" validate:"required,min=1,dive"`
	Log     LogConfig      `yaml:"log"`
}

// LastfmConfig represents tracking-service API credentials.
type LastfmConfig struct {
	APIKey     string `yaml:"api_key" validate:"required"`
	APISecret  string `yaml:"api_secret" validate:"required"`
	SessionKey string `yaml:"session_key"`
	Username   string `yaml:"username" validate:"required"`
}

// MonitorConfig represents playback monitoring configuration.
type MonitorConfig struct {
	AutoConnect          bool    `yaml:"auto_connect"`
	PercentageToScrobble float64 `yaml:"percentage_to_scrobble" default:"0.5" validate:"gte=0.5,lte=1"`
	CacheEnabled         *bool   `yaml:"cache_enabled"`
	ImportGapSeconds     int     `yaml:"import_gap_seconds" default:"180" validate:"gte=1"`
	PollIntervalMs       int     `yaml:"poll_interval_ms" default:"1000" validate:"gte=100,lte=1000"`
}

// Cached reports whether failed submissions go through the offline queue.
// Enabled unless explicitly turned off.
func (c MonitorConfig) Cached() bool {
	return c.CacheEnabled == nil || *c.CacheEnabled
}

// PollInterval returns the refresh tick interval.
func (c MonitorConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

// ImportGap returns the fixed per-row gap used when re-timing imports.
func (c MonitorConfig) ImportGap() time.Duration {
	return time.Duration(c.ImportGapSeconds) * time.Second
}

// PlayerConfig represents a single player source configuration.
type PlayerConfig struct {
	Type        string         `yaml:"type" validate:"required"`
	DisplayName string         `yaml:"display_name"`
	Settings    map[string]any `yaml:"settings"`
}

// LogConfig represents logging configuration.
type LogConfig struct {
	Output string `yaml:"output" default:"stderr"`
	Level  string `yaml:"level" default:"info"`
	File   string `yaml:"file"`
}

// Load loads configuration from a YAML file.
// Environment variables take precedence over file values for credentials.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	// Override with environment variables
	cfg.overrideFromEnv()

	// Set defaults using creasty/defaults
	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("LASTFM_API_KEY"); v != "" {
		c.Lastfm.APIKey = v
	}
	if v := os.Getenv("LASTFM_API_SECRET"); v != "" {
		c.Lastfm.APISecret = v
	}
	if v := os.Getenv("LASTFM_SESSION_KEY"); v != "" {
		c.Lastfm.SessionKey = v
	}
	if v := os.Getenv("LASTFM_USERNAME"); v != "" {
		c.Lastfm.Username = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}
	return nil
}

// Player returns the configuration for the player with the given type,
// or nil if none is configured.
func (c *Config) Player(playerType string) *PlayerConfig {
	for i := range c.Players {
		if c.Players[i].Type == playerType {
			return &c.Players[i]
		}
	}
	return nil
}
