// Package config provides configuration loading from YAML files.
package config

import (
	"os"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Catalog  CatalogConfig  `yaml:"catalog"`
	Playback PlaybackConfig `yaml:"playback"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig represents HTTP server configuration.
type ServerConfig struct {
	Addr string `yaml:"addr" default:":8080"`
}

// DatabaseConfig represents the SQLite database configuration.
type DatabaseConfig struct {
	Path string `yaml:"path" default:"soundcrate.db" validate:"required"`
}

// CatalogConfig represents the track catalog provider configuration.
// Settings are provider-specific and decoded by the catalog factory.
type CatalogConfig struct {
	Type     string         `yaml:"type" default:"local" validate:"required,oneof=gcs local"`
	Settings map[string]any `yaml:"settings"`
}

// PlaybackConfig represents playback session configuration.
type PlaybackConfig struct {
	DefaultVolume           float64 `yaml:"default_volume" default:"1.0" validate:"gte=0,lte=1"`
	ShuffleRecencyWindowMin int     `yaml:"shuffle_recency_window_min" default:"10" validate:"gte=1,lte=1440"`
	EventBufferSize         int     `yaml:"event_buffer_size" default:"16" validate:"gte=1,lte=1024"`
	DefaultPlaylistName     string  `yaml:"default_playlist_name" default:"My Playlist"`
}

// LogConfig represents logging configuration.
type LogConfig struct {
	Output string `yaml:"output" default:"stdout"`
	Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
}

// Load loads configuration from a YAML file.
// Environment variables take precedence over file values for sensitive fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	cfg.overrideFromEnv()

	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("SOUNDCRATE_DB_PATH"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("SOUNDCRATE_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); v != "" && c.Catalog.Type == "gcs" {
		if c.Catalog.Settings == nil {
			c.Catalog.Settings = map[string]any{}
		}
		if _, ok := c.Catalog.Settings["credentials_file"]; !ok {
			c.Catalog.Settings["credentials_file"] = v
		}
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	return validator.New().Struct(c)
}
