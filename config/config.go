// Package config loads the runtime configuration from files and the
// environment.
package config

import (
	"time"
)

// Config is the runtime configuration.
type Config struct {
	Environment string        `yaml:"environment" toml:"environment" json:"environment" env:"KEEL_ENV" default:"development" validate:"oneof=development test production"`
	Debug       bool          `yaml:"debug" toml:"debug" json:"debug" env:"KEEL_DEBUG"`
	Server      ServerConfig  `yaml:"server" toml:"server" json:"server"`
	Addons      AddonsConfig  `yaml:"addons" toml:"addons" json:"addons"`
	ORM         ORMConfig     `yaml:"orm" toml:"orm" json:"orm"`
	Logging     LoggingConfig `yaml:"logging" toml:"logging" json:"logging"`
	Metrics     MetricsConfig `yaml:"metrics" toml:"metrics" json:"metrics"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Addr            string        `yaml:"addr" toml:"addr" json:"addr" env:"KEEL_ADDR" default:":3000" validate:"required"`
	ReadTimeout     time.Duration `yaml:"readTimeout" toml:"readTimeout" json:"readTimeout" default:"15s"`
	WriteTimeout    time.Duration `yaml:"writeTimeout" toml:"writeTimeout" json:"writeTimeout" default:"15s"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout" toml:"shutdownTimeout" json:"shutdownTimeout" default:"10s"`
}

// AddonsConfig controls addon discovery.
type AddonsConfig struct {
	// Dir is the folder dependencies are installed in.
	Dir    string `yaml:"dir" toml:"dir" json:"dir" env:"KEEL_ADDONS_DIR" default:"addons" validate:"required"`
	Marker string `yaml:"marker" toml:"marker" json:"marker" default:"keel-addon" validate:"required"`
	// Preseeded addon directories take precedence over discovered ones.
	Preseeded []string `yaml:"preseeded" toml:"preseeded" json:"preseeded"`
}

// ORMConfig selects ORM adapters.
type ORMConfig struct {
	// DefaultAdapter is used for models without their own orm-adapter.
	DefaultAdapter string `yaml:"defaultAdapter" toml:"defaultAdapter" json:"defaultAdapter" env:"KEEL_ORM_ADAPTER" default:"memory"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level" json:"level" env:"KEEL_LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" toml:"format" json:"format" env:"KEEL_LOG_FORMAT" default:"json" validate:"oneof=json console"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled" json:"enabled" env:"KEEL_METRICS"`
	Path    string `yaml:"path" toml:"path" json:"path" default:"/metrics" validate:"startswith=/"`
}

// IsProduction reports whether the production environment is active.
func (c *Config) IsProduction() bool { return c.Environment == "production" }
