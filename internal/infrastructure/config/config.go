package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all daemon configuration.
type Config struct {
	Server    ServerConfig
	Discovery DiscoveryConfig
	Launcher  LauncherConfig
	Logging   LogConfig
}

// ServerConfig holds control-plane HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8000"`
	Host string `envconfig:"HOST" default:"0.0.0.0"`
}

// DiscoveryConfig holds desktop-entry discovery configuration.
type DiscoveryConfig struct {
	// DataDirs overrides XDG_DATA_DIRS when non-empty (colon separated).
	DataDirs string `envconfig:"DATA_DIRS" default:""`
}

// LauncherConfig holds activation backend configuration.
type LauncherConfig struct {
	// SystemdUnits delegates non-bus-activatable applications to templated
	// systemd units instead of spawning them directly.
	SystemdUnits bool   `envconfig:"SYSTEMD_UNITS" default:"false"`
	UnitTemplate string `envconfig:"UNIT_TEMPLATE" default:"agl-app@%s.service"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// Load loads configuration from APPLAUNCHD_* environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("applaunchd", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "8000",
			Host: "0.0.0.0",
		},
		Launcher: LauncherConfig{
			SystemdUnits: false,
			UnitTemplate: "agl-app@%s.service",
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
	}
}
