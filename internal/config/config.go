// Package config provides configuration management for pulsetv using Viper.
// It supports configuration from files, environment variables, and defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Default configuration values.
const (
	defaultAPIPort            = 8686
	defaultAPITimeout         = 30 * time.Second
	defaultShutdownTimeout    = 10 * time.Second
	defaultProbeTimeout       = 10 * time.Second
	defaultProbeSampleSize    = 512 * 1024 // 512KiB
	defaultTickInterval       = 2 * time.Second
	defaultEventWindow        = 60 * time.Second
	defaultQualityCooldown    = 3 * time.Second
	defaultRecoveryHold       = 5 * time.Second
	defaultStabilizationAfter = 120 * time.Second
	defaultPlayerBufferSize   = 4 * 1024 * 1024 // 4MiB
	defaultPlayerDrainMbps    = 8.0
)

// Config holds all configuration for the application.
type Config struct {
	Logging  LoggingConfig  `mapstructure:"logging"`
	Probe    ProbeConfig    `mapstructure:"probe"`
	Playback PlaybackConfig `mapstructure:"playback"`
	Player   PlayerConfig   `mapstructure:"player"`
	API      APIConfig      `mapstructure:"api"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`  // debug, info, warn, error
	Format     string `mapstructure:"format"` // json, text
	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`
}

// ProbeConfig holds pre-playback connection probe configuration.
type ProbeConfig struct {
	// Timeout bounds the entire probe (latency round trip plus throughput sample).
	Timeout time.Duration `mapstructure:"timeout"`
	// SampleSize is the maximum number of body bytes read to estimate throughput.
	// Supports human-readable values like "512KB", "1MB", or raw byte counts.
	SampleSize ByteSize `mapstructure:"sample_size"`
}

// PlaybackConfig holds adaptation loop configuration. These are the tunable
// thresholds of the remediation ladder; the defaults are the product contract.
type PlaybackConfig struct {
	TickInterval       time.Duration `mapstructure:"tick_interval"`
	EventWindow        time.Duration `mapstructure:"event_window"`
	QualityCooldown    time.Duration `mapstructure:"quality_cooldown"`
	RecoveryHold       time.Duration `mapstructure:"recovery_hold"`
	StabilizationAfter time.Duration `mapstructure:"stabilization_after"`
}

// PlayerConfig holds the built-in pull player configuration.
type PlayerConfig struct {
	// BufferSize is the capacity of the in-memory stream buffer.
	// Supports human-readable values like "4MB" or raw byte counts.
	BufferSize ByteSize `mapstructure:"buffer_size"`
	// DrainMbps is the nominal playback consumption rate in megabits per second.
	DrainMbps float64 `mapstructure:"drain_mbps"`
}

// APIConfig holds the diagnostics HTTP server configuration.
type APIConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Load reads configuration from file and environment variables.
// Environment variables take precedence over file configuration.
// Environment variables are prefixed with PULSETV_ and use underscores for nesting.
// Example: PULSETV_API_PORT=8686.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	SetDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/pulsetv")
		v.AddConfigPath("$HOME/.pulsetv")
	}

	v.SetEnvPrefix("PULSETV")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// SetDefaults configures default values for all configuration options.
// This should be called before reading the config file to ensure defaults are in place.
func SetDefaults(v *viper.Viper) {
	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	// Probe defaults
	v.SetDefault("probe.timeout", defaultProbeTimeout)
	v.SetDefault("probe.sample_size", defaultProbeSampleSize)

	// Playback defaults
	v.SetDefault("playback.tick_interval", defaultTickInterval)
	v.SetDefault("playback.event_window", defaultEventWindow)
	v.SetDefault("playback.quality_cooldown", defaultQualityCooldown)
	v.SetDefault("playback.recovery_hold", defaultRecoveryHold)
	v.SetDefault("playback.stabilization_after", defaultStabilizationAfter)

	// Player defaults
	v.SetDefault("player.buffer_size", defaultPlayerBufferSize)
	v.SetDefault("player.drain_mbps", defaultPlayerDrainMbps)

	// API defaults
	v.SetDefault("api.enabled", true)
	v.SetDefault("api.host", "127.0.0.1")
	v.SetDefault("api.port", defaultAPIPort)
	v.SetDefault("api.read_timeout", defaultAPITimeout)
	v.SetDefault("api.write_timeout", defaultAPITimeout)
	v.SetDefault("api.shutdown_timeout", defaultShutdownTimeout)
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	if c.Probe.Timeout <= 0 {
		return fmt.Errorf("probe.timeout must be positive")
	}
	if c.Probe.SampleSize < 1 {
		return fmt.Errorf("probe.sample_size must be at least 1 byte")
	}

	if c.Playback.TickInterval <= 0 {
		return fmt.Errorf("playback.tick_interval must be positive")
	}
	if c.Playback.EventWindow <= 0 {
		return fmt.Errorf("playback.event_window must be positive")
	}

	if c.Player.BufferSize < 1 {
		return fmt.Errorf("player.buffer_size must be at least 1 byte")
	}
	if c.Player.DrainMbps <= 0 {
		return fmt.Errorf("player.drain_mbps must be positive")
	}

	const maxPort = 65535
	if c.API.Port < 1 || c.API.Port > maxPort {
		return fmt.Errorf("api.port must be between 1 and %d", maxPort)
	}

	return nil
}

// Address returns the API server address in host:port format.
func (c *APIConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
