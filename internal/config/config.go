// Copyright 2024 Matt Schultz <schultz@sent.com>. All rights reserved.
// Use of this source code is governed by an ISC license that can be found in the LICENSE file.

// Package config loads rconctl settings from a file, the environment and defaults.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. RCON_SERVER_PASSWORD.
const EnvPrefix = "RCON"

// Config represents the rconctl configuration.
//
// Configuration sources (in order of precedence):
//  1. CLI flags (highest priority)
//  2. Environment variables (RCON_*)
//  3. Configuration file (YAML or TOML)
//  4. Default values (lowest priority)
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging" toml:"logging"`

	// Server identifies the RCON server to talk to
	Server ServerConfig `mapstructure:"server" yaml:"server" toml:"server"`

	// Client tunes the protocol client
	Client ClientConfig `mapstructure:"client" yaml:"client" toml:"client"`

	// Metrics contains Prometheus metrics server configuration
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics" toml:"metrics"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR" yaml:"level" toml:"level"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format" toml:"format"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required" yaml:"output" toml:"output"`
}

// ServerConfig identifies the RCON server.
type ServerConfig struct {
	// Address is host:port of the server's RCON listener.
	// Default: 127.0.0.1:25575
	Address string `mapstructure:"address" validate:"required,hostname_port" yaml:"address" toml:"address"`

	// Password is the RCON password. Prefer RCON_SERVER_PASSWORD over writing it to disk.
	Password string `mapstructure:"password" yaml:"password,omitempty" toml:"password,omitempty"`
}

// ClientConfig tunes the protocol client.
type ClientConfig struct {
	// Timeout bounds each request and response round trip. Negative disables the limit.
	// Default: 15s
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout" toml:"timeout"`

	// DialTimeout bounds connection establishment.
	// Default: 5s
	DialTimeout time.Duration `mapstructure:"dial_timeout" validate:"gte=0" yaml:"dial_timeout" toml:"dial_timeout"`

	// LogOutboundAuthPackets includes the plaintext password in debug packet logs.
	LogOutboundAuthPackets bool `mapstructure:"log_outbound_auth_packets" yaml:"log_outbound_auth_packets" toml:"log_outbound_auth_packets"`
}

// MetricsConfig configures the Prometheus metrics HTTP server.
type MetricsConfig struct {
	// Enabled controls whether metrics are served while the shell runs
	Enabled bool `mapstructure:"enabled" yaml:"enabled" toml:"enabled"`

	// Address is the listen address for the metrics endpoint
	// Default: 127.0.0.1:9091
	Address string `mapstructure:"address" validate:"omitempty,hostname_port" yaml:"address" toml:"address"`
}

// Load loads configuration from configPath (or the default location when empty), environment
// variables, and defaults. A missing file is not an error.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	if _, err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(durationDecodeHook())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// SaveConfig writes cfg to path as TOML when the extension is .toml and as YAML otherwise.
func SaveConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var data []byte
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
			return fmt.Errorf("failed to marshal config: %w", err)
		}
		data = buf.Bytes()
	default:
		var err error
		if data, err = yaml.Marshal(cfg); err != nil {
			return fmt.Errorf("failed to marshal config: %w", err)
		}
	}

	// 0600: the file may hold the RCON password.
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Example: RCON_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv only applies to keys viper already knows about.
	for _, key := range []string{
		"logging.level", "logging.format", "logging.output",
		"server.address", "server.password",
		"client.timeout", "client.dial_timeout", "client.log_outbound_auth_packets",
		"metrics.enabled", "metrics.address",
	} {
		_ = v.BindEnv(key)
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(GetConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists.
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}
	return true, nil
}

// durationDecodeHook converts strings like "30s" and raw nanosecond counts to time.Duration.
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			// YAML often deserializes numbers as float64
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// GetConfigDir returns $XDG_CONFIG_HOME/rconctl, falling back to ~/.config/rconctl and then the
// current directory.
func GetConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "rconctl")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "rconctl")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(GetConfigDir(), "config.yaml")
}
