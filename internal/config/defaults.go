// Copyright 2024 Matt Schultz <schultz@sent.com>. All rights reserved.
// Use of this source code is governed by an ISC license that can be found in the LICENSE file.

package config

import (
	"strings"
	"time"
)

const (
	DefaultAddress        = "127.0.0.1:25575"
	DefaultMetricsAddress = "127.0.0.1:9091"
	DefaultTimeout        = 15 * time.Second
	DefaultDialTimeout    = 5 * time.Second
)

// ApplyDefaults sets default values for any unspecified configuration fields. Zero values are
// replaced; explicit values are preserved.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyServerDefaults(&cfg.Server)
	applyClientDefaults(&cfg.Client)
	applyMetricsDefaults(&cfg.Metrics)
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	// Normalize log level to uppercase for consistent internal representation
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	cfg.Format = strings.ToLower(cfg.Format)

	if cfg.Output == "" {
		cfg.Output = "stderr"
	}
}

func applyServerDefaults(cfg *ServerConfig) {
	if cfg.Address == "" {
		cfg.Address = DefaultAddress
	}
}

func applyClientDefaults(cfg *ClientConfig) {
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = DefaultDialTimeout
	}
}

func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Enabled && cfg.Address == "" {
		cfg.Address = DefaultMetricsAddress
	}
}

// GetDefaultConfig returns a configuration with every default applied.
func GetDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
