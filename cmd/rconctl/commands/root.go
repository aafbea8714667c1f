// Copyright 2024 Matt Schultz <schultz@sent.com>. All rights reserved.
// Use of this source code is governed by an ISC license that can be found in the LICENSE file.

// Package commands implements the rconctl CLI.
package commands

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	rcon "github.com/schultz-is/rconsole"
	"github.com/schultz-is/rconsole/internal/config"
	"github.com/schultz-is/rconsole/internal/logger"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// globalOptions holds the persistent flags shared by every command.
type globalOptions struct {
	configFile string
	address    string
	password   string
	logLevel   string
	logFormat  string
}

// NewRootCmd builds the rconctl command tree.
func NewRootCmd() *cobra.Command {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:   "rconctl",
		Short: "rconctl - remote console client",
		Long: `rconctl talks to game servers over the Source RCON protocol: it logs in once
with the server's RCON password and then runs console commands, printing
their replies.

Use "rconctl [command] --help" for more information about a command.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.configFile, "config", "", "config file (default: $XDG_CONFIG_HOME/rconctl/config.yaml)")
	flags.StringVarP(&opts.address, "address", "a", "", "RCON server host:port")
	flags.StringVarP(&opts.password, "password", "p", "", "RCON password (prefer RCON_SERVER_PASSWORD)")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level: DEBUG, INFO, WARN, ERROR")
	flags.StringVar(&opts.logFormat, "log-format", "", "log format: text, json")

	rootCmd.AddCommand(newExecCmd(opts))
	rootCmd.AddCommand(newShellCmd(opts))
	rootCmd.AddCommand(newConfigCmd(opts))
	rootCmd.AddCommand(newVersionCmd())

	rootCmd.CompletionOptions.DisableDefaultCmd = true

	return rootCmd
}

// loadConfig reads the config file and environment, then applies flags the user set explicitly.
func loadConfig(cmd *cobra.Command, opts *globalOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.configFile)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("address") {
		cfg.Server.Address = opts.address
	}
	if flags.Changed("password") {
		cfg.Server.Password = opts.password
	}
	if flags.Changed("log-level") {
		cfg.Logging.Level = opts.logLevel
	}
	if flags.Changed("log-format") {
		cfg.Logging.Format = opts.logFormat
	}

	config.ApplyDefaults(cfg)
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setup loads configuration and builds the logger. The closer releases the log output.
func setup(cmd *cobra.Command, opts *globalOptions) (*config.Config, *slog.Logger, io.Closer, error) {
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return nil, nil, nil, err
	}

	log, closer, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, log, closer, nil
}

// connect dials the configured server and logs in.
func connect(ctx context.Context, cfg *config.Config, log *slog.Logger, m rcon.Metrics) (*rcon.Session, error) {
	if cfg.Server.Password == "" {
		return nil, errors.New("no RCON password: use --password or set RCON_SERVER_PASSWORD")
	}

	s, err := rcon.Dial(ctx, cfg.Server.Address, cfg.Server.Password, rcon.ClientConfig{
		Timeout:                cfg.Client.Timeout,
		DialTimeout:            cfg.Client.DialTimeout,
		Logger:                 log,
		Metrics:                m,
		LogOutboundAuthPackets: cfg.Client.LogOutboundAuthPackets,
	})
	if err != nil {
		log.Error("login failed", logger.KeyAddress, cfg.Server.Address, logger.KeyError, err)
		return nil, err
	}

	log.Info("connected", logger.KeyAddress, cfg.Server.Address, logger.KeySessionID, s.ID().String())
	return s, nil
}
