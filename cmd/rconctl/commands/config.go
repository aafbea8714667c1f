// Copyright 2024 Matt Schultz <schultz@sent.com>. All rights reserved.
// Use of this source code is governed by an ISC license that can be found in the LICENSE file.

package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/schultz-is/rconsole/internal/config"
)

func newConfigCmd(opts *globalOptions) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  `Create and inspect the rconctl configuration file.`,
	}

	configCmd.AddCommand(newConfigInitCmd(opts))
	configCmd.AddCommand(newConfigShowCmd(opts))

	return configCmd
}

func newConfigInitCmd(opts *globalOptions) *cobra.Command {
	var (
		force  bool
		format string
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default configuration file",
		Long: `Write a configuration file holding the default settings.

The file goes to --config when given, otherwise to the default location.
The password is never written; supply it with RCON_SERVER_PASSWORD or --password.`,
		Example: `  rconctl config init
  rconctl config init --format toml --config ./rconctl.toml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			format = strings.ToLower(format)
			if format != "yaml" && format != "toml" {
				return fmt.Errorf("unsupported format %q: use yaml or toml", format)
			}

			path := opts.configFile
			if path == "" {
				path = strings.TrimSuffix(config.GetDefaultConfigPath(), filepath.Ext(config.GetDefaultConfigPath())) + "." + format
			}

			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("config file already exists at %s\n\nUse --force to overwrite", path)
			}

			if err := config.SaveConfig(config.GetDefaultConfig(), path); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Configuration written to %s\n", path)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing config file")
	cmd.Flags().StringVar(&format, "format", "yaml", "file format when --config is not given: yaml or toml")

	return cmd
}

func newConfigShowCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Long:  `Print the configuration after merging the file, environment and flags. The password is masked.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}

			password := "(unset)"
			if cfg.Server.Password != "" {
				password = "********"
			}

			table := tablewriter.NewWriter(cmd.OutOrStdout())
			table.SetHeader([]string{"Key", "Value"})
			table.SetAutoWrapText(false)
			table.SetBorder(false)
			table.AppendBulk([][]string{
				{"logging.level", cfg.Logging.Level},
				{"logging.format", cfg.Logging.Format},
				{"logging.output", cfg.Logging.Output},
				{"server.address", cfg.Server.Address},
				{"server.password", password},
				{"client.timeout", cfg.Client.Timeout.String()},
				{"client.dial_timeout", cfg.Client.DialTimeout.String()},
				{"client.log_outbound_auth_packets", strconv.FormatBool(cfg.Client.LogOutboundAuthPackets)},
				{"metrics.enabled", strconv.FormatBool(cfg.Metrics.Enabled)},
				{"metrics.address", cfg.Metrics.Address},
			})
			table.Render()
			return nil
		},
	}
}
