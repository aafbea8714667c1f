// Copyright 2024 Matt Schultz <schultz@sent.com>. All rights reserved.
// Use of this source code is governed by an ISC license that can be found in the LICENSE file.

package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/schultz-is/rconsole/internal/logger"
)

func newExecCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "exec <command> [command...]",
		Short: "Run one or more console commands",
		Long: `Connect, log in, and run each argument as a separate console command, in order.
Every reply is printed on its own line. The first failing command stops the run.`,
		Example: `  rconctl exec list
  rconctl -a mc.example.com:25575 exec "say hello" "time set day"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, closer, err := setup(cmd, opts)
			if err != nil {
				return err
			}
			defer closer.Close()

			s, err := connect(cmd.Context(), cfg, log, nil)
			if err != nil {
				return err
			}
			defer s.Close()

			for _, command := range args {
				out, err := s.Execute(cmd.Context(), command)
				if err != nil {
					log.Error("command failed", logger.KeyCommand, command, logger.KeyError, err)
					return fmt.Errorf("%s: %w", command, err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), out)
			}
			return nil
		},
	}
}
