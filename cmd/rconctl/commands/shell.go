// Copyright 2024 Matt Schultz <schultz@sent.com>. All rights reserved.
// Use of this source code is governed by an ISC license that can be found in the LICENSE file.

package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	rcon "github.com/schultz-is/rconsole"
	"github.com/schultz-is/rconsole/internal/config"
	"github.com/schultz-is/rconsole/internal/logger"
	"github.com/schultz-is/rconsole/internal/metrics"
)

const shellPrompt = "rcon> "

func newShellCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Interactive console session",
		Long: `Connect, log in, then read commands from standard input one line at a time and
print each reply. The session ends at end of input or on "exit" or "quit".

When metrics.enabled is set, Prometheus metrics are served on metrics.address
for as long as the shell runs.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, closer, err := setup(cmd, opts)
			if err != nil {
				return err
			}
			defer closer.Close()

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			var m rcon.Metrics
			if cfg.Metrics.Enabled {
				collector, err := startMetrics(ctx, cfg, log)
				if err != nil {
					return err
				}
				m = collector
			}

			s, err := connect(ctx, cfg, log, m)
			if err != nil {
				return err
			}
			defer s.Close()

			return runShell(ctx, cmd, s, log)
		},
	}
}

// runShell reads one command per line until EOF, an exit keyword, or a failure that leaves the
// session unusable.
func runShell(ctx context.Context, cmd *cobra.Command, s *rcon.Session, log *slog.Logger) error {
	out := cmd.OutOrStdout()
	in := bufio.NewReader(cmd.InOrStdin())

	for {
		fmt.Fprint(cmd.ErrOrStderr(), shellPrompt)
		raw, readErr := in.ReadString('\n')
		if readErr != nil && !errors.Is(readErr, io.EOF) {
			return fmt.Errorf("reading input: %w", readErr)
		}
		if readErr != nil && raw == "" {
			fmt.Fprintln(cmd.ErrOrStderr())
			return nil
		}

		line := strings.TrimSpace(raw)
		switch line {
		case "":
			continue
		case "exit", "quit":
			return nil
		}

		reply, err := s.Execute(ctx, line)
		if err != nil {
			log.Error("command failed", logger.KeyCommand, line, logger.KeyError, err)
			if !errors.Is(err, rcon.ErrPacketTooLarge) {
				return fmt.Errorf("%s: %w", line, err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "error: %v\n", err)
		} else {
			fmt.Fprintln(out, reply)
		}

		if readErr != nil {
			fmt.Fprintln(cmd.ErrOrStderr())
			return nil
		}
	}
}

// startMetrics registers the client collectors and serves them until ctx ends.
func startMetrics(ctx context.Context, cfg *config.Config, log *slog.Logger) (*metrics.Collector, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.New(reg)

	srv, err := metrics.Listen(cfg.Metrics.Address, reg)
	if err != nil {
		return nil, fmt.Errorf("metrics listener: %w", err)
	}
	log.Info("serving metrics", logger.KeyAddress, srv.Addr())

	go func() {
		if err := srv.Serve(ctx); err != nil {
			log.Error("metrics server stopped", logger.KeyError, err)
		}
	}()
	return collector, nil
}
