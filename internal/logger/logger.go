// Copyright 2024 Matt Schultz <schultz@sent.com>. All rights reserved.
// Use of this source code is governed by an ISC license that can be found in the LICENSE file.

// Package logger builds the slog logger used by rconctl.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Standard field keys for structured logging.
const (
	KeyAddress   = "address"
	KeySessionID = "session_id"
	KeyCommand   = "command"
	KeyError     = "error"
)

// Config holds logger configuration
type Config struct {
	Level  string // DEBUG, INFO, WARN, ERROR
	Format string // text, json
	Output string // stdout, stderr, or file path
}

// ParseLevel converts a case-insensitive level name to a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return slog.LevelDebug, nil
	case "INFO", "":
		return slog.LevelInfo, nil
	case "WARN", "WARNING":
		return slog.LevelWarn, nil
	case "ERROR":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// New builds a logger from cfg. The returned closer releases a log file, if one was opened, and is
// a no-op otherwise.
func New(cfg Config) (*slog.Logger, io.Closer, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}

	var (
		out    io.Writer = os.Stderr
		closer io.Closer = nopCloser{}
	)
	switch strings.ToLower(cfg.Output) {
	case "", "stderr":
	case "stdout":
		out = os.Stdout
	default:
		// Assume it's a file path
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file %q: %w", cfg.Output, err)
		}
		out, closer = f, f
	}

	return NewWithWriter(out, cfg.Format, level), closer, nil
}

// NewWithWriter builds a logger writing to w in the given format ("text" or "json").
func NewWithWriter(w io.Writer, format string, level slog.Level) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	if strings.EqualFold(format, "json") {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	return slog.New(h)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
