// Copyright 2024 Matt Schultz <schultz@sent.com>. All rights reserved.
// Use of this source code is governed by an ISC license that can be found in the LICENSE file.

package rcon

import (
	"context"
	"log/slog"
	"net"
	"time"
)

// DefaultClientTimeout is the default amount of time allowed for a session to make a request and
// response round trip.
const DefaultClientTimeout = 15 * time.Second

// ClientConfig contains settings to control [Session] instances.
type ClientConfig struct {
	// Timeout limits the amount of time a session can spend performing a request and response
	// round trip. A value of zero will inform the session to use the [DefaultClientTimeout]; a
	// negative value disables the limit, leaving cancellation entirely to the caller's context.
	Timeout time.Duration

	// DialTimeout limits how long [Dial] waits for the connection to open. Zero means no limit
	// beyond the context passed to Dial.
	DialTimeout time.Duration

	// Logger receives log entries from a session. Packets are logged at debug level.
	Logger *slog.Logger

	// Metrics receives request and response measurements. Nil disables collection.
	Metrics Metrics

	// LogOutboundAuthPackets is a flag that must be explicitly enabled when the session is created.
	// This field enables debug logging to include outbound authorization request packets, exposing
	// server passwords in plaintext. When this field is false (the default value,) outbound
	// authorization packets will be sanitized to hide both the password text and packet length.
	//
	// WARNING: Only enable this flag if you are aware of the implications and are willing to accept
	// the risks!
	LogOutboundAuthPackets bool
}

// Dial opens a TCP connection to address and logs in with password. The returned session is
// authenticated. A failure to connect is reported as a [*ConnectionError]; a rejected password as
// [ErrAuthenticationFailed], in which case the connection has already been closed.
func Dial(ctx context.Context, address, password string, cfg ClientConfig) (*Session, error) {
	d := net.Dialer{Timeout: cfg.DialTimeout}
	conn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, &ConnectionError{Address: address, Err: err}
	}

	s := NewSession(NewConnTransport(conn), cfg)
	s.log(ctx, slog.LevelDebug, "connected", slog.String("address", address))

	if err := s.Login(ctx, password); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}
