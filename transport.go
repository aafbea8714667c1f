// Copyright 2024 Matt Schultz <schultz@sent.com>. All rights reserved.
// Use of this source code is governed by an ISC license that can be found in the LICENSE file.

package rcon

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"sync"
	"time"
)

// Transport is the byte stream a [Session] talks over. Receive reports an orderly close by
// returning zero bytes, with either a nil error or [io.EOF].
type Transport interface {
	Send(ctx context.Context, b []byte) error
	Receive(ctx context.Context, b []byte) (int, error)
	Close() error
}

// ConnTransport adapts a [net.Conn] to [Transport]. While the RCON protocol specifies TCP, any
// [net.Conn] works: a [crypto/tls.Conn] for servers that terminate TLS, a Unix socket when the
// server is local, or a wrapper the caller uses for logging and debugging.
//
// Context deadlines and cancellation are applied to the connection as I/O deadlines.
type ConnTransport struct {
	conn net.Conn
}

// NewConnTransport wraps conn. The conn should not be used elsewhere afterwards.
func NewConnTransport(conn net.Conn) *ConnTransport {
	return &ConnTransport{conn: conn}
}

// Send writes all of b to the connection.
func (t *ConnTransport) Send(ctx context.Context, b []byte) error {
	stop := t.bind(ctx, t.conn.SetWriteDeadline)
	defer stop()

	for len(b) > 0 {
		n, err := t.conn.Write(b)
		if err != nil {
			return ctxErr(ctx, err)
		}
		b = b[n:]
	}
	return nil
}

// Receive performs a single read into b.
func (t *ConnTransport) Receive(ctx context.Context, b []byte) (int, error) {
	stop := t.bind(ctx, t.conn.SetReadDeadline)
	defer stop()

	n, err := t.conn.Read(b)
	if errors.Is(err, io.EOF) {
		return n, nil
	}
	if err != nil {
		return n, ctxErr(ctx, err)
	}
	return n, nil
}

// Close closes the underlying connection.
func (t *ConnTransport) Close() error {
	return t.conn.Close()
}

// bind mirrors ctx onto the connection deadline set by setDeadline until the returned func runs.
func (t *ConnTransport) bind(ctx context.Context, setDeadline func(time.Time) error) func() {
	if d, ok := ctx.Deadline(); ok {
		_ = setDeadline(d)
	} else {
		_ = setDeadline(time.Time{})
	}

	var (
		mu   sync.Mutex
		done bool
	)
	unregister := context.AfterFunc(ctx, func() {
		mu.Lock()
		defer mu.Unlock()
		if done {
			return
		}
		// A deadline in the past unblocks any pending I/O immediately.
		_ = setDeadline(time.Unix(1, 0))
	})
	return func() {
		unregister()
		// Waits out a callback already running so its deadline cannot leak into the next call.
		mu.Lock()
		done = true
		mu.Unlock()
	}
}

// ctxErr prefers the context's error over the deadline error it caused.
func ctxErr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	// The conn deadline can fire a moment before the context's own timer.
	if errors.Is(err, os.ErrDeadlineExceeded) {
		if d, ok := ctx.Deadline(); ok && !time.Now().Before(d) {
			return context.DeadlineExceeded
		}
	}
	return err
}
