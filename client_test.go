package rcon_test

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rcon "github.com/schultz-is/rconsole"
	"github.com/schultz-is/rconsole/internal/testutil/rcontest"
)

func TestDial(t *testing.T) {
	t.Run(
		"successful auth and exec",
		func(t *testing.T) {
			srv := rcontest.NewServer(t, "password goes here", strings.ToUpper)

			s, err := rcon.Dial(context.Background(), srv.Addr(), "password goes here", rcon.ClientConfig{})
			require.NoError(t, err)
			defer s.Close()

			assert.Equal(t, rcon.StateAuthenticated, s.State())

			out, err := s.Execute(context.Background(), "nothing to see here")
			require.NoError(t, err)
			assert.Equal(t, "NOTHING TO SEE HERE", out)

			reqs := srv.Requests()
			require.Len(t, reqs, 2)
			assert.Equal(t, int32(1), reqs[0].ID)
			assert.Equal(t, int32(rcon.PacketTypeAuth), reqs[0].Type)
			assert.Equal(t, int32(2), reqs[1].ID)
			assert.Equal(t, int32(rcon.PacketTypeExecCommand), reqs[1].Type)
		},
	)

	t.Run(
		"wrong password",
		func(t *testing.T) {
			srv := rcontest.NewServer(t, "right", nil)

			s, err := rcon.Dial(context.Background(), srv.Addr(), "wrong", rcon.ClientConfig{})
			require.ErrorIs(t, err, rcon.ErrAuthenticationFailed)
			assert.Nil(t, s)
		},
	)

	t.Run(
		"nothing listening",
		func(t *testing.T) {
			ln, err := net.Listen("tcp", "127.0.0.1:0")
			require.NoError(t, err)
			addr := ln.Addr().String()
			require.NoError(t, ln.Close())

			_, err = rcon.Dial(context.Background(), addr, "pw", rcon.ClientConfig{DialTimeout: time.Second})
			var ce *rcon.ConnectionError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, addr, ce.Address)
		},
	)
}

func TestConnTransport(t *testing.T) {
	t.Run(
		"read from a closed conn",
		func(t *testing.T) {
			cc, sc := net.Pipe()
			defer cc.Close()

			s := rcon.NewSession(rcon.NewConnTransport(cc), rcon.ClientConfig{})

			go func() {
				var req rcon.Packet
				_, _ = req.ReadFrom(sc)
				_ = sc.Close()
			}()

			err := s.Login(context.Background(), "pw")
			require.ErrorIs(t, err, rcon.ErrConnectionClosed)
			assert.Equal(t, rcon.StateDisconnected, s.State())
		},
	)

	t.Run(
		"write to a closed conn",
		func(t *testing.T) {
			cc, sc := net.Pipe()
			defer sc.Close()

			tr := rcon.NewConnTransport(cc)
			require.NoError(t, tr.Close())

			s := rcon.NewSession(tr, rcon.ClientConfig{})
			var te *rcon.TransportError
			require.ErrorAs(t, s.Login(context.Background(), "pw"), &te)
			assert.Equal(t, "send", te.Op)
		},
	)

	t.Run(
		"request timeout",
		func(t *testing.T) {
			cc, sc := net.Pipe()
			defer func() {
				_ = cc.Close()
				_ = sc.Close()
			}()

			s := rcon.NewSession(rcon.NewConnTransport(cc), rcon.ClientConfig{Timeout: 50 * time.Millisecond})

			go func() {
				var req rcon.Packet
				_, _ = req.ReadFrom(sc)
				// Never answer.
			}()

			err := s.Login(context.Background(), "pw")
			require.Error(t, err)
			assert.True(t, errors.Is(err, context.DeadlineExceeded), "got %v", err)
		},
	)

	t.Run(
		"caller cancellation",
		func(t *testing.T) {
			cc, sc := net.Pipe()
			defer func() {
				_ = cc.Close()
				_ = sc.Close()
			}()

			s := rcon.NewSession(rcon.NewConnTransport(cc), rcon.ClientConfig{Timeout: -1})

			ctx, cancel := context.WithCancel(context.Background())
			go func() {
				var req rcon.Packet
				_, _ = req.ReadFrom(sc)
				cancel()
			}()

			err := s.Login(ctx, "pw")
			require.ErrorIs(t, err, context.Canceled)
		},
	)

	t.Run(
		"exchange over a pipe",
		func(t *testing.T) {
			cc, sc := net.Pipe()
			defer func() {
				_ = cc.Close()
				_ = sc.Close()
			}()

			s := rcon.NewSession(rcon.NewConnTransport(cc), rcon.ClientConfig{})

			go func() {
				for {
					var req rcon.Packet
					if _, err := req.ReadFrom(sc); err != nil {
						return
					}
					resp := rcon.Packet{ID: req.ID, Type: rcon.PacketTypeResponseValue, Body: []byte("pong")}
					if req.Type == rcon.PacketTypeAuth {
						resp.Type = rcon.PacketTypeAuthResponse
						resp.Body = nil
					}
					if _, err := resp.WriteTo(sc); err != nil {
						return
					}
				}
			}()

			require.NoError(t, s.Login(context.Background(), "pw"))
			out, err := s.Execute(context.Background(), "ping")
			require.NoError(t, err)
			assert.Equal(t, "pong", out)
		},
	)
}

// cancelingConn cancels a context from inside Read and records every read deadline, applying
// past deadlines slowly so a late cancellation callback overlaps the next call.
type cancelingConn struct {
	net.Conn

	cancel context.CancelFunc

	mu        sync.Mutex
	deadlines []time.Time
}

func (c *cancelingConn) Read(b []byte) (int, error) {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	return copy(b, "x"), nil
}

func (c *cancelingConn) SetReadDeadline(t time.Time) error {
	if !t.IsZero() && t.Before(time.Now()) {
		time.Sleep(20 * time.Millisecond)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deadlines = append(c.deadlines, t)
	return nil
}

func (c *cancelingConn) lastDeadline() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deadlines[len(c.deadlines)-1]
}

func TestConnTransport_CancellationDoesNotLeakIntoNextCall(t *testing.T) {
	for i := 0; i < 20; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		conn := &cancelingConn{cancel: cancel}
		tr := rcon.NewConnTransport(conn)

		buf := make([]byte, 8)
		_, err := tr.Receive(ctx, buf)
		require.NoError(t, err)

		_, err = tr.Receive(context.Background(), buf)
		require.NoError(t, err)

		time.Sleep(50 * time.Millisecond)
		assert.True(t, conn.lastDeadline().IsZero(), "stale deadline %v left on the conn", conn.lastDeadline())
	}
}
