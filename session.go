// Copyright 2024 Matt Schultz <schultz@sent.com>. All rights reserved.
// Use of this source code is governed by an ISC license that can be found in the LICENSE file.

package rcon

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
)

// State is the position of a [Session] in the login handshake.
type State int

const (
	// StateDisconnected means there is no usable transport.
	StateDisconnected State = iota

	// StateAuthPending means the transport is open and no login has been attempted.
	StateAuthPending

	// StateAuthenticated means the server accepted the password and commands may be executed.
	StateAuthenticated

	// StateAuthFailed means the server rejected the password. It is terminal.
	StateAuthFailed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateAuthPending:
		return "auth-pending"
	case StateAuthenticated:
		return "authenticated"
	case StateAuthFailed:
		return "auth-failed"
	default:
		return "unknown"
	}
}

// Session is one authenticated conversation with an RCON server over a single transport.
//
// Exactly one request is outstanding at a time: a command's full response, including every
// fragment, is read before the next command is sent. Calls from several goroutines are serialized
// by the session, but nothing is pipelined; pool sessions if throughput matters.
//
// RCON does not specify any keep alive functionality, so a session may fail with
// [ErrConnectionClosed] or a [TransportError] when idle for an extended period.
type Session struct {
	id uuid.UUID

	// mu serializes request and response cycles.
	mu sync.Mutex

	transport   Transport
	state       State
	seq         int32
	buf         []byte
	reassembler *Reassembler

	timeout time.Duration
	logger  *slog.Logger
	metrics Metrics

	// logOutboundAuthPackets enables debug logging of outbound authorization packets, exposing
	// the server password in plaintext. It is off unless explicitly configured.
	logOutboundAuthPackets bool
}

// NewSession creates a [Session] that talks over t, configured by cfg. The session starts in
// [StateAuthPending]; call [Session.Login] before [Session.Execute].
func NewSession(t Transport, cfg ClientConfig) *Session {
	s := &Session{
		id:                     uuid.New(),
		transport:              t,
		state:                  StateAuthPending,
		buf:                    make([]byte, 0, MaximumPacketSize+4),
		reassembler:            NewReassembler(),
		timeout:                cfg.Timeout,
		logger:                 cfg.Logger,
		metrics:                cfg.Metrics,
		logOutboundAuthPackets: cfg.LogOutboundAuthPackets,
	}
	if t == nil {
		s.state = StateDisconnected
	}
	return s
}

// ID returns the random identifier attached to this session's log records.
func (s *Session) ID() uuid.UUID {
	return s.id
}

// State returns the current handshake state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// RequestID returns the ID of the most recently sent packet, or zero before anything was sent.
func (s *Session) RequestID() int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq
}

// Close closes the transport. The session cannot be used afterwards.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = StateDisconnected
	if s.transport == nil {
		return nil
	}
	return s.transport.Close()
}

// Login sends password to the server. It is only valid once, from [StateAuthPending]. When the
// server rejects the password the session moves to [StateAuthFailed] and [ErrAuthenticationFailed]
// is returned.
func (s *Session) Login(ctx context.Context, password string) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	defer func() { observeRequest(s.metrics, requestKindAuth, start, err) }()

	if s.state != StateAuthPending {
		return &StateError{Op: "login", State: s.state}
	}

	resp, err := s.roundTrip(ctx, PacketTypeAuth, password)
	if err != nil {
		return err
	}

	if resp.ID == AuthFailedID {
		s.state = StateAuthFailed
		s.log(ctx, slog.LevelWarn, "authentication rejected")
		return ErrAuthenticationFailed
	}

	s.state = StateAuthenticated
	s.log(ctx, slog.LevelDebug, "authenticated", slog.Int("request_id", int(s.seq)))
	return nil
}

// Execute sends command to the server and returns its reply. The response must carry the ID of the
// request just sent; otherwise a [CorrelationMismatchError] is returned and the session should be
// discarded.
func (s *Session) Execute(ctx context.Context, command string) (body string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	defer func() { observeRequest(s.metrics, requestKindExec, start, err) }()

	if s.state != StateAuthenticated {
		return "", &StateError{Op: "execute", State: s.state}
	}

	resp, err := s.roundTrip(ctx, PacketTypeExecCommand, command)
	if err != nil {
		return "", err
	}
	if resp.ID != s.seq {
		return "", &CorrelationMismatchError{Expected: s.seq, Got: resp.ID}
	}
	return resp.Body, nil
}

// roundTrip sends one packet and reads one reassembled response. Any failure other than a
// correlation mismatch leaves the session disconnected.
func (s *Session) roundTrip(ctx context.Context, typ int32, payload string) (Response, error) {
	if s.timeout >= 0 {
		timeout := s.timeout
		if timeout == 0 {
			timeout = DefaultClientTimeout
		}
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	// Oversized payloads are rejected before they consume a request ID.
	if size := len(payload) + WrapperSize; size > MaximumPacketSize {
		return Response{}, fmt.Errorf("%w: %d bytes", ErrPacketTooLarge, size)
	}

	var err error
	s.buf, err = appendPacket(s.buf[:0], s.nextSeq(), typ, []byte(payload))
	if err != nil {
		return Response{}, err
	}

	s.logPacket(ctx, "sending packet", typ, s.buf)
	if err := s.transport.Send(ctx, s.buf); err != nil {
		s.state = StateDisconnected
		return Response{}, &TransportError{Op: "send", Err: err}
	}

	resp, err := s.reassembler.ReadResponse(ctx, s.transport)
	if err != nil {
		s.state = StateDisconnected
		s.log(ctx, slog.LevelDebug, "response failed", slog.String("error", err.Error()))
		return Response{}, err
	}
	observeResponse(s.metrics, s.reassembler.Reads(), int(resp.Length))

	if s.logger != nil && s.logger.Enabled(ctx, slog.LevelDebug) {
		s.log(ctx, slog.LevelDebug, "received response",
			slog.Int("request_id", int(resp.ID)),
			slog.Int("type", int(resp.Type)),
			slog.Int("fragments", s.reassembler.Reads()),
			slog.Int("length", int(resp.Length)),
		)
	}
	return resp, nil
}

// nextSeq increments the receiving session's seq and returns it, wrapping around to 1 after
// [math.MaxInt32] so that neither zero nor [AuthFailedID] is ever sent.
func (s *Session) nextSeq() int32 {
	if s.seq < 0 || s.seq == math.MaxInt32 {
		s.seq = 0
	}
	s.seq++
	return s.seq
}

// logPacket sends a debug record containing the hex encoded packet to the session's logger. When
// the logger is nil or not level set for debug records, this function is essentially a NOP.
// Outbound authorization packets have their body and length obfuscated to keep the password out
// of logs, unless explicitly configured otherwise.
func (s *Session) logPacket(ctx context.Context, msg string, typ int32, wire []byte) {
	if s.logger == nil || !s.logger.Enabled(ctx, slog.LevelDebug) {
		return
	}

	if typ == PacketTypeAuth && !s.logOutboundAuthPackets {
		h, err := DecodeHeader(wire)
		if err != nil {
			s.log(ctx, slog.LevelError, "failed to decode packet for logging", slog.String("error", err.Error()))
			return
		}
		wire, err = Packet{ID: h.ID, Type: h.Type, Body: []byte("xxxxx")}.MarshalBinary()
		if err != nil {
			s.log(ctx, slog.LevelError, "failed to marshal packet for logging", slog.String("error", err.Error()))
			return
		}
	}

	s.log(ctx, slog.LevelDebug, msg, slog.String("packet", hex.EncodeToString(wire)))
}

func (s *Session) log(ctx context.Context, level slog.Level, msg string, attrs ...slog.Attr) {
	if s.logger == nil {
		return
	}
	s.logger.LogAttrs(ctx, level, msg, append(attrs, slog.String("session_id", s.id.String()))...)
}

// IsDesync reports whether err means the session no longer agrees with the server about framing or
// request IDs.
func IsDesync(err error) bool {
	var mismatch *CorrelationMismatchError
	return errors.As(err, &mismatch) ||
		errors.Is(err, ErrMalformedHeader) ||
		errors.Is(err, ErrTruncatedHeader)
}
