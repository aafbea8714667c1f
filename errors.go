// Copyright 2024 Matt Schultz <schultz@sent.com>. All rights reserved.
// Use of this source code is governed by an ISC license that can be found in the LICENSE file.

package rcon

import (
	"errors"
	"fmt"
)

var (
	// ErrPacketTooLarge is returned when a packet's size field would exceed [MaximumPacketSize].
	ErrPacketTooLarge = errors.New("rcon: packet too large")

	// ErrPacketTooSmall is returned when a packet's size field is below [WrapperSize].
	ErrPacketTooSmall = errors.New("rcon: packet too small")

	// ErrBadTerminator is returned when a packet does not end with two zero bytes.
	ErrBadTerminator = errors.New("rcon: packet incorrectly terminated")

	// ErrMalformedHeader is returned when a header is missing bytes or declares a payload that is
	// inconsistent with the bytes actually received.
	ErrMalformedHeader = errors.New("rcon: malformed header")

	// ErrTruncatedHeader is returned when a read from the transport yields fewer than
	// [HeaderSize] bytes.
	ErrTruncatedHeader = errors.New("rcon: truncated header")

	// ErrConnectionClosed is returned when the peer closes the connection before a complete
	// response has been assembled.
	ErrConnectionClosed = errors.New("rcon: connection closed")

	// ErrAuthenticationFailed is returned when the server rejects the password.
	ErrAuthenticationFailed = errors.New("rcon: authentication failed")
)

// CorrelationMismatchError is returned when a response ID does not match the ID of the request
// that was just sent. The session that produced it is out of step with the server.
type CorrelationMismatchError struct {
	Expected int32
	Got      int32
}

func (e *CorrelationMismatchError) Error() string {
	return fmt.Sprintf("rcon: mismatched response id (expected %d, got %d)", e.Expected, e.Got)
}

// TransportError wraps a failure of the underlying byte stream.
type TransportError struct {
	Op  string // "send" or "receive"
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("rcon: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ConnectionError is returned by [Dial] when the transport could not be opened.
type ConnectionError struct {
	Address string
	Err     error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("rcon: connect %s: %v", e.Address, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// StateError is returned when an operation is attempted from a session state that does not
// permit it.
type StateError struct {
	Op    string
	State State
}

func (e *StateError) Error() string {
	return fmt.Sprintf("rcon: cannot %s in state %s", e.Op, e.State)
}
