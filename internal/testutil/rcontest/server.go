// Copyright 2024 Matt Schultz <schultz@sent.com>. All rights reserved.
// Use of this source code is governed by an ISC license that can be found in the LICENSE file.

// Package rcontest provides a scripted RCON server listening on loopback for tests.
package rcontest

import (
	"encoding/binary"
	"net"
	"sync"
	"testing"

	rcon "github.com/schultz-is/rconsole"
)

// Handler produces the reply body for a command.
type Handler func(command string) string

// Server accepts RCON connections on 127.0.0.1 and answers them until closed.
type Server struct {
	ln       net.Listener
	password string
	handler  Handler

	mu       sync.Mutex
	requests []rcon.Packet
	conns    []net.Conn
	closed   bool

	wg sync.WaitGroup
}

// NewServer starts a server that accepts password and answers commands with handler. It is closed
// when the test ends.
func NewServer(t testing.TB, password string, handler Handler) *Server {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("rcontest: listen: %v", err)
	}

	s := &Server{ln: ln, password: password, handler: handler}
	s.wg.Add(1)
	go s.serve()

	t.Cleanup(s.Close)
	return s
}

// Addr returns the host:port the server listens on.
func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

// Requests returns a copy of every packet received so far, across all connections.
func (s *Server) Requests() []rcon.Packet {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]rcon.Packet, len(s.requests))
	for i, p := range s.requests {
		out[i] = p.Clone()
	}
	return out
}

// Close stops accepting, drops open connections and waits for handlers to exit.
func (s *Server) Close() {
	_ = s.ln.Close()

	s.mu.Lock()
	s.closed = true
	for _, c := range s.conns {
		_ = c.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
}

func (s *Server) serve() {
	defer s.wg.Done()

	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			_ = conn.Close()
			return
		}
		s.conns = append(s.conns, conn)
		s.mu.Unlock()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer conn.Close()
			s.handle(conn)
		}()
	}
}

func (s *Server) handle(conn net.Conn) {
	for {
		var req rcon.Packet
		if _, err := req.ReadFrom(conn); err != nil {
			return
		}

		s.mu.Lock()
		s.requests = append(s.requests, req.Clone())
		s.mu.Unlock()

		var err error
		switch req.Type {
		case rcon.PacketTypeAuth:
			resp := rcon.Packet{ID: req.ID, Type: rcon.PacketTypeAuthResponse}
			if string(req.Body) != s.password {
				resp.ID = rcon.AuthFailedID
			}
			_, err = resp.WriteTo(conn)
		default:
			body := ""
			if s.handler != nil {
				body = s.handler(string(req.Body))
			}
			_, err = conn.Write(Fragments(req.ID, rcon.PacketTypeResponseValue, []byte(body)))
		}
		if err != nil {
			return
		}
	}
}

// Fragments lays body out the way a fragmenting server does for clients that read in
// [rcon.ReadBufferSize] chunks: every fragment but the last fills a whole read and carries no
// terminator, and the last fragment is a regular, short packet.
func Fragments(id, typ int32, body []byte) []byte {
	const full = rcon.ReadBufferSize - rcon.HeaderSize

	var out []byte
	for len(body) >= full {
		out = appendHeader(out, int32(full+rcon.WrapperSize), id, typ)
		out = append(out, body[:full]...)
		body = body[full:]
	}
	out = appendHeader(out, int32(len(body)+rcon.WrapperSize), id, typ)
	out = append(out, body...)
	return append(out, 0, 0)
}

func appendHeader(dst []byte, size, id, typ int32) []byte {
	dst = binary.LittleEndian.AppendUint32(dst, uint32(size))
	dst = binary.LittleEndian.AppendUint32(dst, uint32(id))
	return binary.LittleEndian.AppendUint32(dst, uint32(typ))
}
