package rcon_test

import (
	"context"
	"sync"

	rcon "github.com/schultz-is/rconsole"
)

// scriptTransport replays canned reads and records what is sent. When respond is set, each sent
// packet queues the reads it returns.
type scriptTransport struct {
	mu       sync.Mutex
	reads    [][]byte
	readErrs []error
	sent     [][]byte
	receives int
	closed   bool
	sendErr  error
	respond  func(req rcon.Packet) [][]byte
}

func (t *scriptTransport) Send(_ context.Context, b []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.sendErr != nil {
		return t.sendErr
	}
	t.sent = append(t.sent, append([]byte(nil), b...))

	if t.respond != nil {
		var req rcon.Packet
		if err := req.UnmarshalBinary(b); err != nil {
			return err
		}
		t.reads = append(t.reads, t.respond(req)...)
	}
	return nil
}

func (t *scriptTransport) Receive(_ context.Context, b []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.receives++
	if len(t.readErrs) > 0 {
		err := t.readErrs[0]
		t.readErrs = t.readErrs[1:]
		return 0, err
	}
	if len(t.reads) == 0 {
		return 0, nil
	}

	n := copy(b, t.reads[0])
	if n < len(t.reads[0]) {
		t.reads[0] = t.reads[0][n:]
	} else {
		t.reads = t.reads[1:]
	}
	return n, nil
}

func (t *scriptTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

func (t *scriptTransport) sentPackets() []rcon.Packet {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]rcon.Packet, 0, len(t.sent))
	for _, b := range t.sent {
		var p rcon.Packet
		_ = p.UnmarshalBinary(b)
		out = append(out, p)
	}
	return out
}

// chunks splits b into reads of at most size bytes.
func chunks(b []byte, size int) [][]byte {
	var out [][]byte
	for len(b) > size {
		out = append(out, b[:size])
		b = b[size:]
	}
	return append(out, b)
}

func mustEncode(id, typ int32, body string) []byte {
	b, err := rcon.Encode(id, typ, body)
	if err != nil {
		panic(err)
	}
	return b
}

// echoResponder answers auth packets with their own ID and commands with "re: <command>".
func echoResponder(req rcon.Packet) [][]byte {
	if req.Type == rcon.PacketTypeAuth {
		return [][]byte{mustEncode(req.ID, rcon.PacketTypeAuthResponse, "")}
	}
	return [][]byte{mustEncode(req.ID, rcon.PacketTypeResponseValue, "re: "+string(req.Body))}
}
