// Copyright 2024 Matt Schultz <schultz@sent.com>. All rights reserved.
// Use of this source code is governed by an ISC license that can be found in the LICENSE file.

package rcon

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// HeaderSize is the number of bytes occupied by the size, ID, and type fields at the start of
// every binary packet.
const HeaderSize = 4 + 4 + 4

// WrapperSize is the cumulative size of non-body bytes that contribute to calculation of the packet
// size that precedes a binary packet. Eight bytes are accounted for by the packet ID and type,
// while two bytes are accounted for by the null byte termination of the body and packet. The packet
// size itself is not included in the size calculation.
const WrapperSize = 8 + 2

// MaximumPacketSize is the largest value allowed for the packet size that precedes binary packets.
const MaximumPacketSize = 4096

const (
	// PacketTypeAuth represents a client authorization request packet. It indicates that the body
	// will contain the server password.
	PacketTypeAuth = 3

	// PacketTypeAuthResponse represents a server authorization response packet. If authorization
	// failed, the packet ID will have a value of -1 rather than that of the matching client request
	// packet.
	PacketTypeAuthResponse = 2

	// PacketTypeExecCommand represents a client request packet that contains a command to be executed
	// by the server. It shares its code with [PacketTypeAuthResponse]; which one a packet is depends
	// on the exchange in flight, never on the type field alone.
	PacketTypeExecCommand = 2

	// PacketTypeResponseValue represents a server response packet that contains the output of a
	// server command initiated by a [PacketTypeExecCommand] client request packet.
	PacketTypeResponseValue = 0
)

// AuthFailedID is the packet ID a server answers an authorization request with when the password
// was rejected.
const AuthFailedID = -1

// Packet is a singular RCON protocol packet, either as a request from a client or a response from
// a server.
type Packet struct {
	// ID is a field chosen by the client which can be used to correlate request packets with
	// response packets. The singular case where this response field will not match the request
	// packet is auth failure, where it will have a value of [AuthFailedID].
	ID int32

	// Type indicates the purpose of the packet. Its value should always be one of [PacketTypeAuth],
	// [PacketTypeAuthResponse], [PacketTypeExecCommand], or [PacketTypeResponseValue].
	Type int32

	// Body contains the RCON password, the command to be executed, or the server's response to a
	// request. It's possible that the body is empty.
	Body []byte
}

// Header is the fixed-size prefix of a binary packet.
type Header struct {
	// Length is the declared packet size: everything after the size field itself.
	Length int32
	ID     int32
	Type   int32
}

// PayloadLen returns the number of body bytes the header declares.
func (h Header) PayloadLen() int {
	return int(h.Length) - WrapperSize
}

// Encode builds the wire form of a packet with the given id, type, and text payload. It fails with
// [ErrPacketTooLarge] when the packet would exceed [MaximumPacketSize]; requests are never split.
func Encode(id, typ int32, payload string) ([]byte, error) {
	return appendPacket(nil, id, typ, []byte(payload))
}

// appendPacket appends the encoded packet to dst, reusing its capacity.
func appendPacket(dst []byte, id, typ int32, body []byte) ([]byte, error) {
	size := len(body) + WrapperSize
	if size > MaximumPacketSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrPacketTooLarge, size)
	}

	dst = binary.LittleEndian.AppendUint32(dst, uint32(int32(size)))
	dst = binary.LittleEndian.AppendUint32(dst, uint32(id))
	dst = binary.LittleEndian.AppendUint32(dst, uint32(typ))
	dst = append(dst, body...)
	dst = append(dst, 0, 0)
	return dst, nil
}

// DecodeHeader reads the size, ID, and type fields from the first [HeaderSize] bytes of b. It
// fails with [ErrMalformedHeader] when fewer bytes are available.
func DecodeHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, fmt.Errorf("%w: have %d bytes, need %d", ErrMalformedHeader, len(b), HeaderSize)
	}
	return Header{
		Length: int32(binary.LittleEndian.Uint32(b[0:4])),
		ID:     int32(binary.LittleEndian.Uint32(b[4:8])),
		Type:   int32(binary.LittleEndian.Uint32(b[8:12])),
	}, nil
}

// Size returns the value written to the size field preceding the packet.
func (p Packet) Size() int32 {
	return int32(len(p.Body) + WrapperSize)
}

// MarshalBinary encodes the receiving [Packet] into binary form and returns the result. This
// satisfies the [encoding.BinaryMarshaler] interface.
func (p Packet) MarshalBinary() ([]byte, error) {
	return appendPacket(make([]byte, 0, len(p.Body)+WrapperSize+4), p.ID, p.Type, p.Body)
}

// WriteTo writes a binary representation of the packet to [io.Writer] w. This method satisfies the
// [io.WriterTo] interface.
func (p Packet) WriteTo(w io.Writer) (int64, error) {
	bs, err := p.MarshalBinary()
	if err != nil {
		return 0, err
	}
	n, err := w.Write(bs)

	return int64(n), err
}

// UnmarshalBinary decodes the binary encoded packet b into the receiving [Packet]. Trailing bytes
// beyond the declared size are an error. This satisfies the [encoding.BinaryUnmarshaler]
// interface.
func (p *Packet) UnmarshalBinary(b []byte) error {
	r := bytes.NewReader(b)
	if _, err := p.ReadFrom(r); err != nil {
		return err
	}
	if r.Len() != 0 {
		return fmt.Errorf("rcon: %d bytes beyond declared packet size", r.Len())
	}
	return nil
}

// ReadFrom reads exactly one binary packet into the receiving [Packet] instance. This method
// satisfies the [io.ReaderFrom] interface.
func (p *Packet) ReadFrom(r io.Reader) (int64, error) {
	n := int64(0)

	var hdr [HeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:4]); err != nil {
		return n, err
	}
	n += 4

	packetSize := int32(binary.LittleEndian.Uint32(hdr[:4]))
	if packetSize < WrapperSize {
		return n, fmt.Errorf("%w: size %d", ErrPacketTooSmall, packetSize)
	}
	if packetSize > MaximumPacketSize {
		return n, fmt.Errorf("%w: size %d", ErrPacketTooLarge, packetSize)
	}

	if _, err := io.ReadFull(r, hdr[4:]); err != nil {
		return n, err
	}
	n += 8

	h, err := DecodeHeader(hdr[:])
	if err != nil {
		return n, err
	}
	p.ID = h.ID
	p.Type = h.Type

	// Body and terminator are read together.
	rest := make([]byte, h.PayloadLen()+2)
	m, err := io.ReadFull(r, rest)
	n += int64(m)
	if err != nil {
		return n, err
	}

	if rest[len(rest)-2] != 0 || rest[len(rest)-1] != 0 {
		return n, ErrBadTerminator
	}
	p.Body = rest[:len(rest)-2]

	return n, nil
}

// EqualTo determines if the provided Packet content matches the receiving Packet content.
func (p Packet) EqualTo(p2 Packet) bool {
	switch {
	case p.ID != p2.ID:
		return false
	case p.Type != p2.Type:
		return false
	case !bytes.Equal(p.Body, p2.Body):
		return false
	}
	return true
}

// Clone returns a deep copy of the receiving packet.
func (p Packet) Clone() Packet {
	p.Body = bytes.Clone(p.Body)
	return p
}
