// Copyright 2024 Matt Schultz <schultz@sent.com>. All rights reserved.
// Use of this source code is governed by an ISC license that can be found in the LICENSE file.

package rcon_test

import (
	"bytes"
	"encoding/hex"
	"math"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rcon "github.com/schultz-is/rconsole"
)

func TestPacketBinaryFormatting(t *testing.T) {
	ps := []rcon.Packet{
		{}, // Empty packet
		{ID: 1, Type: rcon.PacketTypeAuth, Body: []byte("password")},                                   // Example authorization request
		{ID: 2, Type: rcon.PacketTypeAuthResponse},                                                     // Example successful authorization response
		{ID: -1, Type: rcon.PacketTypeAuthResponse},                                                    // Example unsuccessful authorization response
		{ID: 3, Type: rcon.PacketTypeExecCommand, Body: []byte("info")},                                // Example command request
		{ID: 4, Type: rcon.PacketTypeResponseValue, Body: []byte("server info goes here")},             // Example command response
		{ID: math.MaxInt32, Type: math.MaxInt32, Body: make([]byte, rcon.MaximumPacketSize-rcon.WrapperSize)}, // Largest packet allowed, non-standard type field
	}

	for _, p := range ps {
		b, err := p.MarshalBinary()
		require.NoError(t, err, "Packet[%#v].MarshalBinary()", p)

		var buf bytes.Buffer
		n, err := p.WriteTo(&buf)
		require.NoError(t, err, "Packet[%#v].WriteTo()", p)
		require.Equal(t, b, buf.Bytes(), "MarshalBinary and WriteTo disagree")

		// The standalone encoder produces the same bytes.
		e, err := rcon.Encode(p.ID, p.Type, string(p.Body))
		require.NoError(t, err)
		require.Equal(t, b, e, "Encode and MarshalBinary disagree")

		// The declared length matches what actually follows the size field.
		h, err := rcon.DecodeHeader(b)
		require.NoError(t, err)
		assert.Equal(t, len(b)-4, int(h.Length))
		assert.Equal(t, p.Size(), h.Length)
		assert.Equal(t, p.ID, h.ID)
		assert.Equal(t, p.Type, h.Type)
		assert.Equal(t, len(p.Body), h.PayloadLen())

		var p2 rcon.Packet
		require.NoError(t, p2.UnmarshalBinary(b))

		var p3 rcon.Packet
		n3, err := p3.ReadFrom(&buf)
		require.NoError(t, err)

		assert.True(t, p.EqualTo(p2), "UnmarshalBinary(MarshalBinary(%#v)) = %#v", p, p2)
		assert.Equal(t, n, n3)
		assert.True(t, p.EqualTo(p3), "ReadFrom(WriteTo(%#v)) = %#v", p, p3)
	}

	// Disallow packets above the maximum packet size defined by the protocol.
	p := rcon.Packet{Body: make([]byte, rcon.MaximumPacketSize)}
	_, err := p.MarshalBinary()
	assert.ErrorIs(t, err, rcon.ErrPacketTooLarge)
	_, err = rcon.Encode(1, rcon.PacketTypeExecCommand, string(p.Body))
	assert.ErrorIs(t, err, rcon.ErrPacketTooLarge)

	bss := []string{
		"d6ffffff",                             // Negative packet size
		"09000000",                             // Packet size smaller than allowed by protocol
		"01100000",                             // Packet size larger than allowed by protocol
		"0a00000011",                           // Packet shorter than provided size
		"0a0000001111111122222222333333330000", // Packet longer than provided size
		"0a00000011111111222222223333",         // Missing double null byte termination
	}

	for _, bs := range bss {
		b, err := hex.DecodeString(bs)
		require.NoError(t, err, "invalid hex string in test table: %s", bs)

		var p rcon.Packet
		assert.Error(t, p.UnmarshalBinary(b), "Packet.UnmarshalBinary(%s) succeeded incorrectly", bs)
	}
}

func TestEncodeAuthPacket(t *testing.T) {
	got, err := rcon.Encode(1, rcon.PacketTypeAuth, "secret")
	require.NoError(t, err)

	want := []byte{
		16, 0, 0, 0,
		1, 0, 0, 0,
		3, 0, 0, 0,
		's', 'e', 'c', 'r', 'e', 't',
		0, 0,
	}
	assert.Equal(t, want, got)
}

func TestDecodeHeader(t *testing.T) {
	h, err := rcon.DecodeHeader([]byte{0x0e, 0, 0, 0, 0xff, 0xff, 0xff, 0xff, 2, 0, 0, 0, 'x'})
	require.NoError(t, err)
	assert.Equal(t, rcon.Header{Length: 14, ID: -1, Type: rcon.PacketTypeAuthResponse}, h)

	for _, n := range []int{0, 4, 11} {
		_, err := rcon.DecodeHeader(make([]byte, n))
		assert.ErrorIs(t, err, rcon.ErrMalformedHeader, "DecodeHeader(%d bytes)", n)
	}
}

func TestPacketEqualTo(t *testing.T) {
	p := rcon.Packet{}
	assert.True(t, p.EqualTo(p), "empty packet differs from itself")

	p = rcon.Packet{
		ID:   12345,
		Type: rcon.PacketTypeResponseValue,
		Body: []byte("some command response value goes here..."),
	}
	assert.True(t, p.EqualTo(p), "packet differs from itself")

	p2 := p.Clone()
	assert.True(t, p.EqualTo(p2), "packet differs from its clone")

	p2.Body[0] = 'S'
	assert.False(t, p.EqualTo(p2), "Packet.Clone() shares its body with the source packet")
	p2.Body[0] = p.Body[0]

	p2.ID = p.ID - 1
	assert.False(t, p.EqualTo(p2), "different IDs compared equal")

	p2.ID = p.ID
	p2.Type = p.Type + 1
	assert.False(t, p.EqualTo(p2), "different types compared equal")

	p2.Type = p.Type
	p2.Body = append(p2.Body, 'X')
	assert.False(t, p.EqualTo(p2), "different bodies compared equal")
}

func BenchmarkMarshalBinary(b *testing.B) {
	bodySizes := []int{
		0,
		5,
		10,
		15,
		25,
		125,
		250,
		500,
		1000,
		2000,
		rcon.MaximumPacketSize - rcon.WrapperSize,
	}

	for _, bodySize := range bodySizes {
		b.Run(
			strconv.Itoa(bodySize),
			func(b *testing.B) {
				for n := 0; n < b.N; n++ {
					p := rcon.Packet{
						Body: make([]byte, bodySize),
					}
					bs, err := p.MarshalBinary()
					if err != nil {
						b.Fatal(err)
					}
					b.SetBytes(int64(len(bs)))
				}
			},
		)
	}
}
