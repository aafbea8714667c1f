// Copyright 2024 Matt Schultz <schultz@sent.com>. All rights reserved.
// Use of this source code is governed by an ISC license that can be found in the LICENSE file.

package rcon

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
)

// ReadBufferSize is the fixed capacity of each read a [Reassembler] performs.
const ReadBufferSize = 4096

// maxFragmentPayload is the payload length of a read that fills the whole buffer. A fragment at
// least this long means the server has more to send.
const maxFragmentPayload = ReadBufferSize - HeaderSize

// Response is a complete logical response assembled from one or more reads.
type Response struct {
	// Length is the total number of payload bytes assembled.
	Length int32

	// ID and Type are taken from the header of the last fragment read.
	ID   int32
	Type int32

	// Body is the payload decoded as UTF-8. Invalid sequences are replaced with U+FFFD.
	Body string
}

// Reassembler rebuilds responses that a server may split across several reads.
//
// Each read goes into a fixed [ReadBufferSize] buffer and is expected to start with a packet
// header. Reading stops at the first fragment whose payload does not fill the buffer. A payload of
// exactly ReadBufferSize-HeaderSize bytes therefore always causes one more read, which servers
// speaking this framing account for.
type Reassembler struct {
	buf     []byte
	payload bytes.Buffer
	reads   int
}

// NewReassembler returns a Reassembler with its read buffer allocated.
func NewReassembler() *Reassembler {
	return &Reassembler{buf: make([]byte, ReadBufferSize)}
}

// Reads returns the number of transport reads performed by the most recent ReadResponse call.
func (r *Reassembler) Reads() int {
	return r.reads
}

// ReadResponse reads fragments from t until a short fragment ends the response.
func (r *Reassembler) ReadResponse(ctx context.Context, t Transport) (Response, error) {
	r.payload.Reset()
	r.reads = 0

	var last Header
	for {
		n, err := t.Receive(ctx, r.buf)
		r.reads++
		if n == 0 && (err == nil || errors.Is(err, io.EOF)) {
			return Response{}, ErrConnectionClosed
		}
		if err != nil && !errors.Is(err, io.EOF) {
			return Response{}, &TransportError{Op: "receive", Err: err}
		}
		if n < HeaderSize {
			return Response{}, fmt.Errorf("%w: read %d bytes", ErrTruncatedHeader, n)
		}

		h, err := DecodeHeader(r.buf[:n])
		if err != nil {
			return Response{}, err
		}
		payloadLen := h.PayloadLen()
		if payloadLen < 0 {
			return Response{}, fmt.Errorf("%w: declared size %d", ErrMalformedHeader, h.Length)
		}
		if HeaderSize+payloadLen > n {
			return Response{}, fmt.Errorf("%w: declared payload of %d bytes, read %d",
				ErrMalformedHeader, payloadLen, n-HeaderSize)
		}

		last = h
		r.payload.Write(r.buf[HeaderSize : HeaderSize+payloadLen])

		if payloadLen < maxFragmentPayload {
			break
		}
	}

	return Response{
		Length: int32(r.payload.Len()),
		ID:     last.ID,
		Type:   last.Type,
		Body:   lossyString(r.payload.Bytes()),
	}, nil
}

// lossyString decodes b as UTF-8, replacing ill-formed sequences rather than failing.
func lossyString(b []byte) string {
	out, _, err := transform.Bytes(runes.ReplaceIllFormed(), b)
	if err != nil {
		return string(bytes.ToValidUTF8(b, []byte("\uFFFD")))
	}
	return string(out)
}
