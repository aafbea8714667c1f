// Copyright 2024 Matt Schultz <schultz@sent.com>. All rights reserved.
// Use of this source code is governed by an ISC license that can be found in the LICENSE file.

package rcon

import "time"

// Metrics receives measurements from a [Session]. A nil Metrics disables collection.
type Metrics interface {
	// ObserveRequest records one completed or failed exchange. kind is "auth" or "exec".
	ObserveRequest(kind string, duration time.Duration, err error)

	// ObserveResponse records the number of reads and payload bytes of an assembled response.
	ObserveResponse(fragments int, bytes int)
}

const (
	requestKindAuth = "auth"
	requestKindExec = "exec"
)

func observeRequest(m Metrics, kind string, start time.Time, err error) {
	if m != nil {
		m.ObserveRequest(kind, time.Since(start), err)
	}
}

func observeResponse(m Metrics, fragments int, bytes int) {
	if m != nil {
		m.ObserveResponse(fragments, bytes)
	}
}
