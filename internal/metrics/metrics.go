// Copyright 2024 Matt Schultz <schultz@sent.com>. All rights reserved.
// Use of this source code is governed by an ISC license that can be found in the LICENSE file.

// Package metrics records RCON session activity as Prometheus metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	rcon "github.com/schultz-is/rconsole"
)

var _ rcon.Metrics = (*Collector)(nil)

// Collector is the Prometheus implementation of the session metrics hook.
type Collector struct {
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	fragments       prometheus.Histogram
	responseBytes   prometheus.Histogram
}

// New registers the RCON collectors with reg.
func New(reg prometheus.Registerer) *Collector {
	return &Collector{
		requests: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "rcon_requests_total",
				Help: "Total number of RCON exchanges by kind and status",
			},
			[]string{"kind", "status"}, // kind: "auth", "exec"; status: "ok", "error"
		),
		requestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "rcon_request_duration_seconds",
				Help: "Duration of RCON request and response round trips",
				Buckets: []float64{
					0.001, // 1ms - loopback
					0.005,
					0.01,
					0.05,
					0.1,
					0.5,
					1,
					5,
					15, // default client timeout
				},
			},
			[]string{"kind"},
		),
		fragments: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name:    "rcon_response_fragments",
				Help:    "Number of reads needed to assemble a response",
				Buckets: []float64{1, 2, 3, 4, 8, 16},
			},
		),
		responseBytes: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name:    "rcon_response_bytes",
				Help:    "Distribution of assembled response payload sizes",
				Buckets: prometheus.ExponentialBuckets(64, 4, 7), // 64B .. 256KiB
			},
		),
	}
}

// ObserveRequest records one exchange.
func (c *Collector) ObserveRequest(kind string, duration time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	c.requests.WithLabelValues(kind, status).Inc()
	c.requestDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// ObserveResponse records the shape of an assembled response.
func (c *Collector) ObserveResponse(fragments int, bytes int) {
	c.fragments.Observe(float64(fragments))
	c.responseBytes.Observe(float64(bytes))
}
