// Package metrics defines the Prometheus collectors a tuyalan deployment
// registers for connection lifecycle, frame counts, and scan results, per
// SPEC_FULL.md §4.5/§4.6.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry holds every collector this library's connection and scanner
// instrument. Metrics are pure observability: they never affect control
// flow.
type Registry struct {
	FramesSent        prometheus.Counter
	FramesReceived    prometheus.Counter
	DecodeFailures    prometheus.Counter
	HeartbeatFailures prometheus.Counter
	ResponseLatency   prometheus.Histogram
	ScanDevicesFound  prometheus.Gauge
	BreakerOpen       prometheus.Gauge
}

// NewRegistry constructs and registers a Registry's collectors on reg. Pass
// prometheus.DefaultRegisterer for typical single-process use.
func NewRegistry(reg prometheus.Registerer) *Registry {
	factory := promauto.With(reg)
	return &Registry{
		FramesSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "tuyalan_frames_sent_total",
			Help: "Total number of frames written to device connections.",
		}),
		FramesReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "tuyalan_frames_received_total",
			Help: "Total number of frames successfully decoded from device connections.",
		}),
		DecodeFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "tuyalan_decode_failures_total",
			Help: "Total number of frames dropped for failing to decode.",
		}),
		HeartbeatFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "tuyalan_heartbeat_failures_total",
			Help: "Total number of heartbeat round trips that failed.",
		}),
		ResponseLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "tuyalan_response_latency_seconds",
			Help:    "Round-trip latency of Connection.Send, from write to matching response.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		ScanDevicesFound: factory.NewGauge(prometheus.GaugeOpts{
			Name: "tuyalan_scan_devices_found",
			Help: "Number of devices discovered by the most recently completed scan.",
		}),
		BreakerOpen: factory.NewGauge(prometheus.GaugeOpts{
			Name: "tuyalan_breaker_open",
			Help: "1 if a device's reconnect circuit breaker is currently open, 0 otherwise.",
		}),
	}
}
