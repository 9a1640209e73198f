package tuyalan

import (
	"time"

	"github.com/nexus-edge/tuyalan/metrics"
)

// MetricsFromRegistry adapts a metrics.Registry into the ConnMetrics hooks
// Connection.WithMetrics expects, so callers don't have to wire each
// counter by hand.
func MetricsFromRegistry(reg *metrics.Registry) *ConnMetrics {
	if reg == nil {
		return nil
	}
	return &ConnMetrics{
		FramesSent:        reg.FramesSent.Inc,
		FramesReceived:    reg.FramesReceived.Inc,
		DecodeFailures:    reg.DecodeFailures.Inc,
		HeartbeatFailures: reg.HeartbeatFailures.Inc,
		ResponseLatency: func(d time.Duration) {
			reg.ResponseLatency.Observe(d.Seconds())
		},
	}
}
