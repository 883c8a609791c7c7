package relay

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "railphone"

// Media frame results.
const (
	FrameForwarded = "forwarded"
	FrameDropped   = "dropped"
	FrameUnrouted  = "unrouted"
)

type Metrics struct {
	StationsOnline prometheus.Gauge
	Signals        *prometheus.CounterVec
	MediaFrames    *prometheus.CounterVec
}

// NewMetrics registers the relay collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		StationsOnline: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "stations_online",
			Help:      "Stations currently logged in.",
		}),
		Signals: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "signals_total",
			Help:      "Inbound signaling messages by type.",
		}, []string{"type"}),
		MediaFrames: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "media_frames_total",
			Help:      "Media frames handled by the stream relay.",
		}, []string{"result"}),
	}
}
