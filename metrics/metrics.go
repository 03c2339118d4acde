// Package metrics counts what the capture pipeline does. Each Metrics
// value owns a private registry so tests and multiple controllers do
// not collide.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	Registry *prometheus.Registry

	// Capture
	FramesCaptured prometheus.Counter
	FramesDropped  prometheus.Counter
	TailSamples    prometheus.Counter

	// Streaming
	FramesSent      prometheus.Counter
	Events          *prometheus.CounterVec
	MalformedEvents prometheus.Counter

	// Sessions
	SessionsStarted prometheus.Counter
	SessionsFailed  *prometheus.CounterVec
	ActiveSessions  prometheus.Gauge

	// Batch
	Uploads        *prometheus.CounterVec
	UploadDuration prometheus.Histogram
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		FramesCaptured: factory.NewCounter(prometheus.CounterOpts{
			Name: "podium_frames_captured_total",
			Help: "Audio frames produced by the capture pipeline",
		}),
		FramesDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "podium_frames_dropped_total",
			Help: "Audio frames dropped because the send queue was full",
		}),
		TailSamples: factory.NewCounter(prometheus.CounterOpts{
			Name: "podium_tail_samples_discarded_total",
			Help: "Samples left in a partial frame when a session stopped",
		}),

		FramesSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "podium_frames_sent_total",
			Help: "Audio frames written to the streaming connection",
		}),
		Events: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "podium_events_received_total",
			Help: "Inbound events by type",
		}, []string{"type"}),
		MalformedEvents: factory.NewCounter(prometheus.CounterOpts{
			Name: "podium_events_malformed_total",
			Help: "Inbound messages that could not be decoded",
		}),

		SessionsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "podium_sessions_started_total",
			Help: "Capture sessions that became active",
		}),
		SessionsFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "podium_sessions_failed_total",
			Help: "Capture sessions that ended or failed to start with an error",
		}, []string{"reason"}),
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "podium_active_sessions",
			Help: "1 while a capture session is active",
		}),

		Uploads: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "podium_batch_uploads_total",
			Help: "Batch uploads by outcome",
		}, []string{"outcome"}),
		UploadDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "podium_batch_upload_seconds",
			Help:    "Time from upload start to transcript",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
		}),
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
