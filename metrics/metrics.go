package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the counters exported by a tracker run. All methods are safe
// on a nil receiver so components can take an optional *Metrics without
// guarding every increment.
type Metrics struct {
	framesRead      prometheus.Counter
	framesProcessed prometheus.Counter
	detections      prometheus.Counter
	missedBlobs     prometheus.Counter
	rowsWritten     prometheus.Counter
	frameSeconds    prometheus.Histogram

	registry *prometheus.Registry
}

// New creates a Metrics instance backed by its own Prometheus registry.
func New() *Metrics {
	m := &Metrics{
		framesRead: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pysolo_frames_read_total",
			Help: "Frames decoded from the video source.",
		}),
		framesProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pysolo_frames_processed_total",
			Help: "Frames fully processed across all monitored areas.",
		}),
		detections: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pysolo_detections_total",
			Help: "ROI frames that produced a qualifying blob centroid.",
		}),
		missedBlobs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pysolo_missed_detections_total",
			Help: "ROI frames with no qualifying blob; the previous point was retained.",
		}),
		rowsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pysolo_rows_written_total",
			Help: "Aggregated activity rows written to monitor files.",
		}),
		frameSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "pysolo_frame_processing_seconds",
			Help:    "Wall time spent processing a single frame across all ROIs.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		}),
		registry: prometheus.NewRegistry(),
	}
	m.registry.MustRegister(
		m.framesRead, m.framesProcessed, m.detections,
		m.missedBlobs, m.rowsWritten, m.frameSeconds,
	)
	return m
}

// Handler returns an HTTP handler exposing the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// FrameRead records one decoded frame.
func (m *Metrics) FrameRead() {
	if m != nil {
		m.framesRead.Inc()
	}
}

// FrameProcessed records one fully processed frame and its wall time.
func (m *Metrics) FrameProcessed(seconds float64) {
	if m != nil {
		m.framesProcessed.Inc()
		m.frameSeconds.Observe(seconds)
	}
}

// Detection records a ROI frame with a qualifying blob.
func (m *Metrics) Detection() {
	if m != nil {
		m.detections.Inc()
	}
}

// MissedDetection records a ROI frame where the previous point was retained.
func (m *Metrics) MissedDetection() {
	if m != nil {
		m.missedBlobs.Inc()
	}
}

// RowsWritten records n activity rows flushed to disk.
func (m *Metrics) RowsWritten(n int) {
	if m != nil {
		m.rowsWritten.Add(float64(n))
	}
}
