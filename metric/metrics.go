// Package metric provides the Prometheus metric set for the pipeline and
// the HTTP handler that exposes it.
package metric

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "axion"

// Metrics contains all pipeline metrics, registered on a private
// Prometheus registry together with the Go runtime collectors.
type Metrics struct {
	registry *prometheus.Registry

	// Pipeline metrics
	FramesProcessed prometheus.Counter
	FramesDropped   *prometheus.CounterVec
	TickDuration    prometheus.Histogram
	ModuleOutcomes  *prometheus.CounterVec
	ModuleDuration  *prometheus.HistogramVec

	// Accelerator and inference metrics
	SlotWait          prometheus.Histogram
	InferenceDuration prometheus.Histogram
	DetectionsDecoded prometheus.Histogram

	// Publishing metrics
	RecordsPublished *prometheus.CounterVec
	PublishErrors    prometheus.Counter

	// NATS metrics
	NATSConnected  prometheus.Gauge
	NATSReconnects prometheus.Counter
}

// New creates the metric set on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		FramesProcessed: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "pipeline",
				Name:      "frames_processed_total",
				Help:      "Total number of frames run through the module chain",
			},
		),

		FramesDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "pipeline",
				Name:      "frames_dropped_total",
				Help:      "Total number of ticks that produced no record",
			},
			[]string{"reason"},
		),

		TickDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "pipeline",
				Name:      "tick_duration_seconds",
				Help:      "Duration of one full frame tick",
				Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
			},
		),

		ModuleOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "module",
				Name:      "outcomes_total",
				Help:      "Per-module processing outcomes by status",
			},
			[]string{"module", "status"},
		),

		ModuleDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "module",
				Name:      "duration_seconds",
				Help:      "Per-module processing duration",
				Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
			},
			[]string{"module"},
		),

		SlotWait: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "accelerator",
				Name:      "slot_wait_seconds",
				Help:      "Time spent waiting for the accelerator slot",
				Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
			},
		),

		InferenceDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "inference",
				Name:      "duration_seconds",
				Help:      "Model inference duration",
				Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
			},
		),

		DetectionsDecoded: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "inference",
				Name:      "detections_per_frame",
				Help:      "Number of detections decoded per frame",
				Buckets:   prometheus.LinearBuckets(0, 5, 21),
			},
		),

		RecordsPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "publish",
				Name:      "records_total",
				Help:      "Total metadata records published by subject",
			},
			[]string{"subject"},
		),

		PublishErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "publish",
				Name:      "errors_total",
				Help:      "Total failed publish attempts",
			},
		),

		NATSConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "nats",
				Name:      "connected",
				Help:      "NATS connection status (0=disconnected, 1=connected)",
			},
		),

		NATSReconnects: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "nats",
				Name:      "reconnects_total",
				Help:      "Total number of NATS reconnections",
			},
		),
	}

	m.registry.MustRegister(
		m.FramesProcessed,
		m.FramesDropped,
		m.TickDuration,
		m.ModuleOutcomes,
		m.ModuleDuration,
		m.SlotWait,
		m.InferenceDuration,
		m.DetectionsDecoded,
		m.RecordsPublished,
		m.PublishErrors,
		m.NATSConnected,
		m.NATSReconnects,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Registry returns the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the HTTP handler serving the metric set.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// RecordFrameProcessed counts one completed tick with its duration.
func (m *Metrics) RecordFrameProcessed(d time.Duration) {
	m.FramesProcessed.Inc()
	m.TickDuration.Observe(d.Seconds())
}

// RecordFrameDropped counts a tick that produced no record.
func (m *Metrics) RecordFrameDropped(reason string) {
	m.FramesDropped.WithLabelValues(reason).Inc()
}

// RecordModuleOutcome counts one module run with its status and duration.
func (m *Metrics) RecordModuleOutcome(module, status string, d time.Duration) {
	m.ModuleOutcomes.WithLabelValues(module, status).Inc()
	m.ModuleDuration.WithLabelValues(module).Observe(d.Seconds())
}

// RecordSlotWait records the accelerator slot wait for one tick.
func (m *Metrics) RecordSlotWait(d time.Duration) {
	m.SlotWait.Observe(d.Seconds())
}

// RecordInference records one inference run and its decoded detections.
func (m *Metrics) RecordInference(d time.Duration, detections int) {
	m.InferenceDuration.Observe(d.Seconds())
	m.DetectionsDecoded.Observe(float64(detections))
}

// RecordPublished counts one published record.
func (m *Metrics) RecordPublished(subject string) {
	m.RecordsPublished.WithLabelValues(subject).Inc()
}

// RecordPublishError counts one failed publish attempt.
func (m *Metrics) RecordPublishError() {
	m.PublishErrors.Inc()
}

// RecordNATSStatus updates the NATS connection gauge.
func (m *Metrics) RecordNATSStatus(connected bool) {
	value := 0.0
	if connected {
		value = 1.0
	}
	m.NATSConnected.Set(value)
}

// RecordNATSReconnect counts one reconnection.
func (m *Metrics) RecordNATSReconnect() {
	m.NATSReconnects.Inc()
}
