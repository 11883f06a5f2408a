// Package metrics provides Prometheus collectors for detection jobs, alerts
// and notification fan-out.
package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every collector the service exports. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	JobsSubmitted    *prometheus.CounterVec   // by source_type
	JobsFinished     *prometheus.CounterVec   // by status: completed, failed, rejected
	JobsInFlight     prometheus.Gauge         // tasks being processed by workers
	QueueDepth       prometheus.Gauge         // tasks waiting for a worker
	DetectorDuration *prometheus.HistogramVec // by outcome: ok, error

	AlertsCreated *prometheus.CounterVec // by level
	AlertsHandled prometheus.Counter

	BusPublished   *prometheus.CounterVec // by topic kind: owner, broadcast
	BusDropped     prometheus.Counter     // events skipped for slow subscribers
	BusSubscribers prometheus.Gauge
	BridgeErrors   *prometheus.CounterVec // by sink: redis, mqtt

	registry *prometheus.Registry
}

// New creates the collectors and registers them, plus the Go and process
// collectors, on registry.
func New(registry *prometheus.Registry) (*Metrics, error) {
	m := &Metrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register service metrics: %w", err)
	}
	if err := registry.Register(collectors.NewGoCollector()); err != nil {
		return nil, fmt.Errorf("failed to register go collector: %w", err)
	}
	if err := registry.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
		return nil, fmt.Errorf("failed to register process collector: %w", err)
	}
	return m, nil
}

func (m *Metrics) initMetrics() {
	m.JobsSubmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "detection_jobs_submitted_total",
			Help: "Total number of detection jobs accepted, by source type",
		},
		[]string{"source_type"},
	)
	m.JobsFinished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "detection_jobs_finished_total",
			Help: "Total number of detection jobs that reached a terminal state, by status",
		},
		[]string{"status"},
	)
	m.JobsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "detection_jobs_in_flight",
		Help: "Detection jobs currently held by a worker",
	})
	m.QueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "detection_queue_depth",
		Help: "Detection jobs waiting for a worker",
	})
	m.DetectorDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "detector_request_duration_seconds",
			Help:    "Latency of Detector calls by outcome",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300}, // video inference can take minutes
		},
		[]string{"outcome"},
	)
	m.AlertsCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alerts_created_total",
			Help: "Total number of alerts persisted, by level",
		},
		[]string{"level"},
	)
	m.AlertsHandled = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "alerts_handled_total",
		Help: "Total number of alerts marked handled",
	})
	m.BusPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_events_published_total",
			Help: "Total number of events published, by topic kind",
		},
		[]string{"topic_kind"},
	)
	m.BusDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "notification_events_dropped_total",
		Help: "Events not delivered because a subscriber buffer was full",
	})
	m.BusSubscribers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "notification_subscribers",
		Help: "Currently connected notification subscribers",
	})
	m.BridgeErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_bridge_errors_total",
			Help: "Errors forwarding events to external brokers, by sink",
		},
		[]string{"sink"},
	)
}

// Describe implements prometheus.Collector.
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	m.JobsSubmitted.Describe(ch)
	m.JobsFinished.Describe(ch)
	m.JobsInFlight.Describe(ch)
	m.QueueDepth.Describe(ch)
	m.DetectorDuration.Describe(ch)
	m.AlertsCreated.Describe(ch)
	m.AlertsHandled.Describe(ch)
	m.BusPublished.Describe(ch)
	m.BusDropped.Describe(ch)
	m.BusSubscribers.Describe(ch)
	m.BridgeErrors.Describe(ch)
}

// Collect implements prometheus.Collector.
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	m.JobsSubmitted.Collect(ch)
	m.JobsFinished.Collect(ch)
	m.JobsInFlight.Collect(ch)
	m.QueueDepth.Collect(ch)
	m.DetectorDuration.Collect(ch)
	m.AlertsCreated.Collect(ch)
	m.AlertsHandled.Collect(ch)
	m.BusPublished.Collect(ch)
	m.BusDropped.Collect(ch)
	m.BusSubscribers.Collect(ch)
	m.BridgeErrors.Collect(ch)
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) JobSubmitted(sourceType string) {
	if m == nil {
		return
	}
	m.JobsSubmitted.WithLabelValues(sourceType).Inc()
}

func (m *Metrics) JobFinished(status string) {
	if m == nil {
		return
	}
	m.JobsFinished.WithLabelValues(status).Inc()
}

func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.QueueDepth.Set(float64(n))
}

func (m *Metrics) WorkerBusy(delta float64) {
	if m == nil {
		return
	}
	m.JobsInFlight.Add(delta)
}

func (m *Metrics) ObserveDetector(d time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.DetectorDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

func (m *Metrics) AlertCreated(level string) {
	if m == nil {
		return
	}
	m.AlertsCreated.WithLabelValues(level).Inc()
}

func (m *Metrics) AlertHandled() {
	if m == nil {
		return
	}
	m.AlertsHandled.Inc()
}

func (m *Metrics) EventPublished(topicKind string) {
	if m == nil {
		return
	}
	m.BusPublished.WithLabelValues(topicKind).Inc()
}

func (m *Metrics) EventDropped() {
	if m == nil {
		return
	}
	m.BusDropped.Inc()
}

func (m *Metrics) SubscriberDelta(delta float64) {
	if m == nil {
		return
	}
	m.BusSubscribers.Add(delta)
}

func (m *Metrics) BridgeError(sink string) {
	if m == nil {
		return
	}
	m.BridgeErrors.WithLabelValues(sink).Inc()
}
