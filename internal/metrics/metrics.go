// Package metrics exposes Prometheus counters for the ingestion pipeline.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "smartwater"

// Drop reasons.
const (
	ReasonMalformed = "malformed"
)

// Outcome labels.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeSkipped = "skipped"
	OutcomeInvalid = "invalid"
)

// Metrics holds Prometheus metrics for the backend.
type Metrics struct {
	registry *prometheus.Registry

	messagesReceived   prometheus.Counter
	messagesDropped    *prometheus.CounterVec
	pointsWritten      *prometheus.CounterVec
	storageErrors      prometheus.Counter
	predictions        *prometheus.CounterVec
	predictionDuration *prometheus.HistogramVec
	enrichments        *prometheus.CounterVec
	framesSent         prometheus.Counter
	sendFailures       prometheus.Counter
	subscribers        prometheus.Gauge
	commands           *prometheus.CounterVec
}

// New creates the metrics and registers them, plus Go runtime collectors,
// with a dedicated registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		messagesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mqtt",
			Name:      "messages_received_total",
			Help:      "Telemetry messages received from the broker",
		}),
		messagesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mqtt",
			Name:      "messages_dropped_total",
			Help:      "Telemetry messages discarded before storage",
		}, []string{"reason"}),
		pointsWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "influxdb",
			Name:      "points_written_total",
			Help:      "Points handed to the InfluxDB write buffer",
		}, []string{"measurement"}),
		storageErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "influxdb",
			Name:      "write_errors_total",
			Help:      "Asynchronous InfluxDB write failures",
		}),
		predictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ml",
			Name:      "predictions_total",
			Help:      "Inference calls by kind and outcome",
		}, []string{"kind", "outcome"}),
		predictionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ml",
			Name:      "prediction_duration_seconds",
			Help:      "Inference call latency",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"kind"}),
		enrichments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "enrichments_total",
			Help:      "Enrichment attempts by outcome",
		}, []string{"outcome"}),
		framesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "frames_sent_total",
			Help:      "Frames queued to push subscribers",
		}),
		sendFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "send_failures_total",
			Help:      "Frames that could not be queued to a subscriber",
		}),
		subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "subscribers",
			Help:      "Currently connected push subscribers",
		}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "command",
			Name:      "relayed_total",
			Help:      "Command relay requests by command and outcome",
		}, []string{"command", "outcome"}),
	}

	m.registry.MustRegister(
		m.messagesReceived,
		m.messagesDropped,
		m.pointsWritten,
		m.storageErrors,
		m.predictions,
		m.predictionDuration,
		m.enrichments,
		m.framesSent,
		m.sendFailures,
		m.subscribers,
		m.commands,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) MessageReceived() {
	if m == nil {
		return
	}
	m.messagesReceived.Inc()
}

func (m *Metrics) MessageDropped(reason string) {
	if m == nil {
		return
	}
	m.messagesDropped.WithLabelValues(reason).Inc()
}

func (m *Metrics) PointsWritten(measurement string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.pointsWritten.WithLabelValues(measurement).Add(float64(n))
}

func (m *Metrics) StorageError() {
	if m == nil {
		return
	}
	m.storageErrors.Inc()
}

func (m *Metrics) Prediction(kind, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.predictions.WithLabelValues(kind, outcome).Inc()
	m.predictionDuration.WithLabelValues(kind).Observe(seconds)
}

func (m *Metrics) Enrichment(outcome string) {
	if m == nil {
		return
	}
	m.enrichments.WithLabelValues(outcome).Inc()
}

func (m *Metrics) FrameSent() {
	if m == nil {
		return
	}
	m.framesSent.Inc()
}

func (m *Metrics) SendFailed() {
	if m == nil {
		return
	}
	m.sendFailures.Inc()
}

func (m *Metrics) Subscribers(n int) {
	if m == nil {
		return
	}
	m.subscribers.Set(float64(n))
}

func (m *Metrics) Command(command, outcome string) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(command, outcome).Inc()
}
