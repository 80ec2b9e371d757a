package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Publish results.
const (
	ResultOK        = "ok"
	ResultHTTPError = "http_error"
	ResultTransport = "transport_error"
)

// Metrics groups the agent's collectors. A nil *Metrics is valid and records
// nothing, which keeps tests and one-shot CLI commands free of registries.
type Metrics struct {
	registry        *prometheus.Registry
	publishes       *prometheus.CounterVec
	publishDuration prometheus.Histogram
	sensorFailures  *prometheus.CounterVec
	transitions     *prometheus.CounterVec
	sinkFailures    *prometheus.CounterVec
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		publishes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pod_agent",
			Name:      "publishes_total",
			Help:      "Telemetry publish attempts by watered flag and result.",
		}, []string{"watered", "result"}),
		publishDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "pod_agent",
			Name:      "publish_duration_seconds",
			Help:      "Wall time of one assemble+POST cycle.",
			Buckets:   prometheus.DefBuckets,
		}),
		sensorFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pod_agent",
			Name:      "sensor_read_failures_total",
			Help:      "Failed sensor reads by sensor.",
		}, []string{"sensor"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pod_agent",
			Name:      "water_transitions_total",
			Help:      "Water-contact transitions by state.",
		}, []string{"state"}),
		sinkFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pod_agent",
			Name:      "sink_failures_total",
			Help:      "Failed mirror writes by sink.",
		}, []string{"sink"}),
	}
	m.registry.MustRegister(
		m.publishes,
		m.publishDuration,
		m.sensorFailures,
		m.transitions,
		m.sinkFailures,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObservePublish(watered bool, result string, seconds float64) {
	if m == nil {
		return
	}
	m.publishes.WithLabelValues(strconv.FormatBool(watered), result).Inc()
	m.publishDuration.Observe(seconds)
}

func (m *Metrics) SensorFailed(sensor string) {
	if m == nil {
		return
	}
	m.sensorFailures.WithLabelValues(sensor).Inc()
}

func (m *Metrics) Transition(state string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(state).Inc()
}

func (m *Metrics) SinkFailed(sink string) {
	if m == nil {
		return
	}
	m.sinkFailures.WithLabelValues(sink).Inc()
}
