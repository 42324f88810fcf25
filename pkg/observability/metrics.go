package observability

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics tracks the three counters and one histogram every stage needs:
// how many stream records it read, acked, and failed, and how long each
// took. Trimmed from the teacher's OpenTelemetry SDK + Jaeger exporter
// chain down to bare prometheus/client_golang, since this system has no
// distributed-tracing backend to export spans to.
type Metrics struct {
	registry       *prometheus.Registry
	recordsRead    *prometheus.CounterVec
	recordsAcked   *prometheus.CounterVec
	recordsFailed  *prometheus.CounterVec
	recordLatency  *prometheus.HistogramVec
}

// NewMetrics builds a fresh registry with the four stage metrics
// registered, labeled by stage name.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		recordsRead: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "records_read_total",
			Help: "Stream records read by this stage.",
		}, []string{"stage"}),
		recordsAcked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "records_acked_total",
			Help: "Stream records acknowledged by this stage.",
		}, []string{"stage"}),
		recordsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "records_failed_total",
			Help: "Stream records that failed processing and were left pending.",
		}, []string{"stage"}),
		recordLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "record_latency_seconds",
			Help:    "Time to process a single stream record end to end.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"stage"}),
	}

	registry.MustRegister(m.recordsRead, m.recordsAcked, m.recordsFailed, m.recordLatency)
	return m
}

// RecordRead increments the read counter for stage.
func (m *Metrics) RecordRead(stage string) {
	m.recordsRead.WithLabelValues(stage).Inc()
}

// RecordAcked increments the acked counter for stage.
func (m *Metrics) RecordAcked(stage string) {
	m.recordsAcked.WithLabelValues(stage).Inc()
}

// RecordFailed increments the failed counter for stage.
func (m *Metrics) RecordFailed(stage string) {
	m.recordsFailed.WithLabelValues(stage).Inc()
}

// ObserveLatency records how long stage took to process one record.
func (m *Metrics) ObserveLatency(stage string, d time.Duration) {
	m.recordLatency.WithLabelValues(stage).Observe(d.Seconds())
}

// Handler returns the /metrics HTTP handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// StartServer runs a bare HTTP server serving only /metrics on port. It
// blocks until the server errors or is shut down.
func (m *Metrics) StartServer(port int) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	server := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	return server.ListenAndServe()
}
