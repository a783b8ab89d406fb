// Package metrics exposes OmniGuide's Prometheus collectors. A nil *Recorder
// is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "omniguide"

// Analyze outcomes.
const (
	OutcomeOK        = "ok"
	OutcomeGateway   = "gateway_error"
	OutcomeMalformed = "malformed_result"
	OutcomeStorage   = "storage_error"
	OutcomeRejected  = "rejected"
)

// Recorder owns a private registry and the service collectors.
type Recorder struct {
	registry *prometheus.Registry

	analyzeTotal    *prometheus.CounterVec
	analyzeDuration *prometheus.HistogramVec
	connections     prometheus.Gauge
	messagesTotal   *prometheus.CounterVec
	storeErrors     *prometheus.CounterVec
}

// New creates a Recorder with Go runtime and process collectors registered.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		analyzeTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analyze_total",
			Help:      "Analyze exchanges by mode and outcome.",
		}, []string{"mode", "outcome"}),
		analyzeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "analyze_duration_seconds",
			Help:      "End-to-end analyze latency including the gateway call.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32, 60},
		}, []string{"mode"}),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "channel_connections",
			Help:      "Open interaction channel connections.",
		}),
		messagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "channel_messages_total",
			Help:      "Inbound channel messages by type.",
		}, []string{"type"}),
		storeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_errors_total",
			Help:      "Session store failures by operation.",
		}, []string{"op"}),
	}
	r.registry.MustRegister(
		r.analyzeTotal,
		r.analyzeDuration,
		r.connections,
		r.messagesTotal,
		r.storeErrors,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// ObserveAnalyze records one analyze exchange.
func (r *Recorder) ObserveAnalyze(mode, outcome string, d time.Duration) {
	if r == nil {
		return
	}
	r.analyzeTotal.WithLabelValues(mode, outcome).Inc()
	r.analyzeDuration.WithLabelValues(mode).Observe(d.Seconds())
}

// ConnOpened increments the open connection gauge.
func (r *Recorder) ConnOpened() {
	if r == nil {
		return
	}
	r.connections.Inc()
}

// ConnClosed decrements the open connection gauge.
func (r *Recorder) ConnClosed() {
	if r == nil {
		return
	}
	r.connections.Dec()
}

// ObserveMessage counts an inbound channel message.
func (r *Recorder) ObserveMessage(msgType string) {
	if r == nil {
		return
	}
	r.messagesTotal.WithLabelValues(msgType).Inc()
}

// ObserveStoreError counts a failed store operation.
func (r *Recorder) ObserveStoreError(op string) {
	if r == nil {
		return
	}
	r.storeErrors.WithLabelValues(op).Inc()
}
