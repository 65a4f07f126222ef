// Package metrics exposes Prometheus counters for the collection flow and exports.
// All methods are safe to call on a nil *Metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pollinator"

// Export outcomes.
const (
	ExportOK           = "ok"
	ExportEmpty        = "empty"
	ExportUnauthorized = "unauthorized"
	ExportFailed       = "failed"
)

type Metrics struct {
	messages           *prometheus.CounterVec
	observationsSaved  prometheus.Counter
	observationsFailed prometheus.Counter
	exports            *prometheus.CounterVec
	linkFailures       prometheus.Counter
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_total",
			Help:      "Inbound messages handled, by conversation state at arrival.",
		}, []string{"state"}),
		observationsSaved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "observations_saved_total",
			Help:      "Observation rows inserted into the repository.",
		}),
		observationsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "observations_failed_total",
			Help:      "Observation rows that could not be inserted after retries.",
		}),
		exports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exports_total",
			Help:      "Export requests, by outcome.",
		}, []string{"outcome"}),
		linkFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "export_link_failures_total",
			Help:      "Media references that could not be resolved during export.",
		}),
	}
	reg.MustRegister(m.messages, m.observationsSaved, m.observationsFailed, m.exports, m.linkFailures)
	return m
}

func (m *Metrics) MessageHandled(state string) {
	if m == nil {
		return
	}
	m.messages.WithLabelValues(state).Inc()
}

func (m *Metrics) ObservationSaved() {
	if m == nil {
		return
	}
	m.observationsSaved.Inc()
}

func (m *Metrics) ObservationFailed() {
	if m == nil {
		return
	}
	m.observationsFailed.Inc()
}

func (m *Metrics) Export(outcome string) {
	if m == nil {
		return
	}
	m.exports.WithLabelValues(outcome).Inc()
}

func (m *Metrics) LinkFailed() {
	if m == nil {
		return
	}
	m.linkFailures.Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
