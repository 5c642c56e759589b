// Package metrics holds every Prometheus instrument Snapdog exposes on
// its /metrics endpoint. Instruments are grouped into one Metrics
// struct built once at startup via New, following the same
// struct-of-instruments shape other_examples/.../glyphoxa's
// internal/observe.Metrics uses for OpenTelemetry meters — rebuilt
// here directly against github.com/prometheus/client_golang since
// that is the metrics dependency actually vendored for this module.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every counter and histogram Snapdog records. All
// fields are safe for concurrent use — the underlying prometheus
// types handle their own synchronization.
type Metrics struct {
	registry *prometheus.Registry

	// CommandsTotal counts every mediator command dispatched, labeled
	// by its originating Source, its CommandName, and outcome
	// ("ok"/"error").
	CommandsTotal *prometheus.CounterVec

	// CommandDropped counts commands rejected by a bounded outbound
	// queue rather than queued unboundedly, per spec.md §5.
	CommandDropped *prometheus.CounterVec

	// HTTPRequestsTotal counts API requests by method, route (the
	// request path the caller passes), and status text ("OK", ...).
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTPRequestDuration tracks API request latency by method and
	// route.
	HTTPRequestDuration *prometheus.HistogramVec

	// MQTTMessagesDropped counts inbound MQTT command messages
	// discarded by the adapter-wide inbound rate limiter.
	MQTTMessagesDropped prometheus.Counter

	// MQTTParseFailures counts inbound MQTT command payloads that
	// failed to parse, per spec.md §4.5.
	MQTTParseFailures prometheus.Counter

	// KNXTelegramErrors counts inbound KNX telegrams that failed to
	// decode or dispatch.
	KNXTelegramErrors prometheus.Counter

	// ReconciliationsTotal counts grouping reconciliation passes by
	// resulting Health.
	ReconciliationsTotal *prometheus.CounterVec
}

// New builds a Metrics instance and registers every instrument against
// a fresh prometheus.Registry. Using a dedicated registry rather than
// the global DefaultRegisterer keeps tests free of cross-test
// instrument collisions.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		CommandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "snapdog_commands_total",
			Help: "Total mediator commands dispatched, by source, command, and outcome.",
		}, []string{"source", "command", "outcome"}),
		CommandDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "snapdog_command_dropped_total",
			Help: "Commands rejected by a bounded outbound queue, by queue name.",
		}, []string{"queue"}),
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "snapdog_http_requests_total",
			Help: "Total HTTP API requests, by method, route, and status.",
		}, []string{"method", "route", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "snapdog_http_request_duration_seconds",
			Help:    "HTTP API request latency, by method and route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		MQTTMessagesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "snapdog_mqtt_messages_dropped_total",
			Help: "Inbound MQTT messages dropped by the rate limiter.",
		}),
		MQTTParseFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "snapdog_mqtt_parse_failures_total",
			Help: "Inbound MQTT command payloads that failed to parse.",
		}),
		KNXTelegramErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "snapdog_knx_telegram_errors_total",
			Help: "Inbound KNX telegrams that failed to decode or dispatch.",
		}),
		ReconciliationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "snapdog_reconciliations_total",
			Help: "Grouping reconciliation passes, by resulting health.",
		}, []string{"health"}),
	}

	reg.MustRegister(
		m.CommandsTotal,
		m.CommandDropped,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.MQTTMessagesDropped,
		m.MQTTParseFailures,
		m.KNXTelegramErrors,
		m.ReconciliationsTotal,
	)
	return m
}

// Handler returns the /metrics scrape endpoint for this instance's
// registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordCommand is a convenience method wrapping CommandsTotal.
func (m *Metrics) RecordCommand(source, command string, ok bool) {
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	m.CommandsTotal.WithLabelValues(source, command, outcome).Inc()
}

// RecordHTTPRequest is a convenience method wrapping
// HTTPRequestsTotal/HTTPRequestDuration.
func (m *Metrics) RecordHTTPRequest(method, route string, status int, seconds float64) {
	m.HTTPRequestsTotal.WithLabelValues(method, route, http.StatusText(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(seconds)
}
