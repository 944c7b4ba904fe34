/*

This file holds the Prometheus instruments of the pool node. Every Metrics value owns its own
registry so several nodes (or tests) can live in one process.

*/

package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "dpool"

// Outcome labels.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

type Metrics struct {
	registry *prometheus.Registry

	executions       *prometheus.CounterVec
	executionLatency *prometheus.HistogramVec
	queries          *prometheus.CounterVec
	queryLatency     *prometheus.HistogramVec
	dispatched       *prometheus.CounterVec
	amountMoved      *prometheus.CounterVec
	httpRequests     *prometheus.CounterVec
	receiptFailures  prometheus.Counter
}

// New creates the instruments and registers them, together with the Go runtime collectors, on
// a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		executions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "executions_total",
			Help:      "Pool executions segmented by message variant and outcome.",
		}, []string{"action", "outcome"}),
		executionLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "execution_duration_seconds",
			Help:      "Latency of pool executions including dispatched messages.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"action"}),
		queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "queries_total",
			Help:      "Pool queries segmented by query variant and outcome.",
		}, []string{"query", "outcome"}),
		queryLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "query_duration_seconds",
			Help:      "Latency of pool queries.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"query"}),
		amountMoved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "amount_moved_total",
			Help:      "Stable value paid out or minted by committed executions, in display units.",
		}, []string{"action"}),
		dispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "host",
			Name:      "dispatched_messages_total",
			Help:      "Messages executed on behalf of committed pool executions, by message type.",
		}, []string{"type"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP API requests by route and status class.",
		}, []string{"route", "status"}),
		receiptFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "state",
			Name:      "receipt_write_failures_total",
			Help:      "Execution receipts that could not be persisted.",
		}),
	}
	m.registry.MustRegister(
		m.executions,
		m.executionLatency,
		m.queries,
		m.queryLatency,
		m.amountMoved,
		m.dispatched,
		m.httpRequests,
		m.receiptFailures,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveExecution records one pool execution.
func (m *Metrics) ObserveExecution(action string, err error, duration time.Duration) {
	if m == nil {
		return
	}
	action = orUnknown(action)
	m.executions.WithLabelValues(action, outcome(err)).Inc()
	m.executionLatency.WithLabelValues(action).Observe(duration.Seconds())
}

// ObserveQuery records one pool query.
func (m *Metrics) ObserveQuery(query string, err error, duration time.Duration) {
	if m == nil {
		return
	}
	query = orUnknown(query)
	m.queries.WithLabelValues(query, outcome(err)).Inc()
	m.queryLatency.WithLabelValues(query).Observe(duration.Seconds())
}

// ObserveDispatched counts the messages a committed execution ran.
func (m *Metrics) ObserveDispatched(msgTypes []string) {
	if m == nil {
		return
	}
	for _, t := range msgTypes {
		m.dispatched.WithLabelValues(orUnknown(t)).Inc()
	}
}

// ObserveAmount adds the value an execution moved. Negative amounts are ignored.
func (m *Metrics) ObserveAmount(action string, amount float64) {
	if m == nil || amount < 0 {
		return
	}
	m.amountMoved.WithLabelValues(orUnknown(action)).Add(amount)
}

// ObserveHTTP records an API request by route template and status class (2xx, 4xx, 5xx).
func (m *Metrics) ObserveHTTP(route string, status int) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(orUnknown(route), statusClass(status)).Inc()
}

func (m *Metrics) ReceiptWriteFailed() {
	if m == nil {
		return
	}
	m.receiptFailures.Inc()
}

func outcome(err error) string {
	if err != nil {
		return OutcomeError
	}
	return OutcomeSuccess
}

func orUnknown(label string) string {
	if label == "" {
		return "unknown"
	}
	return label
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
