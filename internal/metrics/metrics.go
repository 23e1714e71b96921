// Package metrics holds the prometheus collectors of the exchange daemon.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	Transactions       *prometheus.CounterVec
	TransactionLatency *prometheus.HistogramVec
	Matches            *prometheus.CounterVec
	EventsPublished    *prometheus.CounterVec
	RequestCount       *prometheus.CounterVec
	RequestDuration    *prometheus.HistogramVec
}

func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		Transactions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wyvern_transactions_total",
				Help: "Total ledger transactions by method and status.",
			},
			[]string{"method", "status"},
		),
		TransactionLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "wyvern_transaction_latency_seconds",
				Help:    "Ledger transaction latency in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method"},
		),
		Matches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wyvern_matches_total",
				Help: "Total atomic match attempts by result.",
			},
			[]string{"result"},
		),
		EventsPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wyvern_events_published_total",
				Help: "Total protocol events handed to sinks.",
			},
			[]string{"sink", "status"},
		),
		RequestCount: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests.",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
	}

	registry.MustRegister(
		m.Transactions,
		m.TransactionLatency,
		m.Matches,
		m.EventsPublished,
		m.RequestCount,
		m.RequestDuration,
	)
	return m
}

// Handler serves the registry in the prometheus text format
func Handler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveTransaction(method string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.Transactions.WithLabelValues(method, status(err)).Inc()
	m.TransactionLatency.WithLabelValues(method).Observe(elapsed.Seconds())
}

// ObserveMatch counts a match attempt; result is "settled" or the failure class
func (m *Metrics) ObserveMatch(result string) {
	if m == nil {
		return
	}
	m.Matches.WithLabelValues(result).Inc()
}

func (m *Metrics) ObservePublish(sink string, count int, err error) {
	if m == nil {
		return
	}
	m.EventsPublished.WithLabelValues(sink, status(err)).Add(float64(count))
}

func (m *Metrics) ObserveRequest(method, path, statusText string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.RequestCount.WithLabelValues(method, path, statusText).Inc()
	m.RequestDuration.WithLabelValues(method, path, statusText).Observe(elapsed.Seconds())
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
