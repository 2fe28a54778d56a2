package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rpattn/querykit/internal/domain"
)

// Metrics holds the querykit collectors registered on one registry.
type Metrics struct {
	gatherer prometheus.Gatherer

	// QueriesTotal counts executed queries by entity type, mode and outcome.
	QueriesTotal *prometheus.CounterVec
	// QueryDuration is the latency of query preparation plus execution.
	QueryDuration *prometheus.HistogramVec
	// DroppedParamsTotal counts parameter keys ignored during validation.
	DroppedParamsTotal *prometheus.CounterVec
	// RequestTotal counts HTTP requests by method, route and status.
	RequestTotal *prometheus.CounterVec
	// RequestDuration is the latency of HTTP requests.
	RequestDuration *prometheus.HistogramVec
}

// New registers the collectors on reg. A nil reg uses a fresh registry.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Metrics{
		gatherer: reg,
		QueriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "querykit_queries_total",
				Help: "Total number of executed queries",
			},
			[]string{"entity_type", "mode", "status"},
		),
		QueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "querykit_query_duration_seconds",
				Help:    "Query latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"entity_type", "mode"},
		),
		DroppedParamsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "querykit_dropped_params_total",
				Help: "Total number of ignored query parameter keys",
			},
			[]string{"entity_type"},
		),
		RequestTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "querykit_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "querykit_http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}
}

// ObserveQuery records one query execution.
func (m *Metrics) ObserveQuery(entityType string, mode domain.CompositionMode, elapsed time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.QueriesTotal.WithLabelValues(entityType, string(mode), status).Inc()
	m.QueryDuration.WithLabelValues(entityType, string(mode)).Observe(elapsed.Seconds())
}

// ObserveDropped records ignored parameter keys.
func (m *Metrics) ObserveDropped(entityType string, keys int) {
	m.DroppedParamsTotal.WithLabelValues(entityType).Add(float64(keys))
}

// ObserveRequest records one HTTP request.
func (m *Metrics) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	m.RequestTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.RequestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
