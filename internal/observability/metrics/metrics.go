package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry owns every collector the service exposes on /metrics.
type Registry struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	oracleCallsTotal   *prometheus.CounterVec
	oracleCallDuration *prometheus.HistogramVec
}

func New(service string) *Registry {
	reg := prometheus.NewRegistry()
	labels := prometheus.Labels{"service": service}

	m := &Registry{
		registry: reg,
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "invoicechat",
			Subsystem:   "http",
			Name:        "requests_total",
			Help:        "Total HTTP requests processed.",
			ConstLabels: labels,
		}, []string{"method", "route", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   "invoicechat",
			Subsystem:   "http",
			Name:        "request_duration_seconds",
			Help:        "HTTP request duration in seconds.",
			Buckets:     prometheus.DefBuckets,
			ConstLabels: labels,
		}, []string{"method", "route"}),
		requestInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "invoicechat",
			Subsystem:   "http",
			Name:        "in_flight_requests",
			Help:        "Number of in-flight HTTP requests.",
			ConstLabels: labels,
		}),
		oracleCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "invoicechat",
			Subsystem:   "oracle",
			Name:        "calls_total",
			Help:        "Oracle calls by operation and outcome.",
			ConstLabels: labels,
		}, []string{"operation", "outcome"}),
		oracleCallDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   "invoicechat",
			Subsystem:   "oracle",
			Name:        "call_duration_seconds",
			Help:        "Oracle call duration including retries.",
			Buckets:     []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60, 120},
			ConstLabels: labels,
		}, []string{"operation"}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requestTotal,
		m.requestDuration,
		m.requestInFlight,
		m.oracleCallsTotal,
		m.oracleCallDuration,
	)
	return m
}

func (m *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Registry) RequestStarted() {
	m.requestInFlight.Inc()
}

func (m *Registry) RequestFinished(method, route string, status int, duration time.Duration) {
	m.requestInFlight.Dec()
	if route == "" {
		route = "unmatched"
	}
	m.requestTotal.WithLabelValues(method, route, statusClass(status)).Inc()
	m.requestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

func (m *Registry) ObserveOracleCall(operation, outcome string, duration time.Duration) {
	m.oracleCallsTotal.WithLabelValues(operation, outcome).Inc()
	m.oracleCallDuration.WithLabelValues(operation).Observe(duration.Seconds())
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
