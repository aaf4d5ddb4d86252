// Package metrics registers the service's Prometheus collectors.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"agriflow/requestfilter"
)

const namespace = "agriflow"

// Config toggles the /metrics endpoint.
type Config struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Registry owns the collectors. It satisfies servicerequest.Metrics.
type Registry struct {
	reg          *prometheus.Registry
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	placed       *prometheus.CounterVec
	transitions  *prometheus.CounterVec
}

func New() *Registry {
	r := &Registry{reg: prometheus.NewRegistry()}
	r.reg.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)

	r.httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "HTTP requests by route pattern, method and status code.",
	}, []string{"route", "method", "code"})
	r.httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency by route pattern.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route", "method"})
	r.placed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "requests_placed_total",
		Help:      "Service requests placed by farmers.",
	}, []string{"service"})
	r.transitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "request_status_transitions_total",
		Help:      "Service request status changes.",
	}, []string{"from", "to"})

	r.reg.MustRegister(r.httpRequests, r.httpDuration, r.placed, r.transitions)
	return r
}

func (r *Registry) RequestPlaced(service string) {
	r.placed.WithLabelValues(service).Inc()
}

func (r *Registry) StatusChanged(from, to requestfilter.Status) {
	r.transitions.WithLabelValues(string(from), string(to)).Inc()
}

// ObserveHTTP records one served request.
func (r *Registry) ObserveHTTP(route, method string, code int, elapsed time.Duration) {
	r.httpRequests.WithLabelValues(route, method, strconv.Itoa(code)).Inc()
	r.httpDuration.WithLabelValues(route, method).Observe(elapsed.Seconds())
}

// Handler exposes the registry in the text exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}
