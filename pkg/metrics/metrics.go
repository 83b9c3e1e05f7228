// Package metrics provides Prometheus metrics export for modelstore.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Lease transitions recorded by RecordTransition.
const (
	TransitionCheckout = "checkout"
	TransitionRelease  = "release"
	TransitionExpire   = "expire"
	TransitionReturn   = "return"
	TransitionCreate   = "create"
	TransitionUpdate   = "update"
	TransitionDelete   = "delete"
	TransitionImport   = "import"
)

// Registry holds all modelstore metrics. A nil *Registry records nothing.
type Registry struct {
	reg *prometheus.Registry

	transitions  *prometheus.CounterVec   // transition, result=ok|error
	opLatency    *prometheus.HistogramVec // op
	httpRequests *prometheus.CounterVec   // method, code
	corrupted    prometheus.Gauge
	leased       prometheus.Gauge
}

// NewRegistry creates a new metrics registry with its own Prometheus registry.
func NewRegistry() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "modelstore_lease_transitions_total",
				Help: "Lease and content transitions by kind and result",
			},
			[]string{"transition", "result"},
		),
		opLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "modelstore_op_latency_ms",
				Help:    "Latency of store operations (ms)",
				Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1ms .. ~2048ms
			},
			[]string{"op"},
		),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "modelstore_http_requests_total",
				Help: "HTTP requests by method and status code",
			},
			[]string{"method", "code"},
		),
		corrupted: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "modelstore_corrupted_models",
			Help: "Corrupted model records seen by the last listing",
		}),
		leased: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "modelstore_leased_models",
			Help: "Leased model records seen by the last listing",
		}),
	}

	r.reg.MustRegister(
		r.transitions,
		r.opLatency,
		r.httpRequests,
		r.corrupted,
		r.leased,
	)
	return r
}

// Gatherer exposes the underlying registry, mainly for tests.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}

// RecordTransition records one lease or content transition.
func (r *Registry) RecordTransition(transition string, success bool, duration time.Duration) {
	if r == nil {
		return
	}
	result := "ok"
	if !success {
		result = "error"
	}
	r.transitions.WithLabelValues(transition, result).Inc()
	r.opLatency.WithLabelValues(transition).Observe(float64(duration.Microseconds()) / 1000)
}

// RecordExpired records n leases expired during a listing.
func (r *Registry) RecordExpired(n int) {
	if r == nil || n == 0 {
		return
	}
	r.transitions.WithLabelValues(TransitionExpire, "ok").Add(float64(n))
}

// RecordListing records the state of the directory seen by a listing.
func (r *Registry) RecordListing(leased, corrupted int) {
	if r == nil {
		return
	}
	r.leased.Set(float64(leased))
	r.corrupted.Set(float64(corrupted))
}

// RecordHTTPRequest records one served HTTP request.
func (r *Registry) RecordHTTPRequest(method string, code int) {
	if r == nil {
		return
	}
	r.httpRequests.WithLabelValues(method, strconv.Itoa(code)).Inc()
}
