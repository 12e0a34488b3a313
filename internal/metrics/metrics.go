// Package metrics exposes Prometheus instrumentation for the runtime.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	invocationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "basalt_invocations_total",
		Help: "Function invocations by terminal status.",
	}, []string{"function", "status", "trigger"})

	invocationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "basalt_invocation_duration_seconds",
		Help:    "Function execution duration.",
		Buckets: []float64{.005, .025, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"function"})

	scheduleFires = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "basalt_schedule_fires_total",
		Help: "Scheduled fires by trigger kind.",
	}, []string{"kind"})

	registeredFunctions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "basalt_registered_functions",
		Help: "Functions in the current registry generation.",
	})

	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "basalt_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"method", "route", "status"})

	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "basalt_http_request_duration_seconds",
		Help:    "HTTP request latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})
)

// RecordInvocation counts one terminal invocation.
func RecordInvocation(function, status, trigger string, duration time.Duration) {
	invocationsTotal.WithLabelValues(function, status, trigger).Inc()
	invocationDuration.WithLabelValues(function).Observe(duration.Seconds())
}

// RecordScheduleFire counts one scheduled fire.
func RecordScheduleFire(kind string) {
	scheduleFires.WithLabelValues(kind).Inc()
}

// SetRegisteredFunctions records the registry size after a swap.
func SetRegisteredFunctions(n int) {
	registeredFunctions.Set(float64(n))
}

// RecordHTTPRequest counts one served request.
func RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// Handler serves the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
