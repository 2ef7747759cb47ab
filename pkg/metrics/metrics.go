// Package metrics holds the Prometheus collectors exported at /metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "spotifylikes"

var (
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "HTTP requests by route and status code.",
	}, []string{"route", "code"})

	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency by route.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route"})

	UpstreamCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "upstream_calls_total",
		Help:      "Calls to the Spotify Web API by operation and outcome.",
	}, []string{"op", "outcome"})

	// Debounce counts search controller events: scheduled, fired,
	// short_circuit and stale.
	Debounce = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "search_debounce_events_total",
		Help:      "Debounced search controller events.",
	}, []string{"event"})

	Likes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "likes_total",
		Help:      "Like and unlike actions.",
	}, []string{"intent"})
)

// ObserveUpstream records the outcome of a single upstream call.
func ObserveUpstream(op string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	UpstreamCalls.WithLabelValues(op, outcome).Inc()
}

// ObserveRequest records a finished HTTP request.
func ObserveRequest(route string, code int, elapsed time.Duration) {
	HTTPRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
	HTTPDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
