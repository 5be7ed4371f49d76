package client

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Registry holds the SDK's Prometheus collectors. Embedding applications
	// expose it on their own metrics endpoint.
	Registry = prometheus.NewRegistry()

	apiRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "extrashifty",
			Subsystem: "client",
			Name:      "requests_total",
			Help:      "Total number of API requests issued.",
		},
		[]string{"method", "status"},
	)

	apiDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "extrashifty",
			Subsystem: "client",
			Name:      "request_duration_seconds",
			Help:      "Duration of API requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method"},
	)

	tokenRefreshes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "extrashifty",
			Subsystem: "client",
			Name:      "token_refreshes_total",
			Help:      "Total number of token refresh calls, by result.",
		},
		[]string{"result"},
	)

	cacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "extrashifty",
			Subsystem: "client",
			Name:      "cache_lookups_total",
			Help:      "Query cache lookups, by outcome.",
		},
		[]string{"outcome"},
	)

	acceptOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "extrashifty",
			Subsystem: "hiring",
			Name:      "accept_outcomes_total",
			Help:      "Terminal states of worker-acceptance flows.",
		},
		[]string{"state"},
	)
)

func init() {
	Registry.MustRegister(apiRequests, apiDuration, tokenRefreshes, cacheLookups, acceptOutcomes)
}

func observeRequest(method string, statusCode int, start time.Time) {
	apiRequests.WithLabelValues(method, strconv.Itoa(statusCode)).Inc()
	apiDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
}

func observeRefresh(result string) {
	tokenRefreshes.WithLabelValues(result).Inc()
}

func observeCache(outcome string) {
	cacheLookups.WithLabelValues(outcome).Inc()
}

// ObserveAcceptOutcome records the terminal state of one acceptance flow.
// Called by the hiring package.
func ObserveAcceptOutcome(state string) {
	acceptOutcomes.WithLabelValues(state).Inc()
}
