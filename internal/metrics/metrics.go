// Package metrics provides Prometheus instrumentation for the match backend:
// live connections, real-time publish outcomes, swipe and match throughput,
// background job results and HTTP traffic.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Publish outcomes.
const (
	OutcomeDelivered = "delivered"
	OutcomeOffline   = "offline"
	OutcomeFailed    = "failed"
	OutcomeRelayed   = "relayed"
)

// Job statuses.
const (
	JobEnqueued  = "enqueued"
	JobCompleted = "completed"
	JobFailed    = "failed"
	JobDropped   = "dropped"
)

var (
	// ConnectionsActive tracks the current number of open WebSocket connections.
	ConnectionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "flicker_connections_active",
		Help: "Current number of open WebSocket connections",
	})

	// OnlineUsers tracks the number of UIDs in the local connection registry.
	OnlineUsers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "flicker_online_users",
		Help: "Users with a registered connection on this instance",
	})

	// PublishTotal counts real-time publish attempts by event and outcome.
	PublishTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "flicker_publish_total",
		Help: "Real-time publish attempts",
	}, []string{"event", "outcome"})

	// SwipesTotal counts accepted swipes, labeled "right" or "left".
	SwipesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "flicker_swipes_total",
		Help: "Swipes recorded",
	}, []string{"direction"})

	// MatchesTotal counts mutual matches created.
	MatchesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "flicker_matches_total",
		Help: "Mutual matches created",
	})

	// MessagesTotal counts direct messages, labeled "sent" or "rejected".
	MessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "flicker_messages_total",
		Help: "Direct messages processed",
	}, []string{"result"})

	// JobsTotal counts background jobs by kind and status.
	JobsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "flicker_jobs_total",
		Help: "Background notification jobs",
	}, []string{"kind", "status"})

	// JobDuration records how long a job took to deliver.
	JobDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "flicker_job_duration_seconds",
		Help:    "Background job delivery time in seconds",
		Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
	}, []string{"kind"})

	// RateLimitedTotal counts requests rejected by a rate-limit rule.
	RateLimitedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "flicker_rate_limited_total",
		Help: "Requests rejected by rate limiting",
	}, []string{"rule"})

	// HTTPRequestsTotal counts HTTP requests by method, route pattern and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "flicker_http_requests_total",
		Help: "HTTP requests served",
	}, []string{"method", "route", "status"})

	// HTTPRequestDuration records HTTP latency by method and route pattern.
	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "flicker_http_request_duration_seconds",
		Help:    "HTTP request latency in seconds",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	}, []string{"method", "route"})
)

func init() {
	prometheus.MustRegister(
		ConnectionsActive,
		OnlineUsers,
		PublishTotal,
		SwipesTotal,
		MatchesTotal,
		MessagesTotal,
		JobsTotal,
		JobDuration,
		RateLimitedTotal,
		HTTPRequestsTotal,
		HTTPRequestDuration,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
