// Package metrics provides Prometheus instrumentation for the matching
// service. It exposes gauges for queue and session counts, counters for
// request and outcome throughput, and a histogram for time spent waiting in
// the queue.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// QueueSize tracks the current number of pending match requests.
	QueueSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "matching_queue_size",
		Help: "Current number of pending match requests",
	})

	// RequestsTotal counts intake outcomes, labeled by result:
	// "accepted", "duplicate", or "invalid".
	RequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "matching_requests_total",
		Help: "Total number of match requests received",
	}, []string{"result"})

	// MatchesTotal counts successfully formed pairs.
	MatchesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "matching_matches_total",
		Help: "Total number of pairs formed",
	})

	// TimeoutsTotal counts requests that timed out with no partner.
	TimeoutsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "matching_timeouts_total",
		Help: "Total number of requests resolved with no match found",
	})

	// CancellationsTotal counts explicit cancellations of pending requests.
	CancellationsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "matching_cancellations_total",
		Help: "Total number of pending requests cancelled",
	})

	// MatchWaitSeconds records the time from enqueue to pairing, one
	// observation per matched participant.
	MatchWaitSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "matching_wait_seconds",
		Help:    "Time from enqueue to pairing",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 180, 240, 300},
	})

	// ActiveSessions tracks the current number of live match sessions.
	ActiveSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "matching_active_sessions",
		Help: "Current number of live match sessions",
	})
)

func init() {
	prometheus.MustRegister(
		QueueSize,
		RequestsTotal,
		MatchesTotal,
		TimeoutsTotal,
		CancellationsTotal,
		MatchWaitSeconds,
		ActiveSessions,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
