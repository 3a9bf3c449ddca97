package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "campusroomz"

var (
	once sync.Once

	submissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_submissions_total",
			Help:      "Count of booking submissions by final state and rejection reason.",
		},
		[]string{"state", "reason"},
	)

	bookingCancelled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_cancelled_total",
			Help:      "Count of bookings cancelled.",
		},
	)

	conflictChecks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conflict_checks_total",
			Help:      "Count of availability predicate evaluations by result.",
		},
		[]string{"result"},
	)

	activityFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "activity_record_failures_total",
			Help:      "Count of activity or notification rows that could not be written.",
		},
		[]string{"kind"},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP API requests by route and status code.",
		},
		[]string{"route", "code"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP API latency by route.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	cacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Room catalog cache lookups by result.",
		},
		[]string{"result"},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			submissions,
			bookingCancelled,
			conflictChecks,
			activityFailures,
			httpRequests,
			httpDuration,
			cacheLookups,
		)
	})
}

func IncSubmission(state, reason string) {
	submissions.WithLabelValues(state, reason).Inc()
}

func IncBookingCancelled() {
	bookingCancelled.Inc()
}

func IncConflictCheck(result string) {
	conflictChecks.WithLabelValues(result).Inc()
}

func IncActivityFailure(kind string) {
	activityFailures.WithLabelValues(kind).Inc()
}

func ObserveHTTP(route, code string, seconds float64) {
	httpRequests.WithLabelValues(route, code).Inc()
	httpDuration.WithLabelValues(route).Observe(seconds)
}

func IncCacheLookup(result string) {
	cacheLookups.WithLabelValues(result).Inc()
}
