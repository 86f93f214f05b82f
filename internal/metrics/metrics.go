package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Cache lookup results.
const (
	CacheHit   = "hit"
	CacheMiss  = "miss"
	CacheStale = "stale"
	CacheError = "error"
)

var (
	// CacheLookups counts query cache reads by resource and result
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querycache_lookups_total",
			Help: "Query cache reads by resource and result",
		},
		[]string{"resource", "result"},
	)

	// CacheFetchDuration tracks the latency of the underlying fetch on a cache miss
	CacheFetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "querycache_fetch_duration_seconds",
			Help: "Duration of cache-miss fetches in seconds",
			Buckets: []float64{
				0.001, // 1ms
				0.005, // 5ms
				0.01,  // 10ms
				0.025, // 25ms
				0.05,  // 50ms
				0.1,   // 100ms
				0.25,  // 250ms
				0.5,   // 500ms
				1.0,   // 1s
				2.5,   // 2.5s
			},
		},
		[]string{"resource"},
	)

	// CacheInvalidations counts invalidated entries by resource
	CacheInvalidations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querycache_invalidations_total",
			Help: "Query cache invalidations by resource",
		},
		[]string{"resource"},
	)

	// DonationTransitions counts donation status changes
	DonationTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "donation_transitions_total",
			Help: "Donation status transitions by resulting status and reason",
		},
		[]string{"status", "reason"},
	)

	// DonationAmount tracks completed donation amounts in major units
	DonationAmount = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "donation_completed_amount",
			Help:    "Completed donation amounts in major units",
			Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 5000},
		},
		[]string{"currency", "kind"},
	)

	// WebhookEvents counts payment webhook events by type and outcome
	WebhookEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_webhook_events_total",
			Help: "Payment webhook events by type and outcome",
		},
		[]string{"type", "outcome"},
	)
)

// RecordCacheLookup records a cache read outcome
func RecordCacheLookup(resource, result string) {
	CacheLookups.WithLabelValues(resource, result).Inc()
}

// RecordCacheFetch records the duration of a cache-miss fetch
func RecordCacheFetch(resource string, seconds float64) {
	CacheFetchDuration.WithLabelValues(resource).Observe(seconds)
}

// RecordInvalidation records an invalidation for a resource
func RecordInvalidation(resource string) {
	CacheInvalidations.WithLabelValues(resource).Inc()
}

// RecordDonationTransition records a persisted donation status change
func RecordDonationTransition(status, reason string) {
	DonationTransitions.WithLabelValues(status, reason).Inc()
}

// RecordDonationAmount records the amount of a completed donation
func RecordDonationAmount(currency, kind string, amount float64) {
	DonationAmount.WithLabelValues(currency, kind).Observe(amount)
}

// RecordWebhookEvent records a handled payment webhook
func RecordWebhookEvent(eventType, outcome string) {
	WebhookEvents.WithLabelValues(eventType, outcome).Inc()
}
