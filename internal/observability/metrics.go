package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RedisErrorRate counts Redis errors by operation type.
	RedisErrorRate = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "odinbook_redis_error_rate_total",
		Help: "Total number of Redis errors by operation type",
	}, []string{"operation"})

	// DatabaseQueryLatency records database query latency by operation and table.
	DatabaseQueryLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "odinbook_database_query_latency_seconds",
		Help:    "Database query latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "table"})

	// StorageRetries counts transient storage failures that were retried.
	StorageRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "odinbook_storage_retries_total",
		Help: "Total number of retried transient storage failures",
	}, []string{"operation"})

	// InvariantViolations counts detected asymmetric relationship pairs.
	InvariantViolations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "odinbook_invariant_violations_total",
		Help: "Total number of relationship invariant violations detected on read",
	})

	// EventsDispatched counts router dispatch outcomes by event type.
	EventsDispatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "odinbook_events_dispatched_total",
		Help: "Total number of domain events handled by outcome",
	}, []string{"event_type", "outcome"})

	// EventRetries counts handler retries by event type.
	EventRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "odinbook_event_retries_total",
		Help: "Total number of event handler retries",
	}, []string{"event_type"})

	// DeadLetters counts events moved to the dead-letter path.
	DeadLetters = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "odinbook_dead_letters_total",
		Help: "Total number of events that exhausted retries or failed permanently",
	}, []string{"event_type"})

	// EventDispatchLatency records time from dequeue to final outcome.
	EventDispatchLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "odinbook_event_dispatch_latency_seconds",
		Help:    "Event dispatch latency in seconds, retries included",
		Buckets: prometheus.DefBuckets,
	}, []string{"event_type"})

	// EventQueueDepth is the number of published but unhandled events.
	EventQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "odinbook_event_queue_depth",
		Help: "Number of events published but not yet handled",
	})

	// NotificationsCreated counts notifications by type.
	NotificationsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "odinbook_notifications_created_total",
		Help: "Total number of notifications created",
	}, []string{"type"})

	// FeedCacheResults counts feed cache lookups by result.
	FeedCacheResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "odinbook_feed_cache_results_total",
		Help: "Feed cache lookups by result (hit, miss, error)",
	}, []string{"result"})

	// FeedComputeLatency records how long a feed computation takes.
	FeedComputeLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "odinbook_feed_compute_latency_seconds",
		Help:    "Feed computation latency in seconds",
		Buckets: prometheus.DefBuckets,
	})
)

// TrackQuery returns a function that records query latency when called (e.g. defer).
func TrackQuery(operation, table string) func() {
	start := time.Now()
	return func() {
		DatabaseQueryLatency.WithLabelValues(operation, table).Observe(time.Since(start).Seconds())
	}
}
