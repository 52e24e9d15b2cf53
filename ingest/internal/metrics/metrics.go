package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Event ingestion metrics
	EventsAccepted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relaywire_ingest_events_accepted_total",
			Help: "Total number of events accepted for delivery",
		},
		[]string{"customer"},
	)

	EventsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relaywire_ingest_events_rejected_total",
			Help: "Total number of submissions rejected before enqueue",
		},
		[]string{"customer", "reason"},
	)

	EventBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relaywire_ingest_event_bytes_total",
			Help: "Total bytes of event payload accepted",
		},
	)

	IdempotencyHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relaywire_ingest_idempotency_hits_total",
			Help: "Submissions short-circuited by the idempotency cache",
		},
	)

	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relaywire_ingest_rate_limit_hits_total",
			Help: "Submissions rejected by the per-customer rate limiter",
		},
		[]string{"customer"},
	)

	SubmitDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "relaywire_ingest_submit_duration_seconds",
			Help:    "Duration of the full submit pipeline in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	EventsPurged = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relaywire_ingest_events_purged_total",
			Help: "Events removed by TTL expiry",
		},
	)
)
