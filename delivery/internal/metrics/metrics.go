package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Delivery pipeline metrics
	MessagesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relaywire_delivery_messages_processed_total",
			Help: "Queue messages processed, by disposition (ack, retry, dlq)",
		},
		[]string{"disposition"},
	)

	EventsFinalized = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relaywire_delivery_events_finalized_total",
			Help: "Events that reached a terminal status",
		},
		[]string{"status"},
	)

	WebhookAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relaywire_delivery_webhook_attempts_total",
			Help: "Webhook delivery attempts, by outcome",
		},
		[]string{"outcome"},
	)

	WebhookDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "relaywire_delivery_webhook_duration_seconds",
			Help:    "Duration of webhook HTTP calls in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	SubscriptionsDisabled = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relaywire_delivery_subscriptions_disabled_total",
			Help: "Subscriptions auto-disabled after a 410 response",
		},
	)

	RetriesScheduled = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relaywire_delivery_retries_scheduled_total",
			Help: "Messages re-enqueued with a backoff delay",
		},
	)
)
