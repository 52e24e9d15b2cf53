package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SubscriptionsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relaywire_subscriptions_created_total",
			Help: "Total number of subscriptions created",
		},
		[]string{"customer", "rule_kind"},
	)

	StatusChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relaywire_subscriptions_status_changes_total",
			Help: "Subscription enable/disable transitions via the API",
		},
		[]string{"status"},
	)
)
