package repository

import (
	"context"
	"errors"

	"github.com/relaywire-systems/relaywire-stack/common/models"
)

// ErrEventNotFound is returned when the queued event has no backing record,
// e.g. the customer deleted it while it sat in the queue.
var ErrEventNotFound = errors.New("event not found")

// Repository is the delivery engine's view of the event and subscription
// stores. Every mutation is idempotent under queue redelivery.
type Repository interface {
	GetEvent(ctx context.Context, customerID, eventID string) (*models.Event, error)

	// AppendAttempt records one delivery attempt on a pending event.
	// Attempts on events already terminal are dropped silently.
	AppendAttempt(ctx context.Context, customerID, eventID string, attempt models.DeliveryAttempt) error

	// FinalizeEvent moves a pending event to a terminal status. Returns
	// false without error when the event was already terminal, which makes
	// redelivered messages a no-op.
	FinalizeEvent(ctx context.Context, customerID, eventID string, status models.EventStatus, lastError string) (bool, error)

	// ActiveSubscriptions returns the customer's subscriptions eligible for
	// delivery. Disabled subscriptions are never returned.
	ActiveSubscriptions(ctx context.Context, customerID string) ([]*models.Subscription, error)

	// DisableSubscription soft-disables a subscription after a 410.
	DisableSubscription(ctx context.Context, workflowID string) error

	Close() error
}
