package repository

import (
	"context"
	"errors"

	"github.com/relaywire-systems/relaywire-stack/common/models"
)

// ErrSubscriptionNotFound is returned when no subscription matches the
// customer and workflow ID pair.
var ErrSubscriptionNotFound = errors.New("subscription not found")

// ListFilter narrows a subscription listing.
type ListFilter struct {
	// IncludeDisabled also returns soft-disabled subscriptions.
	IncludeDisabled bool

	Limit  int
	Offset int
}

// Repository persists webhook subscriptions. Subscriptions are never hard
// deleted; disable is the only removal the API offers.
type Repository interface {
	// Create stores a new subscription.
	Create(ctx context.Context, sub *models.Subscription) error

	// Get fetches one subscription owned by the customer.
	// Returns ErrSubscriptionNotFound when it does not exist.
	Get(ctx context.Context, customerID, workflowID string) (*models.Subscription, error)

	// List returns the customer's subscriptions plus the total matching count.
	List(ctx context.Context, customerID string, filter ListFilter) ([]*models.Subscription, int, error)

	// SetStatus flips a subscription's status. Returns ErrSubscriptionNotFound
	// when the customer owns no such subscription.
	SetStatus(ctx context.Context, customerID, workflowID string, status models.SubscriptionStatus) error

	// Close releases underlying resources.
	Close() error
}
