package repository

import (
	"context"
	"errors"
	"time"

	"github.com/relaywire-systems/relaywire-stack/common/models"
)

// ErrEventNotFound is returned when an event does not exist or is not owned
// by the requesting customer.
var ErrEventNotFound = errors.New("event not found")

// ListFilter narrows an inbox listing.
type ListFilter struct {
	Status    models.EventStatus
	EventType string
	StartTime time.Time
	EndTime   time.Time
	Limit     int
	Offset    int
}

// Repository is the ingest service's view of the event store.
type Repository interface {
	// InsertEvent durably records a new event with status pending.
	// The write must complete before the event is enqueued.
	InsertEvent(ctx context.Context, event *models.Event) error

	// GetEvent fetches one event scoped to its owning customer.
	GetEvent(ctx context.Context, customerID, eventID string) (*models.Event, error)

	// ListEvents returns a filtered page of the customer's inbox plus the
	// total count matching the filter.
	ListEvents(ctx context.Context, customerID string, filter ListFilter) ([]*models.Event, int, error)

	// DeleteEvent removes an event owned by the customer.
	// Returns ErrEventNotFound when it does not exist or belongs to someone else.
	DeleteEvent(ctx context.Context, customerID, eventID string) error

	// PurgeExpired deletes events whose TTL has elapsed, returning the count.
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)

	Close() error
}
