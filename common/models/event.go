package models

import (
	"encoding/json"
	"time"
)

// EventStatus tracks an event through the delivery pipeline.
// Transitions only move forward: pending is the sole non-terminal state.
type EventStatus string

const (
	StatusPending   EventStatus = "pending"
	StatusDelivered EventStatus = "delivered"
	StatusFailed    EventStatus = "failed"
	StatusUnmatched EventStatus = "unmatched"
)

// Terminal reports whether no further status transitions are allowed.
func (s EventStatus) Terminal() bool {
	switch s {
	case StatusDelivered, StatusFailed, StatusUnmatched:
		return true
	}
	return false
}

// Valid reports whether s is a known status value.
func (s EventStatus) Valid() bool {
	switch s {
	case StatusPending, StatusDelivered, StatusFailed, StatusUnmatched:
		return true
	}
	return false
}

// DeliveryAttempt is the audit record for one webhook call, embedded in the
// owning Event. AttemptNumber is strictly increasing per subscription.
type DeliveryAttempt struct {
	SubscriptionID string     `json:"subscription_id"`
	AttemptNumber  int        `json:"attempt_number"`
	Timestamp      time.Time  `json:"timestamp"`
	HTTPStatus     int        `json:"http_status,omitempty"`
	Error          string     `json:"error,omitempty"`
	Outcome        string     `json:"outcome"`
	NextRetryAt    *time.Time `json:"next_retry_at,omitempty"`
}

// Attempt outcome values recorded on DeliveryAttempt.
const (
	OutcomeSuccess   = "success"
	OutcomeTransient = "transient"
	OutcomePermanent = "permanent"
	OutcomeGone      = "gone"
)

// Event is one ingested unit of customer data awaiting matching and delivery.
// Identity is (CustomerID, ID); ID is generated server-side at intake and
// never changes. Only the delivery engine mutates status and attempts.
type Event struct {
	CustomerID       string            `json:"customer_id"`
	ID               string            `json:"event_id"`
	Payload          json.RawMessage   `json:"payload"`
	Status           EventStatus       `json:"status"`
	DeliveryAttempts []DeliveryAttempt `json:"delivery_attempts,omitempty"`
	ReceivedAt       time.Time         `json:"received_at"`
	LastAttemptAt    *time.Time        `json:"last_attempt_at,omitempty"`
	LastError        string            `json:"last_error,omitempty"`
	ExpiresAt        time.Time         `json:"expires_at"`
}

// AttemptsFor returns the recorded attempts for one subscription, in order.
func (e *Event) AttemptsFor(subscriptionID string) []DeliveryAttempt {
	var out []DeliveryAttempt
	for _, a := range e.DeliveryAttempts {
		if a.SubscriptionID == subscriptionID {
			out = append(out, a)
		}
	}
	return out
}

// EventEnvelope is the queue message published by the ingest service and
// consumed by the delivery engine.
type EventEnvelope struct {
	CustomerID string          `json:"customer_id"`
	EventID    string          `json:"event_id"`
	Payload    json.RawMessage `json:"payload"`
	Timestamp  time.Time       `json:"timestamp"`
}

// Validate checks the envelope carries every required field.
func (m *EventEnvelope) Validate() error {
	if m.CustomerID == "" {
		return ErrMissingCustomerID
	}
	if m.EventID == "" {
		return ErrMissingEventID
	}
	if len(m.Payload) == 0 {
		return ErrMissingPayload
	}
	return nil
}
