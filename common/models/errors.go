package models

import "errors"

// Validation errors shared by the envelope and subscription checks.
var (
	ErrMissingCustomerID = errors.New("customer_id is required")
	ErrMissingEventID    = errors.New("event_id is required")
	ErrMissingPayload    = errors.New("payload is required")
)
