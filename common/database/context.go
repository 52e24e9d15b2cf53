// Package database provides the context timeouts the repositories apply to
// Postgres calls, so a stuck database surfaces as a bounded error instead of
// a wedged request.
package database

import (
	"context"
	"time"
)

const (
	// DefaultQueryTimeout bounds reads.
	DefaultQueryTimeout = 5 * time.Second

	// DefaultWriteTimeout bounds single-row writes.
	DefaultWriteTimeout = 10 * time.Second

	// DefaultBulkTimeout bounds purges and other multi-row work.
	DefaultBulkTimeout = 30 * time.Second
)

// QueryContext derives a context for SELECTs.
func QueryContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, DefaultQueryTimeout)
}

// WriteContext derives a context for INSERT, UPDATE and DELETE.
func WriteContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, DefaultWriteTimeout)
}

// BulkContext derives a context for bulk statements.
func BulkContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, DefaultBulkTimeout)
}
