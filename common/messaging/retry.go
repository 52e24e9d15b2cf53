package messaging

import (
	"errors"
	"fmt"
	"time"
)

// Metadata keys set on messages delivered from a durable consumer.
const (
	// MetaNumDelivered is the broker delivery count for the message,
	// starting at 1 on first delivery.
	MetaNumDelivered = "Num-Delivered"
)

// RetryAfterError tells the broker adapter to redeliver the message after
// Delay instead of holding the worker. Handlers return it (wrapped or bare)
// when processing should be retried later.
type RetryAfterError struct {
	Delay time.Duration
	Err   error
}

func (e *RetryAfterError) Error() string {
	return fmt.Sprintf("retry after %s: %v", e.Delay, e.Err)
}

func (e *RetryAfterError) Unwrap() error { return e.Err }

// RetryAfter wraps err so the adapter redelivers the message after delay.
func RetryAfter(delay time.Duration, err error) error {
	return &RetryAfterError{Delay: delay, Err: err}
}

// PermanentError tells the broker adapter the message must not be
// redelivered. The adapter terminates the message; the handler is expected
// to have routed it to a dead-letter destination first.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("permanent: %v", e.Err)
}

func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err as non-redeliverable.
func Permanent(err error) error {
	return &PermanentError{Err: err}
}

// AsRetryAfter extracts a RetryAfterError from err's chain.
func AsRetryAfter(err error) (*RetryAfterError, bool) {
	var re *RetryAfterError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}

// IsPermanent reports whether err's chain marks the message non-redeliverable.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}
