// Package messaging defines the broker-neutral interfaces the services use
// to publish and consume events, plus the subject and consumer naming shared
// between them. The NATS implementation lives in the nats subpackage.
package messaging

import (
	"context"
	"time"
)

// Message is one broker message, decoupled from any broker's wire type.
type Message struct {
	// Subject the message was published to.
	Subject string

	// Data is the raw payload.
	Data []byte

	// Reply is the response subject for request/reply exchanges, when set.
	Reply string

	// Metadata carries message headers.
	Metadata map[string]string

	// Timestamp is when the message was published.
	Timestamp time.Time
}

// MessageHandler processes one received message. The returned error steers
// acknowledgement: nil acks, IsPermanent terminates redelivery, a
// RetryAfterError schedules redelivery after its delay.
type MessageHandler func(ctx context.Context, msg *Message) error

// Subscription is an active subscription to a subject.
type Subscription interface {
	// Unsubscribe stops receiving messages.
	Unsubscribe() error

	// Subject this subscription listens on.
	Subject() string

	// IsValid reports whether the subscription is still active.
	IsValid() bool
}

// Publisher publishes messages to subjects.
type Publisher interface {
	// Publish sends fire-and-forget; use Request for request/reply.
	Publish(ctx context.Context, subject string, data []byte) error

	// PublishMsg sends a Message with headers attached.
	PublishMsg(ctx context.Context, msg *Message) error

	// Request sends and waits up to timeout for a response.
	Request(ctx context.Context, subject string, data []byte, timeout time.Duration) (*Message, error)

	// Close releases the connection.
	Close() error
}

// Subscriber consumes messages from subjects.
type Subscriber interface {
	// Subscribe delivers every message on subject to handler (fan-out).
	Subscribe(subject string, handler MessageHandler) (Subscription, error)

	// QueueSubscribe load-balances messages across subscribers sharing the
	// queue group, for worker pools where each message runs once.
	QueueSubscribe(subject, queue string, handler MessageHandler) (Subscription, error)

	// Close unsubscribes everything and releases the connection.
	Close() error
}

// Client is the full broker surface the services program against.
type Client interface {
	Publisher
	Subscriber

	// Drain closes gracefully, letting in-flight messages finish.
	Drain() error

	// IsConnected reports broker connectivity.
	IsConnected() bool
}
