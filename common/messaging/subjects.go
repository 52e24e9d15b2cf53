// Package messaging defines standard subject names for the Relaywire message bus.
package messaging

// Subject constants for the Relaywire message bus.
// Follow the pattern: {domain}.{action}.{resource}
const (
	// SubjectEventsReceived carries newly ingested events awaiting delivery.
	// Append .{customer_id} for the concrete subject.
	SubjectEventsReceived = "events.received"

	// SubjectDeliveryDLQ holds queue messages the delivery engine gave up on.
	// Append .{reason} for the concrete subject.
	SubjectDeliveryDLQ = "dlq.delivery"
)

// Queue group / durable consumer names for load-balanced consumers.
// Workers in the same group share messages (each message processed once).
const (
	ConsumerDeliveryWorkers = "delivery-workers"
)

// EventReceivedSubject returns the subject for one customer's events.
// Example: events.received.acme
func EventReceivedSubject(customerID string) string {
	return SubjectEventsReceived + "." + customerID
}

// DeliveryDLQSubject returns the DLQ subject for a failure reason.
// Example: dlq.delivery.malformed
func DeliveryDLQSubject(reason string) string {
	return SubjectDeliveryDLQ + "." + reason
}
