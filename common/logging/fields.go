package logging

import "log/slog"

// Common field names for consistent logging across services.
const (
	FieldService        = "service"
	FieldRequestID      = "request_id"
	FieldCustomerID     = "customer_id"
	FieldEventID        = "event_id"
	FieldWorkflowID     = "workflow_id"
	FieldSubscriptionID = "subscription_id"
	FieldAttempt        = "attempt"
	FieldSubject        = "subject"
	FieldWebhookURL     = "webhook_url"
	FieldIP             = "ip"
	FieldMethod         = "method"
	FieldPath           = "path"
	FieldStatus         = "status"
	FieldDuration       = "duration_ms"
	FieldError          = "error"
)

// Service returns a slog attribute for the service name.
func Service(name string) slog.Attr {
	return slog.String(FieldService, name)
}

// CustomerID returns a slog attribute for the customer ID.
func CustomerID(id string) slog.Attr {
	return slog.String(FieldCustomerID, id)
}

// EventID returns a slog attribute for an event ID.
func EventID(id string) slog.Attr {
	return slog.String(FieldEventID, id)
}

// WorkflowID returns a slog attribute for a subscription workflow ID.
func WorkflowID(id string) slog.Attr {
	return slog.String(FieldWorkflowID, id)
}

// SubscriptionID returns a slog attribute for a subscription ID.
func SubscriptionID(id string) slog.Attr {
	return slog.String(FieldSubscriptionID, id)
}

// Attempt returns a slog attribute for a delivery attempt number.
func Attempt(n int) slog.Attr {
	return slog.Int(FieldAttempt, n)
}

// Subject returns a slog attribute for a message bus subject.
func Subject(subject string) slog.Attr {
	return slog.String(FieldSubject, subject)
}

// WebhookURL returns a slog attribute for a webhook target URL.
func WebhookURL(url string) slog.Attr {
	return slog.String(FieldWebhookURL, url)
}

// IP returns a slog attribute for the IP address.
func IP(ip string) slog.Attr {
	return slog.String(FieldIP, ip)
}

// Method returns a slog attribute for the HTTP method.
func Method(method string) slog.Attr {
	return slog.String(FieldMethod, method)
}

// Path returns a slog attribute for the HTTP path.
func Path(path string) slog.Attr {
	return slog.String(FieldPath, path)
}

// Status returns a slog attribute for the HTTP status code.
func Status(code int) slog.Attr {
	return slog.Int(FieldStatus, code)
}

// Duration returns a slog attribute for duration in milliseconds.
func Duration(ms int64) slog.Attr {
	return slog.Int64(FieldDuration, ms)
}

// Error returns a slog attribute for an error.
func Error(err error) slog.Attr {
	return slog.String(FieldError, err.Error())
}
