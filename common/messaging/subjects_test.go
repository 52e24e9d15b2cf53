package messaging

import (
	"strings"
	"testing"
)

func TestSubjectConstants_Defined(t *testing.T) {
	subjects := map[string]string{
		"SubjectEventsReceived": SubjectEventsReceived,
		"SubjectDeliveryDLQ":    SubjectDeliveryDLQ,
	}

	for name, value := range subjects {
		if value == "" {
			t.Errorf("%s is empty", name)
		}
	}
}

func TestSubjectConstants_FollowNamingConvention(t *testing.T) {
	// Subjects follow the pattern: {domain}.{action}
	subjects := []string{
		SubjectEventsReceived,
		SubjectDeliveryDLQ,
	}

	for _, s := range subjects {
		if strings.Count(s, ".") < 1 {
			t.Errorf("subject %q does not follow domain.action convention", s)
		}
		if strings.HasSuffix(s, ".") || strings.HasPrefix(s, ".") {
			t.Errorf("subject %q has a dangling separator", s)
		}
	}
}

func TestEventReceivedSubject(t *testing.T) {
	got := EventReceivedSubject("acme")
	if got != "events.received.acme" {
		t.Errorf("expected events.received.acme, got %q", got)
	}
}

func TestDeliveryDLQSubject(t *testing.T) {
	got := DeliveryDLQSubject("malformed")
	if got != "dlq.delivery.malformed" {
		t.Errorf("expected dlq.delivery.malformed, got %q", got)
	}
}
