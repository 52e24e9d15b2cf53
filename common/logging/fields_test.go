package logging

import (
	"errors"
	"log/slog"
	"testing"
)

func TestService(t *testing.T) {
	attr := Service("ingest")
	if attr.Key != FieldService {
		t.Errorf("expected key %q, got %q", FieldService, attr.Key)
	}
	if attr.Value.String() != "ingest" {
		t.Errorf("expected value %q, got %q", "ingest", attr.Value.String())
	}
}

func TestCustomerID(t *testing.T) {
	attr := CustomerID("acme")
	if attr.Key != FieldCustomerID {
		t.Errorf("expected key %q, got %q", FieldCustomerID, attr.Key)
	}
	if attr.Value.String() != "acme" {
		t.Errorf("expected value %q, got %q", "acme", attr.Value.String())
	}
}

func TestEventID(t *testing.T) {
	attr := EventID("evt-123")
	if attr.Key != FieldEventID {
		t.Errorf("expected key %q, got %q", FieldEventID, attr.Key)
	}
	if attr.Value.String() != "evt-123" {
		t.Errorf("expected value %q, got %q", "evt-123", attr.Value.String())
	}
}

func TestSubscriptionID(t *testing.T) {
	attr := SubscriptionID("sub-1")
	if attr.Key != FieldSubscriptionID {
		t.Errorf("expected key %q, got %q", FieldSubscriptionID, attr.Key)
	}
	if attr.Value.String() != "sub-1" {
		t.Errorf("expected value %q, got %q", "sub-1", attr.Value.String())
	}
}

func TestAttempt(t *testing.T) {
	attr := Attempt(3)
	if attr.Key != FieldAttempt {
		t.Errorf("expected key %q, got %q", FieldAttempt, attr.Key)
	}
	if attr.Value.Kind() != slog.KindInt64 {
		t.Errorf("expected int64 kind, got %v", attr.Value.Kind())
	}
	if attr.Value.Int64() != 3 {
		t.Errorf("expected value 3, got %d", attr.Value.Int64())
	}
}

func TestMethod(t *testing.T) {
	attr := Method("POST")
	if attr.Key != FieldMethod {
		t.Errorf("expected key %q, got %q", FieldMethod, attr.Key)
	}
	if attr.Value.String() != "POST" {
		t.Errorf("expected value %q, got %q", "POST", attr.Value.String())
	}
}

func TestPath(t *testing.T) {
	attr := Path("/events")
	if attr.Key != FieldPath {
		t.Errorf("expected key %q, got %q", FieldPath, attr.Key)
	}
	if attr.Value.String() != "/events" {
		t.Errorf("expected value %q, got %q", "/events", attr.Value.String())
	}
}

func TestStatus(t *testing.T) {
	attr := Status(202)
	if attr.Key != FieldStatus {
		t.Errorf("expected key %q, got %q", FieldStatus, attr.Key)
	}
	if attr.Value.Int64() != 202 {
		t.Errorf("expected value 202, got %d", attr.Value.Int64())
	}
}

func TestDuration(t *testing.T) {
	attr := Duration(42)
	if attr.Key != FieldDuration {
		t.Errorf("expected key %q, got %q", FieldDuration, attr.Key)
	}
	if attr.Value.Int64() != 42 {
		t.Errorf("expected value 42, got %d", attr.Value.Int64())
	}
}

func TestError(t *testing.T) {
	attr := Error(errors.New("boom"))
	if attr.Key != FieldError {
		t.Errorf("expected key %q, got %q", FieldError, attr.Key)
	}
	if attr.Value.String() != "boom" {
		t.Errorf("expected value %q, got %q", "boom", attr.Value.String())
	}
}
