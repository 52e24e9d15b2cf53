package messaging

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestRetryAfter(t *testing.T) {
	base := errors.New("connection refused")
	err := RetryAfter(5*time.Second, base)

	re, ok := AsRetryAfter(err)
	if !ok {
		t.Fatal("expected RetryAfterError")
	}
	if re.Delay != 5*time.Second {
		t.Errorf("expected delay 5s, got %v", re.Delay)
	}
	if !errors.Is(err, base) {
		t.Error("expected wrapped error to survive")
	}
}

func TestRetryAfter_Wrapped(t *testing.T) {
	err := fmt.Errorf("handler: %w", RetryAfter(time.Second, errors.New("boom")))
	if _, ok := AsRetryAfter(err); !ok {
		t.Error("expected RetryAfterError through wrapping")
	}
}

func TestPermanent(t *testing.T) {
	base := errors.New("malformed message")
	err := Permanent(base)

	if !IsPermanent(err) {
		t.Error("expected permanent error")
	}
	if !errors.Is(err, base) {
		t.Error("expected wrapped error to survive")
	}
	if _, ok := AsRetryAfter(err); ok {
		t.Error("permanent error should not be retryable")
	}
}

func TestIsPermanent_PlainError(t *testing.T) {
	if IsPermanent(errors.New("plain")) {
		t.Error("plain error should not be permanent")
	}
}
