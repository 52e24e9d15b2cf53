// Package webhook performs the outbound HTTP delivery calls and classifies
// their results for the retry state machine.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/relaywire-systems/relaywire-stack/common/models"
	"github.com/relaywire-systems/relaywire-stack/common/signing"
	"github.com/relaywire-systems/relaywire-stack/delivery/internal/metrics"
)

// Result is the classified outcome of one delivery attempt. Outcome is one
// of the models.Outcome* values: success (2xx), gone (410, endpoint must be
// disabled), permanent (other 4xx except 429), transient (429, 5xx, timeout,
// network error).
type Result struct {
	Outcome    string
	HTTPStatus int
	Err        error
}

// Item is one event in the delivery batch body.
type Item struct {
	EventID    string          `json:"event_id"`
	CustomerID string          `json:"customer_id"`
	Payload    json.RawMessage `json:"payload"`
	Timestamp  time.Time       `json:"timestamp"`
}

// ItemFromEnvelope builds the delivery body entry for a queued event.
func ItemFromEnvelope(envelope *models.EventEnvelope) Item {
	return Item{
		EventID:    envelope.EventID,
		CustomerID: envelope.CustomerID,
		Payload:    envelope.Payload,
		Timestamp:  envelope.Timestamp,
	}
}

// Sender posts event batches to subscriber webhooks. When a signer is set,
// each request carries an HMAC signature header over the body.
type Sender struct {
	client *http.Client
	signer *signing.Signer
}

// NewSender builds a sender with the given per-attempt timeout. A nil signer
// sends unsigned requests.
func NewSender(timeout time.Duration, signer *signing.Signer) *Sender {
	return &Sender{
		client: &http.Client{Timeout: timeout},
		signer: signer,
	}
}

// NewSenderWithClient is used by tests.
func NewSenderWithClient(client *http.Client) *Sender {
	return &Sender{client: client}
}

// Send posts items to url as a JSON array and classifies the response.
// It never returns an error for delivery failures; the classification in
// Result is the contract.
func (s *Sender) Send(ctx context.Context, url string, items []Item) Result {
	body, err := json.Marshal(items)
	if err != nil {
		return Result{Outcome: models.OutcomePermanent, Err: fmt.Errorf("encode delivery body: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Result{Outcome: models.OutcomePermanent, Err: fmt.Errorf("build delivery request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	if s.signer != nil {
		req.Header.Set(signing.Header, s.signer.Sign(time.Now().UTC(), body))
	}

	start := time.Now()
	resp, err := s.client.Do(req)
	metrics.WebhookDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		// Timeouts and connection failures are indistinguishable here and
		// equally retryable.
		result := Result{Outcome: models.OutcomeTransient, Err: err}
		metrics.WebhookAttempts.WithLabelValues(result.Outcome).Inc()
		return result
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	result := Result{HTTPStatus: resp.StatusCode, Outcome: classify(resp.StatusCode)}
	metrics.WebhookAttempts.WithLabelValues(result.Outcome).Inc()
	return result
}

func classify(status int) string {
	switch {
	case status >= 200 && status < 300:
		return models.OutcomeSuccess
	case status == http.StatusGone:
		return models.OutcomeGone
	case status == http.StatusTooManyRequests:
		return models.OutcomeTransient
	case status >= 400 && status < 500:
		return models.OutcomePermanent
	default:
		return models.OutcomeTransient
	}
}
