// Package engine consumes queued events, matches them against customer
// subscriptions and drives webhook delivery through a bounded retry state
// machine.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/relaywire-systems/relaywire-stack/common/logging"
	"github.com/relaywire-systems/relaywire-stack/common/messaging"
	"github.com/relaywire-systems/relaywire-stack/common/models"
	"github.com/relaywire-systems/relaywire-stack/delivery/internal/matcher"
	"github.com/relaywire-systems/relaywire-stack/delivery/internal/metrics"
	"github.com/relaywire-systems/relaywire-stack/delivery/internal/repository"
	"github.com/relaywire-systems/relaywire-stack/delivery/internal/webhook"
)

// DLQPublisher publishes abandoned messages for operator inspection.
type DLQPublisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// Engine processes one queue message at a time; the broker consumer provides
// cross-message parallelism. All state lives in the event record, so a
// redelivered message resumes exactly where the attempt history left off.
type Engine struct {
	repo        repository.Repository
	matcher     *matcher.Matcher
	sender      *webhook.Sender
	dlq         DLQPublisher
	logger      *logging.Logger
	maxRetries  int
	backoffBase time.Duration
	backoffMax  time.Duration
	now         func() time.Time
}

func New(
	repo repository.Repository,
	m *matcher.Matcher,
	sender *webhook.Sender,
	dlq DLQPublisher,
	logger *logging.Logger,
	maxRetries int,
	backoffBase, backoffMax time.Duration,
) *Engine {
	return &Engine{
		repo:        repo,
		matcher:     m,
		sender:      sender,
		dlq:         dlq,
		logger:      logger,
		maxRetries:  maxRetries,
		backoffBase: backoffBase,
		backoffMax:  backoffMax,
		now:         time.Now,
	}
}

// subscription resolution states derived from the attempt history
const (
	stateSucceeded = iota
	stateExhausted
	stateAttemptNow
	stateWaiting
)

type subResolution struct {
	state int

	// delay until the next attempt is due, set for stateWaiting
	delay time.Duration

	// next attempt number, set for stateAttemptNow
	attemptNumber int
}

// HandleMessage is the queue consumer entry point. Its return value steers
// acknowledgment: nil acks, RetryAfterError re-enqueues with delay,
// PermanentError routes to the DLQ and terminates the message.
func (e *Engine) HandleMessage(ctx context.Context, msg *messaging.Message) error {
	envelope := &models.EventEnvelope{}
	if err := json.Unmarshal(msg.Data, envelope); err != nil {
		return e.abandon(ctx, msg, fmt.Errorf("malformed envelope: %w", err))
	}
	if err := envelope.Validate(); err != nil {
		return e.abandon(ctx, msg, fmt.Errorf("invalid envelope: %w", err))
	}

	log := e.logger.With(
		logging.FieldCustomerID, envelope.CustomerID,
		logging.FieldEventID, envelope.EventID,
	)

	event, err := e.repo.GetEvent(ctx, envelope.CustomerID, envelope.EventID)
	if err != nil {
		if err == repository.ErrEventNotFound {
			// Deleted from the inbox while queued; nothing left to deliver.
			log.WarnContext(ctx, "queued event has no record, dropping")
			metrics.MessagesProcessed.WithLabelValues("ack").Inc()
			return nil
		}
		return fmt.Errorf("fetch event: %w", err)
	}

	// Duplicate delivery of an already-finished event is a no-op.
	if event.Status.Terminal() {
		metrics.MessagesProcessed.WithLabelValues("ack").Inc()
		return nil
	}

	subs, err := e.repo.ActiveSubscriptions(ctx, envelope.CustomerID)
	if err != nil {
		return fmt.Errorf("fetch subscriptions: %w", err)
	}

	matched := make([]*models.Subscription, 0, len(subs))
	for _, sub := range subs {
		if e.matcher.Match(sub.Rule, envelope.Payload) {
			matched = append(matched, sub)
		}
	}

	outcome := e.deliver(ctx, envelope, event, matched, log)

	if len(outcome.retryDelays) > 0 {
		metrics.MessagesProcessed.WithLabelValues("retry").Inc()
		metrics.RetriesScheduled.Inc()
		return messaging.RetryAfter(minDelay(outcome.retryDelays),
			fmt.Errorf("%d subscription(s) awaiting retry", len(outcome.retryDelays)))
	}

	status := finalStatus(outcome)
	updated, err := e.repo.FinalizeEvent(ctx, envelope.CustomerID, envelope.EventID, status, outcome.lastError)
	if err != nil {
		return fmt.Errorf("finalize event: %w", err)
	}
	if updated {
		metrics.EventsFinalized.WithLabelValues(string(status)).Inc()
		log.InfoContext(ctx, "event finalized", logging.FieldStatus, string(status))
	}
	metrics.MessagesProcessed.WithLabelValues("ack").Inc()
	return nil
}

// abandon routes an unprocessable message to the DLQ and terminates it.
func (e *Engine) abandon(ctx context.Context, msg *messaging.Message, cause error) error {
	e.logger.ErrorContext(ctx, "abandoning malformed queue message",
		logging.FieldSubject, msg.Subject, logging.FieldError, cause)

	if err := e.dlq.Publish(ctx, messaging.DeliveryDLQSubject("malformed"), msg.Data); err != nil {
		// DLQ write failed; keep the message in the stream instead of
		// dropping it on the floor.
		return fmt.Errorf("dlq publish: %w", err)
	}

	metrics.MessagesProcessed.WithLabelValues("dlq").Inc()
	return messaging.Permanent(cause)
}

type deliveryOutcome struct {
	succeeded   int
	failed      int
	retryDelays []time.Duration
	lastError   string
}

// deliver runs one round of the per-subscription state machine. Subscriptions
// whose webhook is due are attempted concurrently; the outcome is only
// computed after every attempt in the round returns (the join barrier).
func (e *Engine) deliver(ctx context.Context, envelope *models.EventEnvelope, event *models.Event, matched []*models.Subscription, log *logging.Logger) deliveryOutcome {
	now := e.now().UTC()
	outcome := deliveryOutcome{}

	// Subscriptions that recorded attempts earlier but are no longer in the
	// matched set (disabled mid-retry, or their rule changed) still resolve
	// from history: they matched once, so they count toward failed.
	seen := make(map[string]bool, len(matched))
	for _, sub := range matched {
		seen[sub.WorkflowID] = true
	}
	for _, id := range attemptedSubscriptions(event) {
		if !seen[id] {
			res := e.resolve(event.AttemptsFor(id), now)
			if res.state == stateSucceeded {
				outcome.succeeded++
			} else {
				outcome.failed++
			}
		}
	}

	type attemptResult struct {
		result  webhook.Result
		attempt models.DeliveryAttempt
		sub     *models.Subscription
	}

	var wg sync.WaitGroup
	results := make(chan attemptResult, len(matched))

	for _, sub := range matched {
		res := e.resolve(event.AttemptsFor(sub.WorkflowID), now)
		switch res.state {
		case stateSucceeded:
			outcome.succeeded++
		case stateExhausted:
			outcome.failed++
		case stateWaiting:
			outcome.retryDelays = append(outcome.retryDelays, res.delay)
		case stateAttemptNow:
			wg.Add(1)
			go func(sub *models.Subscription, attemptNumber int) {
				defer wg.Done()
				result := e.sender.Send(ctx, sub.WebhookURL, []webhook.Item{webhook.ItemFromEnvelope(envelope)})
				results <- attemptResult{
					result:  result,
					attempt: e.buildAttempt(sub.WorkflowID, attemptNumber, now, result),
					sub:     sub,
				}
			}(sub, res.attemptNumber)
		}
	}

	wg.Wait()
	close(results)

	for r := range results {
		if err := e.repo.AppendAttempt(ctx, envelope.CustomerID, envelope.EventID, r.attempt); err != nil {
			log.ErrorContext(ctx, "failed to record delivery attempt",
				logging.FieldSubscriptionID, r.sub.WorkflowID, logging.FieldError, err)
		}

		switch r.result.Outcome {
		case models.OutcomeSuccess:
			outcome.succeeded++
		case models.OutcomeGone:
			if err := e.repo.DisableSubscription(ctx, r.sub.WorkflowID); err != nil {
				log.ErrorContext(ctx, "failed to disable gone subscription",
					logging.FieldSubscriptionID, r.sub.WorkflowID, logging.FieldError, err)
			} else {
				metrics.SubscriptionsDisabled.Inc()
				log.WarnContext(ctx, "subscription disabled after 410",
					logging.FieldSubscriptionID, r.sub.WorkflowID,
					logging.FieldWebhookURL, r.sub.WebhookURL)
			}
			outcome.failed++
			outcome.lastError = attemptError(r.attempt)
		case models.OutcomePermanent:
			outcome.failed++
			outcome.lastError = attemptError(r.attempt)
		case models.OutcomeTransient:
			if r.attempt.NextRetryAt != nil {
				outcome.retryDelays = append(outcome.retryDelays, r.attempt.NextRetryAt.Sub(now))
			} else {
				// Retries exhausted on this attempt.
				outcome.failed++
				outcome.lastError = attemptError(r.attempt)
			}
		}
	}

	return outcome
}

// resolve classifies one subscription from its attempt history.
func (e *Engine) resolve(attempts []models.DeliveryAttempt, now time.Time) subResolution {
	for _, a := range attempts {
		switch a.Outcome {
		case models.OutcomeSuccess:
			return subResolution{state: stateSucceeded}
		case models.OutcomeGone, models.OutcomePermanent:
			return subResolution{state: stateExhausted}
		}
	}

	n := len(attempts)
	if n >= e.maxRetries {
		return subResolution{state: stateExhausted}
	}

	if n > 0 {
		last := attempts[n-1]
		if last.NextRetryAt != nil && now.Before(*last.NextRetryAt) {
			return subResolution{state: stateWaiting, delay: last.NextRetryAt.Sub(now)}
		}
	}

	return subResolution{state: stateAttemptNow, attemptNumber: n + 1}
}

func (e *Engine) buildAttempt(subscriptionID string, attemptNumber int, now time.Time, result webhook.Result) models.DeliveryAttempt {
	attempt := models.DeliveryAttempt{
		SubscriptionID: subscriptionID,
		AttemptNumber:  attemptNumber,
		Timestamp:      now,
		HTTPStatus:     result.HTTPStatus,
		Outcome:        result.Outcome,
	}
	if result.Err != nil {
		attempt.Error = result.Err.Error()
	}

	// next_retry_at is only set while the pair stays retryable.
	if result.Outcome == models.OutcomeTransient && attemptNumber < e.maxRetries {
		next := now.Add(e.backoff(attemptNumber))
		attempt.NextRetryAt = &next
	}

	return attempt
}

// backoff computes the delay after the given attempt number (1-based):
// min(base * 2^(n-1), max). Monotonic in n.
func (e *Engine) backoff(attemptNumber int) time.Duration {
	delay := e.backoffBase
	for i := 1; i < attemptNumber; i++ {
		delay *= 2
		if delay >= e.backoffMax {
			return e.backoffMax
		}
	}
	if delay > e.backoffMax {
		return e.backoffMax
	}
	return delay
}

func finalStatus(outcome deliveryOutcome) models.EventStatus {
	switch {
	case outcome.succeeded > 0:
		return models.StatusDelivered
	case outcome.failed > 0:
		return models.StatusFailed
	default:
		return models.StatusUnmatched
	}
}

func attemptError(attempt models.DeliveryAttempt) string {
	if attempt.Error != "" {
		return attempt.Error
	}
	return fmt.Sprintf("webhook returned HTTP %d", attempt.HTTPStatus)
}

// attemptedSubscriptions returns the distinct subscription IDs present in the
// event's attempt history, in first-seen order.
func attemptedSubscriptions(event *models.Event) []string {
	seen := map[string]bool{}
	out := []string{}
	for _, a := range event.DeliveryAttempts {
		if !seen[a.SubscriptionID] {
			seen[a.SubscriptionID] = true
			out = append(out, a.SubscriptionID)
		}
	}
	return out
}

func minDelay(delays []time.Duration) time.Duration {
	min := delays[0]
	for _, d := range delays[1:] {
		if d < min {
			min = d
		}
	}
	if min < time.Second {
		min = time.Second
	}
	return min
}
