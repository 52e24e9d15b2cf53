package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/relaywire-systems/relaywire-stack/common/logging"
	"github.com/relaywire-systems/relaywire-stack/common/messaging"
	"github.com/relaywire-systems/relaywire-stack/common/models"
	"github.com/relaywire-systems/relaywire-stack/ingest/internal/idempotency"
	"github.com/relaywire-systems/relaywire-stack/ingest/internal/metrics"
	"github.com/relaywire-systems/relaywire-stack/ingest/internal/ratelimit"
	"github.com/relaywire-systems/relaywire-stack/ingest/internal/repository"
)

var (
	// ErrPayloadTooLarge is returned when the submitted payload exceeds the
	// configured maximum event size.
	ErrPayloadTooLarge = errors.New("payload exceeds maximum event size")

	// ErrEmptyPayload is returned when the request carries no payload.
	ErrEmptyPayload = errors.New("payload is required")

	// ErrIdempotencyUnavailable marks an idempotency cache failure.
	// Submissions fail closed: without the reservation a retried request
	// could create a second event.
	ErrIdempotencyUnavailable = errors.New("idempotency cache unavailable")
)

// RateLimitedError carries the wait hint for a throttled submission.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limit exceeded, retry after %s", e.RetryAfter)
}

// Publisher is the piece of the queue client the service needs.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// SubmitResult is the accepted-event acknowledgement returned to the client.
type SubmitResult struct {
	EventID   string    `json:"event_id"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// ListResult is one page of a customer's inbox.
type ListResult struct {
	Events  []*models.Event `json:"events"`
	Total   int             `json:"total"`
	HasMore bool            `json:"has_more"`
}

// IngestService implements event submission and inbox management.
type IngestService struct {
	repo       repository.Repository
	idem       idempotency.Cache
	limiter    ratelimit.RateLimiter
	publisher  Publisher
	logger     *logging.Logger
	maxSize    int
	eventTTL   time.Duration
	now        func() time.Time
	newID      func() string
	stopPurger context.CancelFunc
	purgerDone chan struct{}
}

// NewIngestService wires the submission pipeline.
func NewIngestService(
	repo repository.Repository,
	idem idempotency.Cache,
	limiter ratelimit.RateLimiter,
	publisher Publisher,
	logger *logging.Logger,
	maxSize int,
	eventTTL time.Duration,
) *IngestService {
	return &IngestService{
		repo:      repo,
		idem:      idem,
		limiter:   limiter,
		publisher: publisher,
		logger:    logger,
		maxSize:   maxSize,
		eventTTL:  eventTTL,
		now:       time.Now,
		newID:     func() string { return uuid.New().String() },
	}
}

// Submit runs the full ingestion pipeline for one event. When idempotencyKey
// is non-empty a replayed submission returns the original acknowledgement
// without creating a second event.
func (s *IngestService) Submit(ctx context.Context, customerID string, payload json.RawMessage, idempotencyKey string) (*SubmitResult, error) {
	timer := time.Now()
	defer func() {
		metrics.SubmitDuration.Observe(time.Since(timer).Seconds())
	}()

	if len(payload) == 0 {
		metrics.EventsRejected.WithLabelValues(customerID, "empty").Inc()
		return nil, ErrEmptyPayload
	}
	if len(payload) > s.maxSize {
		metrics.EventsRejected.WithLabelValues(customerID, "too_large").Inc()
		return nil, ErrPayloadTooLarge
	}

	// Idempotency check comes before rate limiting so that replays of an
	// already-accepted event do not consume quota.
	reserved := false
	if idempotencyKey != "" {
		res, err := s.idem.CheckAndReserve(ctx, customerID, idempotencyKey)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrIdempotencyUnavailable, err)
		}
		if !res.Reserved {
			metrics.IdempotencyHits.Inc()
			result := &SubmitResult{}
			if err := json.Unmarshal(res.Response, result); err != nil {
				return nil, fmt.Errorf("failed to decode cached response: %w", err)
			}
			return result, nil
		}
		reserved = true
	}

	release := func() {
		if !reserved {
			return
		}
		if err := s.idem.Release(ctx, customerID, idempotencyKey); err != nil {
			s.logger.WarnContext(ctx, "failed to release idempotency reservation",
				logging.FieldCustomerID, customerID, logging.FieldError, err)
		}
	}

	decision, err := s.limiter.Admit(ctx, customerID)
	if err != nil {
		release()
		return nil, fmt.Errorf("rate limit check failed: %w", err)
	}
	if !decision.Allowed {
		release()
		metrics.RateLimitHits.WithLabelValues(customerID).Inc()
		return nil, &RateLimitedError{RetryAfter: decision.RetryAfter}
	}

	now := s.now().UTC()
	event := &models.Event{
		CustomerID: customerID,
		ID:         s.newID(),
		Payload:    payload,
		Status:     models.StatusPending,
		ReceivedAt: now,
		ExpiresAt:  now.Add(s.eventTTL),
	}

	// The durable write happens before the queue publish. A crash between
	// the two leaves a pending row, never a queued message with no backing
	// row.
	if err := s.repo.InsertEvent(ctx, event); err != nil {
		release()
		return nil, fmt.Errorf("failed to store event: %w", err)
	}

	envelope := models.EventEnvelope{
		CustomerID: customerID,
		EventID:    event.ID,
		Payload:    payload,
		Timestamp:  now,
	}
	data, err := json.Marshal(envelope)
	if err != nil {
		release()
		return nil, fmt.Errorf("failed to encode envelope: %w", err)
	}
	if err := s.publisher.Publish(ctx, messaging.EventReceivedSubject(customerID), data); err != nil {
		release()
		return nil, fmt.Errorf("failed to enqueue event: %w", err)
	}

	result := &SubmitResult{
		EventID:   event.ID,
		Status:    "accepted",
		Timestamp: now,
	}

	if reserved {
		cached, err := json.Marshal(result)
		if err == nil {
			err = s.idem.Finalize(ctx, customerID, idempotencyKey, event.ID, cached)
		}
		if err != nil {
			// The event is durable and queued. A lost finalize only means a
			// replay within the reservation window gets 409 instead of the
			// cached acknowledgement.
			s.logger.WarnContext(ctx, "failed to finalize idempotency key",
				logging.FieldCustomerID, customerID,
				logging.FieldEventID, event.ID,
				logging.FieldError, err)
		}
	}

	metrics.EventsAccepted.WithLabelValues(customerID).Inc()
	metrics.EventBytesTotal.Add(float64(len(payload)))
	s.logger.InfoContext(ctx, "event accepted",
		logging.FieldCustomerID, customerID,
		logging.FieldEventID, event.ID)

	return result, nil
}

// ListInbox returns a filtered page of the customer's events.
func (s *IngestService) ListInbox(ctx context.Context, customerID string, filter repository.ListFilter) (*ListResult, error) {
	events, total, err := s.repo.ListEvents(ctx, customerID, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list inbox: %w", err)
	}

	return &ListResult{
		Events:  events,
		Total:   total,
		HasMore: filter.Offset+len(events) < total,
	}, nil
}

// DeleteEvent removes a customer's event. Missing or foreign events surface
// repository.ErrEventNotFound.
func (s *IngestService) DeleteEvent(ctx context.Context, customerID, eventID string) error {
	if err := s.repo.DeleteEvent(ctx, customerID, eventID); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "event deleted",
		logging.FieldCustomerID, customerID,
		logging.FieldEventID, eventID)
	return nil
}

// StartPurger runs TTL cleanup on the given interval until Stop is called.
func (s *IngestService) StartPurger(interval time.Duration) {
	ctx, cancel := context.WithCancel(context.Background())
	s.stopPurger = cancel
	s.purgerDone = make(chan struct{})

	go func() {
		defer close(s.purgerDone)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.purgeOnce(ctx)
			}
		}
	}()
}

func (s *IngestService) purgeOnce(ctx context.Context) {
	purgeCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	count, err := s.repo.PurgeExpired(purgeCtx, s.now().UTC())
	if err != nil {
		s.logger.ErrorContext(purgeCtx, "failed to purge expired events", logging.FieldError, err)
		return
	}
	if count > 0 {
		metrics.EventsPurged.Add(float64(count))
		s.logger.InfoContext(purgeCtx, "purged expired events", "count", count)
	}
}

// Stop halts the background purger.
func (s *IngestService) Stop() {
	if s.stopPurger != nil {
		s.stopPurger()
		<-s.purgerDone
	}
}
