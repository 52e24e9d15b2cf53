package engine

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaywire-systems/relaywire-stack/common/logging"
	"github.com/relaywire-systems/relaywire-stack/common/messaging"
	"github.com/relaywire-systems/relaywire-stack/common/models"
	"github.com/relaywire-systems/relaywire-stack/delivery/internal/matcher"
	"github.com/relaywire-systems/relaywire-stack/delivery/internal/repository"
	"github.com/relaywire-systems/relaywire-stack/delivery/internal/webhook"
)

// In-memory repository standing in for Postgres.

type fakeRepo struct {
	mu     sync.Mutex
	events map[string]*models.Event
	subs   map[string]*models.Subscription
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		events: map[string]*models.Event{},
		subs:   map[string]*models.Subscription{},
	}
}

func (f *fakeRepo) key(customerID, eventID string) string { return customerID + "/" + eventID }

func (f *fakeRepo) addEvent(e *models.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events[f.key(e.CustomerID, e.ID)] = e
}

func (f *fakeRepo) addSubscription(s *models.Subscription) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs[s.WorkflowID] = s
}

func (f *fakeRepo) GetEvent(ctx context.Context, customerID, eventID string) (*models.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.events[f.key(customerID, eventID)]
	if !ok {
		return nil, repository.ErrEventNotFound
	}
	clone := *e
	clone.DeliveryAttempts = append([]models.DeliveryAttempt(nil), e.DeliveryAttempts...)
	return &clone, nil
}

func (f *fakeRepo) AppendAttempt(ctx context.Context, customerID, eventID string, attempt models.DeliveryAttempt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.events[f.key(customerID, eventID)]
	if !ok || e.Status != models.StatusPending {
		return nil
	}
	e.DeliveryAttempts = append(e.DeliveryAttempts, attempt)
	e.LastAttemptAt = &attempt.Timestamp
	return nil
}

func (f *fakeRepo) FinalizeEvent(ctx context.Context, customerID, eventID string, status models.EventStatus, lastError string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.events[f.key(customerID, eventID)]
	if !ok || e.Status != models.StatusPending {
		return false, nil
	}
	e.Status = status
	if lastError != "" {
		e.LastError = lastError
	}
	return true, nil
}

func (f *fakeRepo) ActiveSubscriptions(ctx context.Context, customerID string) ([]*models.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []*models.Subscription{}
	for _, s := range f.subs {
		if s.CustomerID == customerID && s.Status == models.SubscriptionActive {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeRepo) DisableSubscription(ctx context.Context, workflowID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.subs[workflowID]; ok {
		s.Status = models.SubscriptionDisabled
	}
	return nil
}

func (f *fakeRepo) Close() error { return nil }

type fakeDLQ struct {
	mu       sync.Mutex
	subjects []string
	payloads [][]byte
}

func (f *fakeDLQ) Publish(ctx context.Context, subject string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subjects = append(f.subjects, subject)
	f.payloads = append(f.payloads, data)
	return nil
}

// countingServer answers every request with the configured status and counts
// calls.
type countingServer struct {
	*httptest.Server
	mu    sync.Mutex
	calls int
}

func newCountingServer(status int) *countingServer {
	cs := &countingServer{}
	cs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cs.mu.Lock()
		cs.calls++
		cs.mu.Unlock()
		w.WriteHeader(status)
	}))
	return cs
}

func (cs *countingServer) callCount() int {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.calls
}

const testMaxRetries = 3

func newTestEngine(repo repository.Repository, dlq DLQPublisher) *Engine {
	logger := logging.New(slog.LevelError, "text")
	e := New(repo, matcher.New(logger), webhook.NewSender(time.Second, nil), dlq, logger,
		testMaxRetries, time.Second, 30*time.Second)
	e.now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }
	return e
}

func pendingEvent(customerID, eventID string, payload string) *models.Event {
	return &models.Event{
		CustomerID: customerID,
		ID:         eventID,
		Payload:    json.RawMessage(payload),
		Status:     models.StatusPending,
		ReceivedAt: time.Date(2025, 6, 1, 11, 59, 0, 0, time.UTC),
	}
}

func orderSubscription(workflowID, customerID, url string) *models.Subscription {
	return &models.Subscription{
		WorkflowID: workflowID,
		CustomerID: customerID,
		Rule:       models.EventTypeRule{Value: "order.created"},
		WebhookURL: url,
		Status:     models.SubscriptionActive,
	}
}

func queueMessage(t *testing.T, customerID, eventID, payload string) *messaging.Message {
	t.Helper()
	data, err := json.Marshal(models.EventEnvelope{
		CustomerID: customerID,
		EventID:    eventID,
		Payload:    json.RawMessage(payload),
		Timestamp:  time.Date(2025, 6, 1, 11, 59, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	return &messaging.Message{Subject: "events.received." + customerID, Data: data}
}

// advance moves the engine clock forward.
func advance(e *Engine, d time.Duration) {
	current := e.now()
	e.now = func() time.Time { return current.Add(d) }
}

func TestHandleMessage_DeliveredOnFirstSuccess(t *testing.T) {
	srv := newCountingServer(http.StatusOK)
	defer srv.Close()

	repo := newFakeRepo()
	repo.addEvent(pendingEvent("acme", "evt-1", `{"event_type":"order.created","order_id":"1"}`))
	repo.addSubscription(orderSubscription("wf-1", "acme", srv.URL))

	e := newTestEngine(repo, &fakeDLQ{})
	err := e.HandleMessage(context.Background(), queueMessage(t, "acme", "evt-1", `{"event_type":"order.created","order_id":"1"}`))
	require.NoError(t, err)

	event, _ := repo.GetEvent(context.Background(), "acme", "evt-1")
	assert.Equal(t, models.StatusDelivered, event.Status)
	require.Len(t, event.DeliveryAttempts, 1)
	assert.Equal(t, models.OutcomeSuccess, event.DeliveryAttempts[0].Outcome)
	assert.Equal(t, 1, event.DeliveryAttempts[0].AttemptNumber)
	assert.Equal(t, http.StatusOK, event.DeliveryAttempts[0].HTTPStatus)
	assert.Nil(t, event.DeliveryAttempts[0].NextRetryAt)
	assert.Equal(t, 1, srv.callCount())
}

func TestHandleMessage_UnmatchedWithNoSubscriptions(t *testing.T) {
	repo := newFakeRepo()
	repo.addEvent(pendingEvent("acme", "evt-1", `{"event_type":"order.created"}`))

	e := newTestEngine(repo, &fakeDLQ{})
	err := e.HandleMessage(context.Background(), queueMessage(t, "acme", "evt-1", `{"event_type":"order.created"}`))
	require.NoError(t, err)

	event, _ := repo.GetEvent(context.Background(), "acme", "evt-1")
	assert.Equal(t, models.StatusUnmatched, event.Status)
	assert.Empty(t, event.DeliveryAttempts)
}

func TestHandleMessage_UnmatchedWhenRuleDoesNotMatch(t *testing.T) {
	srv := newCountingServer(http.StatusOK)
	defer srv.Close()

	repo := newFakeRepo()
	repo.addEvent(pendingEvent("acme", "evt-2", `{"event_type":"order.shipped"}`))
	repo.addSubscription(orderSubscription("wf-1", "acme", srv.URL))

	e := newTestEngine(repo, &fakeDLQ{})
	err := e.HandleMessage(context.Background(), queueMessage(t, "acme", "evt-2", `{"event_type":"order.shipped"}`))
	require.NoError(t, err)

	event, _ := repo.GetEvent(context.Background(), "acme", "evt-2")
	assert.Equal(t, models.StatusUnmatched, event.Status)
	assert.Empty(t, event.DeliveryAttempts)
	assert.Equal(t, 0, srv.callCount())
}

func TestHandleMessage_RetryBoundAndMonotonicBackoff(t *testing.T) {
	srv := newCountingServer(http.StatusInternalServerError)
	defer srv.Close()

	payload := `{"event_type":"order.created"}`
	repo := newFakeRepo()
	repo.addEvent(pendingEvent("acme", "evt-1", payload))
	repo.addSubscription(orderSubscription("wf-1", "acme", srv.URL))

	e := newTestEngine(repo, &fakeDLQ{})
	msg := queueMessage(t, "acme", "evt-1", payload)

	// Every round before exhaustion asks for a redelivery.
	for i := 0; i < testMaxRetries-1; i++ {
		err := e.HandleMessage(context.Background(), msg)
		var retry *messaging.RetryAfterError
		require.ErrorAs(t, err, &retry, "round %d should schedule a retry", i+1)
		advance(e, retry.Delay+time.Millisecond)
	}

	// Final round exhausts the retries and settles the event.
	err := e.HandleMessage(context.Background(), msg)
	require.NoError(t, err)

	event, _ := repo.GetEvent(context.Background(), "acme", "evt-1")
	assert.Equal(t, models.StatusFailed, event.Status)
	require.Len(t, event.DeliveryAttempts, testMaxRetries)
	assert.Equal(t, testMaxRetries, srv.callCount())

	// attempt_number strictly increasing, inter-attempt delays monotonic,
	// and no next_retry_at on the final attempt.
	var prevDelay time.Duration
	for i, attempt := range event.DeliveryAttempts {
		assert.Equal(t, i+1, attempt.AttemptNumber)
		assert.Equal(t, models.OutcomeTransient, attempt.Outcome)
		if i < testMaxRetries-1 {
			require.NotNil(t, attempt.NextRetryAt)
			delay := attempt.NextRetryAt.Sub(attempt.Timestamp)
			assert.GreaterOrEqual(t, delay, prevDelay)
			prevDelay = delay
		} else {
			assert.Nil(t, attempt.NextRetryAt)
		}
	}
}

func TestHandleMessage_RedeliveryBeforeRetryDueMakesNoAttempt(t *testing.T) {
	srv := newCountingServer(http.StatusServiceUnavailable)
	defer srv.Close()

	payload := `{"event_type":"order.created"}`
	repo := newFakeRepo()
	repo.addEvent(pendingEvent("acme", "evt-1", payload))
	repo.addSubscription(orderSubscription("wf-1", "acme", srv.URL))

	e := newTestEngine(repo, &fakeDLQ{})
	msg := queueMessage(t, "acme", "evt-1", payload)

	err := e.HandleMessage(context.Background(), msg)
	var retry *messaging.RetryAfterError
	require.ErrorAs(t, err, &retry)
	assert.Equal(t, 1, srv.callCount())

	// Clock has not advanced: the pair is still waiting, so no webhook call.
	err = e.HandleMessage(context.Background(), msg)
	require.ErrorAs(t, err, &retry)
	assert.Equal(t, 1, srv.callCount())

	event, _ := repo.GetEvent(context.Background(), "acme", "evt-1")
	assert.Len(t, event.DeliveryAttempts, 1)
}

func TestHandleMessage_GoneDisablesSubscription(t *testing.T) {
	srv := newCountingServer(http.StatusGone)
	defer srv.Close()

	payload := `{"event_type":"order.created"}`
	repo := newFakeRepo()
	repo.addEvent(pendingEvent("acme", "evt-1", payload))
	repo.addSubscription(orderSubscription("wf-1", "acme", srv.URL))

	e := newTestEngine(repo, &fakeDLQ{})
	err := e.HandleMessage(context.Background(), queueMessage(t, "acme", "evt-1", payload))
	require.NoError(t, err)

	event, _ := repo.GetEvent(context.Background(), "acme", "evt-1")
	assert.Equal(t, models.StatusFailed, event.Status)
	require.Len(t, event.DeliveryAttempts, 1)
	assert.Equal(t, models.OutcomeGone, event.DeliveryAttempts[0].Outcome)
	assert.Equal(t, models.SubscriptionDisabled, repo.subs["wf-1"].Status)

	// A later event for the same customer sees no active subscription.
	repo.addEvent(pendingEvent("acme", "evt-2", payload))
	err = e.HandleMessage(context.Background(), queueMessage(t, "acme", "evt-2", payload))
	require.NoError(t, err)

	second, _ := repo.GetEvent(context.Background(), "acme", "evt-2")
	assert.Equal(t, models.StatusUnmatched, second.Status)
	assert.Equal(t, 1, srv.callCount())
}

func TestHandleMessage_PermanentClientErrorDoesNotRetry(t *testing.T) {
	srv := newCountingServer(http.StatusBadRequest)
	defer srv.Close()

	payload := `{"event_type":"order.created"}`
	repo := newFakeRepo()
	repo.addEvent(pendingEvent("acme", "evt-1", payload))
	repo.addSubscription(orderSubscription("wf-1", "acme", srv.URL))

	e := newTestEngine(repo, &fakeDLQ{})
	err := e.HandleMessage(context.Background(), queueMessage(t, "acme", "evt-1", payload))
	require.NoError(t, err)

	event, _ := repo.GetEvent(context.Background(), "acme", "evt-1")
	assert.Equal(t, models.StatusFailed, event.Status)
	require.Len(t, event.DeliveryAttempts, 1)
	assert.Equal(t, models.OutcomePermanent, event.DeliveryAttempts[0].Outcome)
	assert.Equal(t, models.SubscriptionActive, repo.subs["wf-1"].Status)
}

func TestHandleMessage_OneSuccessMakesEventDelivered(t *testing.T) {
	good := newCountingServer(http.StatusOK)
	defer good.Close()
	bad := newCountingServer(http.StatusBadRequest)
	defer bad.Close()

	payload := `{"event_type":"order.created"}`
	repo := newFakeRepo()
	repo.addEvent(pendingEvent("acme", "evt-1", payload))
	repo.addSubscription(orderSubscription("wf-good", "acme", good.URL))
	repo.addSubscription(orderSubscription("wf-bad", "acme", bad.URL))

	e := newTestEngine(repo, &fakeDLQ{})
	err := e.HandleMessage(context.Background(), queueMessage(t, "acme", "evt-1", payload))
	require.NoError(t, err)

	event, _ := repo.GetEvent(context.Background(), "acme", "evt-1")
	assert.Equal(t, models.StatusDelivered, event.Status)
	assert.Len(t, event.DeliveryAttempts, 2)
}

func TestHandleMessage_TerminalStatusWaitsForAllSubscriptions(t *testing.T) {
	good := newCountingServer(http.StatusOK)
	defer good.Close()
	flaky := newCountingServer(http.StatusInternalServerError)
	defer flaky.Close()

	payload := `{"event_type":"order.created"}`
	repo := newFakeRepo()
	repo.addEvent(pendingEvent("acme", "evt-1", payload))
	repo.addSubscription(orderSubscription("wf-good", "acme", good.URL))
	repo.addSubscription(orderSubscription("wf-flaky", "acme", flaky.URL))

	e := newTestEngine(repo, &fakeDLQ{})
	msg := queueMessage(t, "acme", "evt-1", payload)

	// The flaky subscription still has retries, so the event must stay
	// pending even though one delivery already succeeded.
	err := e.HandleMessage(context.Background(), msg)
	var retry *messaging.RetryAfterError
	require.ErrorAs(t, err, &retry)

	event, _ := repo.GetEvent(context.Background(), "acme", "evt-1")
	assert.Equal(t, models.StatusPending, event.Status)

	// Exhaust the flaky subscription.
	for {
		advance(e, time.Minute)
		if err = e.HandleMessage(context.Background(), msg); err == nil {
			break
		}
		require.ErrorAs(t, err, &retry)
	}

	event, _ = repo.GetEvent(context.Background(), "acme", "evt-1")
	assert.Equal(t, models.StatusDelivered, event.Status)
	assert.Equal(t, 1, good.callCount(), "succeeded subscription must not be re-attempted")
	assert.Equal(t, testMaxRetries, flaky.callCount())
}

func TestHandleMessage_TerminalEventRedeliveryIsNoOp(t *testing.T) {
	srv := newCountingServer(http.StatusOK)
	defer srv.Close()

	payload := `{"event_type":"order.created"}`
	event := pendingEvent("acme", "evt-1", payload)
	event.Status = models.StatusDelivered
	repo := newFakeRepo()
	repo.addEvent(event)
	repo.addSubscription(orderSubscription("wf-1", "acme", srv.URL))

	e := newTestEngine(repo, &fakeDLQ{})
	err := e.HandleMessage(context.Background(), queueMessage(t, "acme", "evt-1", payload))
	require.NoError(t, err)
	assert.Equal(t, 0, srv.callCount())
}

func TestHandleMessage_MissingEventIsDropped(t *testing.T) {
	e := newTestEngine(newFakeRepo(), &fakeDLQ{})

	err := e.HandleMessage(context.Background(), queueMessage(t, "acme", "ghost", `{"a":1}`))
	assert.NoError(t, err)
}

func TestHandleMessage_MalformedMessageGoesToDLQ(t *testing.T) {
	dlq := &fakeDLQ{}
	e := newTestEngine(newFakeRepo(), dlq)

	err := e.HandleMessage(context.Background(), &messaging.Message{
		Subject: "events.received.acme",
		Data:    []byte(`{not json`),
	})

	require.True(t, messaging.IsPermanent(err))
	require.Len(t, dlq.subjects, 1)
	assert.Equal(t, "dlq.delivery.malformed", dlq.subjects[0])
	assert.Equal(t, []byte(`{not json`), dlq.payloads[0])
}

func TestHandleMessage_EnvelopeMissingFieldsGoesToDLQ(t *testing.T) {
	dlq := &fakeDLQ{}
	e := newTestEngine(newFakeRepo(), dlq)

	err := e.HandleMessage(context.Background(), &messaging.Message{
		Subject: "events.received.acme",
		Data:    []byte(`{"customer_id":"acme"}`),
	})

	require.True(t, messaging.IsPermanent(err))
	assert.Len(t, dlq.subjects, 1)
}

func TestBackoff_MonotonicAndCapped(t *testing.T) {
	e := &Engine{backoffBase: time.Second, backoffMax: 10 * time.Second}

	assert.Equal(t, time.Second, e.backoff(1))
	assert.Equal(t, 2*time.Second, e.backoff(2))
	assert.Equal(t, 4*time.Second, e.backoff(3))
	assert.Equal(t, 8*time.Second, e.backoff(4))
	assert.Equal(t, 10*time.Second, e.backoff(5))
	assert.Equal(t, 10*time.Second, e.backoff(20))
}
