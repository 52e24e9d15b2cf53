package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaywire-systems/relaywire-stack/common/models"
	"github.com/relaywire-systems/relaywire-stack/common/signing"
)

func testItems() []Item {
	return []Item{{
		EventID:    "evt-1",
		CustomerID: "cust-1",
		Payload:    json.RawMessage(`{"event_type":"order.created"}`),
		Timestamp:  time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}}
}

func TestSend_BodyIsJSONArray(t *testing.T) {
	var gotBody []byte
	var gotContentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sender := NewSender(5*time.Second, nil)
	result := sender.Send(context.Background(), srv.URL, testItems())

	assert.Equal(t, models.OutcomeSuccess, result.Outcome)
	assert.Equal(t, http.StatusOK, result.HTTPStatus)
	assert.Equal(t, "application/json", gotContentType)

	var batch []map[string]interface{}
	require.NoError(t, json.Unmarshal(gotBody, &batch))
	require.Len(t, batch, 1)
	assert.Equal(t, "evt-1", batch[0]["event_id"])
	assert.Equal(t, "cust-1", batch[0]["customer_id"])
}

func TestSend_SignsBodyWhenSignerConfigured(t *testing.T) {
	var gotSignature string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSignature = r.Header.Get(signing.Header)
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	signer := signing.NewSigner("webhook-secret")
	result := NewSender(5*time.Second, signer).Send(context.Background(), srv.URL, testItems())

	assert.Equal(t, models.OutcomeSuccess, result.Outcome)
	require.NotEmpty(t, gotSignature)
	assert.True(t, signer.Verify(gotSignature, gotBody))
	assert.False(t, signing.NewSigner("wrong-secret").Verify(gotSignature, gotBody))
}

func TestSend_UnsignedWithoutSigner(t *testing.T) {
	var gotSignature string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSignature = r.Header.Get(signing.Header)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	NewSender(5*time.Second, nil).Send(context.Background(), srv.URL, testItems())

	assert.Empty(t, gotSignature)
}

func TestSend_Classification(t *testing.T) {
	tests := []struct {
		status  int
		outcome string
	}{
		{http.StatusOK, models.OutcomeSuccess},
		{http.StatusCreated, models.OutcomeSuccess},
		{http.StatusNoContent, models.OutcomeSuccess},
		{http.StatusGone, models.OutcomeGone},
		{http.StatusBadRequest, models.OutcomePermanent},
		{http.StatusNotFound, models.OutcomePermanent},
		{http.StatusUnprocessableEntity, models.OutcomePermanent},
		{http.StatusTooManyRequests, models.OutcomeTransient},
		{http.StatusInternalServerError, models.OutcomeTransient},
		{http.StatusBadGateway, models.OutcomeTransient},
		{http.StatusServiceUnavailable, models.OutcomeTransient},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			result := NewSender(5*time.Second, nil).Send(context.Background(), srv.URL, testItems())
			assert.Equal(t, tt.outcome, result.Outcome)
			assert.Equal(t, tt.status, result.HTTPStatus)
		})
	}
}

func TestSend_TimeoutIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	result := NewSender(20*time.Millisecond, nil).Send(context.Background(), srv.URL, testItems())

	assert.Equal(t, models.OutcomeTransient, result.Outcome)
	assert.Error(t, result.Err)
}

func TestSend_ConnectionRefusedIsTransient(t *testing.T) {
	// Grab a port nothing listens on.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	result := NewSender(time.Second, nil).Send(context.Background(), url, testItems())

	assert.Equal(t, models.OutcomeTransient, result.Outcome)
	assert.Error(t, result.Err)
}
