package client

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"
	"time"

	"github.com/relaywire-systems/relaywire-stack/common/models"
)

// IngestClient talks to the ingest service.
type IngestClient struct {
	*httpClient
}

func NewIngestClient(baseURL, apiKey string) *IngestClient {
	return &IngestClient{httpClient: newHTTPClient(baseURL, apiKey)}
}

// SubmitResponse is the ingest service's 202 body.
type SubmitResponse struct {
	EventID   string    `json:"event_id"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// InboxResponse is one page of the customer's inbox.
type InboxResponse struct {
	Events     []*models.Event `json:"events"`
	Total      int             `json:"total"`
	HasMore    bool            `json:"has_more"`
	NextCursor string          `json:"next_cursor"`
}

// InboxFilter narrows an inbox listing.
type InboxFilter struct {
	Status    string
	EventType string
	Limit     int
	Cursor    string
}

// SubmitEvent submits one event payload, optionally with an idempotency key.
func (c *IngestClient) SubmitEvent(ctx context.Context, payload json.RawMessage, idempotencyKey string) (*SubmitResponse, error) {
	var headers map[string]string
	if idempotencyKey != "" {
		headers = map[string]string{"Idempotency-Key": idempotencyKey}
	}

	body := map[string]json.RawMessage{"payload": payload}
	var resp SubmitResponse
	if err := c.doWithHeaders(ctx, "POST", "/events", headers, body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListInbox fetches one page of the inbox.
func (c *IngestClient) ListInbox(ctx context.Context, filter InboxFilter) (*InboxResponse, error) {
	params := url.Values{}
	if filter.Status != "" {
		params.Set("status", filter.Status)
	}
	if filter.EventType != "" {
		params.Set("event_type", filter.EventType)
	}
	if filter.Limit > 0 {
		params.Set("limit", strconv.Itoa(filter.Limit))
	}
	if filter.Cursor != "" {
		params.Set("cursor", filter.Cursor)
	}

	path := "/inbox"
	if encoded := params.Encode(); encoded != "" {
		path += "?" + encoded
	}

	var resp InboxResponse
	if err := c.do(ctx, "GET", path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DeleteEvent removes one event from the inbox.
func (c *IngestClient) DeleteEvent(ctx context.Context, eventID string) error {
	return c.do(ctx, "DELETE", "/inbox/"+url.PathEscape(eventID), nil, nil)
}
