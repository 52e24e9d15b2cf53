package client

import (
	"context"
	"encoding/json"
	"net/url"

	"github.com/relaywire-systems/relaywire-stack/common/models"
)

// SubscriptionsClient talks to the subscriptions service.
type SubscriptionsClient struct {
	*httpClient
}

func NewSubscriptionsClient(baseURL, apiKey string) *SubscriptionsClient {
	return &SubscriptionsClient{httpClient: newHTTPClient(baseURL, apiKey)}
}

// SubscriptionListResponse is one page of subscriptions.
type SubscriptionListResponse struct {
	Subscriptions []*models.Subscription `json:"subscriptions"`
	Total         int                    `json:"total"`
	HasMore       bool                   `json:"has_more"`
}

// Create registers a new subscription from a tagged rule document.
func (c *SubscriptionsClient) Create(ctx context.Context, matchRule json.RawMessage, webhookURL string) (*models.Subscription, error) {
	body := map[string]interface{}{
		"match_rule":  matchRule,
		"webhook_url": webhookURL,
	}

	var sub models.Subscription
	if err := c.do(ctx, "POST", "/subscriptions", body, &sub); err != nil {
		return nil, err
	}
	return &sub, nil
}

// List fetches the customer's subscriptions.
func (c *SubscriptionsClient) List(ctx context.Context, includeDisabled bool) (*SubscriptionListResponse, error) {
	path := "/subscriptions"
	if includeDisabled {
		path += "?include_disabled=true"
	}

	var resp SubscriptionListResponse
	if err := c.do(ctx, "GET", path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Enable puts a subscription back in rotation.
func (c *SubscriptionsClient) Enable(ctx context.Context, workflowID string) error {
	return c.do(ctx, "PUT", "/subscriptions/"+url.PathEscape(workflowID)+"/enable", nil, nil)
}

// Disable soft-disables a subscription.
func (c *SubscriptionsClient) Disable(ctx context.Context, workflowID string) error {
	return c.do(ctx, "PUT", "/subscriptions/"+url.PathEscape(workflowID)+"/disable", nil, nil)
}
