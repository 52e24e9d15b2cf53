// Package service implements the subscription management operations behind
// the HTTP handlers. Subscriptions are soft-disabled, never deleted, so the
// delivery engine can still resolve attempt history for retired workflows.
package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/relaywire-systems/relaywire-stack/common/logging"
	"github.com/relaywire-systems/relaywire-stack/common/models"
	"github.com/relaywire-systems/relaywire-stack/subscriptions/internal/metrics"
	"github.com/relaywire-systems/relaywire-stack/subscriptions/internal/repository"
)

// ErrInvalidWebhookURL is returned when the webhook target is missing or not
// an absolute http(s) URL.
var ErrInvalidWebhookURL = errors.New("webhook_url must be an absolute http or https URL")

// Service owns subscription lifecycle operations.
type Service struct {
	repo   repository.Repository
	logger *logging.Logger

	now   func() time.Time
	newID func() string
}

func New(repo repository.Repository, logger *logging.Logger) *Service {
	return &Service{
		repo:   repo,
		logger: logger,
		now:    time.Now,
		newID:  func() string { return uuid.NewString() },
	}
}

// Create validates and stores a new active subscription, assigning its
// workflow ID server-side.
func (s *Service) Create(ctx context.Context, customerID string, rule models.MatchRule, webhookURL string) (*models.Subscription, error) {
	if err := validateWebhookURL(webhookURL); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	sub := &models.Subscription{
		WorkflowID: s.newID(),
		CustomerID: customerID,
		Rule:       rule,
		WebhookURL: webhookURL,
		Status:     models.SubscriptionActive,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := sub.Validate(); err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, sub); err != nil {
		return nil, fmt.Errorf("store subscription: %w", err)
	}

	metrics.SubscriptionsCreated.WithLabelValues(customerID, rule.RuleKind()).Inc()
	s.logger.InfoContext(ctx, "subscription created",
		logging.FieldCustomerID, customerID,
		logging.FieldSubscriptionID, sub.WorkflowID,
		logging.FieldWebhookURL, webhookURL,
	)
	return sub, nil
}

// Get fetches one subscription owned by the customer.
func (s *Service) Get(ctx context.Context, customerID, workflowID string) (*models.Subscription, error) {
	return s.repo.Get(ctx, customerID, workflowID)
}

// ListResult is a page of subscriptions.
type ListResult struct {
	Subscriptions []*models.Subscription
	Total         int
	HasMore       bool
}

// List returns a page of the customer's subscriptions.
func (s *Service) List(ctx context.Context, customerID string, filter repository.ListFilter) (*ListResult, error) {
	subs, total, err := s.repo.List(ctx, customerID, filter)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	return &ListResult{
		Subscriptions: subs,
		Total:         total,
		HasMore:       filter.Offset+len(subs) < total,
	}, nil
}

// SetStatus enables or disables a subscription. Enabling a subscription the
// delivery engine disabled after a 410 puts it back in rotation.
func (s *Service) SetStatus(ctx context.Context, customerID, workflowID string, status models.SubscriptionStatus) error {
	if err := s.repo.SetStatus(ctx, customerID, workflowID, status); err != nil {
		return err
	}

	metrics.StatusChanges.WithLabelValues(string(status)).Inc()
	s.logger.InfoContext(ctx, "subscription status changed",
		logging.FieldCustomerID, customerID,
		logging.FieldSubscriptionID, workflowID,
		logging.FieldStatus, string(status),
	)
	return nil
}

func validateWebhookURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ErrInvalidWebhookURL
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ErrInvalidWebhookURL
	}
	return nil
}
