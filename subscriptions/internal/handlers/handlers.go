package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/relaywire-systems/relaywire-stack/common/apikeys"
	"github.com/relaywire-systems/relaywire-stack/common/httputil"
	"github.com/relaywire-systems/relaywire-stack/common/logging"
	"github.com/relaywire-systems/relaywire-stack/common/models"
	"github.com/relaywire-systems/relaywire-stack/subscriptions/internal/repository"
	"github.com/relaywire-systems/relaywire-stack/subscriptions/internal/service"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
	maxBodyBytes    = 64 * 1024
)

type createRequest struct {
	MatchRule  json.RawMessage `json:"match_rule"`
	WebhookURL string          `json:"webhook_url"`
}

type listResponse struct {
	Subscriptions []*models.Subscription `json:"subscriptions"`
	Total         int                    `json:"total"`
	HasMore       bool                   `json:"has_more"`
	NextCursor    string                 `json:"next_cursor,omitempty"`
}

// SubscriptionsHandler serves the subscription management endpoints.
type SubscriptionsHandler struct {
	service *service.Service
	keys    *apikeys.Resolver
	logger  *logging.Logger
}

func NewSubscriptionsHandler(svc *service.Service, keys *apikeys.Resolver, logger *logging.Logger) *SubscriptionsHandler {
	return &SubscriptionsHandler{
		service: svc,
		keys:    keys,
		logger:  logger,
	}
}

// authenticate resolves the Bearer API key to a customer ID. A written
// response means the caller should return immediately.
func (h *SubscriptionsHandler) authenticate(w http.ResponseWriter, r *http.Request) (string, bool) {
	key := httputil.ExtractBearerToken(r.Header.Get("Authorization"))
	if key == "" {
		httputil.WriteError(w, http.StatusUnauthorized, "missing API key")
		return "", false
	}

	customerID, err := h.keys.Resolve(r.Context(), key)
	if err != nil {
		if errors.Is(err, apikeys.ErrInvalidKey) {
			httputil.WriteError(w, http.StatusUnauthorized, "invalid API key")
			return "", false
		}
		h.logger.ErrorContext(r.Context(), "api key lookup failed", logging.FieldError, err)
		httputil.WriteError(w, http.StatusServiceUnavailable, "authentication unavailable")
		return "", false
	}

	return customerID, true
}

// HandleCreate accepts POST /subscriptions.
func (h *SubscriptionsHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	customerID, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	var req createRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "request body must be valid JSON")
		return
	}
	if len(req.MatchRule) == 0 {
		httputil.WriteError(w, http.StatusBadRequest, "match_rule is required")
		return
	}

	rule, err := models.ParseRule(req.MatchRule)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	sub, err := h.service.Create(r.Context(), customerID, rule, req.WebhookURL)
	if err != nil {
		if errors.Is(err, service.ErrInvalidWebhookURL) {
			httputil.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.ErrorContext(r.Context(), "failed to create subscription",
			logging.FieldCustomerID, customerID, logging.FieldError, err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to create subscription")
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, sub)
}

// HandleList accepts GET /subscriptions.
func (h *SubscriptionsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	customerID, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	window := httputil.ParseListWindow(r, defaultPageSize, maxPageSize)
	filter := repository.ListFilter{
		IncludeDisabled: r.URL.Query().Get("include_disabled") == "true",
		Limit:           window.Limit,
		Offset:          window.Offset,
	}

	result, err := h.service.List(r.Context(), customerID, filter)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to list subscriptions",
			logging.FieldCustomerID, customerID, logging.FieldError, err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to list subscriptions")
		return
	}

	resp := listResponse{
		Subscriptions: result.Subscriptions,
		Total:         result.Total,
		HasMore:       result.HasMore,
	}
	if result.HasMore {
		resp.NextCursor = window.NextCursor()
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

// HandleGet accepts GET /subscriptions/{workflow_id}.
func (h *SubscriptionsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	customerID, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	sub, err := h.service.Get(r.Context(), customerID, r.PathValue("workflow_id"))
	if err != nil {
		if errors.Is(err, repository.ErrSubscriptionNotFound) {
			httputil.WriteError(w, http.StatusNotFound, "subscription not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "failed to get subscription",
			logging.FieldCustomerID, customerID, logging.FieldError, err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to get subscription")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, sub)
}

// HandleEnable accepts PUT /subscriptions/{workflow_id}/enable.
func (h *SubscriptionsHandler) HandleEnable(w http.ResponseWriter, r *http.Request) {
	h.setStatus(w, r, models.SubscriptionActive)
}

// HandleDisable accepts PUT /subscriptions/{workflow_id}/disable.
func (h *SubscriptionsHandler) HandleDisable(w http.ResponseWriter, r *http.Request) {
	h.setStatus(w, r, models.SubscriptionDisabled)
}

func (h *SubscriptionsHandler) setStatus(w http.ResponseWriter, r *http.Request, status models.SubscriptionStatus) {
	customerID, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	workflowID := r.PathValue("workflow_id")
	if err := h.service.SetStatus(r.Context(), customerID, workflowID, status); err != nil {
		if errors.Is(err, repository.ErrSubscriptionNotFound) {
			httputil.WriteError(w, http.StatusNotFound, "subscription not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "failed to update subscription status",
			logging.FieldCustomerID, customerID,
			logging.FieldSubscriptionID, workflowID,
			logging.FieldError, err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to update subscription")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]string{
		"workflow_id": workflowID,
		"status":      string(status),
	})
}
