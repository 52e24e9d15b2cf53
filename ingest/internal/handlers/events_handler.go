package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"

	"github.com/relaywire-systems/relaywire-stack/common/apikeys"
	"github.com/relaywire-systems/relaywire-stack/common/httputil"
	"github.com/relaywire-systems/relaywire-stack/common/logging"
	"github.com/relaywire-systems/relaywire-stack/common/models"
	"github.com/relaywire-systems/relaywire-stack/ingest/internal/idempotency"
	"github.com/relaywire-systems/relaywire-stack/ingest/internal/repository"
	"github.com/relaywire-systems/relaywire-stack/ingest/internal/service"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

type submitRequest struct {
	Payload json.RawMessage `json:"payload"`
}

type listResponse struct {
	Events     []*models.Event `json:"events"`
	Total      int             `json:"total"`
	HasMore    bool            `json:"has_more"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

// EventsHandler serves the event submission and inbox endpoints.
type EventsHandler struct {
	service *service.IngestService
	keys    *apikeys.Resolver
	logger  *logging.Logger
	maxBody int64
}

func NewEventsHandler(svc *service.IngestService, keys *apikeys.Resolver, logger *logging.Logger, maxBody int64) *EventsHandler {
	return &EventsHandler{
		service: svc,
		keys:    keys,
		logger:  logger,
		maxBody: maxBody,
	}
}

// authenticate resolves the Bearer API key to a customer ID. A written
// response means the caller should return immediately.
func (h *EventsHandler) authenticate(w http.ResponseWriter, r *http.Request) (string, bool) {
	key := httputil.ExtractBearerToken(r.Header.Get("Authorization"))
	if key == "" {
		httputil.WriteError(w, http.StatusUnauthorized, "missing API key")
		return "", false
	}

	customerID, err := h.keys.Resolve(r.Context(), key)
	if err != nil {
		if errors.Is(err, apikeys.ErrInvalidKey) {
			h.logger.WarnContext(r.Context(), "rejected invalid api key",
				logging.FieldIP, httputil.GetClientIP(r))
			httputil.WriteError(w, http.StatusUnauthorized, "invalid API key")
			return "", false
		}
		h.logger.ErrorContext(r.Context(), "api key lookup failed", logging.FieldError, err)
		httputil.WriteError(w, http.StatusServiceUnavailable, "authentication unavailable")
		return "", false
	}

	return customerID, true
}

// HandleSubmit accepts POST /events.
func (h *EventsHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	customerID, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	// Bound slightly above the payload limit so the service can distinguish
	// an oversize payload from a truncated read.
	body, err := io.ReadAll(io.LimitReader(r.Body, h.maxBody+1024))
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	defer r.Body.Close()

	var req submitRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "request body must be valid JSON")
		return
	}

	result, err := h.service.Submit(r.Context(), customerID, req.Payload, r.Header.Get("Idempotency-Key"))
	if err != nil {
		h.writeSubmitError(r.Context(), w, customerID, err)
		return
	}

	httputil.WriteJSON(w, http.StatusAccepted, result)
}

func (h *EventsHandler) writeSubmitError(ctx context.Context, w http.ResponseWriter, customerID string, err error) {
	var rateErr *service.RateLimitedError
	switch {
	case errors.Is(err, service.ErrEmptyPayload):
		httputil.WriteError(w, http.StatusBadRequest, "payload is required")
	case errors.Is(err, service.ErrPayloadTooLarge):
		httputil.WriteError(w, http.StatusBadRequest, "payload exceeds maximum event size")
	case errors.As(err, &rateErr):
		httputil.WriteRateLimited(w, int(math.Ceil(rateErr.RetryAfter.Seconds())))
	case errors.Is(err, idempotency.ErrInFlight):
		httputil.WriteError(w, http.StatusConflict, "a request with this idempotency key is in progress")
	case errors.Is(err, service.ErrIdempotencyUnavailable):
		// Fail closed: accepting without a reservation could double-deliver
		// on retry.
		h.logger.ErrorContext(ctx, "idempotency cache unavailable",
			logging.FieldCustomerID, customerID, logging.FieldError, err)
		httputil.WriteError(w, http.StatusServiceUnavailable, "event submission temporarily unavailable")
	default:
		h.logger.ErrorContext(ctx, "event submission failed",
			logging.FieldCustomerID, customerID, logging.FieldError, err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to submit event")
	}
}

// HandleInbox serves GET /inbox.
func (h *EventsHandler) HandleInbox(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	customerID, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	window := httputil.ParseListWindow(r, defaultPageSize, maxPageSize)

	filter := repository.ListFilter{
		EventType: q.Get("event_type"),
		StartTime: httputil.ParseTimeParam(q.Get("start_time")),
		EndTime:   httputil.ParseTimeParam(q.Get("end_time")),
		Limit:     window.Limit,
		Offset:    window.Offset,
	}
	if status := q.Get("status"); status != "" {
		s := models.EventStatus(status)
		if !s.Valid() {
			httputil.WriteError(w, http.StatusBadRequest, "invalid status filter")
			return
		}
		filter.Status = s
	}

	result, err := h.service.ListInbox(r.Context(), customerID, filter)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "inbox listing failed",
			logging.FieldCustomerID, customerID, logging.FieldError, err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to list events")
		return
	}

	resp := listResponse{
		Events:  result.Events,
		Total:   result.Total,
		HasMore: result.HasMore,
	}
	if result.HasMore {
		resp.NextCursor = window.NextCursor()
	}

	httputil.WriteJSON(w, http.StatusOK, resp)
}

// HandleDelete serves DELETE /inbox/{event_id}.
func (h *EventsHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		httputil.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	customerID, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	eventID := r.PathValue("event_id")
	if eventID == "" {
		httputil.WriteError(w, http.StatusBadRequest, "event_id is required")
		return
	}

	if err := h.service.DeleteEvent(r.Context(), customerID, eventID); err != nil {
		if errors.Is(err, repository.ErrEventNotFound) {
			httputil.WriteError(w, http.StatusNotFound, "event not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "event deletion failed",
			logging.FieldCustomerID, customerID,
			logging.FieldEventID, eventID,
			logging.FieldError, err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to delete event")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
