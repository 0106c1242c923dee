package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"push-relay/internal/middleware"
	"push-relay/internal/models"
	"push-relay/internal/ratelimit"
	"push-relay/internal/registry"
	"push-relay/pkg/errors"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// SubscriptionHandler serves the subscription lifecycle endpoints
type SubscriptionHandler struct {
	store   registry.Store
	limiter ratelimit.Limiter
	window  time.Duration
	logger  *zap.Logger
}

// NewSubscriptionHandler creates a new subscription handler
func NewSubscriptionHandler(store registry.Store, limiter ratelimit.Limiter, window time.Duration, logger *zap.Logger) *SubscriptionHandler {
	return &SubscriptionHandler{
		store:   store,
		limiter: limiter,
		window:  window,
		logger:  logger,
	}
}

// HandleSubscribe handles POST /v1/subscriptions
// @Summary     Register or refresh a push subscription
// @Description Upserts a subscription keyed on (app, endpoint); re-subscribing the same endpoint replaces its key material and targeting fields.
// @Tags        subscriptions
// @Accept      application/json
// @Produce     application/json
// @Success     201  {object}  models.Subscription
// @Failure     400  {object}  map[string]string
// @Failure     429  {object}  map[string]string
// @Router      /v1/subscriptions [post]
func (h *SubscriptionHandler) HandleSubscribe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	app, ok := middleware.AppFromContext(ctx)
	if !ok {
		writeError(w, h.logger, errors.ErrInvalidCredentials)
		return
	}

	var req models.SubscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, errors.WithMessage(errors.ErrValidation, "invalid JSON body"))
		return
	}

	gate, err := h.limiter.CheckAndIncrement(ctx, app.ID, ratelimit.ActionSubscribe, app.MaxPerMinute, h.window)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if !gate.Allowed {
		writeError(w, h.logger, errors.ErrRateLimitExceeded)
		return
	}

	// Soft ceiling: count-then-insert is not race-free, concurrent
	// subscribers near the limit may overshoot slightly.
	count, err := h.store.Count(ctx, app.ID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if count >= app.MaxSubscriptions {
		writeError(w, h.logger, errors.WithMessage(errors.ErrRateLimitExceeded, "subscription limit reached"))
		return
	}

	sub, err := h.store.Upsert(ctx, &models.Subscription{
		AppID:     app.ID,
		Endpoint:  req.Endpoint,
		P256dh:    req.P256dh,
		Auth:      req.Auth,
		UserID:    req.UserID,
		ChannelID: req.ChannelID,
		Metadata:  req.Metadata,
		ExpiresAt: req.ExpiresAt,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, sub)
}

// HandleList handles GET /v1/subscriptions
// @Summary     List live subscriptions
// @Description Returns non-expired subscriptions newest first; user_id and channel_id filter conjunctively.
// @Tags        subscriptions
// @Produce     application/json
// @Param       user_id     query  string  false  "Filter by user"
// @Param       channel_id  query  string  false  "Filter by channel"
// @Param       limit       query  int     false  "Page size (max 1000)"
// @Param       offset      query  int     false  "Page offset"
// @Success     200  {array}  models.Subscription
// @Router      /v1/subscriptions [get]
func (h *SubscriptionHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	app, ok := middleware.AppFromContext(ctx)
	if !ok {
		writeError(w, h.logger, errors.ErrInvalidCredentials)
		return
	}

	query := r.URL.Query()
	filter := registry.Filter{
		UserID:    query.Get("user_id"),
		ChannelID: query.Get("channel_id"),
	}
	if v := query.Get("limit"); v != "" {
		filter.Limit, _ = strconv.Atoi(v)
	}
	if v := query.Get("offset"); v != "" {
		filter.Offset, _ = strconv.Atoi(v)
	}

	subs, err := h.store.ListByApp(ctx, app.ID, filter)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if subs == nil {
		subs = []models.Subscription{}
	}

	writeJSON(w, http.StatusOK, subs)
}

// HandleGet handles GET /v1/subscriptions/{id}
func (h *SubscriptionHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	app, ok := middleware.AppFromContext(ctx)
	if !ok {
		writeError(w, h.logger, errors.ErrInvalidCredentials)
		return
	}

	sub, err := h.fetchOwned(r, app.ID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, sub)
}

// HandleDelete handles DELETE /v1/subscriptions/{id}
func (h *SubscriptionHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	app, ok := middleware.AppFromContext(ctx)
	if !ok {
		writeError(w, h.logger, errors.ErrInvalidCredentials)
		return
	}

	sub, err := h.fetchOwned(r, app.ID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	deleted, err := h.store.Delete(ctx, sub.ID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"deleted": deleted})
}

// HandleDeleteByEndpoint handles DELETE /v1/subscriptions?endpoint=...
func (h *SubscriptionHandler) HandleDeleteByEndpoint(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	app, ok := middleware.AppFromContext(ctx)
	if !ok {
		writeError(w, h.logger, errors.ErrInvalidCredentials)
		return
	}

	endpoint := r.URL.Query().Get("endpoint")
	if endpoint == "" {
		writeError(w, h.logger, errors.WithMessage(errors.ErrValidation, "endpoint query parameter is required"))
		return
	}

	deleted, err := h.store.DeleteByEndpoint(ctx, app.ID, endpoint)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"deleted": deleted})
}

// fetchOwned loads the subscription in the route and enforces ownership:
// a missing id is NOT_FOUND, someone else's id is ACCESS_DENIED.
func (h *SubscriptionHandler) fetchOwned(r *http.Request, appID string) (*models.Subscription, error) {
	id := mux.Vars(r)["id"]

	sub, err := h.store.GetByID(r.Context(), id)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, errors.ErrNotFound
	}
	if sub.AppID != appID {
		return nil, errors.ErrAccessDenied
	}
	return sub, nil
}
