package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"push-relay/internal/middleware"
	"push-relay/internal/models"
	"push-relay/pkg/errors"

	"go.uber.org/zap"
)

// Dispatcher is the dispatch engine surface the send endpoints depend on.
type Dispatcher interface {
	Send(ctx context.Context, app *models.App, req *models.SendRequest) (*models.BatchResult, error)
	SendDirect(ctx context.Context, app *models.App, req *models.DirectSendRequest) (*models.DispatchResult, error)
}

// SendHandler serves the delivery endpoints
type SendHandler struct {
	engine Dispatcher
	logger *zap.Logger
}

// NewSendHandler creates a new send handler
func NewSendHandler(engine Dispatcher, logger *zap.Logger) *SendHandler {
	return &SendHandler{engine: engine, logger: logger}
}

type sendResponse struct {
	Sent     int                     `json:"sent"`
	Failed   int                     `json:"failed"`
	Total    int                     `json:"total"`
	Failures []models.DispatchResult `json:"failures,omitempty"`
}

// HandleSend handles POST /v1/send
// @Summary     Deliver a payload to registered subscriptions
// @Description Targets explicit subscription ids when given, otherwise filters by user/channel; with no filters it broadcasts. Partial failure is reported in the body, never as a call-level error.
// @Tags        send
// @Accept      application/json
// @Produce     application/json
// @Success     200  {object}  sendResponse
// @Failure     400  {object}  map[string]string
// @Failure     429  {object}  map[string]string
// @Router      /v1/send [post]
func (h *SendHandler) HandleSend(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	app, ok := middleware.AppFromContext(ctx)
	if !ok {
		writeError(w, h.logger, errors.ErrInvalidCredentials)
		return
	}

	var req models.SendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, errors.WithMessage(errors.ErrValidation, "invalid JSON body"))
		return
	}

	result, err := h.engine.Send(ctx, app, &req)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, sendResponse{
		Sent:     result.Sent,
		Failed:   result.Failed,
		Total:    result.Total,
		Failures: result.FailedResults(),
	})
}

// HandleSendDirect handles POST /v1/send/direct
func (h *SendHandler) HandleSendDirect(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	app, ok := middleware.AppFromContext(ctx)
	if !ok {
		writeError(w, h.logger, errors.ErrInvalidCredentials)
		return
	}

	var req models.DirectSendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, errors.WithMessage(errors.ErrValidation, "invalid JSON body"))
		return
	}

	result, err := h.engine.SendDirect(ctx, app, &req)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}
