package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"push-relay/internal/auth"
	"push-relay/internal/directory"
	"push-relay/internal/middleware"
	"push-relay/internal/models"
	"push-relay/pkg/errors"

	"go.uber.org/zap"
)

// AppHandler serves the app-management endpoints. Registration and listing
// are owner-token authenticated; HandleSelf sits behind the API-key
// middleware like the relay endpoints.
type AppHandler struct {
	dir      directory.Directory
	verifier *auth.OwnerVerifier
	logger   *zap.Logger
}

// NewAppHandler creates a new app handler
func NewAppHandler(dir directory.Directory, verifier *auth.OwnerVerifier, logger *zap.Logger) *AppHandler {
	return &AppHandler{dir: dir, verifier: verifier, logger: logger}
}

type registerAppRequest struct {
	Name string `json:"name"`
}

// HandleRegister handles POST /v1/apps
// @Summary     Register a new application
// @Description Creates an app with a fresh VAPID keypair and returns its API key once.
// @Tags        apps
// @Accept      application/json
// @Produce     application/json
// @Success     201  {object}  models.AppCreatedResponse
// @Failure     401  {object}  map[string]string
// @Router      /v1/apps [post]
func (h *AppHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	ownerID, err := h.ownerFromRequest(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	var req registerAppRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, errors.WithMessage(errors.ErrValidation, "invalid JSON body"))
		return
	}

	app, apiKey, err := h.dir.Register(ctx, ownerID, req.Name)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	h.logger.Info("App registered", zap.String("app_id", app.ID), zap.String("owner_id", ownerID))

	writeJSON(w, http.StatusCreated, models.AppCreatedResponse{
		App:    app.View(),
		APIKey: apiKey,
	})
}

// HandleListOwned handles GET /v1/apps
func (h *AppHandler) HandleListOwned(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	ownerID, err := h.ownerFromRequest(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	apps, err := h.dir.ResolveOwnerApps(ctx, ownerID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	views := make([]*models.AppView, 0, len(apps))
	for i := range apps {
		views = append(views, apps[i].View())
	}

	writeJSON(w, http.StatusOK, views)
}

// HandleSelf handles GET /v1/app: the calling app's public VAPID key and
// limit policy, for bootstrapping browser-side subscription.
func (h *AppHandler) HandleSelf(w http.ResponseWriter, r *http.Request) {
	app, ok := middleware.AppFromContext(r.Context())
	if !ok {
		writeError(w, h.logger, errors.ErrInvalidCredentials)
		return
	}

	writeJSON(w, http.StatusOK, app.View())
}

func (h *AppHandler) ownerFromRequest(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.ErrInvalidCredentials
	}
	return h.verifier.Verify(strings.TrimSpace(parts[1]))
}
