package handlers_test

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"push-relay/internal/auth"
	"push-relay/internal/handlers"
	"push-relay/internal/middleware"
	"push-relay/internal/mocks"
	"push-relay/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const ownerSecret = "owner-secret"

func ownerToken(t *testing.T, subject string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte(ownerSecret))
	require.NoError(t, err)
	return token
}

func newAppHandler(dir *mocks.MockDirectory) *handlers.AppHandler {
	return handlers.NewAppHandler(dir, auth.NewOwnerVerifier(ownerSecret), zap.NewNop())
}

func TestHandleRegister(t *testing.T) {
	dir := new(mocks.MockDirectory)
	h := newAppHandler(dir)

	app := &models.App{
		ID:              "app-1",
		Name:            "my app",
		OwnerID:         "owner-1",
		APIKeyHash:      "$2a$10$hash",
		VAPIDPublicKey:  "pub",
		VAPIDPrivateKey: "priv",
	}
	dir.On("Register", mock.Anything, "owner-1", "my app").Return(app, "app-1.secret", nil)

	req := httptest.NewRequest("POST", "/v1/apps", bytes.NewReader([]byte(`{"name":"my app"}`)))
	req.Header.Set("Authorization", "Bearer "+ownerToken(t, "owner-1"))

	rr := httptest.NewRecorder()
	h.HandleRegister(rr, req)

	require.Equal(t, http.StatusCreated, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, `"api_key":"app-1.secret"`)
	assert.Contains(t, body, `"vapid_public_key":"pub"`)
	// Secrets never leave the service boundary.
	assert.NotContains(t, body, "priv")
	assert.NotContains(t, body, "$2a$10$hash")
}

func TestHandleRegisterUnauthorized(t *testing.T) {
	h := newAppHandler(new(mocks.MockDirectory))

	req := httptest.NewRequest("POST", "/v1/apps", bytes.NewReader([]byte(`{"name":"my app"}`)))

	rr := httptest.NewRecorder()
	h.HandleRegister(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestHandleListOwned(t *testing.T) {
	dir := new(mocks.MockDirectory)
	h := newAppHandler(dir)

	dir.On("ResolveOwnerApps", mock.Anything, "owner-1").Return([]models.App{
		{ID: "app-1", VAPIDPrivateKey: "priv-1"},
		{ID: "app-2", VAPIDPrivateKey: "priv-2"},
	}, nil)

	req := httptest.NewRequest("GET", "/v1/apps", nil)
	req.Header.Set("Authorization", "Bearer "+ownerToken(t, "owner-1"))

	rr := httptest.NewRecorder()
	h.HandleListOwned(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "app-1")
	assert.Contains(t, rr.Body.String(), "app-2")
	assert.NotContains(t, rr.Body.String(), "priv-1")
}

func TestHandleSelf(t *testing.T) {
	h := newAppHandler(new(mocks.MockDirectory))

	app := &models.App{ID: "app-1", VAPIDPublicKey: "pub", VAPIDPrivateKey: "priv"}
	req := httptest.NewRequest("GET", "/v1/app", nil)
	req = req.WithContext(middleware.WithApp(req.Context(), app))

	rr := httptest.NewRecorder()
	h.HandleSelf(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"vapid_public_key":"pub"`)
	assert.NotContains(t, rr.Body.String(), "priv")
}
