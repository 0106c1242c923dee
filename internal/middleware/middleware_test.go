package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"push-relay/internal/middleware"
	"push-relay/internal/mocks"
	"push-relay/internal/models"
	"push-relay/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestAPIKeyAuth(t *testing.T) {
	dir := new(mocks.MockDirectory)
	logger := zap.NewNop()

	var seenApp *models.App
	handler := middleware.APIKeyAuth(dir, logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		app, ok := middleware.AppFromContext(r.Context())
		require.True(t, ok)
		seenApp = app
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("valid credential", func(t *testing.T) {
		dir.On("ResolveByCredential", mock.Anything, "app-1.secret").
			Return(&models.App{ID: "app-1"}, nil).Once()

		req := httptest.NewRequest("GET", "/v1/subscriptions", nil)
		req.Header.Set("Authorization", "Bearer app-1.secret")

		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		require.NotNil(t, seenApp)
		assert.Equal(t, "app-1", seenApp.ID)
	})

	t.Run("missing header", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/v1/subscriptions", nil)

		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("wrong scheme", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/v1/subscriptions", nil)
		req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")

		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("bad credential", func(t *testing.T) {
		dir.On("ResolveByCredential", mock.Anything, "app-1.wrong").
			Return(nil, errors.ErrInvalidCredentials).Once()

		req := httptest.NewRequest("GET", "/v1/subscriptions", nil)
		req.Header.Set("Authorization", "Bearer app-1.wrong")

		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.Contains(t, rr.Body.String(), "INVALID_CREDENTIALS")
	})

	t.Run("store failure is opaque", func(t *testing.T) {
		dir.On("ResolveByCredential", mock.Anything, "app-1.secret2").
			Return(nil, errors.Wrap(assert.AnError, errors.ErrInternalServer)).Once()

		req := httptest.NewRequest("GET", "/v1/subscriptions", nil)
		req.Header.Set("Authorization", "Bearer app-1.secret2")

		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusInternalServerError, rr.Code)
		assert.NotContains(t, rr.Body.String(), assert.AnError.Error())
	})
}

func TestLoggingMiddleware(t *testing.T) {
	handler := middleware.LoggingMiddleware(zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest("GET", "/health", nil))

	assert.Equal(t, http.StatusTeapot, rr.Code)
}
