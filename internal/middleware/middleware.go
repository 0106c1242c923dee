package middleware

import (
	"context"
	stderrors "errors"
	"net/http"
	"strings"
	"time"

	"push-relay/internal/directory"
	"push-relay/internal/models"
	"push-relay/pkg/errors"

	"go.uber.org/zap"
)

type contextKey string

const appContextKey contextKey = "app"

// AppFromContext returns the authenticated app placed in the request context
// by APIKeyAuth.
func AppFromContext(ctx context.Context) (*models.App, bool) {
	app, ok := ctx.Value(appContextKey).(*models.App)
	return app, ok
}

// WithApp injects an app into a context; exported for handler tests.
func WithApp(ctx context.Context, app *models.App) context.Context {
	return context.WithValue(ctx, appContextKey, app)
}

// APIKeyAuth authenticates requests with an "Authorization: Bearer
// appID.secret" API key and stores the resolved app in the request context.
func APIKeyAuth(dir directory.Directory, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			credential := bearerToken(r)
			if credential == "" {
				writeAuthError(w, errors.ErrInvalidCredentials)
				return
			}

			app, err := dir.ResolveByCredential(r.Context(), credential)
			if err != nil {
				svcErr := errors.ErrInvalidCredentials
				if !stderrors.Is(err, errors.ErrInvalidCredentials) {
					logger.Error("Credential resolution failed", zap.Error(err))
					svcErr = errors.ErrInternalServer
				}
				writeAuthError(w, svcErr)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithApp(r.Context(), app)))
		})
	}
}

// LoggingMiddleware logs each request with method, path, status and duration.
func LoggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r)

			logger.Info("Request handled",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", rec.status),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func writeAuthError(w http.ResponseWriter, svcErr *errors.ServiceError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(svcErr.Status)
	w.Write([]byte(`{"error":"` + svcErr.Code + `","error_description":"` + svcErr.Message + `"}`))
}
