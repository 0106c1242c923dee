package main

import (
	"net/http"

	"push-relay/internal/directory"
	"push-relay/internal/handlers"
	"push-relay/internal/middleware"

	"github.com/gorilla/mux"
	httpSwagger "github.com/swaggo/http-swagger"
	"go.uber.org/zap"
)

// SetupRouter configures and returns the HTTP router with all routes and middleware
func SetupRouter(
	subscriptionHandler *handlers.SubscriptionHandler,
	sendHandler *handlers.SendHandler,
	appHandler *handlers.AppHandler,
	dir directory.Directory,
	logger *zap.Logger,
) *mux.Router {
	router := mux.NewRouter()

	// Add CORS middleware
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	})

	// Add logging middleware
	router.Use(middleware.LoggingMiddleware(logger))

	// Health check
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET")

	// App management (owner-token authenticated inside the handler)
	router.HandleFunc("/v1/apps", appHandler.HandleRegister).Methods("POST", "OPTIONS")
	router.HandleFunc("/v1/apps", appHandler.HandleListOwned).Methods("GET", "OPTIONS")

	// Relay endpoints (API-key authenticated)
	api := router.PathPrefix("/v1").Subrouter()
	api.Use(middleware.APIKeyAuth(dir, logger))
	api.HandleFunc("/app", appHandler.HandleSelf).Methods("GET", "OPTIONS")
	api.HandleFunc("/subscriptions", subscriptionHandler.HandleSubscribe).Methods("POST", "OPTIONS")
	api.HandleFunc("/subscriptions", subscriptionHandler.HandleList).Methods("GET", "OPTIONS")
	api.HandleFunc("/subscriptions", subscriptionHandler.HandleDeleteByEndpoint).Methods("DELETE", "OPTIONS").Queries("endpoint", "{endpoint}")
	api.HandleFunc("/subscriptions/{id}", subscriptionHandler.HandleGet).Methods("GET", "OPTIONS")
	api.HandleFunc("/subscriptions/{id}", subscriptionHandler.HandleDelete).Methods("DELETE", "OPTIONS")
	api.HandleFunc("/send", sendHandler.HandleSend).Methods("POST", "OPTIONS")
	api.HandleFunc("/send/direct", sendHandler.HandleSendDirect).Methods("POST", "OPTIONS")

	// Swagger documentation
	router.PathPrefix("/swagger/").Handler(httpSwagger.WrapHandler)

	return router
}
