package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"push-relay/internal/auth"
	"push-relay/internal/cache"
	"push-relay/internal/config"
	"push-relay/internal/database"
	"push-relay/internal/directory"
	"push-relay/internal/dispatch"
	"push-relay/internal/handlers"
	"push-relay/internal/ratelimit"
	"push-relay/internal/registry"
	"push-relay/internal/transport"

	"go.uber.org/zap"
)

func main() {
	// Initialize logger
	logger, err := zap.NewProduction()
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	logger.Info("Starting push relay")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	// Initialize database
	ctx := context.Background()
	db, err := database.Open(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer db.Close()

	if err := database.Migrate(ctx, db, logger); err != nil {
		logger.Fatal("Failed to migrate database", zap.Error(err))
	}

	// Initialize cache
	cacheClient, err := cache.New(cfg.RedisURL, logger)
	if err != nil {
		logger.Fatal("Failed to initialize cache", zap.Error(err))
	}
	defer cacheClient.Close()

	// Core components
	store := registry.NewPostgresStore(db, logger)
	limiter := ratelimit.NewRedisLimiter(cacheClient.Client(), cfg.RateLimitRetention, logger)
	sender := transport.NewWebPushSender(cfg.DeliveryTimeout, logger)

	engine := dispatch.NewEngine(store, limiter, sender, dispatch.Config{
		BatchSize:  cfg.BatchSize,
		Subscriber: cfg.VAPIDSubscriber,
		TTL:        cfg.DeliveryTTL,
		Window:     cfg.RateLimitWindow,
	}, logger)

	dir := directory.NewPostgresDirectory(db, cacheClient, directory.Limits{
		MaxPerMinute:     cfg.DefaultMaxPerMinute,
		MaxPerDay:        cfg.DefaultMaxPerDay,
		MaxSubscriptions: cfg.DefaultMaxSubscriptions,
	}, logger)

	ownerVerifier := auth.NewOwnerVerifier(cfg.OwnerJWTSecret)

	// Rate-window janitor: key TTLs handle the common case, the sweep
	// catches stragglers.
	go func() {
		ticker := time.NewTicker(cfg.RateLimitRetention)
		defer ticker.Stop()

		for range ticker.C {
			purged, err := limiter.Purge(context.Background())
			if err != nil {
				logger.Error("Failed to purge rate limit windows", zap.Error(err))
				continue
			}
			if purged > 0 {
				logger.Info("Purged stale rate limit windows", zap.Int("count", purged))
			}
		}
	}()

	// Initialize handlers
	subscriptionHandler := handlers.NewSubscriptionHandler(store, limiter, cfg.RateLimitWindow, logger)
	sendHandler := handlers.NewSendHandler(engine, logger)
	appHandler := handlers.NewAppHandler(dir, ownerVerifier, logger)

	// Setup router
	router := SetupRouter(subscriptionHandler, sendHandler, appHandler, dir, logger)

	// Create server
	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("Server starting", zap.String("port", cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}
