package cache

import (
	"context"
	"encoding/json"
	"time"

	"push-relay/internal/models"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Cache handles Redis operations
type Cache struct {
	client *redis.Client
	logger *zap.Logger
}

// New creates a new cache instance
func New(redisURL string, logger *zap.Logger) (*Cache, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opt)

	// Test the connection
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &Cache{
		client: client,
		logger: logger,
	}, nil
}

// Close closes the Redis connection
func (c *Cache) Close() error {
	return c.client.Close()
}

// Client exposes the underlying connection for components that issue their
// own commands (the rate limiter).
func (c *Cache) Client() *redis.Client {
	return c.client
}

// GetApp retrieves an app record from cache; returns nil, nil on a miss.
func (c *Cache) GetApp(ctx context.Context, appID string) (*models.App, error) {
	key := "app:" + appID
	data, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		c.logger.Error("Failed to get app from cache", zap.String("app_id", appID), zap.Error(err))
		return nil, err
	}

	var app models.App
	if err := json.Unmarshal([]byte(data), &app); err != nil {
		c.logger.Error("Failed to unmarshal cached app", zap.Error(err))
		return nil, err
	}

	return &app, nil
}

// SetApp stores an app record in cache
func (c *Cache) SetApp(ctx context.Context, app *models.App, ttl time.Duration) error {
	key := "app:" + app.ID
	data, err := json.Marshal(app)
	if err != nil {
		return err
	}

	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		c.logger.Error("Failed to set app in cache", zap.String("app_id", app.ID), zap.Error(err))
		return err
	}

	return nil
}

// DeleteApp drops a cached app record, e.g. after its limits change.
func (c *Cache) DeleteApp(ctx context.Context, appID string) error {
	if err := c.client.Del(ctx, "app:"+appID).Err(); err != nil {
		c.logger.Error("Failed to delete app from cache", zap.String("app_id", appID), zap.Error(err))
		return err
	}
	return nil
}
