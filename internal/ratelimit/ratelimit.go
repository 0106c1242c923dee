// Package ratelimit implements fixed-window per-app rate limiting on Redis.
package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"push-relay/pkg/errors"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Action is the kind of operation being counted.
type Action string

const (
	ActionSingleSend    Action = "single-send"
	ActionBroadcastSend Action = "broadcast-send"
	ActionSubscribe     Action = "subscribe"
)

const keyPrefix = "ratelimit:"

// Result reports the outcome of one CheckAndIncrement call.
type Result struct {
	Allowed bool
	Current int
	Limit   int
}

// Limiter gates actions against fixed-window counters.
type Limiter interface {
	// CheckAndIncrement atomically increments the counter for the current
	// window and compares the resulting count against limit. The increment
	// happens even when the result is not allowed: rejected attempts still
	// consume window budget.
	CheckAndIncrement(ctx context.Context, appID string, action Action, limit int, window time.Duration) (Result, error)
}

// RedisLimiter implements Limiter with one Redis counter per
// (app, action, window start). INCR is the atomic
// insert-or-increment-and-return primitive: two concurrent callers in the
// same window always observe distinct counts.
type RedisLimiter struct {
	client    *redis.Client
	logger    *zap.Logger
	retention time.Duration
	now       func() time.Time
}

// NewRedisLimiter creates a limiter. Counter keys expire after retention as a
// first line of garbage collection; Purge sweeps whatever survives.
func NewRedisLimiter(client *redis.Client, retention time.Duration, logger *zap.Logger) *RedisLimiter {
	return &RedisLimiter{
		client:    client,
		logger:    logger,
		retention: retention,
		now:       time.Now,
	}
}

// WithClock overrides the time source, for deterministic tests.
func (l *RedisLimiter) WithClock(now func() time.Time) *RedisLimiter {
	l.now = now
	return l
}

// WindowStart aligns now to the start of its fixed window, in Unix
// milliseconds.
func WindowStart(now time.Time, window time.Duration) int64 {
	ms := window.Milliseconds()
	return now.UnixMilli() / ms * ms
}

func (l *RedisLimiter) CheckAndIncrement(ctx context.Context, appID string, action Action, limit int, window time.Duration) (Result, error) {
	windowStart := WindowStart(l.now(), window)
	key := fmt.Sprintf("%s%s:%s:%d", keyPrefix, appID, action, windowStart)

	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		l.logger.Error("Failed to increment rate limit counter", zap.String("app_id", appID), zap.String("action", string(action)), zap.Error(err))
		return Result{}, errors.Wrap(err, errors.ErrInternalServer)
	}

	// Set expiration on first increment in the window
	if count == 1 {
		if err := l.client.Expire(ctx, key, l.retention).Err(); err != nil {
			l.logger.Error("Failed to set rate limit expiration", zap.Error(err))
		}
	}

	return Result{
		Allowed: count <= int64(limit),
		Current: int(count),
		Limit:   limit,
	}, nil
}

// Purge removes counter keys whose window ended more than a retention period
// ago. Key TTLs already handle the common case; this sweep catches keys whose
// expiry was lost (e.g. a failed EXPIRE after the first INCR). Meant to run
// from a background ticker, never on the hot path.
func (l *RedisLimiter) Purge(ctx context.Context) (int, error) {
	cutoff := l.now().Add(-l.retention).UnixMilli()

	var purged int
	iter := l.client.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		idx := strings.LastIndex(key, ":")
		if idx < 0 {
			continue
		}
		windowStart, err := strconv.ParseInt(key[idx+1:], 10, 64)
		if err != nil || windowStart > cutoff {
			continue
		}
		if err := l.client.Del(ctx, key).Err(); err != nil {
			l.logger.Error("Failed to purge rate limit window", zap.String("key", key), zap.Error(err))
			continue
		}
		purged++
	}
	if err := iter.Err(); err != nil {
		return purged, errors.Wrap(err, errors.ErrInternalServer)
	}
	return purged, nil
}
