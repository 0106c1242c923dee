// Package dispatch fans push messages out to an app's registered endpoints.
package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"push-relay/internal/keys"
	"push-relay/internal/models"
	"push-relay/internal/ratelimit"
	"push-relay/internal/registry"
	"push-relay/internal/transport"
	"push-relay/pkg/errors"

	"go.uber.org/zap"
)

// DefaultBatchSize caps simultaneous in-flight deliveries per Send call.
const DefaultBatchSize = 50

// Config tunes the engine.
type Config struct {
	// BatchSize is the delivery concurrency cap; DefaultBatchSize when zero.
	BatchSize int
	// Subscriber is the VAPID contact address sent with every delivery.
	Subscriber string
	// TTL is how long push services may retain undelivered messages.
	TTL time.Duration
	// Window is the rate-limit window length.
	Window time.Duration
}

// Engine resolves targets, gates on the rate limiter, delivers in bounded
// concurrent batches and prunes endpoints reported permanently gone.
type Engine struct {
	store      registry.Store
	limiter    ratelimit.Limiter
	sender     transport.Sender
	logger     *zap.Logger
	batchSize  int
	ttl        int
	window     time.Duration
	subscriber string
}

// NewEngine creates a dispatch engine.
func NewEngine(store registry.Store, limiter ratelimit.Limiter, sender transport.Sender, cfg Config, logger *zap.Logger) *Engine {
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	window := cfg.Window
	if window <= 0 {
		window = time.Minute
	}
	return &Engine{
		store:      store,
		limiter:    limiter,
		sender:     sender,
		logger:     logger,
		batchSize:  batchSize,
		ttl:        int(cfg.TTL.Seconds()),
		window:     window,
		subscriber: cfg.Subscriber,
	}
}

// Send delivers req.Payload to the resolved target set and reports every
// per-subscription outcome. Partial failure is not a call-level error: a send
// with some unreachable endpoints still returns the full result summary.
func (e *Engine) Send(ctx context.Context, app *models.App, req *models.SendRequest) (*models.BatchResult, error) {
	if len(req.Payload) == 0 {
		return nil, errors.WithMessage(errors.ErrValidation, "payload is required")
	}

	targets, err := e.resolveTargets(ctx, app, req)
	if err != nil {
		return nil, err
	}

	// An empty target set is a success, and consumes no rate-limit budget.
	if len(targets) == 0 {
		return &models.BatchResult{Results: []models.DispatchResult{}}, nil
	}

	action := ratelimit.ActionSingleSend
	if len(targets) > 1 {
		action = ratelimit.ActionBroadcastSend
	}
	gate, err := e.limiter.CheckAndIncrement(ctx, app.ID, action, app.MaxPerMinute, e.window)
	if err != nil {
		return nil, err
	}
	if !gate.Allowed {
		return nil, errors.WithMessage(errors.ErrRateLimitExceeded,
			fmt.Sprintf("%d of %d sends used in the current window", gate.Current, gate.Limit))
	}

	identity := e.identity(app)
	results := make([]models.DispatchResult, len(targets))

	// Batches run strictly sequentially; within a batch every delivery is
	// issued concurrently and results land in their target-index slot, so
	// ordering never depends on completion order.
	for start := 0; start < len(targets); start += e.batchSize {
		end := min(start+e.batchSize, len(targets))

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				results[i] = e.deliverOne(ctx, identity, &targets[i], req.Payload)
			}(i)
		}
		wg.Wait()
	}

	batch := &models.BatchResult{Total: len(targets), Results: results}
	for _, r := range results {
		if r.Success {
			batch.Sent++
		} else {
			batch.Failed++
		}
	}

	e.logger.Info("Dispatch complete",
		zap.String("app_id", app.ID),
		zap.Int("sent", batch.Sent),
		zap.Int("failed", batch.Failed),
		zap.Int("total", batch.Total),
	)

	return batch, nil
}

// SendDirect delivers to an endpoint supplied inline. Key material is
// validated strictly, the outcome is classified the same way as Send, but
// there is no registry row to prune and no rate-limit accounting.
func (e *Engine) SendDirect(ctx context.Context, app *models.App, req *models.DirectSendRequest) (*models.DispatchResult, error) {
	if len(req.Payload) == 0 {
		return nil, errors.WithMessage(errors.ErrValidation, "payload is required")
	}
	if err := registry.ValidateEndpoint(req.Endpoint); err != nil {
		return nil, err
	}
	p256dh, err := keys.ValidatePublicKey(req.P256dh)
	if err != nil {
		return nil, errors.WithMessage(errors.ErrValidation, err.Error())
	}
	auth, err := keys.ValidateAuthSecret(req.Auth)
	if err != nil {
		return nil, errors.WithMessage(errors.ErrValidation, err.Error())
	}

	target := transport.Target{Endpoint: req.Endpoint, P256dh: p256dh, Auth: auth}
	status, err := e.sender.Deliver(ctx, e.identity(app), target, req.Payload, transport.Options{TTL: e.ttl})

	result := &models.DispatchResult{StatusCode: status, Success: err == nil}
	if err != nil {
		result.Error = err.Error()
	}
	return result, nil
}

// resolveTargets applies the mutually-exclusive precedence: explicit ids win,
// then the user/channel filter, with no filters meaning broadcast.
func (e *Engine) resolveTargets(ctx context.Context, app *models.App, req *models.SendRequest) ([]models.Subscription, error) {
	if len(req.SubscriptionIDs) > 0 {
		subs, err := e.store.ListByIDs(ctx, req.SubscriptionIDs)
		if err != nil {
			return nil, err
		}
		// Ids belonging to other apps are silently dropped, not errored.
		owned := subs[:0]
		for _, sub := range subs {
			if sub.AppID == app.ID {
				owned = append(owned, sub)
			}
		}
		return owned, nil
	}

	return e.store.ListByApp(ctx, app.ID, registry.Filter{
		UserID:    req.UserID,
		ChannelID: req.ChannelID,
	})
}

func (e *Engine) identity(app *models.App) transport.Identity {
	// Built per call from the app record: no process-global push identity,
	// one app's credentials are never used on another app's behalf.
	return transport.Identity{
		Subscriber: e.subscriber,
		PublicKey:  app.VAPIDPublicKey,
		PrivateKey: app.VAPIDPrivateKey,
	}
}

func (e *Engine) deliverOne(ctx context.Context, identity transport.Identity, sub *models.Subscription, payload []byte) models.DispatchResult {
	result := models.DispatchResult{SubscriptionID: sub.ID}

	// Stored values are already canonical, but rows written before
	// normalization existed may not be; re-normalizing is a no-op for
	// canonical values. Undecodable material is recorded as a failure
	// without an attempt and the row is kept.
	p256dh, err := keys.Normalize(keys.FieldP256dh, sub.P256dh)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	auth, err := keys.Normalize(keys.FieldAuth, sub.Auth)
	if err != nil {
		result.Error = err.Error()
		return result
	}

	target := transport.Target{Endpoint: sub.Endpoint, P256dh: p256dh, Auth: auth}
	status, err := e.sender.Deliver(ctx, identity, target, payload, transport.Options{TTL: e.ttl})
	result.StatusCode = status
	if err == nil {
		result.Success = true
		return result
	}

	result.Error = err.Error()

	if transport.IsPermanent(err) {
		// Self-healing: the endpoint is gone for good, drop the row now. A
		// failed delete is logged and retried implicitly on the next send.
		if _, delErr := e.store.Delete(ctx, sub.ID); delErr != nil {
			e.logger.Error("Failed to prune dead subscription", zap.String("subscription_id", sub.ID), zap.Error(delErr))
		} else {
			e.logger.Info("Pruned dead subscription", zap.String("subscription_id", sub.ID), zap.Int("status", status))
		}
	}

	return result
}
