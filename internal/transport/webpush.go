package transport

import (
	"context"
	"io"
	"net/http"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"
	"go.uber.org/zap"
)

const maxErrorBody = 512

// WebPushSender sends Web Push messages with per-app VAPID authentication.
type WebPushSender struct {
	client  *http.Client
	logger  *zap.Logger
	timeout time.Duration
}

// NewWebPushSender creates a sender whose individual delivery attempts are
// bounded by timeout, so one unresponsive endpoint cannot stall a batch.
func NewWebPushSender(timeout time.Duration, logger *zap.Logger) *WebPushSender {
	return &WebPushSender{
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
		timeout: timeout,
	}
}

func (s *WebPushSender) Deliver(ctx context.Context, identity Identity, target Target, payload []byte, opts Options) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	sub := &webpush.Subscription{
		Endpoint: target.Endpoint,
		Keys: webpush.Keys{
			P256dh: target.P256dh,
			Auth:   target.Auth,
		},
	}

	urgency := webpush.Urgency(opts.Urgency)
	if urgency == "" {
		urgency = webpush.UrgencyNormal
	}

	resp, err := webpush.SendNotificationWithContext(ctx, payload, sub, &webpush.Options{
		HTTPClient:      s.client,
		Subscriber:      identity.Subscriber, // webpush adds mailto: automatically
		VAPIDPublicKey:  identity.PublicKey,
		VAPIDPrivateKey: identity.PrivateKey,
		TTL:             opts.TTL,
		Urgency:         urgency,
	})
	if err != nil {
		// Network errors and timeouts: possibly recoverable, never prune.
		return 0, &DeliveryError{Message: err.Error()}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return resp.StatusCode, nil
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return resp.StatusCode, &DeliveryError{
			StatusCode: resp.StatusCode,
			Permanent:  true,
			Message:    "subscription no longer valid",
		}
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		s.logger.Debug("Push service rejected delivery", zap.Int("status", resp.StatusCode), zap.ByteString("body", body))
		return resp.StatusCode, &DeliveryError{
			StatusCode: resp.StatusCode,
			Message:    string(body),
		}
	}
}
