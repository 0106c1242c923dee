// Package transport delivers serialized payloads to push-service endpoints.
// The dispatch engine depends only on the Sender interface and the two-way
// permanent/transient failure classification, not on the wire protocol.
package transport

import (
	"context"
	"fmt"
)

// Identity is an app's own credentials with upstream push services. One app's
// identity is never used on another app's behalf.
type Identity struct {
	Subscriber string
	PublicKey  string
	PrivateKey string
}

// Target addresses one device endpoint with its canonicalized key material.
type Target struct {
	Endpoint string
	P256dh   string
	Auth     string
}

// Options tune a single delivery attempt.
type Options struct {
	// TTL in seconds, as understood by push services.
	TTL     int
	Urgency string
}

// Sender performs one delivery attempt and returns the upstream status code.
type Sender interface {
	Deliver(ctx context.Context, identity Identity, target Target, payload []byte, opts Options) (int, error)
}

// DeliveryError is the classified failure of one delivery attempt. Permanent
// means the endpoint will never accept further deliveries (HTTP 404/410) and
// the subscription should be pruned; anything else is transient.
type DeliveryError struct {
	StatusCode int
	Permanent  bool
	Message    string
}

func (e *DeliveryError) Error() string {
	kind := "transient"
	if e.Permanent {
		kind = "permanent"
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s delivery failure (status %d): %s", kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s delivery failure: %s", kind, e.Message)
}

// IsPermanent reports whether err is a permanent delivery failure.
func IsPermanent(err error) bool {
	de, ok := err.(*DeliveryError)
	return ok && de.Permanent
}
