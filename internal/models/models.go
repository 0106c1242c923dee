package models

import (
	"encoding/json"
	"time"
)

// App represents a registered application (tenant) in the database. Each app
// carries its own VAPID keypair; the private key never leaves the service.
// Apps round-trip through the redis cache as JSON, so the secret-bearing
// fields keep tags here; only View is ever marshalled into API responses.
type App struct {
	ID               string    `db:"id" json:"id"`
	Name             string    `db:"name" json:"name"`
	OwnerID          string    `db:"owner_id" json:"owner_id"`
	APIKeyHash       string    `db:"api_key_hash" json:"api_key_hash"`
	VAPIDPublicKey   string    `db:"vapid_public_key" json:"vapid_public_key"`
	VAPIDPrivateKey  string    `db:"vapid_private_key" json:"vapid_private_key"`
	MaxPerMinute     int       `db:"max_per_minute" json:"max_per_minute"`
	MaxPerDay        int       `db:"max_per_day" json:"max_per_day"`
	MaxSubscriptions int       `db:"max_subscriptions" json:"max_subscriptions"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}

// AppView is the caller-facing representation of an App: no key hash, no
// private VAPID key.
type AppView struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	VAPIDPublicKey   string    `json:"vapid_public_key"`
	MaxPerMinute     int       `json:"max_per_minute"`
	MaxPerDay        int       `json:"max_per_day"`
	MaxSubscriptions int       `json:"max_subscriptions"`
	CreatedAt        time.Time `json:"created_at"`
}

// View strips the fields that must never leave the service boundary.
func (a *App) View() *AppView {
	return &AppView{
		ID:               a.ID,
		Name:             a.Name,
		VAPIDPublicKey:   a.VAPIDPublicKey,
		MaxPerMinute:     a.MaxPerMinute,
		MaxPerDay:        a.MaxPerDay,
		MaxSubscriptions: a.MaxSubscriptions,
		CreatedAt:        a.CreatedAt,
	}
}

// Subscription represents one device endpoint registered to receive pushes
// for an app. (AppID, Endpoint) is the natural key: at most one live row per
// app per endpoint. Key material is stored canonicalized (unpadded base64url).
type Subscription struct {
	ID        string            `db:"id" json:"id"`
	AppID     string            `db:"app_id" json:"app_id"`
	Endpoint  string            `db:"endpoint" json:"endpoint"`
	P256dh    string            `db:"p256dh" json:"p256dh"`
	Auth      string            `db:"auth" json:"auth"`
	UserID    string            `db:"user_id" json:"user_id,omitempty"`
	ChannelID string            `db:"channel_id" json:"channel_id,omitempty"`
	Metadata  map[string]string `db:"metadata" json:"metadata,omitempty"`
	CreatedAt time.Time         `db:"created_at" json:"created_at"`
	ExpiresAt *time.Time        `db:"expires_at" json:"expires_at,omitempty"`
}

// SubscribeRequest is the payload accepted by the subscribe endpoint.
type SubscribeRequest struct {
	Endpoint  string            `json:"endpoint"`
	P256dh    string            `json:"p256dh"`
	Auth      string            `json:"auth"`
	UserID    string            `json:"user_id,omitempty"`
	ChannelID string            `json:"channel_id,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	ExpiresAt *time.Time        `json:"expires_at,omitempty"`
}

// SendRequest asks the dispatch engine to deliver a payload. Target selection
// is mutually exclusive: explicit SubscriptionIDs win; otherwise UserID and
// ChannelID filter conjunctively, and leaving both empty broadcasts to every
// live subscription of the app.
type SendRequest struct {
	Payload         json.RawMessage `json:"payload"`
	UserID          string          `json:"user_id,omitempty"`
	ChannelID       string          `json:"channel_id,omitempty"`
	SubscriptionIDs []string        `json:"subscription_ids,omitempty"`
}

// DirectSendRequest delivers to an endpoint supplied inline, bypassing the
// registry. Used for one-off sends without prior registration.
type DirectSendRequest struct {
	Endpoint string          `json:"endpoint"`
	P256dh   string          `json:"p256dh"`
	Auth     string          `json:"auth"`
	Payload  json.RawMessage `json:"payload"`
}

// DispatchResult is the per-subscription delivery outcome. Never persisted.
type DispatchResult struct {
	SubscriptionID string `json:"subscription_id,omitempty"`
	Success        bool   `json:"success"`
	StatusCode     int    `json:"status_code,omitempty"`
	Error          string `json:"error,omitempty"`
}

// BatchResult aggregates one Send call. Results preserve target-list order.
type BatchResult struct {
	Sent    int              `json:"sent"`
	Failed  int              `json:"failed"`
	Total   int              `json:"total"`
	Results []DispatchResult `json:"results"`
}

// FailedResults returns only the failed subset, which is what the HTTP layer
// surfaces alongside the counts.
func (b *BatchResult) FailedResults() []DispatchResult {
	var failed []DispatchResult
	for _, r := range b.Results {
		if !r.Success {
			failed = append(failed, r)
		}
	}
	return failed
}

// AppCreatedResponse is returned once at registration; the API key secret is
// not recoverable afterwards.
type AppCreatedResponse struct {
	App    *AppView `json:"app"`
	APIKey string   `json:"api_key"`
}
