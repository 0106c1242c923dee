// Package registry owns the per-app set of push subscriptions.
package registry

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"push-relay/internal/keys"
	"push-relay/internal/models"
	"push-relay/pkg/errors"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultListLimit bounds ListByApp scans; callers page via offset.
const DefaultListLimit = 1000

// Filter narrows ListByApp results. Empty UserID/ChannelID means no filter on
// that dimension; both set means both must match.
type Filter struct {
	UserID    string
	ChannelID string
	Limit     int
	Offset    int
}

// Store is the subscription registry consumed by the dispatch engine and the
// HTTP handlers.
type Store interface {
	// Upsert inserts a subscription or, on an (app_id, endpoint) collision,
	// replaces every mutable field of the existing row while preserving its
	// original id. Key material is validated strictly and stored canonical.
	Upsert(ctx context.Context, sub *models.Subscription) (*models.Subscription, error)

	// GetByID returns nil, nil when no row exists.
	GetByID(ctx context.Context, id string) (*models.Subscription, error)

	// ListByApp returns live (non-expired) subscriptions, newest first.
	ListByApp(ctx context.Context, appID string, filter Filter) ([]models.Subscription, error)

	// ListByIDs returns whichever of the given ids exist; missing ids are
	// silently omitted. Ownership filtering is the caller's job.
	ListByIDs(ctx context.Context, ids []string) ([]models.Subscription, error)

	// Delete and DeleteByEndpoint are idempotent and report whether a row
	// was actually removed.
	Delete(ctx context.Context, id string) (bool, error)
	DeleteByEndpoint(ctx context.Context, appID, endpoint string) (bool, error)

	// Count returns the number of stored subscriptions for an app. Used for
	// the max-subscriptions ceiling; the count-then-insert sequence is not
	// race-free, so the ceiling is a soft limit.
	Count(ctx context.Context, appID string) (int, error)
}

// ValidateEndpoint checks that an endpoint is an absolute http(s) URL.
func ValidateEndpoint(endpoint string) error {
	u, err := url.Parse(endpoint)
	if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return errors.WithMessage(errors.ErrValidation, fmt.Sprintf("endpoint %q is not an absolute http(s) URL", endpoint))
	}
	return nil
}

// PostgresStore implements Store on Postgres.
type PostgresStore struct {
	db     *sql.DB
	logger *zap.Logger
	now    func() time.Time
}

// NewPostgresStore creates a registry backed by the given database.
func NewPostgresStore(db *sql.DB, logger *zap.Logger) *PostgresStore {
	return &PostgresStore{
		db:     db,
		logger: logger,
		now:    time.Now,
	}
}

// WithClock overrides the time source, for deterministic tests.
func (s *PostgresStore) WithClock(now func() time.Time) *PostgresStore {
	s.now = now
	return s
}

const subscriptionColumns = `id, app_id, endpoint, p256dh, auth, user_id, channel_id, metadata, created_at, expires_at`

func (s *PostgresStore) Upsert(ctx context.Context, sub *models.Subscription) (*models.Subscription, error) {
	if err := ValidateEndpoint(sub.Endpoint); err != nil {
		return nil, err
	}

	p256dh, err := keys.ValidatePublicKey(sub.P256dh)
	if err != nil {
		return nil, errors.WithMessage(errors.ErrValidation, err.Error())
	}
	auth, err := keys.ValidateAuthSecret(sub.Auth)
	if err != nil {
		return nil, errors.WithMessage(errors.ErrValidation, err.Error())
	}

	var metadata []byte
	if len(sub.Metadata) > 0 {
		metadata, err = json.Marshal(sub.Metadata)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrValidation)
		}
	}

	// ON CONFLICT keeps the existing id and created_at; RETURNING reads them
	// back so a re-subscribe is indistinguishable from the original row apart
	// from the replaced fields.
	query := `
		INSERT INTO subscriptions (id, app_id, endpoint, p256dh, auth, user_id, channel_id, metadata, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (app_id, endpoint) DO UPDATE
		SET p256dh     = EXCLUDED.p256dh,
		    auth       = EXCLUDED.auth,
		    user_id    = EXCLUDED.user_id,
		    channel_id = EXCLUDED.channel_id,
		    metadata   = EXCLUDED.metadata,
		    expires_at = EXCLUDED.expires_at
		RETURNING id, created_at
	`

	stored := *sub
	stored.P256dh = p256dh
	stored.Auth = auth

	err = s.db.QueryRowContext(ctx, query,
		uuid.New().String(),
		sub.AppID,
		sub.Endpoint,
		p256dh,
		auth,
		sub.UserID,
		sub.ChannelID,
		metadata,
		sub.ExpiresAt,
	).Scan(&stored.ID, &stored.CreatedAt)
	if err != nil {
		s.logger.Error("Failed to upsert subscription", zap.String("app_id", sub.AppID), zap.Error(err))
		return nil, errors.Wrap(err, errors.ErrInternalServer)
	}

	return &stored, nil
}

func (s *PostgresStore) GetByID(ctx context.Context, id string) (*models.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE id = $1`

	sub, err := s.scanOne(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		s.logger.Error("Failed to get subscription", zap.String("id", id), zap.Error(err))
		return nil, errors.Wrap(err, errors.ErrInternalServer)
	}
	return sub, nil
}

func (s *PostgresStore) ListByApp(ctx context.Context, appID string, filter Filter) ([]models.Subscription, error) {
	limit := filter.Limit
	if limit <= 0 || limit > DefaultListLimit {
		limit = DefaultListLimit
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions
		WHERE app_id = $1 AND (expires_at IS NULL OR expires_at > $2)`
	args := []interface{}{appID, s.now()}

	if filter.UserID != "" {
		args = append(args, filter.UserID)
		query += fmt.Sprintf(" AND user_id = $%d", len(args))
	}
	if filter.ChannelID != "" {
		args = append(args, filter.ChannelID)
		query += fmt.Sprintf(" AND channel_id = $%d", len(args))
	}

	args = append(args, limit, offset)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		s.logger.Error("Failed to list subscriptions", zap.String("app_id", appID), zap.Error(err))
		return nil, errors.Wrap(err, errors.ErrInternalServer)
	}
	defer rows.Close()

	return s.scanAll(rows)
}

func (s *PostgresStore) ListByIDs(ctx context.Context, ids []string) ([]models.Subscription, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}

	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE id IN (` +
		strings.Join(placeholders, ", ") + `)`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		s.logger.Error("Failed to list subscriptions by ids", zap.Error(err))
		return nil, errors.Wrap(err, errors.ErrInternalServer)
	}
	defer rows.Close()

	return s.scanAll(rows)
}

func (s *PostgresStore) Delete(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE id = $1`, id)
	if err != nil {
		s.logger.Error("Failed to delete subscription", zap.String("id", id), zap.Error(err))
		return false, errors.Wrap(err, errors.ErrInternalServer)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *PostgresStore) DeleteByEndpoint(ctx context.Context, appID, endpoint string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE app_id = $1 AND endpoint = $2`, appID, endpoint)
	if err != nil {
		s.logger.Error("Failed to delete subscription by endpoint", zap.String("app_id", appID), zap.Error(err))
		return false, errors.Wrap(err, errors.ErrInternalServer)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *PostgresStore) Count(ctx context.Context, appID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM subscriptions WHERE app_id = $1`, appID).Scan(&count)
	if err != nil {
		s.logger.Error("Failed to count subscriptions", zap.String("app_id", appID), zap.Error(err))
		return 0, errors.Wrap(err, errors.ErrInternalServer)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (s *PostgresStore) scanOne(row rowScanner) (*models.Subscription, error) {
	var sub models.Subscription
	var metadata []byte
	var expiresAt sql.NullTime

	err := row.Scan(
		&sub.ID,
		&sub.AppID,
		&sub.Endpoint,
		&sub.P256dh,
		&sub.Auth,
		&sub.UserID,
		&sub.ChannelID,
		&metadata,
		&sub.CreatedAt,
		&expiresAt,
	)
	if err != nil {
		return nil, err
	}

	if expiresAt.Valid {
		t := expiresAt.Time
		sub.ExpiresAt = &t
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &sub.Metadata); err != nil {
			s.logger.Warn("Discarding unreadable subscription metadata", zap.String("id", sub.ID), zap.Error(err))
		}
	}

	return &sub, nil
}

func (s *PostgresStore) scanAll(rows *sql.Rows) ([]models.Subscription, error) {
	var subs []models.Subscription
	for rows.Next() {
		sub, err := s.scanOne(rows)
		if err != nil {
			s.logger.Error("Failed to scan subscription row", zap.Error(err))
			return nil, errors.Wrap(err, errors.ErrInternalServer)
		}
		subs = append(subs, *sub)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrInternalServer)
	}
	return subs, nil
}
