// Package directory resolves API credentials to app (tenant) records and
// manages app registration. The rest of the service treats App as a read-only
// value object per request.
package directory

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"strings"
	"time"

	"push-relay/internal/cache"
	"push-relay/internal/models"
	"push-relay/pkg/errors"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const (
	apiKeySecretBytes = 32
	appCacheTTL       = 5 * time.Minute
)

// Limits is the default rate-limit policy applied to newly registered apps.
type Limits struct {
	MaxPerMinute     int
	MaxPerDay        int
	MaxSubscriptions int
}

// Directory is the tenant-resolution boundary consumed by the middleware and
// the app-management handlers.
type Directory interface {
	// ResolveByCredential authenticates an "appID.secret" API key and
	// returns the app it belongs to.
	ResolveByCredential(ctx context.Context, credential string) (*models.App, error)

	// ResolveOwnerApps lists every app registered by an owner, newest first.
	ResolveOwnerApps(ctx context.Context, ownerID string) ([]models.App, error)

	// Register creates an app with a fresh VAPID keypair and returns the
	// one-time API key alongside it.
	Register(ctx context.Context, ownerID, name string) (*models.App, string, error)
}

// PostgresDirectory implements Directory on Postgres with a redis read cache
// in front of credential resolution.
type PostgresDirectory struct {
	db       *sql.DB
	cache    *cache.Cache
	logger   *zap.Logger
	defaults Limits
}

func NewPostgresDirectory(db *sql.DB, cache *cache.Cache, defaults Limits, logger *zap.Logger) *PostgresDirectory {
	return &PostgresDirectory{
		db:       db,
		cache:    cache,
		logger:   logger,
		defaults: defaults,
	}
}

const appColumns = `id, name, owner_id, api_key_hash, vapid_public_key, vapid_private_key,
	max_per_minute, max_per_day, max_subscriptions, created_at, updated_at`

func (d *PostgresDirectory) ResolveByCredential(ctx context.Context, credential string) (*models.App, error) {
	appID, secret, ok := strings.Cut(credential, ".")
	if !ok || appID == "" || secret == "" {
		return nil, errors.ErrInvalidCredentials
	}

	app, err := d.cache.GetApp(ctx, appID)
	if err != nil {
		// Cache trouble is not fatal, fall through to the database.
		app = nil
	}

	fromCache := app != nil
	if app == nil {
		app, err = d.getByID(ctx, appID)
		if err != nil {
			return nil, err
		}
	}
	if app == nil {
		return nil, errors.ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(app.APIKeyHash), []byte(secret)); err != nil {
		return nil, errors.ErrInvalidCredentials
	}

	if !fromCache {
		if err := d.cache.SetApp(ctx, app, appCacheTTL); err != nil {
			d.logger.Warn("Failed to cache app record", zap.String("app_id", app.ID), zap.Error(err))
		}
	}

	return app, nil
}

func (d *PostgresDirectory) ResolveOwnerApps(ctx context.Context, ownerID string) ([]models.App, error) {
	query := `SELECT ` + appColumns + ` FROM apps WHERE owner_id = $1 ORDER BY created_at DESC`

	rows, err := d.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		d.logger.Error("Failed to list owner apps", zap.String("owner_id", ownerID), zap.Error(err))
		return nil, errors.Wrap(err, errors.ErrInternalServer)
	}
	defer rows.Close()

	var apps []models.App
	for rows.Next() {
		app, err := scanApp(rows)
		if err != nil {
			d.logger.Error("Failed to scan app row", zap.Error(err))
			return nil, errors.Wrap(err, errors.ErrInternalServer)
		}
		apps = append(apps, *app)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrInternalServer)
	}
	return apps, nil
}

func (d *PostgresDirectory) Register(ctx context.Context, ownerID, name string) (*models.App, string, error) {
	if name == "" {
		return nil, "", errors.WithMessage(errors.ErrValidation, "app name is required")
	}

	privateKey, publicKey, err := webpush.GenerateVAPIDKeys()
	if err != nil {
		d.logger.Error("Failed to generate VAPID keys", zap.Error(err))
		return nil, "", errors.Wrap(err, errors.ErrInternalServer)
	}

	secretBytes := make([]byte, apiKeySecretBytes)
	if _, err := rand.Read(secretBytes); err != nil {
		return nil, "", errors.Wrap(err, errors.ErrInternalServer)
	}
	secret := base64.RawURLEncoding.EncodeToString(secretBytes)

	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", errors.Wrap(err, errors.ErrInternalServer)
	}

	app := &models.App{
		ID:               uuid.New().String(),
		Name:             name,
		OwnerID:          ownerID,
		APIKeyHash:       string(hash),
		VAPIDPublicKey:   publicKey,
		VAPIDPrivateKey:  privateKey,
		MaxPerMinute:     d.defaults.MaxPerMinute,
		MaxPerDay:        d.defaults.MaxPerDay,
		MaxSubscriptions: d.defaults.MaxSubscriptions,
	}

	query := `
		INSERT INTO apps (id, name, owner_id, api_key_hash, vapid_public_key, vapid_private_key,
			max_per_minute, max_per_day, max_subscriptions)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at
	`

	err = d.db.QueryRowContext(ctx, query,
		app.ID, app.Name, app.OwnerID, app.APIKeyHash, app.VAPIDPublicKey, app.VAPIDPrivateKey,
		app.MaxPerMinute, app.MaxPerDay, app.MaxSubscriptions,
	).Scan(&app.CreatedAt, &app.UpdatedAt)
	if err != nil {
		d.logger.Error("Failed to register app", zap.String("owner_id", ownerID), zap.Error(err))
		return nil, "", errors.Wrap(err, errors.ErrInternalServer)
	}

	return app, app.ID + "." + secret, nil
}

func (d *PostgresDirectory) getByID(ctx context.Context, appID string) (*models.App, error) {
	query := `SELECT ` + appColumns + ` FROM apps WHERE id = $1`

	app, err := scanApp(d.db.QueryRowContext(ctx, query, appID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		d.logger.Error("Failed to get app", zap.String("app_id", appID), zap.Error(err))
		return nil, errors.Wrap(err, errors.ErrInternalServer)
	}
	return app, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanApp(row rowScanner) (*models.App, error) {
	var app models.App
	err := row.Scan(
		&app.ID,
		&app.Name,
		&app.OwnerID,
		&app.APIKeyHash,
		&app.VAPIDPublicKey,
		&app.VAPIDPrivateKey,
		&app.MaxPerMinute,
		&app.MaxPerDay,
		&app.MaxSubscriptions,
		&app.CreatedAt,
		&app.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &app, nil
}
