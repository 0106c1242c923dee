package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gocloud.dev/postgres"
	_ "gocloud.dev/postgres/awspostgres"
	_ "gocloud.dev/postgres/gcppostgres"
)

// Open connects to Postgres, retrying with backoff since the database may
// still be starting when the service comes up.
func Open(ctx context.Context, databaseURL string, logger *zap.Logger) (*sql.DB, error) {
	var db *sql.DB
	var err error
	maxRetries := 5
	for i := 0; i < maxRetries; i++ {
		db, err = postgres.Open(ctx, databaseURL)
		if err == nil {
			if err = db.PingContext(ctx); err == nil {
				break
			}
			db.Close()
		}
		if i < maxRetries-1 {
			waitTime := time.Duration(i+1) * time.Second
			logger.Warn("Failed to connect to database, retrying...", zap.Int("attempt", i+1), zap.Duration("wait", waitTime), zap.Error(err))
			time.Sleep(waitTime)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database after %d attempts: %w", maxRetries, err)
	}

	return db, nil
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS apps (
		id                TEXT PRIMARY KEY,
		name              TEXT NOT NULL,
		owner_id          TEXT NOT NULL,
		api_key_hash      TEXT NOT NULL,
		vapid_public_key  TEXT NOT NULL,
		vapid_private_key TEXT NOT NULL,
		max_per_minute    INTEGER NOT NULL,
		max_per_day       INTEGER NOT NULL,
		max_subscriptions INTEGER NOT NULL,
		created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_apps_owner ON apps (owner_id)`,
	`CREATE TABLE IF NOT EXISTS subscriptions (
		id         TEXT PRIMARY KEY,
		app_id     TEXT NOT NULL REFERENCES apps (id) ON DELETE CASCADE,
		endpoint   TEXT NOT NULL,
		p256dh     TEXT NOT NULL,
		auth       TEXT NOT NULL,
		user_id    TEXT NOT NULL DEFAULT '',
		channel_id TEXT NOT NULL DEFAULT '',
		metadata   JSONB,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		expires_at TIMESTAMPTZ,
		UNIQUE (app_id, endpoint)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_subscriptions_target ON subscriptions (app_id, user_id, channel_id)`,
}

// Migrate applies the schema. Statements are idempotent so it runs on every
// boot.
func Migrate(ctx context.Context, db *sql.DB, logger *zap.Logger) error {
	for _, stmt := range migrations {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			logger.Error("Migration statement failed", zap.Error(err))
			return err
		}
	}
	logger.Info("Database schema up to date")
	return nil
}
