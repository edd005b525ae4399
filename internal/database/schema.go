package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// Execer runs a statement. *pgxpool.Pool and pgx.Tx satisfy it.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Schema is the DDL for channels, devices and licenses. Every statement is
// idempotent.
const Schema = `
	CREATE TABLE IF NOT EXISTS channels (
		id BIGSERIAL PRIMARY KEY,
		name VARCHAR(255) NOT NULL UNIQUE,
		max_devices INT NOT NULL DEFAULT 1000,
		license_duration_days INT NOT NULL DEFAULT 30,
		description TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS devices (
		id BIGSERIAL PRIMARY KEY,
		device_id_str VARCHAR(255) NOT NULL UNIQUE,
		channel_id BIGINT NOT NULL REFERENCES channels(id) ON DELETE RESTRICT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS licenses (
		id BIGSERIAL PRIMARY KEY,
		license_key TEXT NOT NULL,
		version VARCHAR(64) NOT NULL,
		request_ip VARCHAR(64),
		status VARCHAR(32) NOT NULL DEFAULT 'active',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		expires_at TIMESTAMPTZ NOT NULL,
		device_id BIGINT NOT NULL REFERENCES devices(id) ON DELETE RESTRICT
	);

	CREATE INDEX IF NOT EXISTS idx_devices_channel_id ON devices(channel_id);
	CREATE INDEX IF NOT EXISTS idx_licenses_device_expires ON licenses(device_id, expires_at DESC);
	CREATE INDEX IF NOT EXISTS idx_licenses_status ON licenses(status);
`

// Migrate creates the tables and indexes if they do not exist.
func Migrate(ctx context.Context, db Execer) error {
	if _, err := db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
