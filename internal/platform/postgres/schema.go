package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

const schema = `
	CREATE TABLE IF NOT EXISTS registry_codes (
		code TEXT PRIMARY KEY,
		country_code TEXT NOT NULL,
		registrant_code TEXT NOT NULL,
		year INT NOT NULL,
		designation_number INT NOT NULL,
		release_id UUID NOT NULL,
		status TEXT NOT NULL,
		cleared_for_distribution BOOLEAN NOT NULL DEFAULT FALSE,
		territorial_restrictions TEXT[] DEFAULT '{}',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (registrant_code, year, designation_number)
	);
	CREATE INDEX IF NOT EXISTS idx_registry_codes_release
		ON registry_codes(release_id) WHERE status = 'active';

	CREATE TABLE IF NOT EXISTS bulk_batches (
		id UUID PRIMARY KEY,
		created_by UUID NOT NULL,
		release_ids UUID[] NOT NULL,
		platform_codes TEXT[] NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS distributions (
		id UUID PRIMARY KEY,
		release_id UUID NOT NULL,
		batch_id UUID REFERENCES bulk_batches(id),
		platform_code TEXT NOT NULL,
		status TEXT NOT NULL,
		isrc TEXT NOT NULL,
		territories TEXT[] DEFAULT '{}',
		distribution_metadata JSONB DEFAULT '{}',
		platform_metadata JSONB DEFAULT '{}',
		retry_count INT NOT NULL DEFAULT 0,
		error_message TEXT,
		platform_submission_id TEXT,
		platform_url TEXT,
		live_date TIMESTAMPTZ,
		removal_requested_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (release_id, platform_code)
	);
	CREATE INDEX IF NOT EXISTS idx_distributions_batch ON distributions(batch_id);
	CREATE INDEX IF NOT EXISTS idx_distributions_submission
		ON distributions(platform_code, platform_submission_id);

	CREATE TABLE IF NOT EXISTS distribution_events (
		id BIGSERIAL PRIMARY KEY,
		distribution_id UUID NOT NULL REFERENCES distributions(id) ON DELETE CASCADE,
		status TEXT NOT NULL,
		message TEXT NOT NULL,
		occurred_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS idx_distribution_events_distribution
		ON distribution_events(distribution_id, occurred_at);

	CREATE TABLE IF NOT EXISTS revenue_records (
		distribution_id UUID NOT NULL REFERENCES distributions(id) ON DELETE CASCADE,
		period TEXT NOT NULL,
		streams BIGINT NOT NULL DEFAULT 0,
		revenue DOUBLE PRECISION NOT NULL DEFAULT 0,
		currency TEXT NOT NULL DEFAULT 'USD',
		reported_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (distribution_id, period)
	);

	CREATE TABLE IF NOT EXISTS webhook_orphans (
		id BIGSERIAL PRIMARY KEY,
		platform_code TEXT NOT NULL,
		submission_id TEXT NOT NULL,
		event TEXT NOT NULL,
		payload BYTEA,
		received_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS idx_webhook_orphans_platform
		ON webhook_orphans(platform_code, received_at);`

// EnsureSchema creates the tables and indexes if they do not exist. It runs
// at startup; all statements are idempotent.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
