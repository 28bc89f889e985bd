package postgres

import (
	"context"
	"fmt"
)

const scriptsSchema = `
CREATE TABLE IF NOT EXISTS scripts (
	script_id        TEXT PRIMARY KEY,
	owner_id         TEXT NOT NULL,
	name             TEXT NOT NULL,
	description      TEXT NOT NULL DEFAULT '',
	content          TEXT NOT NULL,
	content_sha256   TEXT NOT NULL,
	version          BIGINT NOT NULL CHECK (version >= 1),
	created_at       TIMESTAMPTZ NOT NULL,
	updated_at       TIMESTAMPTZ NOT NULL,
	CHECK (updated_at >= created_at)
);
CREATE INDEX IF NOT EXISTS scripts_owner_id_idx ON scripts (owner_id);
`

const auditSchema = `
CREATE TABLE IF NOT EXISTS audit_events (
	event_id          BIGSERIAL PRIMARY KEY,
	occurred_at       TIMESTAMPTZ NOT NULL,
	actor             TEXT NOT NULL,
	action            TEXT NOT NULL,
	resource_type     TEXT NOT NULL,
	resource_id       TEXT NOT NULL,
	request_id        TEXT,
	payload           JSONB NOT NULL,
	integrity_sha256  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS audit_events_resource_idx ON audit_events (resource_type, resource_id);
`

// EnsureSchema creates the scripts and audit_events tables if they do not
// exist yet.
func EnsureSchema(ctx context.Context, db DB) error {
	if db == nil {
		return fmt.Errorf("db is required")
	}
	if _, err := db.ExecContext(ctx, scriptsSchema); err != nil {
		return fmt.Errorf("ensure scripts schema: %w", err)
	}
	if _, err := db.ExecContext(ctx, auditSchema); err != nil {
		return fmt.Errorf("ensure audit schema: %w", err)
	}
	return nil
}
