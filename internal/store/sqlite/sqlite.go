// Package sqlite is the on-device embedded persistence layer backing the
// model registry, the telemetry queue, the cached remote configuration
// layer, and device identity, each through its own narrow store type
// (ModelStore, TelemetryStore, ConfigStore, DeviceInfoStore) sharing one
// *sql.DB and migration.
//
// Grounded on internal/agent/npcstore.PostgresStore's DB-interface,
// Migrate-then-upsert, JSON-marshalled-sub-fields shape, carried over to
// database/sql against github.com/mattn/go-sqlite3 rather than
// jackc/pgx/v5 — pgx is already grounded elsewhere for the server-side
// session/memory store, and this layer runs embedded on the device rather
// than against a server. mattn/go-sqlite3 is the pack's own grounding for
// this exact database/sql-plus-sqlite pairing (kadirpekel-hector's
// v2/session/store.go and v2/task/store.go).
//
// Every table carries created_at, updated_at, and sync_pending columns,
// the same tracking triad sdktypes.ModelInfo already exposes, so a device
// that has been offline can tell a subsequent sync pass which rows still
// need to go out.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS models (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	category TEXT NOT NULL,
	format TEXT NOT NULL DEFAULT '',
	artifact_json TEXT NOT NULL DEFAULT '{}',
	download_url TEXT NOT NULL DEFAULT '',
	local_path TEXT NOT NULL DEFAULT '',
	download_size INTEGER NOT NULL DEFAULT 0,
	memory_required INTEGER NOT NULL DEFAULT 0,
	compatible_frameworks_json TEXT NOT NULL DEFAULT '[]',
	preferred_framework TEXT NOT NULL DEFAULT '',
	context_length INTEGER NOT NULL DEFAULT 0,
	supports_thinking INTEGER NOT NULL DEFAULT 0,
	usage_count INTEGER NOT NULL DEFAULT 0,
	last_used DATETIME,
	source TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	sync_pending INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS telemetry (
	id TEXT PRIMARY KEY,
	event_type TEXT NOT NULL,
	modality TEXT NOT NULL DEFAULT '',
	timestamp DATETIME NOT NULL,
	session_id TEXT NOT NULL DEFAULT '',
	model_id TEXT NOT NULL DEFAULT '',
	framework TEXT NOT NULL DEFAULT '',
	device TEXT NOT NULL DEFAULT '',
	platform TEXT NOT NULL DEFAULT '',
	sdk_version TEXT NOT NULL DEFAULT '',
	fields_json TEXT NOT NULL DEFAULT '{}',
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	sync_pending INTEGER NOT NULL DEFAULT 1
);
CREATE INDEX IF NOT EXISTS idx_telemetry_pending ON telemetry(sync_pending);

CREATE TABLE IF NOT EXISTS configuration (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	sync_pending INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS device_info (
	id TEXT PRIMARY KEY DEFAULT 'local',
	platform TEXT NOT NULL DEFAULT '',
	sdk_version TEXT NOT NULL DEFAULT '',
	attributes_json TEXT NOT NULL DEFAULT '{}',
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	sync_pending INTEGER NOT NULL DEFAULT 1
);
`

// Open opens (creating if absent) the sqlite database file at path. Callers
// must call Migrate before using any store type against the returned DB.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %q: %w", path, err)
	}
	return db, nil
}

// Migrate creates the models, telemetry, configuration, and device_info
// tables if they do not already exist. Idempotent.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("sqlite: migrate: %w", err)
	}
	return nil
}
