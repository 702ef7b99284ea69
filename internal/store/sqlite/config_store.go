package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrConfigKeyNotFound is returned by ConfigStore.Get when key has never
// been set.
var ErrConfigKeyNotFound = errors.New("sqlite: configuration key not found")

// ConfigStore is a key/value cache for the remote configuration layer
// (the layer configresolve.Resolve merges between runtime options and SDK
// defaults). Backed by the configuration table from spec.md §6.6.
type ConfigStore struct {
	db *sql.DB
}

// NewConfigStore wraps db, which must already have had Migrate run
// against it.
func NewConfigStore(db *sql.DB) *ConfigStore {
	return &ConfigStore{db: db}
}

// Set upserts key with value and stores syncPending in the row's
// sync_pending column, so an assignment-fetch-driven write (false) is
// distinguishable from one still owed to the backend (true).
func (s *ConfigStore) Set(ctx context.Context, key, value string, syncPending bool) error {
	const query = `
		INSERT INTO configuration (key, value, sync_pending) VALUES (?,?,?)
		ON CONFLICT(key) DO UPDATE SET
			value=excluded.value, updated_at=CURRENT_TIMESTAMP, sync_pending=excluded.sync_pending`
	if _, err := s.db.ExecContext(ctx, query, key, value, boolToInt(syncPending)); err != nil {
		return fmt.Errorf("sqlite: set configuration %q: %w", key, err)
	}
	return nil
}

// Get returns the value stored for key, or ErrConfigKeyNotFound if it was
// never set.
func (s *ConfigStore) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM configuration WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrConfigKeyNotFound
	}
	if err != nil {
		return "", fmt.Errorf("sqlite: get configuration %q: %w", key, err)
	}
	return value, nil
}

// All returns every stored key/value pair, e.g. to seed the remote
// configuration layer at startup before an assignment fetch can refresh
// it.
func (s *ConfigStore) All(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM configuration`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list configuration: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("sqlite: scan configuration row: %w", err)
		}
		out[k] = v
	}
	return out, rows.Err()
}
