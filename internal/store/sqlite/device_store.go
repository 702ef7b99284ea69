package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// localDeviceID is the fixed primary key of the single device_info row:
// each on-device database describes exactly one device.
const localDeviceID = "local"

// DeviceInfo is the identity a device reports alongside telemetry events
// and assignment-fetcher requests.
type DeviceInfo struct {
	Platform   string
	SDKVersion string
	Attributes map[string]string
}

// DeviceInfoStore persists the single local DeviceInfo row.
type DeviceInfoStore struct {
	db *sql.DB
}

// NewDeviceInfoStore wraps db, which must already have had Migrate run
// against it.
func NewDeviceInfoStore(db *sql.DB) *DeviceInfoStore {
	return &DeviceInfoStore{db: db}
}

// Set upserts the local device_info row.
func (s *DeviceInfoStore) Set(ctx context.Context, info DeviceInfo) error {
	attrsJSON, err := json.Marshal(info.Attributes)
	if err != nil {
		return fmt.Errorf("sqlite: marshal device attributes: %w", err)
	}
	const query = `
		INSERT INTO device_info (id, platform, sdk_version, attributes_json, sync_pending)
		VALUES (?,?,?,?,1)
		ON CONFLICT(id) DO UPDATE SET
			platform=excluded.platform,
			sdk_version=excluded.sdk_version,
			attributes_json=excluded.attributes_json,
			updated_at=CURRENT_TIMESTAMP,
			sync_pending=1`
	if _, err := s.db.ExecContext(ctx, query, localDeviceID, info.Platform, info.SDKVersion, string(attrsJSON)); err != nil {
		return fmt.Errorf("sqlite: set device info: %w", err)
	}
	return nil
}

// Get returns the local DeviceInfo row, or sql.ErrNoRows wrapped if Set
// has never been called.
func (s *DeviceInfoStore) Get(ctx context.Context) (DeviceInfo, error) {
	var (
		info      DeviceInfo
		attrsJSON string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT platform, sdk_version, attributes_json FROM device_info WHERE id = ?`, localDeviceID,
	).Scan(&info.Platform, &info.SDKVersion, &attrsJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return DeviceInfo{}, fmt.Errorf("sqlite: get device info: %w", err)
	}
	if err != nil {
		return DeviceInfo{}, fmt.Errorf("sqlite: get device info: %w", err)
	}
	if err := json.Unmarshal([]byte(attrsJSON), &info.Attributes); err != nil {
		return DeviceInfo{}, fmt.Errorf("sqlite: unmarshal device attributes: %w", err)
	}
	return info, nil
}
