package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/glyphoxa-sdk/runtime/pkg/sdktypes"
)

// ModelStore persists sdktypes.ModelInfo rows and satisfies
// modelregistry.Store.
type ModelStore struct {
	db *sql.DB
}

// NewModelStore wraps db, which must already have had Migrate run against
// it.
func NewModelStore(db *sql.DB) *ModelStore {
	return &ModelStore{db: db}
}

// Upsert inserts model or, if its id already exists, replaces it and marks
// the row sync_pending again.
func (s *ModelStore) Upsert(ctx context.Context, model sdktypes.ModelInfo) error {
	artifactJSON, err := json.Marshal(model.Artifact)
	if err != nil {
		return fmt.Errorf("sqlite: marshal artifact for model %q: %w", model.ID, err)
	}
	frameworksJSON, err := json.Marshal(model.CompatibleFrameworks)
	if err != nil {
		return fmt.Errorf("sqlite: marshal frameworks for model %q: %w", model.ID, err)
	}

	const query = `
		INSERT INTO models (
			id, name, category, format, artifact_json, download_url, local_path,
			download_size, memory_required, compatible_frameworks_json,
			preferred_framework, context_length, supports_thinking, usage_count,
			last_used, source, sync_pending
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,1)
		ON CONFLICT(id) DO UPDATE SET
			name=excluded.name,
			category=excluded.category,
			format=excluded.format,
			artifact_json=excluded.artifact_json,
			download_url=excluded.download_url,
			local_path=excluded.local_path,
			download_size=excluded.download_size,
			memory_required=excluded.memory_required,
			compatible_frameworks_json=excluded.compatible_frameworks_json,
			preferred_framework=excluded.preferred_framework,
			context_length=excluded.context_length,
			supports_thinking=excluded.supports_thinking,
			usage_count=excluded.usage_count,
			last_used=excluded.last_used,
			source=excluded.source,
			updated_at=CURRENT_TIMESTAMP,
			sync_pending=1`

	if _, err := s.db.ExecContext(ctx, query,
		model.ID, model.Name, string(model.Category), string(model.Format),
		string(artifactJSON), model.DownloadURL, model.LocalPath,
		model.DownloadSize, model.MemoryRequired, string(frameworksJSON),
		model.PreferredFramework, model.ContextLength, boolToInt(model.SupportsThinking),
		model.UsageCount, nullableTime(model.LastUsed), string(model.Source),
	); err != nil {
		return fmt.Errorf("sqlite: upsert model %q: %w", model.ID, err)
	}
	return nil
}

// Load returns every persisted model.
func (s *ModelStore) Load(ctx context.Context) ([]sdktypes.ModelInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, category, format, artifact_json, download_url, local_path,
		       download_size, memory_required, compatible_frameworks_json,
		       preferred_framework, context_length, supports_thinking, usage_count,
		       last_used, source, created_at, updated_at, sync_pending
		FROM models`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: load models: %w", err)
	}
	defer rows.Close()

	var out []sdktypes.ModelInfo
	for rows.Next() {
		var (
			m                          sdktypes.ModelInfo
			category, format, source   string
			artifactJSON, fwJSON       string
			supportsThinking, syncPend int
			lastUsed                   sql.NullTime
		)
		if err := rows.Scan(
			&m.ID, &m.Name, &category, &format, &artifactJSON, &m.DownloadURL, &m.LocalPath,
			&m.DownloadSize, &m.MemoryRequired, &fwJSON,
			&m.PreferredFramework, &m.ContextLength, &supportsThinking, &m.UsageCount,
			&lastUsed, &source, &m.CreatedAt, &m.UpdatedAt, &syncPend,
		); err != nil {
			return nil, fmt.Errorf("sqlite: scan model row: %w", err)
		}
		m.Category = sdktypes.Category(category)
		m.Format = sdktypes.Format(format)
		m.Source = sdktypes.Source(source)
		m.SupportsThinking = supportsThinking != 0
		m.SyncPending = syncPend != 0
		if lastUsed.Valid {
			m.LastUsed = lastUsed.Time
		}
		if err := json.Unmarshal([]byte(artifactJSON), &m.Artifact); err != nil {
			return nil, fmt.Errorf("sqlite: unmarshal artifact for model %q: %w", m.ID, err)
		}
		if err := json.Unmarshal([]byte(fwJSON), &m.CompatibleFrameworks); err != nil {
			return nil, fmt.Errorf("sqlite: unmarshal frameworks for model %q: %w", m.ID, err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
