package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/glyphoxa-sdk/runtime/internal/telemetry"
)

// TelemetryStore persists telemetry.Event rows and satisfies
// telemetry.Store.
type TelemetryStore struct {
	db *sql.DB
}

// NewTelemetryStore wraps db, which must already have had Migrate run
// against it.
func NewTelemetryStore(db *sql.DB) *TelemetryStore {
	return &TelemetryStore{db: db}
}

// modalityFields bundles the three modality-specific field structs so a
// single JSON column can hold whichever one (if any) an event carries.
type modalityFields struct {
	LLM *telemetry.LLMFields `json:"llm,omitempty"`
	STT *telemetry.STTFields `json:"stt,omitempty"`
	TTS *telemetry.TTSFields `json:"tts,omitempty"`
}

// Persist inserts events, marking each row sync_pending so a restart before
// the next successful transmit resubmits it. For an id already stored, only
// event_type, modality and the modality fields are updated; the other
// columns keep their first-written values.
func (s *TelemetryStore) Persist(ctx context.Context, events []telemetry.Event) error {
	if len(events) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin telemetry persist: %w", err)
	}
	defer tx.Rollback()

	const query = `
		INSERT INTO telemetry (
			id, event_type, modality, timestamp, session_id, model_id,
			framework, device, platform, sdk_version, fields_json, sync_pending
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,1)
		ON CONFLICT(id) DO UPDATE SET
			event_type=excluded.event_type,
			modality=excluded.modality,
			fields_json=excluded.fields_json,
			updated_at=CURRENT_TIMESTAMP,
			sync_pending=1`

	for _, e := range events {
		fieldsJSON, err := json.Marshal(modalityFields{LLM: e.LLM, STT: e.STT, TTS: e.TTS})
		if err != nil {
			return fmt.Errorf("sqlite: marshal telemetry fields for %q: %w", e.ID, err)
		}
		if _, err := tx.ExecContext(ctx, query,
			e.ID, string(e.Type), string(e.Modality), e.Timestamp,
			e.SessionID, e.ModelID, e.Framework, e.Device, e.Platform, e.SDKVersion,
			string(fieldsJSON),
		); err != nil {
			return fmt.Errorf("sqlite: persist telemetry event %q: %w", e.ID, err)
		}
	}
	return tx.Commit()
}

// LoadPending returns every event still marked sync_pending, oldest
// first, so the queue resubmits them in the order they were originally
// recorded.
func (s *TelemetryStore) LoadPending(ctx context.Context) ([]telemetry.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, event_type, modality, timestamp, session_id, model_id,
		       framework, device, platform, sdk_version, fields_json, created_at
		FROM telemetry WHERE sync_pending = 1 ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: load pending telemetry: %w", err)
	}
	defer rows.Close()

	var out []telemetry.Event
	for rows.Next() {
		var (
			e                               telemetry.Event
			eventType, modality, fieldsJSON string
			createdAt                       time.Time
		)
		if err := rows.Scan(
			&e.ID, &eventType, &modality, &e.Timestamp, &e.SessionID, &e.ModelID,
			&e.Framework, &e.Device, &e.Platform, &e.SDKVersion, &fieldsJSON, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("sqlite: scan pending telemetry row: %w", err)
		}
		e.Type = telemetry.EventType(eventType)
		e.Modality = telemetry.Modality(modality)
		e.CreatedAt = createdAt

		var f modalityFields
		if err := json.Unmarshal([]byte(fieldsJSON), &f); err != nil {
			return nil, fmt.Errorf("sqlite: unmarshal telemetry fields for %q: %w", e.ID, err)
		}
		e.LLM, e.STT, e.TTS = f.LLM, f.STT, f.TTS
		out = append(out, e)
	}
	return out, rows.Err()
}

// MarkTransmitted clears sync_pending for ids, e.g. after a successful
// Transmit call.
func (s *TelemetryStore) MarkTransmitted(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin mark telemetry transmitted: %w", err)
	}
	defer tx.Rollback()
	for _, id := range ids {
		if _, err := tx.ExecContext(ctx,
			`UPDATE telemetry SET sync_pending = 0, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, id,
		); err != nil {
			return fmt.Errorf("sqlite: mark telemetry %q transmitted: %w", id, err)
		}
	}
	return tx.Commit()
}

var _ telemetry.Store = (*TelemetryStore)(nil)
