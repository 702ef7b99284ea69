package sqlite

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/glyphoxa-sdk/runtime/internal/telemetry"
	"github.com/glyphoxa-sdk/runtime/pkg/sdktypes"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := Migrate(context.Background(), db); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	return db
}

func TestModelStoreUpsertAndLoadRoundTrips(t *testing.T) {
	db := openTestDB(t)
	store := NewModelStore(db)
	ctx := context.Background()

	model := sdktypes.ModelInfo{
		ID:       "m1",
		Name:     "test model",
		Category: sdktypes.CategoryLanguage,
		Format:   sdktypes.Format("gguf"),
		Artifact: sdktypes.ArtifactType{
			Kind: sdktypes.ArtifactSingleFile,
			Files: []sdktypes.FileDescriptor{
				{URL: "file:///t.gguf", Filename: "t.gguf", Size: 123, Checksum: "abc"},
			},
		},
		DownloadURL:          "file:///t.gguf",
		CompatibleFrameworks: []string{"llamaCpp"},
		PreferredFramework:   "llamaCpp",
		ContextLength:        4096,
		SupportsThinking:     true,
		Source:               sdktypes.Source("local"),
	}

	if err := store.Upsert(ctx, model); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	loaded, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(loaded) != 1 {
		t.Fatalf("Load returned %d models, want 1", len(loaded))
	}
	got := loaded[0]
	if got.ID != model.ID || got.Name != model.Name || got.ContextLength != model.ContextLength {
		t.Fatalf("loaded model = %+v, want fields matching %+v", got, model)
	}
	if !got.SupportsThinking {
		t.Fatal("loaded model lost SupportsThinking=true")
	}
	if len(got.Artifact.Files) != 1 || got.Artifact.Files[0].Checksum != "abc" {
		t.Fatalf("loaded artifact files = %+v, want one file with checksum abc", got.Artifact.Files)
	}

	// Upserting the same id with a changed field replaces it in place.
	model.Name = "renamed"
	if err := store.Upsert(ctx, model); err != nil {
		t.Fatalf("second Upsert: %v", err)
	}
	loaded, err = store.Load(ctx)
	if err != nil {
		t.Fatalf("second Load: %v", err)
	}
	if len(loaded) != 1 || loaded[0].Name != "renamed" {
		t.Fatalf("loaded after re-upsert = %+v, want exactly one renamed entry", loaded)
	}
}

func TestTelemetryStorePersistLoadPendingMarkTransmitted(t *testing.T) {
	db := openTestDB(t)
	store := NewTelemetryStore(db)
	ctx := context.Background()

	events := []telemetry.Event{
		{
			ID: "e1", Type: telemetry.EventGenerationCompleted, Modality: telemetry.ModalityLLM,
			Timestamp: time.Now(), LLM: &telemetry.LLMFields{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
		},
		{ID: "e2", Type: telemetry.EventSTTFinalTranscript, Modality: telemetry.ModalitySTT, Timestamp: time.Now()},
	}
	if err := store.Persist(ctx, events); err != nil {
		t.Fatalf("Persist: %v", err)
	}

	pending, err := store.LoadPending(ctx)
	if err != nil {
		t.Fatalf("LoadPending: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("LoadPending returned %d events, want 2", len(pending))
	}
	var foundLLM bool
	for _, e := range pending {
		if e.ID == "e1" {
			foundLLM = true
			if e.LLM == nil || e.LLM.TotalTokens != 15 {
				t.Fatalf("event e1 LLM fields = %+v, want TotalTokens=15", e.LLM)
			}
		}
	}
	if !foundLLM {
		t.Fatal("pending events missing e1")
	}

	if err := store.MarkTransmitted(ctx, []string{"e1"}); err != nil {
		t.Fatalf("MarkTransmitted: %v", err)
	}
	pending, err = store.LoadPending(ctx)
	if err != nil {
		t.Fatalf("LoadPending after mark: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != "e2" {
		t.Fatalf("pending after marking e1 transmitted = %+v, want only e2", pending)
	}
}

func TestConfigStoreSetGetAll(t *testing.T) {
	db := openTestDB(t)
	store := NewConfigStore(db)
	ctx := context.Background()

	if _, err := store.Get(ctx, "missing"); err != ErrConfigKeyNotFound {
		t.Fatalf("Get(missing) error = %v, want ErrConfigKeyNotFound", err)
	}

	if err := store.Set(ctx, "max_tokens", "512", true); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := store.Get(ctx, "max_tokens")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != "512" {
		t.Fatalf("Get(max_tokens) = %q, want 512", got)
	}

	if err := store.Set(ctx, "temperature", "0.7", false); err != nil {
		t.Fatalf("Set: %v", err)
	}
	all, err := store.All(ctx)
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if all["max_tokens"] != "512" || all["temperature"] != "0.7" {
		t.Fatalf("All() = %+v, want both keys present", all)
	}
}

func TestDeviceInfoStoreSetGet(t *testing.T) {
	db := openTestDB(t)
	store := NewDeviceInfoStore(db)
	ctx := context.Background()

	info := DeviceInfo{Platform: "linux-arm64", SDKVersion: "0.1.0", Attributes: map[string]string{"chip": "snapdragon"}}
	if err := store.Set(ctx, info); err != nil {
		t.Fatalf("Set: %v", err)
	}

	got, err := store.Get(ctx)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Platform != info.Platform || got.SDKVersion != info.SDKVersion || got.Attributes["chip"] != "snapdragon" {
		t.Fatalf("Get() = %+v, want %+v", got, info)
	}

	// Set again overwrites the single row rather than inserting a second one.
	info.SDKVersion = "0.2.0"
	if err := store.Set(ctx, info); err != nil {
		t.Fatalf("second Set: %v", err)
	}
	got, err = store.Get(ctx)
	if err != nil {
		t.Fatalf("second Get: %v", err)
	}
	if got.SDKVersion != "0.2.0" {
		t.Fatalf("SDKVersion after re-set = %q, want 0.2.0", got.SDKVersion)
	}
}
