// Package modelregistry implements the Model Registry: the catalog of
// sdktypes.ModelInfo entries keyed by id, with the multi-file sidecar
// cache the persistent store cannot round-trip, and a filesystem scan
// that marks LocalPath for already-downloaded models.
//
// Grounded on the teacher's NPC definition store (Postgres-backed,
// upsert-by-id with JSONB sub-fields) for the persistence contract half,
// and its in-process entity catalog for the in-memory half. The
// scan-and-import pattern in DiscoverDownloaded is grounded on the
// teacher's LoadCampaignFile/ImportCampaign idiom: scan a directory,
// import what matches, log counts. The fuzzy-filename fallback reuses the
// teacher's phonetic transcript-correction package's Jaro-Winkler scoring
// (github.com/antzucaro/matchr) for a different kind of near-miss: on-disk
// filenames with minor naming drift from the registered id instead of
// mis-transcribed speech.
package modelregistry

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/antzucaro/matchr"

	"github.com/glyphoxa-sdk/runtime/internal/sdkerr"
	"github.com/glyphoxa-sdk/runtime/pkg/sdktypes"
)

// fuzzyFilenameThreshold is the minimum Jaro-Winkler similarity an on-disk
// filename must score against an expected filename to be accepted as a
// match when no exact name is present.
const fuzzyFilenameThreshold = 0.90

// Store is the persistence contract a Registry can optionally sit on top
// of. A Registry with a nil Store is purely in-memory.
type Store interface {
	Upsert(ctx context.Context, model sdktypes.ModelInfo) error
	Load(ctx context.Context) ([]sdktypes.ModelInfo, error)
}

// Registry is the in-process model catalog. Safe for concurrent use.
type Registry struct {
	logger *slog.Logger
	store  Store

	mu      sync.RWMutex
	models  map[string]sdktypes.ModelInfo
	files   map[string][]sdktypes.FileDescriptor // sidecar cache for multiFile artifacts
	pending int                                  // count of registrations not yet flushed to store
}

// New returns an empty Registry. store may be nil for a purely in-memory
// catalog (e.g. tests).
func New(logger *slog.Logger, store Store) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		logger: logger,
		store:  store,
		models: make(map[string]sdktypes.ModelInfo),
		files:  make(map[string][]sdktypes.FileDescriptor),
	}
}

// Load populates the registry from the backing store, if any.
func (r *Registry) Load(ctx context.Context) error {
	if r.store == nil {
		return nil
	}
	models, err := r.store.Load(ctx)
	if err != nil {
		return sdkerr.Wrap(sdkerr.CodeIOError, sdkerr.CategoryStorage, "loading model registry from store", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range models {
		r.models[m.ID] = m
		if m.IsMultiFile() {
			r.files[m.ID] = m.Artifact.Files
		}
	}
	return nil
}

// Register upserts model into the catalog. If model's artifact is
// multiFile, the file list is additionally cached in the in-process
// sidecar map, since the persistent store may not preserve struct arrays
// faithfully. Register normalizes model before storing it.
//
// Register does not synchronously write through to the backing store; it
// marks the registry dirty and relies on FlushPendingRegistrations.
func (r *Registry) Register(model sdktypes.ModelInfo) {
	model.Normalize()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.models[model.ID] = model
	if model.IsMultiFile() {
		r.files[model.ID] = model.Artifact.Files
	} else {
		delete(r.files, model.ID)
	}
	r.pending++
}

// FlushPendingRegistrations writes every model currently in the catalog
// through to the backing store. DiscoverDownloaded's consistency depends
// on this having been called first: discovery only sees localPath updates
// applied in-process, but a consumer that expects discoverDownloaded to
// reflect durable state should flush first.
func (r *Registry) FlushPendingRegistrations(ctx context.Context) error {
	if r.store == nil {
		r.mu.Lock()
		r.pending = 0
		r.mu.Unlock()
		return nil
	}
	r.mu.RLock()
	snapshot := make([]sdktypes.ModelInfo, 0, len(r.models))
	for _, m := range r.models {
		snapshot = append(snapshot, m)
	}
	r.mu.RUnlock()

	for _, m := range snapshot {
		if err := r.store.Upsert(ctx, m); err != nil {
			return sdkerr.Wrap(sdkerr.CodeIOError, sdkerr.CategoryStorage,
				fmt.Sprintf("flushing model %q to store", m.ID), err)
		}
	}
	r.mu.Lock()
	r.pending = 0
	r.mu.Unlock()
	return nil
}

// Lookup returns the ModelInfo registered under id, and whether it was
// found.
func (r *Registry) Lookup(id string) (sdktypes.ModelInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.models[id]
	return m, ok
}

// Files returns the sidecar file list for a multiFile model's id. Returns
// nil if id is not a registered multiFile model.
func (r *Registry) Files(id string) []sdktypes.FileDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.files[id]
}

// Enumerate returns every registered ModelInfo, in no particular order.
func (r *Registry) Enumerate() []sdktypes.ModelInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]sdktypes.ModelInfo, 0, len(r.models))
	for _, m := range r.models {
		out = append(out, m)
	}
	return out
}

// FilterByFramework returns every registered model whose
// PreferredFramework or CompatibleFrameworks list includes framework.
func (r *Registry) FilterByFramework(framework string) []sdktypes.ModelInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []sdktypes.ModelInfo
	for _, m := range r.models {
		if m.PreferredFramework == framework {
			out = append(out, m)
			continue
		}
		for _, f := range m.CompatibleFrameworks {
			if f == framework {
				out = append(out, m)
				break
			}
		}
	}
	return out
}

// FilterByCategory returns every registered model in category.
func (r *Registry) FilterByCategory(category sdktypes.Category) []sdktypes.ModelInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []sdktypes.ModelInfo
	for _, m := range r.models {
		if m.Category == category {
			out = append(out, m)
		}
	}
	return out
}

// expectedFilenames returns the filenames discoverDownloaded should look
// for to consider model downloaded: its sidecar file list for multiFile
// artifacts, or the base name of LocalPath/DownloadURL otherwise.
func expectedFilenames(m sdktypes.ModelInfo, files []sdktypes.FileDescriptor) []string {
	if m.IsMultiFile() {
		names := make([]string, len(files))
		for i, f := range files {
			names[i] = f.Filename
		}
		return names
	}
	if m.LocalPath != "" {
		return []string{filepath.Base(m.LocalPath)}
	}
	if m.DownloadURL != "" {
		return []string{filepath.Base(m.DownloadURL)}
	}
	return nil
}

// DiscoverDownloaded scans root for files matching registered models'
// expected filenames and marks LocalPath on any match. An expected filename
// with no exact on-disk match falls back to the closest filename by
// Jaro-Winkler similarity (see [fuzzyFilename]), so renamed or
// re-quantized artifacts ("model-q4.gguf" vs "model-Q4_0.gguf") are still
// picked up without requiring an exact registration update. Only consistent
// after FlushPendingRegistrations; callers relying on durable-store
// consistency must flush first.
//
// Returns the number of models newly marked as downloaded.
func (r *Registry) DiscoverDownloaded(root string) (int, error) {
	present := make(map[string]bool)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			present[filepath.Base(path)] = true
		}
		return nil
	})
	if err != nil {
		return 0, sdkerr.Wrap(sdkerr.CodeIOError, sdkerr.CategoryStorage, "scanning model root directory", err)
	}
	presentNames := make([]string, 0, len(present))
	for name := range present {
		presentNames = append(presentNames, name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	found := 0
	for id, m := range r.models {
		if m.LocalPath != "" {
			continue
		}
		names := expectedFilenames(m, r.files[id])
		if len(names) == 0 {
			continue
		}
		resolved := make([]string, len(names))
		allPresent := true
		for i, name := range names {
			switch {
			case present[name]:
				resolved[i] = name
			default:
				alt, ok := fuzzyFilename(name, presentNames)
				if !ok {
					allPresent = false
				}
				resolved[i] = alt
			}
			if !allPresent {
				break
			}
		}
		if !allPresent {
			continue
		}
		m.LocalPath = filepath.Join(root, resolved[0])
		r.models[id] = m
		found++
	}
	if found > 0 {
		r.logger.Info("modelregistry: discovered downloaded models", "count", found, "root", root)
	}
	return found, nil
}

// fuzzyFilename returns the candidate filename most similar to want by
// case-insensitive Jaro-Winkler score, provided that score clears
// fuzzyFilenameThreshold. Used when an expected filename has no exact
// on-disk match.
func fuzzyFilename(want string, candidates []string) (string, bool) {
	wantLower := strings.ToLower(want)
	best := ""
	bestScore := 0.0
	for _, c := range candidates {
		score := matchr.JaroWinkler(wantLower, strings.ToLower(c), false)
		if score > bestScore {
			bestScore = score
			best = c
		}
	}
	if bestScore < fuzzyFilenameThreshold {
		return "", false
	}
	return best, true
}
