// Package modelload implements the Model Loading Service: turning a
// modelId into a LoadedModel exactly once per concurrent caller, with
// download delegation, extraction, checksum verification, and LRU
// eviction under memory pressure.
//
// Grounded on golang.org/x/sync/singleflight (an indirect dependency in
// the teacher's own module graph, promoted here to direct use for the
// concurrent-load dedup the base specification requires) and on the
// "load model once, share across sessions" idiom in
// pkg/provider/stt/whisper/native.go's NativeProvider, generalized from a
// single hardcoded model into an arbitrary catalog of models resolved
// through the Adapter Registry. LRU eviction under memory pressure uses
// github.com/hashicorp/golang-lru (an indirect dependency pulled in
// elsewhere in the reference corpus for this exact concern) rather than a
// hand-rolled heap.
package modelload

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"golang.org/x/sync/singleflight"

	"github.com/glyphoxa-sdk/runtime/internal/eventbus"
	"github.com/glyphoxa-sdk/runtime/internal/registry/adapterregistry"
	"github.com/glyphoxa-sdk/runtime/internal/registry/modelregistry"
	"github.com/glyphoxa-sdk/runtime/internal/sdkerr"
	"github.com/glyphoxa-sdk/runtime/pkg/sdktypes"
)

// DefaultMaxLoadedModels bounds the LRU tracker's capacity when the caller
// does not specify one. It is a safety backstop, not a memory budget — real
// eviction is driven by MemoryReporter via EvictUntilMemoryAvailable.
const DefaultMaxLoadedModels = 64

// Downloader fetches one remote file to destPath. Implementations are
// expected to support resuming and to respect ctx cancellation between
// chunks; only the contract is specified here, per the base
// specification's scoping of model file downloaders as an external
// collaborator.
type Downloader interface {
	Download(ctx context.Context, url, destPath string) error
}

// Extractor unpacks an archive of the given kind (zip, tar.gz, tar.bz2)
// into destDir.
type Extractor interface {
	Extract(ctx context.Context, archivePath, destDir, kind string) error
}

// Checksummer computes a content digest for a local file, comparable
// against sdktypes.FileDescriptor.Checksum.
type Checksummer interface {
	Checksum(path string) (string, error)
}

// Adapter is the subset of adapterregistry.Adapter the loading service
// needs, plus the actual service construction the registry itself does
// not perform.
type Adapter interface {
	adapterregistry.Adapter
	LoadModel(ctx context.Context, model sdktypes.ModelInfo) (any, error)
}

// MemoryReporter reports how much memory is currently available to the
// process, for the LRU eviction policy.
type MemoryReporter func() (availableBytes int64)

// LoadedModel is a resolved, ready-to-use model: its adapter-constructed
// service instance plus the bookkeeping the loading service needs for
// eviction.
type LoadedModel struct {
	ModelID     string
	FrameworkID string
	Service     any
	MemoryBytes int64
	LoadedAt    time.Time
	LastUsed    time.Time
}

// LoadEvent is the payload of ModelLifecycleEvent-shaped events published
// under sdktypes.EventLifecycle.
type LoadEvent struct {
	ModelID  string
	Phase    string // loadStarted, downloadStarted, downloadCompleted, extracting, loadCompleted, loadFailed, evicted
	Duration time.Duration
	Err      error
}

// Config configures a Service.
type Config struct {
	ModelRoot      string
	RetryCount     int
	MemoryReporter MemoryReporter
}

// Service is the Model Loading Service.
type Service struct {
	models   *modelregistry.Registry
	adapters *adapterregistry.Registry
	bus      *eventbus.Bus
	logger   *slog.Logger

	downloader  Downloader
	extractor   Extractor
	checksummer Checksummer

	cfg Config

	group singleflight.Group

	mu     sync.Mutex
	loaded map[string]*LoadedModel
	lru    *lru.Cache // tracks access recency; values are *LoadedModel
}

// New constructs a Service over the given model and adapter registries.
func New(models *modelregistry.Registry, adapters *adapterregistry.Registry, bus *eventbus.Bus, logger *slog.Logger, downloader Downloader, extractor Extractor, checksummer Checksummer, cfg Config) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.RetryCount == 0 {
		cfg.RetryCount = 3
	}
	svc := &Service{
		models:      models,
		adapters:    adapters,
		bus:         bus,
		logger:      logger,
		downloader:  downloader,
		extractor:   extractor,
		checksummer: checksummer,
		cfg:         cfg,
		loaded:      make(map[string]*LoadedModel),
	}
	cache, err := lru.NewWithEvict(DefaultMaxLoadedModels, svc.onCapacityEvict)
	if err != nil {
		// Only fails on a non-positive size, which DefaultMaxLoadedModels never is.
		panic(err)
	}
	svc.lru = cache
	return svc
}

// onCapacityEvict is the hashicorp/golang-lru eviction callback fired when
// the tracker exceeds DefaultMaxLoadedModels. The caller already holds
// s.mu via Add/Get, which also call this synchronously.
func (s *Service) onCapacityEvict(key, value any) {
	id := key.(string)
	delete(s.loaded, id)
	s.logger.Info("modelload: evicted model to stay under capacity", "model_id", id)
	s.publish(id, "evicted", 0, nil)
}

func (s *Service) publish(modelID, phase string, dur time.Duration, err error) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(sdktypes.Event{
		Category: sdktypes.EventLifecycle,
		Name:     "model_lifecycle",
		Payload:  LoadEvent{ModelID: modelID, Phase: phase, Duration: dur, Err: err},
	})
}

// Get returns the already-loaded model for id without triggering a load,
// and whether it was found. Touches LastUsed.
func (s *Service) Get(id string) (*LoadedModel, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lm, ok := s.loaded[id]
	if ok {
		lm.LastUsed = time.Now()
		s.lru.Get(id) // touch recency
	}
	return lm, ok
}

// Load resolves modelId to a LoadedModel, exactly once per concurrent set
// of callers for that id.
func (s *Service) Load(ctx context.Context, modelID string) (*LoadedModel, error) {
	if lm, ok := s.Get(modelID); ok {
		return lm, nil
	}

	v, err, _ := s.group.Do(modelID, func() (any, error) {
		return s.load(ctx, modelID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*LoadedModel), nil
}

func (s *Service) load(ctx context.Context, modelID string) (*LoadedModel, error) {
	start := time.Now()
	s.publish(modelID, "loadStarted", 0, nil)

	model, ok := s.models.Lookup(modelID)
	if !ok {
		err := sdkerr.New(sdkerr.CodeModelNotFound, sdkerr.CategoryModel, fmt.Sprintf("model %q is not registered", modelID))
		s.publish(modelID, "loadFailed", time.Since(start), err)
		return nil, err
	}

	if model.LocalPath == "" {
		if err := s.ensureLocal(ctx, &model); err != nil {
			s.publish(modelID, "loadFailed", time.Since(start), err)
			return nil, err
		}
	}

	if err := s.verifyChecksum(model); err != nil {
		s.publish(modelID, "loadFailed", time.Since(start), err)
		return nil, err
	}

	adapter := s.adapters.FindBestAdapter(model)
	if adapter == nil {
		err := sdkerr.New(sdkerr.CodeAdapterNotFound, sdkerr.CategoryModel, fmt.Sprintf("no adapter can serve model %q (format=%s category=%s)", modelID, model.Format, model.Category))
		s.publish(modelID, "loadFailed", time.Since(start), err)
		return nil, err
	}
	loadable, ok := adapter.(Adapter)
	if !ok {
		err := sdkerr.New(sdkerr.CodeAdapterNotFound, sdkerr.CategoryModel, fmt.Sprintf("adapter %q cannot construct services", adapter.FrameworkID()))
		s.publish(modelID, "loadFailed", time.Since(start), err)
		return nil, err
	}

	service, err := loadable.LoadModel(ctx, model)
	if err != nil {
		wrapped := sdkerr.Wrap(sdkerr.CodeServiceInitFailed, sdkerr.CategoryModel, fmt.Sprintf("adapter %q failed to load model %q", adapter.FrameworkID(), modelID), err)
		s.publish(modelID, "loadFailed", time.Since(start), wrapped)
		return nil, wrapped
	}

	now := time.Now()
	lm := &LoadedModel{
		ModelID:     modelID,
		FrameworkID: adapter.FrameworkID(),
		Service:     service,
		MemoryBytes: model.MemoryRequired,
		LoadedAt:    now,
		LastUsed:    now,
	}

	s.mu.Lock()
	s.loaded[modelID] = lm
	s.lru.Add(modelID, lm)
	s.mu.Unlock()

	s.publish(modelID, "loadCompleted", time.Since(start), nil)
	return lm, nil
}

// ensureLocal downloads (and extracts, if the model is packaged as an
// archive) a model's files into its per-model folder under ModelRoot,
// making up to cfg.RetryCount download attempts per file (at least one).
// Every failed attempt is retried whatever the error; errors are not
// classified as transient or permanent.
func (s *Service) ensureLocal(ctx context.Context, model *sdktypes.ModelInfo) error {
	if s.downloader == nil {
		return sdkerr.New(sdkerr.CodeDownloadFailed, sdkerr.CategoryNetwork, "no downloader configured")
	}
	destDir := filepath.Join(s.cfg.ModelRoot, model.ID)
	s.publish(model.ID, "downloadStarted", 0, nil)

	var urls []struct{ url, name string }
	if model.IsMultiFile() {
		for _, f := range s.models.Files(model.ID) {
			urls = append(urls, struct{ url, name string }{f.URL, f.Filename})
		}
	} else {
		urls = append(urls, struct{ url, name string }{model.DownloadURL, filepath.Base(model.DownloadURL)})
	}

	for _, u := range urls {
		dest := filepath.Join(destDir, u.name)
		if err := s.downloadWithRetry(ctx, u.url, dest); err != nil {
			return sdkerr.Wrap(sdkerr.CodeDownloadFailed, sdkerr.CategoryNetwork, fmt.Sprintf("downloading %q for model %q", u.url, model.ID), err)
		}
	}
	s.publish(model.ID, "downloadCompleted", 0, nil)

	if model.Artifact.Kind == sdktypes.ArtifactArchive {
		if s.extractor == nil {
			return sdkerr.New(sdkerr.CodeExtractionFailed, sdkerr.CategoryStorage, "no extractor configured")
		}
		s.publish(model.ID, "extracting", 0, nil)
		archivePath := filepath.Join(destDir, filepath.Base(model.DownloadURL))
		if err := s.extractor.Extract(ctx, archivePath, destDir, model.Artifact.ArchiveKind); err != nil {
			return sdkerr.Wrap(sdkerr.CodeExtractionFailed, sdkerr.CategoryStorage, fmt.Sprintf("extracting model %q", model.ID), err)
		}
	}

	model.LocalPath = destDir
	s.models.Register(*model)
	return nil
}

func (s *Service) downloadWithRetry(ctx context.Context, url, dest string) error {
	var lastErr error
	retries := s.cfg.RetryCount
	if retries < 1 {
		retries = 1
	}
	for attempt := 0; attempt < retries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = s.downloader.Download(ctx, url, dest)
		if lastErr == nil {
			return nil
		}
	}
	return lastErr
}

func (s *Service) verifyChecksum(model sdktypes.ModelInfo) error {
	if s.checksummer == nil {
		return nil
	}
	verify := func(path, want string) error {
		if want == "" {
			return nil
		}
		got, err := s.checksummer.Checksum(path)
		if err != nil {
			return sdkerr.Wrap(sdkerr.CodeChecksumMismatch, sdkerr.CategoryModel, fmt.Sprintf("computing checksum for %q", path), err)
		}
		if got != want {
			return sdkerr.New(sdkerr.CodeChecksumMismatch, sdkerr.CategoryModel, fmt.Sprintf("checksum mismatch for %q: got %s want %s", path, got, want))
		}
		return nil
	}
	if model.IsMultiFile() {
		for _, f := range s.models.Files(model.ID) {
			if err := verify(filepath.Join(model.LocalPath, f.Filename), f.Checksum); err != nil {
				return err
			}
		}
		return nil
	}
	return nil
}

// Unload removes id from the loaded set without freeing its underlying
// service resources — callers that need resource release should type
// assert LoadedModel.Service against a closer interface before calling
// Unload, mirroring the component lifecycle's Cleanup contract.
func (s *Service) Unload(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.loaded[id]; !ok {
		return
	}
	// Remove triggers onCapacityEvict synchronously, which deletes from
	// s.loaded and publishes the "evicted" event.
	s.lru.Remove(id)
}

// EvictUntilMemoryAvailable unloads models least-recently-used first until
// the configured MemoryReporter reports at least thresholdBytes available,
// or there is nothing left to evict. Returns the ids evicted.
func (s *Service) EvictUntilMemoryAvailable(thresholdBytes int64) []string {
	if s.cfg.MemoryReporter == nil {
		return nil
	}
	var evicted []string
	for s.cfg.MemoryReporter() < thresholdBytes {
		s.mu.Lock()
		key, _, ok := s.lru.RemoveOldest()
		s.mu.Unlock()
		if !ok {
			break
		}
		evicted = append(evicted, key.(string))
	}
	return evicted
}
