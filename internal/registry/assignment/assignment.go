// Package assignment implements the Assignment Fetcher: it pulls
// device-specific model assignments from the backend and merges them into
// the Model Registry as source=remote, falling back to the last
// successfully fetched batch when a refresh fails.
//
// Grounded on internal/mcp/mcphost's RegisterServer/Calibrate shape
// (connect, populate a catalog, degrade to what's already known on
// failure rather than erroring the whole host out), transported over
// github.com/coder/websocket for a near-real-time push channel — the same
// dial-then-read-loop idiom pkg/provider/stt/deepgram uses for its
// streaming session — with a plain net/http GET fallback used for forced
// refreshes.
package assignment

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/glyphoxa-sdk/runtime/internal/registry/modelregistry"
	"github.com/glyphoxa-sdk/runtime/pkg/sdktypes"
)

// Descriptor mirrors one element of the model-assignments response
// (spec.md §6.3's stable field names).
type Descriptor struct {
	ID                   string            `json:"id"`
	Name                 string            `json:"name"`
	Category             sdktypes.Category `json:"category"`
	Format               sdktypes.Format   `json:"format"`
	DownloadURL          string            `json:"download_url"`
	Size                 int64             `json:"size"`
	MemoryRequired       int64             `json:"memory_required"`
	CompatibleFrameworks []string          `json:"compatible_frameworks"`
	PreferredFramework   string            `json:"preferred_framework"`
	ContextLength        int               `json:"context_length,omitempty"`
	SupportsThinking     bool              `json:"supports_thinking,omitempty"`
	Metadata             map[string]string `json:"metadata,omitempty"`
}

func (d Descriptor) toModelInfo() sdktypes.ModelInfo {
	return sdktypes.ModelInfo{
		ID:                   d.ID,
		Name:                 d.Name,
		Category:             d.Category,
		Format:               d.Format,
		DownloadURL:          d.DownloadURL,
		DownloadSize:         d.Size,
		MemoryRequired:       d.MemoryRequired,
		CompatibleFrameworks: d.CompatibleFrameworks,
		PreferredFramework:   d.PreferredFramework,
		ContextLength:        d.ContextLength,
		SupportsThinking:     d.SupportsThinking,
		Source:               sdktypes.SourceRemote,
	}
}

// Transport fetches assignment descriptors synchronously, used both for
// an explicit forceRefresh and as Refresh's primary path.
type Transport interface {
	FetchOnce(ctx context.Context, deviceType, platform string) ([]Descriptor, error)
}

// StreamTransport additionally supports a push channel for near-real-time
// assignment updates. Not every Transport needs to implement it; Fetcher
// falls back to Refresh-only polling when it doesn't.
type StreamTransport interface {
	Transport
	Connect(ctx context.Context, deviceType, platform string) (<-chan []Descriptor, error)
}

// Fetcher pulls assignments for one device and merges them into a model
// registry. Safe for concurrent use.
type Fetcher struct {
	transport  Transport
	models     *modelregistry.Registry
	deviceType string
	platform   string
	logger     *slog.Logger

	mu       sync.Mutex
	lastGood []Descriptor
}

// New constructs a Fetcher. deviceType and platform are sent as the
// query parameters spec.md §6.3 names.
func New(transport Transport, models *modelregistry.Registry, deviceType, platform string, logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{
		transport:  transport,
		models:     models,
		deviceType: deviceType,
		platform:   platform,
		logger:     logger,
	}
}

// Refresh fetches the current assignment set and merges it into the model
// registry as source=remote. On transport failure it falls back to the
// last successfully fetched batch; Refresh only returns an error when the
// fetch fails and no such fallback exists yet.
func (f *Fetcher) Refresh(ctx context.Context) error {
	descriptors, err := f.transport.FetchOnce(ctx, f.deviceType, f.platform)
	if err != nil {
		f.mu.Lock()
		fallback := append([]Descriptor(nil), f.lastGood...)
		f.mu.Unlock()
		if fallback == nil {
			return fmt.Errorf("assignment: fetch failed and no cached assignments to fall back to: %w", err)
		}
		f.logger.Warn("assignment: fetch failed, using last-known-good assignments", "error", err)
		descriptors = fallback
	} else {
		f.mu.Lock()
		f.lastGood = descriptors
		f.mu.Unlock()
	}
	f.merge(descriptors)
	return nil
}

func (f *Fetcher) merge(descriptors []Descriptor) {
	for _, d := range descriptors {
		f.models.Register(d.toModelInfo())
	}
}

// Watch opens a near-real-time push channel, if the configured transport
// supports one, and merges every batch it delivers until ctx is done. It
// returns immediately (the delivery loop runs in its own goroutine); on a
// transport without StreamTransport support it is a no-op, since Refresh
// alone still keeps the registry current.
func (f *Fetcher) Watch(ctx context.Context) error {
	streamer, ok := f.transport.(StreamTransport)
	if !ok {
		return nil
	}
	updates, err := streamer.Connect(ctx, f.deviceType, f.platform)
	if err != nil {
		return fmt.Errorf("assignment: connect watch channel: %w", err)
	}
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case descriptors, ok := <-updates:
				if !ok {
					return
				}
				f.mu.Lock()
				f.lastGood = descriptors
				f.mu.Unlock()
				f.merge(descriptors)
			}
		}
	}()
	return nil
}
