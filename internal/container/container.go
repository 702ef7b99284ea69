// Package container implements the Service Container: leaves-first
// construction (Event Bus → Adapter/Module Registries → Model Registry →
// Loading Service → Components) and reverse-order teardown with a
// per-closer deadline.
//
// Grounded on internal/app.App's New/Shutdown sequencing — numbered,
// ordered init steps; a closers slice appended as each subsystem comes up;
// a sync.Once-guarded Shutdown that walks closers under a context
// deadline — generalized from one NPC orchestration App to the runtime's
// own dependency order. internal/app.App's Shutdown loop walks its closers
// forward despite its own doc comment describing reverse teardown; this
// container deliberately reverses instead, since later-constructed
// subsystems (components) depend on earlier ones (the loading service,
// the registries, the bus) and must release first.
package container

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/glyphoxa-sdk/runtime/internal/eventbus"
	"github.com/glyphoxa-sdk/runtime/internal/health"
	"github.com/glyphoxa-sdk/runtime/internal/lifecycle"
	"github.com/glyphoxa-sdk/runtime/internal/lifecycle/modelload"
	"github.com/glyphoxa-sdk/runtime/internal/registry/adapterregistry"
	"github.com/glyphoxa-sdk/runtime/internal/registry/modelregistry"
	"github.com/glyphoxa-sdk/runtime/internal/registry/moduleregistry"
	"github.com/glyphoxa-sdk/runtime/internal/telemetry"
)

// ComponentSpec describes one capability component (an LLM, STT, TTS, VAD,
// or Diarization service) for the container to construct and own.
type ComponentSpec struct {
	Name    string
	Init    lifecycle.InitFunc
	Cleanup lifecycle.CleanupFunc
}

// Config wires everything a Container needs. Bus, ModelStore, and
// Telemetry may be nil: a nil Bus gets a fresh in-process one; a nil
// ModelStore leaves the Model Registry purely in-memory; a nil Telemetry
// disables the telemetry queue entirely.
type Config struct {
	Logger *slog.Logger
	Bus    *eventbus.Bus

	ModelStore      modelregistry.Store
	Downloader      modelload.Downloader
	Extractor       modelload.Extractor
	Checksummer     modelload.Checksummer
	ModelLoadConfig modelload.Config

	Telemetry *telemetry.Queue

	Components []ComponentSpec

	// ShutdownStep bounds how long Shutdown waits for each closer before
	// moving on. The closer's context is cancelled when the step elapses,
	// but a closer that ignores it is left running, not stopped. Zero uses
	// lifecycle.DefaultCleanupTimeout.
	ShutdownStep time.Duration
}

// Container owns every subsystem's lifetime, leaves-first on construction
// and root-first (reverse of construction) on teardown.
type Container struct {
	logger *slog.Logger

	Bus       *eventbus.Bus
	Modules   *moduleregistry.Registry
	Adapters  *adapterregistry.Registry
	Models    *modelregistry.Registry
	Loader    *modelload.Service
	Telemetry *telemetry.Queue

	components     map[string]*lifecycle.Component
	componentOrder []string

	closers      []func(ctx context.Context) error
	shutdownStep time.Duration
	stopOnce     sync.Once
}

// New constructs every subsystem in dependency order and initializes every
// declared component. If any component fails to initialize, New returns
// the error after tearing down whatever was already brought up, so a
// caller never holds a half-constructed Container.
func New(ctx context.Context, cfg Config) (*Container, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ShutdownStep <= 0 {
		cfg.ShutdownStep = lifecycle.DefaultCleanupTimeout
	}

	c := &Container{
		logger:       cfg.Logger,
		components:   make(map[string]*lifecycle.Component),
		shutdownStep: cfg.ShutdownStep,
	}

	// 1. Event bus.
	c.Bus = cfg.Bus
	if c.Bus == nil {
		c.Bus = eventbus.New(cfg.Logger)
	}

	// 2. Adapter and module registries (pure in-process catalogs, nothing
	// to tear down).
	c.Adapters = adapterregistry.New()
	c.Modules = moduleregistry.New()

	// 3. Model registry, loaded from its store if one was given.
	c.Models = modelregistry.New(cfg.Logger, cfg.ModelStore)
	if err := c.Models.Load(ctx); err != nil {
		return nil, fmt.Errorf("container: loading model registry: %w", err)
	}
	c.closers = append(c.closers, func(ctx context.Context) error {
		return c.Models.FlushPendingRegistrations(ctx)
	})

	// 4. Model loading service.
	c.Loader = modelload.New(c.Models, c.Adapters, c.Bus, cfg.Logger,
		cfg.Downloader, cfg.Extractor, cfg.Checksummer, cfg.ModelLoadConfig)

	// 5. Telemetry queue, started before components so their init/cleanup
	// events are never dropped for having started too late.
	if cfg.Telemetry != nil {
		c.Telemetry = cfg.Telemetry
		c.Telemetry.Start(ctx)
		c.closers = append(c.closers, func(ctx context.Context) error {
			if err := c.Telemetry.Flush(ctx); err != nil {
				cfg.Logger.Warn("container: final telemetry flush failed", "error", err)
			}
			c.Telemetry.Close()
			return nil
		})
	}

	// 6. Components, initialized in declaration order.
	for _, spec := range cfg.Components {
		comp := lifecycle.New(spec.Name, c.Bus, spec.Init, spec.Cleanup)
		if err := comp.Initialize(ctx); err != nil {
			_ = c.Shutdown(ctx)
			return nil, fmt.Errorf("container: initializing component %q: %w", spec.Name, err)
		}
		c.components[spec.Name] = comp
		c.componentOrder = append(c.componentOrder, spec.Name)
		name := spec.Name
		c.closers = append(c.closers, func(ctx context.Context) error {
			return c.components[name].Cleanup(ctx)
		})
	}

	return c, nil
}

// Component returns the named component, or nil if it was never
// registered.
func (c *Container) Component(name string) *lifecycle.Component {
	return c.components[name]
}

// Checkers builds one health.Checker per component, in declaration order,
// reporting each one ready only once its lifecycle reaches StateReady.
// Callers feed the result to health.New to back a /readyz handler.
func (c *Container) Checkers() []health.Checker {
	checkers := make([]health.Checker, 0, len(c.componentOrder))
	for _, name := range c.componentOrder {
		checkers = append(checkers, health.ComponentChecker(name, c.components[name]))
	}
	return checkers
}

// Shutdown tears down every subsystem that was brought up, in reverse of
// construction order, idempotently. Each closer gets up to shutdownStep
// before Shutdown gives up waiting on it and moves to the next; a closer
// that times out is logged, not retried.
func (c *Container) Shutdown(ctx context.Context) error {
	var shutdownErr error
	c.stopOnce.Do(func() {
		c.logger.Info("container: shutting down", "closers", len(c.closers))
		for i := len(c.closers) - 1; i >= 0; i-- {
			select {
			case <-ctx.Done():
				c.logger.Warn("container: shutdown deadline exceeded", "remaining", i+1)
				shutdownErr = ctx.Err()
				return
			default:
			}
			cctx, cancel := context.WithTimeout(ctx, c.shutdownStep)
			done := make(chan error, 1)
			go func(closer func(context.Context) error) { done <- closer(cctx) }(c.closers[i])
			var err error
			select {
			case err = <-done:
			case <-cctx.Done():
				err = cctx.Err()
			}
			cancel()
			if err != nil {
				c.logger.Warn("container: closer error", "index", i, "error", err)
			}
		}
		c.logger.Info("container: shutdown complete")
	})
	return shutdownErr
}
