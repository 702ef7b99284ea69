// Package lifecycle implements the Component Lifecycle Core: the state
// machine shared by every capability component (LLM, STT, TTS, VAD,
// Diarization) for ordered init/ready/failed/cleanup.
//
// Grounded on the teacher's internal/app.App init/Shutdown sequencing
// (ordered construction, sync.Once-guarded shutdown, context-deadline
// bounded teardown) generalized into a reusable per-component state
// machine. Unlike App.New, which runs exactly once per process,
// many components here share a loading service and may be asked to
// initialize concurrently from several goroutines, so initialize() uses
// golang.org/x/sync/singleflight to guarantee exactly one underlying init
// runs and every caller observes the same outcome.
package lifecycle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/glyphoxa-sdk/runtime/internal/eventbus"
	"github.com/glyphoxa-sdk/runtime/internal/sdkerr"
	"github.com/glyphoxa-sdk/runtime/pkg/sdktypes"
)

// State is one of the component lifecycle's states.
type State int

const (
	StateNotInitialized State = iota
	StateInitializing
	StateReady
	StateFailed
	StateShuttingDown
	StateCleanedUp
)

func (s State) String() string {
	switch s {
	case StateNotInitialized:
		return "notInitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	case StateShuttingDown:
		return "shuttingDown"
	case StateCleanedUp:
		return "cleanedUp"
	default:
		return "unknown"
	}
}

// Phase names the sub-stage of a ComponentInitializationEvent.
type Phase string

const (
	PhaseStarted          Phase = "started"
	PhaseProgress         Phase = "progress"
	PhaseCompleted        Phase = "completed"
	PhaseFailed           Phase = "failed"
	PhaseDownloadRequired Phase = "downloadRequired"
	PhaseDownloadStarted  Phase = "downloadStarted"
	PhaseDownloadProgress Phase = "downloadProgress"
	PhaseDownloadComplete Phase = "downloadCompleted"
)

// InitEvent is the payload of events published to eventbus under
// sdktypes.EventLifecycle as a component moves through initialization.
type InitEvent struct {
	Component string
	Phase     Phase
	Progress  float64 // 0..1, meaningful for PhaseProgress/PhaseDownloadProgress
	Err       error   // set only for PhaseFailed
}

// InitFunc performs a component's actual initialization work. It is run at
// most once per Initialize cycle regardless of how many goroutines call
// Initialize concurrently.
type InitFunc func(ctx context.Context) error

// CleanupFunc releases a component's resources. It must respect ctx's
// deadline; Component force-releases after the configured cleanup timeout
// regardless of whether CleanupFunc has returned.
type CleanupFunc func(ctx context.Context) error

// DefaultCleanupTimeout bounds how long Cleanup waits for CleanupFunc
// before considering resources force-released.
const DefaultCleanupTimeout = 10 * time.Second

// Component is one capability's lifecycle state machine. The zero value is
// not usable; construct with New.
type Component struct {
	name            string
	bus             *eventbus.Bus
	initFn          InitFunc
	cleanupFn       CleanupFunc
	cleanupTimeout  time.Duration

	mu    sync.RWMutex
	state State
	err   error

	group singleflight.Group
}

// Option configures a Component at construction time.
type Option func(*Component)

// WithCleanupTimeout overrides DefaultCleanupTimeout.
func WithCleanupTimeout(d time.Duration) Option {
	return func(c *Component) { c.cleanupTimeout = d }
}

// New constructs a Component named name (used in published events and
// error messages), backed by initFn/cleanupFn.
func New(name string, bus *eventbus.Bus, initFn InitFunc, cleanupFn CleanupFunc, opts ...Option) *Component {
	c := &Component{
		name:           name,
		bus:            bus,
		initFn:         initFn,
		cleanupFn:      cleanupFn,
		cleanupTimeout: DefaultCleanupTimeout,
		state:          StateNotInitialized,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the component's current state.
func (c *Component) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Err returns the error that caused the last transition to StateFailed, if
// any.
func (c *Component) Err() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.err
}

func (c *Component) setState(s State, err error) {
	c.mu.Lock()
	c.state = s
	c.err = err
	c.mu.Unlock()
}

func (c *Component) publish(phase Phase, progress float64, err error) {
	if c.bus == nil {
		return
	}
	c.bus.Publish(sdktypes.Event{
		Category: sdktypes.EventLifecycle,
		Name:     "component_initialization",
		Payload: InitEvent{
			Component: c.name,
			Phase:     phase,
			Progress:  progress,
			Err:       err,
		},
	})
}

// Initialize transitions the component from notInitialized to ready (or
// failed). It is idempotent: concurrent callers during an in-flight
// initialize() share one underlying run via singleflight and all observe
// the same outcome. Calling Initialize when already ready is a no-op that
// returns nil immediately; calling it while failed retries.
func (c *Component) Initialize(ctx context.Context) error {
	switch c.State() {
	case StateReady:
		return nil
	case StateShuttingDown, StateInitializing:
		// Fall through to singleflight join below.
	}

	_, err, _ := c.group.Do("initialize", func() (any, error) {
		if c.State() == StateReady {
			return nil, nil
		}
		c.setState(StateInitializing, nil)
		c.publish(PhaseStarted, 0, nil)

		runErr := c.initFn(ctx)
		if runErr != nil {
			wrapped := sdkerr.Wrap(sdkerr.CodeComponentInitFailed, sdkerr.CategoryComponent,
				fmt.Sprintf("component %q failed to initialize", c.name), runErr)
			c.setState(StateFailed, wrapped)
			c.publish(PhaseFailed, 0, wrapped)
			return nil, wrapped
		}
		c.setState(StateReady, nil)
		c.publish(PhaseCompleted, 1, nil)
		return nil, nil
	})
	return err
}

// EnsureReady returns nil only if the component is in StateReady; otherwise
// it returns a componentNotReady error.
func (c *Component) EnsureReady() error {
	if c.State() == StateReady {
		return nil
	}
	return sdkerr.New(sdkerr.CodeComponentNotReady, sdkerr.CategoryComponent,
		fmt.Sprintf("component %q is not ready (state=%s)", c.name, c.State()))
}

// PublishProgress emits a PhaseProgress or PhaseDownloadProgress event
// during initialization. Intended to be called from within initFn.
func (c *Component) PublishProgress(phase Phase, progress float64) {
	c.publish(phase, progress, nil)
}

// Cleanup transitions ready|failed → shuttingDown → cleanedUp. It bounds
// cleanupFn by cleanupTimeout; if cleanupFn has not returned by then,
// Cleanup returns a timeout error but still marks the component cleanedUp
// so its resources are considered force-released and Reinitialize is
// possible.
func (c *Component) Cleanup(ctx context.Context) error {
	state := c.State()
	if state != StateReady && state != StateFailed {
		return nil
	}
	c.setState(StateShuttingDown, nil)

	done := make(chan error, 1)
	cctx, cancel := context.WithTimeout(ctx, c.cleanupTimeout)
	defer cancel()
	go func() {
		done <- c.cleanupFn(cctx)
	}()

	var cleanupErr error
	select {
	case cleanupErr = <-done:
	case <-cctx.Done():
		cleanupErr = sdkerr.New(sdkerr.CodeComponentInitFailed, sdkerr.CategoryComponent,
			fmt.Sprintf("component %q cleanup timed out after %s, resources force-released", c.name, c.cleanupTimeout))
	}

	c.setState(StateCleanedUp, nil)
	return cleanupErr
}

// Reinitialize moves a cleanedUp component back to notInitialized so a
// subsequent Initialize call runs initFn again. It is a no-op outside
// StateCleanedUp.
func (c *Component) Reinitialize() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateCleanedUp {
		c.state = StateNotInitialized
		c.err = nil
	}
}
