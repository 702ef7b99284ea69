package lifecycle

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestInitializeTransitionsToReady(t *testing.T) {
	c := New("test", nil, func(ctx context.Context) error { return nil }, func(ctx context.Context) error { return nil })
	if c.State() != StateNotInitialized {
		t.Fatalf("initial state = %v, want notInitialized", c.State())
	}
	if err := c.Initialize(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.State() != StateReady {
		t.Fatalf("state after init = %v, want ready", c.State())
	}
}

func TestInitializeFailurePublishesAndTransitionsToFailed(t *testing.T) {
	wantErr := errors.New("boom")
	c := New("test", nil, func(ctx context.Context) error { return wantErr }, func(ctx context.Context) error { return nil })

	err := c.Initialize(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if c.State() != StateFailed {
		t.Fatalf("state = %v, want failed", c.State())
	}
	if c.Err() == nil {
		t.Fatal("expected Err() to be set")
	}
}

func TestInitializeIsIdempotentUnderConcurrency(t *testing.T) {
	var calls atomic.Int32
	block := make(chan struct{})
	c := New("test", nil, func(ctx context.Context) error {
		calls.Add(1)
		<-block
		return nil
	}, func(ctx context.Context) error { return nil })

	const n = 10
	var wg sync.WaitGroup
	wg.Add(n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			errs[i] = c.Initialize(context.Background())
		}(i)
	}

	time.Sleep(20 * time.Millisecond)
	close(block)
	wg.Wait()

	if calls.Load() != 1 {
		t.Fatalf("initFn called %d times, want exactly 1", calls.Load())
	}
	for i, err := range errs {
		if err != nil {
			t.Fatalf("caller %d got error: %v", i, err)
		}
	}
}

func TestEnsureReadyOnlySucceedsWhenReady(t *testing.T) {
	c := New("test", nil, func(ctx context.Context) error { return nil }, func(ctx context.Context) error { return nil })
	if err := c.EnsureReady(); err == nil {
		t.Fatal("expected componentNotReady before Initialize")
	}
	_ = c.Initialize(context.Background())
	if err := c.EnsureReady(); err != nil {
		t.Fatalf("unexpected error after ready: %v", err)
	}
}

func TestCleanupForceReleasesOnTimeout(t *testing.T) {
	c := New("test", nil,
		func(ctx context.Context) error { return nil },
		func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
		WithCleanupTimeout(10*time.Millisecond))

	_ = c.Initialize(context.Background())
	err := c.Cleanup(context.Background())
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if c.State() != StateCleanedUp {
		t.Fatalf("state = %v, want cleanedUp even after timeout", c.State())
	}
}

func TestReinitializeAllowsAnotherInit(t *testing.T) {
	var calls atomic.Int32
	c := New("test", nil, func(ctx context.Context) error {
		calls.Add(1)
		return nil
	}, func(ctx context.Context) error { return nil })

	_ = c.Initialize(context.Background())
	_ = c.Cleanup(context.Background())
	c.Reinitialize()
	if c.State() != StateNotInitialized {
		t.Fatalf("state after reinitialize = %v, want notInitialized", c.State())
	}
	_ = c.Initialize(context.Background())
	if calls.Load() != 2 {
		t.Fatalf("initFn called %d times, want 2", calls.Load())
	}
}
