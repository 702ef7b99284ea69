package assignment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/glyphoxa-sdk/runtime/internal/registry/modelregistry"
	"github.com/glyphoxa-sdk/runtime/pkg/sdktypes"
)

type fakeTransport struct {
	batch   []Descriptor
	err     error
	updates chan []Descriptor
}

func (f *fakeTransport) FetchOnce(context.Context, string, string) ([]Descriptor, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.batch, nil
}

func (f *fakeTransport) Connect(context.Context, string, string) (<-chan []Descriptor, error) {
	return f.updates, nil
}

var _ StreamTransport = (*fakeTransport)(nil)

func TestRefreshMergesAssignmentsAsRemoteSource(t *testing.T) {
	models := modelregistry.New(nil, nil)
	transport := &fakeTransport{batch: []Descriptor{
		{ID: "m1", Name: "one", Category: sdktypes.CategoryLanguage, Format: sdktypes.FormatGGUF},
		{ID: "m2", Name: "two", Category: sdktypes.CategoryLanguage, Format: sdktypes.FormatGGUF},
	}}
	f := New(transport, models, "phone", "android", nil)

	if err := f.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	for _, id := range []string{"m1", "m2"} {
		m, ok := models.Lookup(id)
		if !ok {
			t.Fatalf("model %q not merged into registry", id)
		}
		if m.Source != sdktypes.SourceRemote {
			t.Fatalf("model %q source = %q, want remote", id, m.Source)
		}
	}
}

func TestRefreshFallsBackToLastKnownGoodOnFailure(t *testing.T) {
	models := modelregistry.New(nil, nil)
	transport := &fakeTransport{batch: []Descriptor{{ID: "m1", Name: "one"}}}
	f := New(transport, models, "phone", "android", nil)

	if err := f.Refresh(context.Background()); err != nil {
		t.Fatalf("first Refresh: %v", err)
	}

	transport.err = errors.New("network down")
	transport.batch = nil
	if err := f.Refresh(context.Background()); err != nil {
		t.Fatalf("second Refresh should fall back to cached assignments, got error: %v", err)
	}
	if _, ok := models.Lookup("m1"); !ok {
		t.Fatal("model m1 disappeared after a failed refresh despite a cached fallback")
	}
}

func TestRefreshFailsWhenFetchFailsAndNoFallbackExists(t *testing.T) {
	models := modelregistry.New(nil, nil)
	transport := &fakeTransport{err: errors.New("network down")}
	f := New(transport, models, "phone", "android", nil)

	if err := f.Refresh(context.Background()); err == nil {
		t.Fatal("Refresh: want error on first-ever failed fetch with nothing cached, got nil")
	}
}

func TestWatchMergesPushedBatches(t *testing.T) {
	models := modelregistry.New(nil, nil)
	updates := make(chan []Descriptor, 1)
	transport := &fakeTransport{updates: updates}
	f := New(transport, models, "phone", "android", nil)

	if err := f.Watch(context.Background()); err != nil {
		t.Fatalf("Watch: %v", err)
	}
	updates <- []Descriptor{{ID: "pushed", Name: "pushed model"}}
	close(updates)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if _, ok := models.Lookup("pushed"); ok {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("pushed assignment never merged into the registry within the deadline")
}
