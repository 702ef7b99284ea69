package moduleregistry

import (
	"testing"

	"github.com/glyphoxa-sdk/runtime/internal/registry"
)

type fakeProvider struct {
	name     string
	caps     []registry.Capability
	handles  func(string) bool
}

func (f *fakeProvider) Name() string                          { return f.name }
func (f *fakeProvider) Capabilities() []registry.Capability    { return f.caps }
func (f *fakeProvider) CanHandle(modelRef string) bool         { return f.handles(modelRef) }

func always(bool) func(string) bool {
	return func(string) bool { return true }
}

func TestRegisterOrdersByPriorityDescending(t *testing.T) {
	r := New()
	low := &fakeProvider{name: "low", caps: []registry.Capability{registry.CapabilityLLM}, handles: always(true)}
	high := &fakeProvider{name: "high", caps: []registry.Capability{registry.CapabilityLLM}, handles: always(true)}

	r.Register(registry.CapabilityLLM, low, 1)
	r.Register(registry.CapabilityLLM, high, 10)

	providers := r.Providers(registry.CapabilityLLM)
	if len(providers) != 2 || providers[0].Name() != "high" || providers[1].Name() != "low" {
		t.Fatalf("unexpected order: %v", providers)
	}
}

func TestRegisterStableOnTies(t *testing.T) {
	r := New()
	first := &fakeProvider{name: "first", caps: []registry.Capability{registry.CapabilitySTT}, handles: always(true)}
	second := &fakeProvider{name: "second", caps: []registry.Capability{registry.CapabilitySTT}, handles: always(true)}

	r.Register(registry.CapabilitySTT, first, 5)
	r.Register(registry.CapabilitySTT, second, 5)

	providers := r.Providers(registry.CapabilitySTT)
	if providers[0].Name() != "first" || providers[1].Name() != "second" {
		t.Fatalf("expected insertion order on ties, got %v", providers)
	}
}

func TestProviderPicksFirstCanHandle(t *testing.T) {
	r := New()
	noHandle := &fakeProvider{name: "a", caps: []registry.Capability{registry.CapabilityTTS}, handles: func(string) bool { return false }}
	handles := &fakeProvider{name: "b", caps: []registry.Capability{registry.CapabilityTTS}, handles: func(string) bool { return true }}

	r.Register(registry.CapabilityTTS, noHandle, 10)
	r.Register(registry.CapabilityTTS, handles, 5)

	got := r.Provider(registry.CapabilityTTS, "voice-1")
	if got == nil || got.Name() != "b" {
		t.Fatalf("expected provider b, got %v", got)
	}
}

func TestProviderReturnsNilWhenNoneMatch(t *testing.T) {
	r := New()
	noHandle := &fakeProvider{name: "a", caps: []registry.Capability{registry.CapabilityVAD}, handles: func(string) bool { return false }}
	r.Register(registry.CapabilityVAD, noHandle, 1)

	if got := r.Provider(registry.CapabilityVAD, "x"); got != nil {
		t.Fatalf("expected nil, got %v", got)
	}
}

func TestRegisterPanicsOnUndeclaredCapability(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected panic when provider does not declare the capability")
		}
	}()
	r := New()
	p := &fakeProvider{name: "mismatched", caps: []registry.Capability{registry.CapabilitySTT}, handles: always(true)}
	r.Register(registry.CapabilityLLM, p, 1)
}

func TestClearSingleCapability(t *testing.T) {
	r := New()
	p := &fakeProvider{name: "a", caps: []registry.Capability{registry.CapabilityLLM}, handles: always(true)}
	r.Register(registry.CapabilityLLM, p, 1)
	r.Clear(registry.CapabilityLLM)
	if len(r.Providers(registry.CapabilityLLM)) != 0 {
		t.Fatal("expected empty list after Clear")
	}
}

func TestClearAll(t *testing.T) {
	r := New()
	p1 := &fakeProvider{name: "a", caps: []registry.Capability{registry.CapabilityLLM}, handles: always(true)}
	p2 := &fakeProvider{name: "b", caps: []registry.Capability{registry.CapabilitySTT}, handles: always(true)}
	r.Register(registry.CapabilityLLM, p1, 1)
	r.Register(registry.CapabilitySTT, p2, 1)

	r.Clear("")

	if len(r.Providers(registry.CapabilityLLM)) != 0 || len(r.Providers(registry.CapabilitySTT)) != 0 {
		t.Fatal("expected all capabilities cleared")
	}
}
