// Package moduleregistry implements the Module Registry: one ordered,
// priority-sorted provider list per capability.
//
// Grounded on internal/config's Registry (map of named constructor
// factories, RWMutex-guarded, one Create* method per provider kind),
// generalized from "one factory per provider type, keyed by name" to "a
// priority-ordered list of providers per capability with a canHandle
// predicate," since a single capability may now be served by several
// providers that compete on which model references they can handle.
package moduleregistry

import (
	"sort"
	"sync"

	"github.com/glyphoxa-sdk/runtime/internal/registry"
)

// Provider is anything registerable under a capability. ModelRef is an
// opaque reference (typically a model id) that CanHandle inspects to decide
// whether it can serve that particular request.
type Provider interface {
	Name() string
	Capabilities() []registry.Capability
	CanHandle(modelRef string) bool
}

type entry struct {
	provider Provider
	priority int
	seq      int
}

// Registry holds one ordered provider list per capability. Safe for
// concurrent use; Providers returns an immutable copy-on-write snapshot so
// callers can range over it without holding a lock.
type Registry struct {
	mu      sync.RWMutex
	byCap   map[registry.Capability][]entry
	nextSeq int
}

// New returns an empty, ready-to-use Registry.
func New() *Registry {
	return &Registry{byCap: make(map[registry.Capability][]entry)}
}

// hasCapability reports whether provider declares capability among its
// Capabilities().
func hasCapability(p Provider, capability registry.Capability) bool {
	for _, c := range p.Capabilities() {
		if c == capability {
			return true
		}
	}
	return false
}

// Register adds provider under capability at the given priority. Higher
// priority sorts first; ties are broken by insertion order (stable sort).
// Register panics if provider does not declare capability among its
// Capabilities — this is a programmer error, caught at wiring time, not a
// runtime condition callers need to handle.
func (r *Registry) Register(capability registry.Capability, provider Provider, priority int) {
	if !hasCapability(provider, capability) {
		panic("moduleregistry: provider " + provider.Name() + " does not declare capability " + string(capability))
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextSeq++
	list := append(r.byCap[capability], entry{provider: provider, priority: priority, seq: r.nextSeq})
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].priority > list[j].priority
	})
	r.byCap[capability] = list
}

// Providers returns a snapshot of the providers registered under capability,
// in priority order.
func (r *Registry) Providers(capability registry.Capability) []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := r.byCap[capability]
	out := make([]Provider, len(list))
	for i, e := range list {
		out[i] = e.provider
	}
	return out
}

// Provider walks the capability's provider list in priority order and
// returns the first whose CanHandle(modelRef) is true. An empty modelRef
// matches the highest-priority provider whose CanHandle("") is true — the
// fallback case. Returns nil if none match.
func (r *Registry) Provider(capability registry.Capability, modelRef string) Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.byCap[capability] {
		if e.provider.CanHandle(modelRef) {
			return e.provider
		}
	}
	return nil
}

// Clear removes all providers registered under capability. If capability is
// the empty string, every capability's list is cleared.
func (r *Registry) Clear(capability registry.Capability) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if capability == "" {
		r.byCap = make(map[registry.Capability][]entry)
		return
	}
	delete(r.byCap, capability)
}
