// Package adapterregistry implements the Adapter Registry: framework
// adapters keyed by framework id and secondarily by (modality, format),
// with FindBestAdapter implementing the three-step selection a model
// resolves through.
//
// Grounded on the same shape as internal/config's Registry, now keyed by
// framework rather than flat provider name, combined with the teacher's
// buildEngine-style switch in internal/app/app.go (pick an implementation
// based on declared capability/format) generalized into data-driven
// selection instead of a hardcoded switch.
package adapterregistry

import (
	"sort"
	"sync"

	"github.com/glyphoxa-sdk/runtime/pkg/sdktypes"
)

// Adapter binds one inference framework (llama.cpp, ONNX Runtime,
// WhisperKit, ...) to the formats and modalities it can serve.
type Adapter interface {
	FrameworkID() string
	SupportedFormats() []sdktypes.Format
	SupportedModalities() []sdktypes.Category
	CanHandle(model sdktypes.ModelInfo) bool
}

type entry struct {
	adapter  Adapter
	priority int
	seq      int
}

// Registry holds registered adapters, indexed both by framework id and by a
// flattened (modality, format) key for step 3 of FindBestAdapter.
type Registry struct {
	mu        sync.RWMutex
	byFW      map[string][]entry
	byModFmt  map[modFmtKey][]entry
	nextSeq   int
}

type modFmtKey struct {
	modality sdktypes.Category
	format   sdktypes.Format
}

// New returns an empty, ready-to-use Registry.
func New() *Registry {
	return &Registry{
		byFW:     make(map[string][]entry),
		byModFmt: make(map[modFmtKey][]entry),
	}
}

// Register adds adapter at the given priority, indexed under its framework
// id and under every (modality, format) pair it declares support for.
func (r *Registry) Register(adapter Adapter, priority int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextSeq++
	e := entry{adapter: adapter, priority: priority, seq: r.nextSeq}

	fwList := append(r.byFW[adapter.FrameworkID()], e)
	sortEntries(fwList)
	r.byFW[adapter.FrameworkID()] = fwList

	for _, format := range adapter.SupportedFormats() {
		for _, modality := range adapter.SupportedModalities() {
			key := modFmtKey{modality: modality, format: format}
			list := append(r.byModFmt[key], e)
			sortEntries(list)
			r.byModFmt[key] = list
		}
	}
}

func sortEntries(list []entry) {
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].priority > list[j].priority
	})
}

// Adapters returns a snapshot of every adapter registered under a framework
// id, in priority order.
func (r *Registry) Adapters(frameworkID string) []Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := r.byFW[frameworkID]
	out := make([]Adapter, len(list))
	for i, e := range list {
		out[i] = e.adapter
	}
	return out
}

// FindBestAdapter selects an adapter for model using the three-step rule:
//
//  1. model.PreferredFramework, if an adapter under that framework id
//     supports model.Format.
//  2. Any adapter (across all frameworks, priority order) whose CanHandle
//     returns true.
//  3. Adapters whose SupportedFormats contains model.Format and whose
//     SupportedModalities contains model.Category, highest priority (then
//     earliest registered) wins.
//
// Returns nil if no adapter matches any step.
func (r *Registry) FindBestAdapter(model sdktypes.ModelInfo) Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if model.PreferredFramework != "" {
		for _, e := range r.byFW[model.PreferredFramework] {
			if supportsFormat(e.adapter, model.Format) {
				return e.adapter
			}
		}
	}

	if best := r.bestAcrossAll(func(a Adapter) bool { return a.CanHandle(model) }); best != nil {
		return best
	}

	key := modFmtKey{modality: model.Category, format: model.Format}
	if list := r.byModFmt[key]; len(list) > 0 {
		return list[0].adapter
	}
	return nil
}

// bestAcrossAll scans every registered adapter, highest priority (then
// earliest registration) first, returning the first one matching pred.
func (r *Registry) bestAcrossAll(pred func(Adapter) bool) Adapter {
	var all []entry
	for _, list := range r.byFW {
		all = append(all, list...)
	}
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].priority != all[j].priority {
			return all[i].priority > all[j].priority
		}
		return all[i].seq < all[j].seq
	})
	for _, e := range all {
		if pred(e.adapter) {
			return e.adapter
		}
	}
	return nil
}

func supportsFormat(a Adapter, format sdktypes.Format) bool {
	for _, f := range a.SupportedFormats() {
		if f == format {
			return true
		}
	}
	return false
}
