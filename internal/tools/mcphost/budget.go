package mcphost

import (
	"cmp"
	"slices"

	"github.com/glyphoxa-sdk/runtime/internal/tools"
	"github.com/glyphoxa-sdk/runtime/pkg/types"
)

// BudgetEnforcer filters tool definitions based on the active budget tier.
// It is the core mechanism that prevents over-budget tools from reaching
// the LLM stage of the voice pipeline.
//
// The zero value is ready for use.
type BudgetEnforcer struct{}

// FilterTools returns only the tool definitions whose tier is <= maxTier.
// The returned slice is sorted by estimated latency ascending (fastest
// first).
//
// Tier comparison uses the integer ordering: BudgetFast(0) <= BudgetStandard(1) <= BudgetDeep(2).
func (e *BudgetEnforcer) FilterTools(entries []toolEntry, maxTier tools.BudgetTier) []types.ToolDefinition {
	var result []toolEntry
	for i := range entries {
		if entries[i].tier <= maxTier {
			result = append(result, entries[i])
		}
	}

	slices.SortFunc(result, func(a, b toolEntry) int {
		return cmp.Compare(a.effectiveP50(), b.effectiveP50())
	})

	defs := make([]types.ToolDefinition, len(result))
	for i, e := range result {
		defs[i] = e.def
	}
	return defs
}

// effectiveP50 returns the best-known P50 latency for sorting purposes.
// If the rolling window has measurements, that value is used; otherwise
// the declared P50 is returned.
func (e toolEntry) effectiveP50() int64 {
	if e.measurements != nil && e.measurements.Count() > 0 {
		return e.measuredP50Ms
	}
	return e.declaredP50Ms
}
