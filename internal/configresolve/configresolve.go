// Package configresolve merges generation options across the three
// configuration layers the runtime recognises, in strict precedence order:
// runtime options, remote configuration, SDK defaults.
//
// Generalized from the teacher's internal/config package, which resolves a
// single static YAML document at startup (Load/Validate/Diff/Watcher). That
// shape doesn't fit a per-request options merge, so this package keeps the
// same "layered config, validated result" idiom but makes Resolve a pure
// function callable once per generation rather than once per process.
package configresolve

import "slices"

// GenerationOptions is the subset of LLM generation parameters that can be
// set at any of the three layers. Zero values mean "unset at this layer" and
// fall through to the next layer down.
type GenerationOptions struct {
	MaxTokens     int
	Temperature   float64
	StopSequences []string
	SystemPrompt  string
}

// TokenBudget caps the resolved MaxTokens independently of any layer's
// requested value. Zero means unbounded.
type TokenBudget struct {
	MaxTokensPerRequest int
}

// Resolve merges runtime, remote, and defaults per field — runtime wins,
// then remote, then defaults — then clamps MaxTokens to
// min(contextLength, budget.MaxTokensPerRequest) when either is positive.
// StopSequences are unioned across all three layers with duplicates removed,
// runtime's sequences ordered first.
//
// Resolve is idempotent: passing its own output back in as runtime with an
// empty remote and defaults layer returns the same value, since every field
// is already maximally specific and re-clamping a clamped value is a no-op.
func Resolve(runtime, remote, defaults GenerationOptions, contextLength int, budget TokenBudget) GenerationOptions {
	out := GenerationOptions{
		MaxTokens:    firstNonZero(runtime.MaxTokens, remote.MaxTokens, defaults.MaxTokens),
		Temperature:  firstNonZeroFloat(runtime.Temperature, remote.Temperature, defaults.Temperature),
		SystemPrompt: firstNonEmpty(runtime.SystemPrompt, remote.SystemPrompt, defaults.SystemPrompt),
	}
	out.StopSequences = unionStopSequences(runtime.StopSequences, remote.StopSequences, defaults.StopSequences)

	if limit := effectiveLimit(contextLength, budget.MaxTokensPerRequest); limit > 0 && (out.MaxTokens == 0 || out.MaxTokens > limit) {
		out.MaxTokens = limit
	}
	return out
}

// effectiveLimit returns the tighter of contextLength and maxPerRequest,
// ignoring whichever of the two is non-positive (meaning "no limit at that
// source").
func effectiveLimit(contextLength, maxPerRequest int) int {
	switch {
	case contextLength <= 0:
		return maxPerRequest
	case maxPerRequest <= 0:
		return contextLength
	case maxPerRequest < contextLength:
		return maxPerRequest
	default:
		return contextLength
	}
}

func firstNonZero(vals ...int) int {
	for _, v := range vals {
		if v != 0 {
			return v
		}
	}
	return 0
}

func firstNonZeroFloat(vals ...float64) float64 {
	for _, v := range vals {
		if v != 0 {
			return v
		}
	}
	return 0
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// unionStopSequences concatenates layers in precedence order and removes
// later duplicates, so the first occurrence (highest-precedence layer) wins
// positionally.
func unionStopSequences(layers ...[]string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, layer := range layers {
		for _, s := range layer {
			if _, ok := seen[s]; ok {
				continue
			}
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	return slices.Clip(out)
}
