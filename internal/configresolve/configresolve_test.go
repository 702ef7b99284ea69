package configresolve

import (
	"reflect"
	"testing"
)

func TestResolveFallsThroughLayers(t *testing.T) {
	got := Resolve(
		GenerationOptions{},
		GenerationOptions{Temperature: 0.5},
		GenerationOptions{MaxTokens: 256, Temperature: 0.8, SystemPrompt: "default"},
		0, TokenBudget{},
	)
	if got.MaxTokens != 256 {
		t.Fatalf("expected default MaxTokens to fall through, got %d", got.MaxTokens)
	}
	if got.Temperature != 0.5 {
		t.Fatalf("expected remote Temperature to win over default, got %f", got.Temperature)
	}
	if got.SystemPrompt != "default" {
		t.Fatalf("expected default SystemPrompt to fall through, got %q", got.SystemPrompt)
	}
}

func TestResolveClampsToContextLength(t *testing.T) {
	// SDK default 256, remote 512, runtime 2048, budget 1024, contextLength 800.
	got := Resolve(
		GenerationOptions{MaxTokens: 2048},
		GenerationOptions{MaxTokens: 512},
		GenerationOptions{MaxTokens: 256},
		800, TokenBudget{MaxTokensPerRequest: 1024},
	)
	if got.MaxTokens != 800 {
		t.Fatalf("expected MaxTokens clamped to contextLength 800, got %d", got.MaxTokens)
	}
}

func TestResolveClampsToTokenBudgetWhenTighter(t *testing.T) {
	got := Resolve(
		GenerationOptions{MaxTokens: 2048},
		GenerationOptions{},
		GenerationOptions{},
		800, TokenBudget{MaxTokensPerRequest: 100},
	)
	if got.MaxTokens != 100 {
		t.Fatalf("expected MaxTokens clamped to tighter token budget 100, got %d", got.MaxTokens)
	}
}

func TestResolveUnionsStopSequencesRuntimeFirst(t *testing.T) {
	got := Resolve(
		GenerationOptions{StopSequences: []string{"A", "B"}},
		GenerationOptions{StopSequences: []string{"B", "C"}},
		GenerationOptions{StopSequences: []string{"C", "D"}},
		0, TokenBudget{},
	)
	want := []string{"A", "B", "C", "D"}
	if !reflect.DeepEqual(got.StopSequences, want) {
		t.Fatalf("unexpected union order: %v", got.StopSequences)
	}
}

func TestResolveIsIdempotent(t *testing.T) {
	runtime := GenerationOptions{MaxTokens: 2048, Temperature: 0.7, StopSequences: []string{"A"}, SystemPrompt: "sys"}
	once := Resolve(runtime, GenerationOptions{}, GenerationOptions{}, 800, TokenBudget{MaxTokensPerRequest: 1024})
	twice := Resolve(once, GenerationOptions{}, GenerationOptions{}, 800, TokenBudget{MaxTokensPerRequest: 1024})
	if !reflect.DeepEqual(once, twice) {
		t.Fatalf("resolve is not idempotent: once=%+v twice=%+v", once, twice)
	}
}

func TestResolveZeroMaxTokensStaysZeroWithoutLimits(t *testing.T) {
	got := Resolve(GenerationOptions{}, GenerationOptions{}, GenerationOptions{}, 0, TokenBudget{})
	if got.MaxTokens != 0 {
		t.Fatalf("expected MaxTokens 0 when unset at every layer and no limits, got %d", got.MaxTokens)
	}
}
