package llmstream

import (
	"context"
	"testing"
	"time"

	"github.com/glyphoxa-sdk/runtime/internal/configresolve"
	"github.com/glyphoxa-sdk/runtime/pkg/provider/llm"
	"github.com/glyphoxa-sdk/runtime/pkg/types"
)

// fakeProvider streams a fixed list of chunks, optionally pacing them so
// cancellation tests have time to fire mid-stream.
type fakeProvider struct {
	chunks      []llm.Chunk
	delay       time.Duration
	countErr    error
	countResult int
}

func (f *fakeProvider) StreamCompletion(ctx context.Context, _ llm.CompletionRequest) (<-chan llm.Chunk, error) {
	ch := make(chan llm.Chunk)
	go func() {
		defer close(ch)
		for _, c := range f.chunks {
			if f.delay > 0 {
				select {
				case <-time.After(f.delay):
				case <-ctx.Done():
					return
				}
			}
			select {
			case ch <- c:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

func (f *fakeProvider) Complete(context.Context, llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return nil, nil
}

func (f *fakeProvider) CountTokens(msgs []types.Message) (int, error) {
	if f.countErr != nil {
		return 0, f.countErr
	}
	return f.countResult, nil
}

func (f *fakeProvider) Capabilities() types.ModelCapabilities { return types.ModelCapabilities{} }

func textChunks(texts ...string) []llm.Chunk {
	out := make([]llm.Chunk, len(texts))
	for i, t := range texts {
		out[i] = llm.Chunk{Text: t}
	}
	out[len(out)-1].FinishReason = "stop"
	return out
}

func TestStreamMaxTokensZeroShortCircuits(t *testing.T) {
	var received []Token
	usage, err := Stream(context.Background(), &fakeProvider{}, llm.CompletionRequest{},
		Options{Resolved: configresolve.GenerationOptions{MaxTokens: 0}},
		func(tok Token) bool { received = append(received, tok); return true })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(received) != 0 {
		t.Fatalf("expected no tokens delivered, got %d", len(received))
	}
	if usage.CompletionTokens != 0 || usage.FinishReason != FinishMaxTokens {
		t.Fatalf("unexpected usage: %+v", usage)
	}
}

func TestStreamClassifiesThinkingAndContent(t *testing.T) {
	provider := &fakeProvider{chunks: textChunks("<think>", "plan", "</think>", "Hello")}
	var content, thinking string
	var indices []int
	_, err := Stream(context.Background(), provider, llm.CompletionRequest{},
		Options{
			Resolved:         configresolve.GenerationOptions{MaxTokens: 100},
			SupportsThinking: true,
			Tag:              TagPattern{Open: "<think>", Close: "</think>"},
		},
		func(tok Token) bool {
			indices = append(indices, tok.Index)
			if tok.Type == TokenThinking {
				thinking += tok.Text
			} else {
				content += tok.Text
			}
			return true
		})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if content != "Hello" {
		t.Fatalf("expected content %q, got %q", "Hello", content)
	}
	if thinking != "plan" {
		t.Fatalf("expected thinking %q, got %q", "plan", thinking)
	}
	for i, idx := range indices {
		if idx != i {
			t.Fatalf("expected strictly increasing indices from 0, got %v", indices)
		}
	}
}

func TestStreamStopsOnStopSequence(t *testing.T) {
	provider := &fakeProvider{chunks: textChunks("Hello", " world", "STOP", " more text")}
	var content string
	_, err := Stream(context.Background(), provider, llm.CompletionRequest{},
		Options{Resolved: configresolve.GenerationOptions{MaxTokens: 100, StopSequences: []string{"STOP"}}},
		func(tok Token) bool { content += tok.Text; return true })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if content != "Hello worldSTOP" {
		t.Fatalf("expected stream to stop exactly at stop sequence, got %q", content)
	}
}

func TestStreamSinkFalseStopsDelivery(t *testing.T) {
	provider := &fakeProvider{chunks: textChunks("a", "b", "c", "d")}
	var received int
	_, err := Stream(context.Background(), provider, llm.CompletionRequest{},
		Options{Resolved: configresolve.GenerationOptions{MaxTokens: 100}},
		func(tok Token) bool {
			received++
			return received < 2
		})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if received != 2 {
		t.Fatalf("expected delivery to stop right after sink returns false, got %d", received)
	}
}

func TestStreamCancellationStopsPromptly(t *testing.T) {
	provider := &fakeProvider{chunks: textChunks("a", "b", "c", "d", "e"), delay: 20 * time.Millisecond}
	ctx, cancel := context.WithCancel(context.Background())

	received := 0
	done := make(chan struct{})
	go func() {
		_, _ = Stream(ctx, provider, llm.CompletionRequest{},
			Options{Resolved: configresolve.GenerationOptions{MaxTokens: 100}},
			func(tok Token) bool { received++; return true })
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()
	<-done

	if received > 3 {
		t.Fatalf("expected cancellation to bound delivered tokens tightly, got %d", received)
	}
}

func TestStreamAccumulatesToolCalls(t *testing.T) {
	provider := &fakeProvider{chunks: []llm.Chunk{
		{Text: "checking "},
		{ToolCalls: []types.ToolCall{{ID: "call-1", Name: "search_facts", Arguments: `{"query":"outage"}`}}, FinishReason: "tool_calls"},
	}}
	usage, err := Stream(context.Background(), provider, llm.CompletionRequest{},
		Options{Resolved: configresolve.GenerationOptions{MaxTokens: 100}},
		func(Token) bool { return true })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if usage.FinishReason != FinishToolCalls {
		t.Fatalf("FinishReason = %q, want %q", usage.FinishReason, FinishToolCalls)
	}
	if len(usage.ToolCalls) != 1 || usage.ToolCalls[0].Name != "search_facts" {
		t.Fatalf("unexpected ToolCalls: %+v", usage.ToolCalls)
	}
}

func TestEstimateTokensClampsToWordAndCharBounds(t *testing.T) {
	if got := EstimateTokens(""); got != 0 {
		t.Fatalf("expected 0 for empty string, got %d", got)
	}
	// Single long word: estimate must not fall below word count (1).
	if got := EstimateTokens("a"); got < 1 {
		t.Fatalf("expected at least word count 1, got %d", got)
	}
	text := "Hello, world! How are you?"
	got := EstimateTokens(text)
	if got < 5 { // word count
		t.Fatalf("expected at least word count, got %d", got)
	}
	if got > len([]rune(text)) {
		t.Fatalf("expected at most char count, got %d", got)
	}
}
