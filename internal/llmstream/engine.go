// Package llmstream implements the streaming-generation contract: merge
// resolved options into a completion request, classify each incoming token
// as thinking or content via [ThinkingParser], apply stop conditions, and
// report final usage (prompt/completion token counts, tokens/sec,
// time-to-first-token).
//
// Grounded on the teacher's cascade engine (internal/engine/cascade), which
// already streams an llm.Provider's Chunk channel and forwards sentence-level
// spans to a sink with the same "accumulate into a buffer, emit complete
// spans eagerly, drain the channel on early exit" shape used here for
// thinking/content spans instead of sentences.
package llmstream

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/glyphoxa-sdk/runtime/internal/configresolve"
	"github.com/glyphoxa-sdk/runtime/pkg/provider/llm"
	"github.com/glyphoxa-sdk/runtime/pkg/types"
)

// TokenType classifies a single emitted token.
type TokenType string

const (
	TokenThinking TokenType = "thinking"
	TokenContent  TokenType = "content"
)

// Token is one classified unit of model output delivered to a [Sink].
type Token struct {
	Type   TokenType
	Text   string
	Index  int
	IsLast bool
}

// Sink receives classified tokens as they are produced. Returning false tells
// the engine to stop immediately: no further tokens are delivered, the
// underlying provider stream is drained in the background, and the returned
// Usage reflects only what was delivered before the stop.
type Sink func(Token) bool

// TagPattern is the configurable thinking-tag open/close pair. An empty Open
// disables thinking-tag parsing.
type TagPattern struct {
	Open  string
	Close string
}

// FinishReason reports why a generation stopped.
type FinishReason string

const (
	FinishStop          FinishReason = "stop"
	FinishMaxTokens     FinishReason = "max_tokens"
	FinishStopSequence  FinishReason = "stop_sequence"
	FinishCancelled     FinishReason = "cancelled"
	FinishSinkRequested FinishReason = "sink_stop"
	FinishError         FinishReason = "error"
	FinishToolCalls     FinishReason = "tool_calls"
)

// Usage is the final accounting reported once a generation ends.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	ThinkingTokens   int
	TokensPerSecond  float64
	TimeToFirstToken time.Duration
	FinishReason     FinishReason

	// ToolCalls holds any tool invocations the model requested. Populated only
	// when FinishReason is FinishToolCalls; the caller is responsible for
	// executing them and feeding the results back as a follow-up turn.
	ToolCalls []types.ToolCall
}

// Options configures a single streaming generation.
type Options struct {
	// Resolved is the fully layered-and-clamped generation options, typically
	// produced by configresolve.Resolve.
	Resolved configresolve.GenerationOptions

	// SupportsThinking enables the thinking-tag parser. Models that cannot
	// reason must leave this false regardless of Tag.
	SupportsThinking bool

	// Tag is the thinking-tag pair used when SupportsThinking is true.
	Tag TagPattern
}

// Stream drives one streaming generation against provider, applying opts and
// delivering classified tokens to sink until a stop condition is reached.
//
// Stop conditions: the provider reporting a "length" finish (req.MaxTokens
// is set from the resolved options, so the provider enforces the limit;
// Stream does not count tokens against it itself), any configured stop
// sequence matching the concatenated content stream, the sink returning
// false, context cancellation, or the provider's channel closing on its own
// (backend EOF).
//
// An explicitly resolved MaxTokens of zero short-circuits entirely: Stream
// returns an empty-text, zero-token Usage without contacting the provider.
func Stream(ctx context.Context, provider llm.Provider, req llm.CompletionRequest, opts Options, sink Sink) (Usage, error) {
	if opts.Resolved.MaxTokens == 0 {
		return Usage{FinishReason: FinishMaxTokens}, nil
	}

	req.MaxTokens = opts.Resolved.MaxTokens
	req.Temperature = opts.Resolved.Temperature
	if opts.Resolved.SystemPrompt != "" {
		req.SystemPrompt = joinPrompts(req.SystemPrompt, opts.Resolved.SystemPrompt)
	}

	promptTokens, err := provider.CountTokens(req.Messages)
	if err != nil {
		promptTokens = estimateMessagesTokens(req.Messages)
	}

	chunkCh, err := provider.StreamCompletion(ctx, req)
	if err != nil {
		return Usage{FinishReason: FinishError}, fmt.Errorf("llmstream: stream start failed: %w", err)
	}

	parser := NewThinkingParser(opts.Tag.Open, opts.Tag.Close)
	if !opts.SupportsThinking {
		parser = NewThinkingParser("", "")
	}

	var (
		start            = time.Now()
		firstTokenAt     time.Time
		sawFirstToken    bool
		index            int
		contentBuf       strings.Builder
		thinkingChars    int
		contentCompleted int
		finish           = FinishStop
		stopped          bool
		toolCalls        []types.ToolCall
	)

	deliver := func(seg Segment, isLast bool) bool {
		if seg.Text == "" && !isLast {
			return true
		}
		if !sawFirstToken {
			sawFirstToken = true
			firstTokenAt = time.Now()
		}
		typ := TokenContent
		if seg.Thinking {
			typ = TokenThinking
			thinkingChars += utf8.RuneCountInString(seg.Text)
		} else {
			contentBuf.WriteString(seg.Text)
			contentCompleted += utf8.RuneCountInString(seg.Text)
		}
		tok := Token{Type: typ, Text: seg.Text, Index: index, IsLast: isLast}
		index++

		if !seg.Thinking && matchesStopSequence(contentBuf.String(), opts.Resolved.StopSequences) {
			tok.IsLast = true
			sink(tok)
			finish = FinishStopSequence
			return false
		}

		if !sink(tok) {
			finish = FinishSinkRequested
			return false
		}
		return true
	}

loop:
	for {
		select {
		case <-ctx.Done():
			finish = FinishCancelled
			stopped = true
			break loop
		case chunk, ok := <-chunkCh:
			if !ok {
				break loop
			}
			for _, seg := range parser.Feed(chunk.Text) {
				if !deliver(seg, false) {
					stopped = true
					break loop
				}
			}
			if len(chunk.ToolCalls) > 0 {
				toolCalls = append(toolCalls, chunk.ToolCalls...)
			}
			switch chunk.FinishReason {
			case "length":
				finish = FinishMaxTokens
			case "tool_calls":
				finish = FinishToolCalls
			}
		}
	}

	if !stopped {
		for _, seg := range parser.Flush() {
			if !deliver(seg, true) {
				break
			}
		}
	} else {
		go drainChunks(chunkCh)
	}

	elapsed := time.Since(start)
	tps := 0.0
	if elapsed > 0 {
		tps = float64(contentCompleted) / elapsed.Seconds()
	}
	ttft := time.Duration(0)
	if sawFirstToken {
		ttft = firstTokenAt.Sub(start)
	}

	return Usage{
		PromptTokens:     promptTokens,
		CompletionTokens: contentCompleted,
		ThinkingTokens:   thinkingChars,
		TokensPerSecond:  tps,
		TimeToFirstToken: ttft,
		FinishReason:     finish,
		ToolCalls:        toolCalls,
	}, nil
}

// drainChunks discards remaining chunks so the provider's internal goroutine
// never blocks on a channel send after the caller has stopped reading.
func drainChunks(ch <-chan llm.Chunk) {
	for range ch {
	}
}

func joinPrompts(base, extra string) string {
	if base == "" {
		return extra
	}
	return base + "\n\n" + extra
}

// matchesStopSequence reports whether content ends with any of seqs. Per the
// boundary rule, the match window is the concatenated CONTENT stream only;
// thinking tokens never enter it.
func matchesStopSequence(content string, seqs []string) bool {
	for _, s := range seqs {
		if s != "" && strings.HasSuffix(content, s) {
			return true
		}
	}
	return false
}

// EstimateTokens approximates a token count for text whose backend does not
// report one: ceil(chars/4 + punctuation*0.7 + newlines), clamped to
// [wordCount, charCount].
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	chars := utf8.RuneCountInString(text)
	words := len(strings.Fields(text))

	punct := 0
	newlines := 0
	for _, r := range text {
		switch r {
		case '.', ',', '!', '?', ';', ':':
			punct++
		case '\n':
			newlines++
		}
	}

	est := int(math.Ceil(float64(chars)/4 + float64(punct)*0.7 + float64(newlines)))
	if est < words {
		est = words
	}
	if est > chars {
		est = chars
	}
	return est
}

// estimateMessagesTokens sums EstimateTokens over every message's content,
// used when a provider's CountTokens call fails or is unavailable.
func estimateMessagesTokens(msgs []types.Message) int {
	total := 0
	for _, m := range msgs {
		total += EstimateTokens(m.Content)
	}
	return total
}
