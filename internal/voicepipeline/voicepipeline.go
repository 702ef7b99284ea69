// Package voicepipeline orchestrates one VAD → STT → LLM → TTS conversational
// turn, publishing stage events in the fixed order:
//
//	vadSpeechStart → sttPartialTranscript* → sttFinalTranscript →
//	llmThinking → llmStreamStarted → llmStreamToken* → llmFinalResponse →
//	audioControlPauseRecording → ttsStarted → ttsAudioChunk* → ttsCompleted →
//	audioControlResumeRecording
//
// Grounded on the teacher's internal/engine (the VoiceEngine interface and
// its Response type) and internal/engine/cascade (goroutine-per-turn
// streaming with an atomic error pointer for mid-stream failures), but
// reshaped around independent VAD/STT/LLM/TTS/Diarization service
// references instead of one VoiceEngine implementation per NPC — per the
// base specification's note to prefer composition over a monolithic engine
// interface.
package voicepipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/glyphoxa-sdk/runtime/internal/eventbus"
	"github.com/glyphoxa-sdk/runtime/internal/llmstream"
	"github.com/glyphoxa-sdk/runtime/internal/tools"
	"github.com/glyphoxa-sdk/runtime/internal/tools/tier"
	"github.com/glyphoxa-sdk/runtime/pkg/provider/diarization"
	"github.com/glyphoxa-sdk/runtime/pkg/provider/llm"
	"github.com/glyphoxa-sdk/runtime/pkg/provider/stt"
	"github.com/glyphoxa-sdk/runtime/pkg/provider/tts"
	"github.com/glyphoxa-sdk/runtime/pkg/provider/vad"
	"github.com/glyphoxa-sdk/runtime/pkg/sdktypes"
	"github.com/glyphoxa-sdk/runtime/pkg/types"
)

// Stage names published on the event bus, in the fixed ordering this
// package guarantees for a single turn.
const (
	StageVADSpeechStart       = "vadSpeechStart"
	StageVADSpeechEnd         = "vadSpeechEnd"
	StageSTTPartialTranscript = "sttPartialTranscript"
	StageSTTFinalTranscript   = "sttFinalTranscript"
	StageSTTSpeakerChanged    = "sttSpeakerChanged"
	StageLLMThinking          = "llmThinking"
	StageLLMStreamStarted     = "llmStreamStarted"
	StageLLMStreamToken       = "llmStreamToken"
	StageLLMFinalResponse     = "llmFinalResponse"
	StageTTSStarted           = "ttsStarted"
	StageTTSAudioChunk        = "ttsAudioChunk"
	StageTTSCompleted         = "ttsCompleted"
	StageAudioControlPause    = "audioControlPauseRecording"
	StageAudioControlResume   = "audioControlResumeRecording"
	StagePipelineError        = "pipelineError"
)

// DefaultResumeCooldown is the minimum delay after ttsCompleted before
// audioControlResumeRecording fires, guarding against the tail of TTS
// playback being picked back up by the microphone.
const DefaultResumeCooldown = 150 * time.Millisecond

// DefaultMaxToolIterations bounds how many tool-call/response round trips a
// single turn may make before the pipeline gives up waiting for a final
// text answer and speaks whatever content the model has produced so far.
const DefaultMaxToolIterations = 4

// Config wires the independent per-modality services a Session coordinates.
// LLM, TTS, and Bus are required; VAD, STT, and Diarization are optional —
// a nil VAD/STT pair means the caller delivers already-finalized transcripts
// directly via InjectTranscript instead of raw audio frames.
type Config struct {
	VAD            vad.Engine
	VADConfig      vad.Config
	STT            stt.Provider
	STTConfig      stt.StreamConfig
	Diarization    diarization.Service
	DiarConfig     diarization.Config
	LLM            llm.Provider
	LLMOptions     llmstream.Options
	TTS            tts.Provider
	Voice          types.VoiceProfile
	Bus            *eventbus.Bus
	Logger         *slog.Logger
	ResumeCooldown time.Duration

	// ToolHost, when set, exposes callable tools to the LLM stage. Each
	// turn declares the tool set available at the session's current
	// budget tier and, if the model responds with tool calls, executes
	// them and feeds the results back for a follow-up completion.
	ToolHost tools.Host

	// ToolSelector picks the budget tier per turn from the transcript
	// text. If nil, ToolTier is used for every turn instead.
	ToolSelector *tier.Selector

	// ToolTier is the fixed budget tier used when ToolSelector is nil.
	// Ignored if ToolHost is nil.
	ToolTier tools.BudgetTier

	// ToolTierOverride, when non-zero, forces ToolSelector.Select to
	// return this tier regardless of transcript content. Ignored when
	// ToolSelector is nil.
	ToolTierOverride tools.BudgetTier

	// MaxToolIterations bounds the number of tool-call/response round
	// trips within a single turn. Defaults to DefaultMaxToolIterations.
	MaxToolIterations int
}

// Session coordinates one conversation's worth of turns. A Session is safe
// for concurrent PushFrame calls from a single audio capture goroutine; at
// most one turn runs at a time, with a new sttFinalTranscript cancelling
// whatever turn is still in flight.
type Session struct {
	cfg    Config
	bus    *eventbus.Bus
	logger *slog.Logger

	vadSession vad.SessionHandle
	sttSession stt.SessionHandle
	diarSess   diarization.SessionHandle

	mu           sync.Mutex
	turn         int
	turnCancel   context.CancelFunc
	utterancePCM []byte

	playbackMu sync.Mutex
	playing    bool

	closed bool
	wg     sync.WaitGroup
}

// New opens a Session against the configured services. If cfg.VAD and
// cfg.STT are set, New also opens a VAD session and starts the STT session
// immediately (rather than waiting for VAD speech start) so the first
// vadSpeechStart frame can be forwarded without a setup round-trip; silent
// frames are simply never forwarded to STT.
func New(ctx context.Context, cfg Config) (*Session, error) {
	if cfg.LLM == nil || cfg.TTS == nil || cfg.Bus == nil {
		return nil, fmt.Errorf("voicepipeline: LLM, TTS, and Bus are required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ResumeCooldown <= 0 {
		cfg.ResumeCooldown = DefaultResumeCooldown
	}

	s := &Session{cfg: cfg, bus: cfg.Bus, logger: logger}

	if cfg.VAD != nil {
		vs, err := cfg.VAD.NewSession(cfg.VADConfig)
		if err != nil {
			return nil, fmt.Errorf("voicepipeline: open VAD session: %w", err)
		}
		s.vadSession = vs
	}
	if cfg.STT != nil {
		ss, err := cfg.STT.StartStream(ctx, cfg.STTConfig)
		if err != nil {
			return nil, fmt.Errorf("voicepipeline: open STT session: %w", err)
		}
		s.sttSession = ss
		s.wg.Add(2)
		go s.drainPartials()
		go s.drainFinals()
	}
	if cfg.Diarization != nil {
		ds, err := cfg.Diarization.NewSession(cfg.DiarConfig)
		if err != nil {
			return nil, fmt.Errorf("voicepipeline: open diarization session: %w", err)
		}
		s.diarSess = ds
	}

	return s, nil
}

// PushFrame feeds one raw PCM frame through VAD gating into the STT
// session. It is a no-op if the Session was constructed without VAD/STT.
func (s *Session) PushFrame(frame []byte) error {
	if s.vadSession == nil || s.sttSession == nil {
		return nil
	}
	event, err := s.vadSession.ProcessFrame(frame)
	if err != nil {
		return fmt.Errorf("voicepipeline: VAD frame: %w", err)
	}

	switch event.Type {
	case vad.VADSpeechStart:
		s.mu.Lock()
		s.utterancePCM = s.utterancePCM[:0]
		s.mu.Unlock()
		s.publish(StageVADSpeechStart, nil)
	case vad.VADSpeechEnd:
		s.publish(StageVADSpeechEnd, nil)
	}

	if event.Type == vad.VADSpeechStart || event.Type == vad.VADSpeechContinue {
		s.mu.Lock()
		s.utterancePCM = append(s.utterancePCM, frame...)
		s.mu.Unlock()
		if err := s.sttSession.SendAudio(frame); err != nil {
			return fmt.Errorf("voicepipeline: send audio to STT: %w", err)
		}
	}
	return nil
}

func (s *Session) drainPartials() {
	defer s.wg.Done()
	for tr := range s.sttSession.Partials() {
		s.publish(StageSTTPartialTranscript, tr)
	}
}

func (s *Session) drainFinals() {
	defer s.wg.Done()
	for tr := range s.sttSession.Finals() {
		s.InjectTranscript(context.Background(), tr)
	}
}

// InjectTranscript starts a new turn from an already-finalized transcript,
// bypassing VAD/STT. Any turn still in flight is cancelled first. A turn
// cancelled before TTS starts publishes pipelineError and ends without
// speaking, so it publishes neither pause nor resume; a turn cancelled
// during TTS still publishes its resume event.
func (s *Session) InjectTranscript(ctx context.Context, tr types.Transcript) {
	s.publish(StageSTTFinalTranscript, tr)

	s.mu.Lock()
	if s.turnCancel != nil {
		s.turnCancel()
	}
	s.turn++
	turn := s.turn
	turnCtx, cancel := context.WithCancel(ctx)
	s.turnCancel = cancel
	utterance := append([]byte(nil), s.utterancePCM...)
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runTurn(turnCtx, turn, tr, utterance)
	}()
}

func (s *Session) runTurn(ctx context.Context, turn int, tr types.Transcript, utterance []byte) {
	if s.diarSess != nil {
		if info, err := s.diarSess.Identify(pcm16ToFloat32(utterance), tr.Timestamp, tr.Timestamp); err != nil {
			s.logger.Warn("diarization identify failed", "turn", turn, "error", err)
		} else if info.ID != "" {
			s.publish(StageSTTSpeakerChanged, info)
		}
	}

	s.publish(StageLLMThinking, nil)

	budgetTier := s.toolTier(tr.Text)
	maxIter := s.cfg.MaxToolIterations
	if maxIter <= 0 {
		maxIter = DefaultMaxToolIterations
	}

	messages := []types.Message{{Role: "user", Content: tr.Text}}
	var content string
	var usage llmstream.Usage

	for iter := 0; iter < maxIter; iter++ {
		req := llm.CompletionRequest{Messages: messages}
		if s.cfg.ToolHost != nil {
			req.Tools = s.cfg.ToolHost.AvailableTools(budgetTier)
		}

		var buf strings.Builder
		startedLLM := false
		var streamErr error
		usage, streamErr = llmstream.Stream(ctx, s.cfg.LLM, req, s.cfg.LLMOptions, func(tok llmstream.Token) bool {
			if !startedLLM {
				startedLLM = true
				s.publish(StageLLMStreamStarted, nil)
			}
			if tok.Type == llmstream.TokenContent {
				buf.WriteString(tok.Text)
			}
			s.publish(StageLLMStreamToken, tok)
			return ctx.Err() == nil
		})

		if streamErr != nil {
			s.publish(StagePipelineError, streamErr)
			return
		}
		if ctx.Err() != nil {
			s.publish(StagePipelineError, fmt.Errorf("voicepipeline: turn %d cancelled", turn))
			return
		}

		content = buf.String()

		if usage.FinishReason != llmstream.FinishToolCalls || s.cfg.ToolHost == nil || len(usage.ToolCalls) == 0 {
			break
		}

		messages = append(messages, types.Message{Role: "assistant", Content: content, ToolCalls: usage.ToolCalls})
		for _, call := range usage.ToolCalls {
			messages = append(messages, types.Message{
				Role:       "tool",
				Content:    s.executeToolCall(ctx, call),
				ToolCallID: call.ID,
			})
		}
		s.publish(StageLLMThinking, nil)
	}

	if s.cfg.ToolSelector != nil {
		s.cfg.ToolSelector.RecordTurn()
	}

	s.publish(StageLLMFinalResponse, finalResponse{Text: content, Usage: usage})

	s.speak(ctx, turn, content)
}

// toolTier resolves the budget tier to declare for this turn's tool set:
// the configured selector scores the transcript text if one is set,
// otherwise the fixed ToolTier applies.
func (s *Session) toolTier(text string) tools.BudgetTier {
	if s.cfg.ToolSelector != nil {
		return s.cfg.ToolSelector.Select(text, s.cfg.ToolTierOverride)
	}
	return s.cfg.ToolTier
}

// executeToolCall runs one model-requested tool call through the
// configured ToolHost and returns the text to feed back as the
// corresponding "tool" role message. Execution failures — transport errors
// and application-level tool errors alike — are surfaced as plain text so
// the model can react to them instead of the turn failing outright.
func (s *Session) executeToolCall(ctx context.Context, call types.ToolCall) string {
	result, err := s.cfg.ToolHost.ExecuteTool(ctx, call.Name, call.Arguments)
	if err != nil {
		return fmt.Sprintf("tool %q failed: %v", call.Name, err)
	}
	return result.Content
}

type finalResponse struct {
	Text  string
	Usage llmstream.Usage
}

// speak synthesizes content through TTS, bracketing playback with the
// pause/resume recording events. The resume event fires on every exit path
// — success, TTS start failure, or cancellation — per the echo-control
// contract that the bracket must never leak an unmatched pause.
func (s *Session) speak(ctx context.Context, turn int, content string) {
	s.acquirePlayback()
	defer s.releasePlaybackAfterCooldown()

	textCh := make(chan string, 1)
	textCh <- content
	close(textCh)

	audioCh, err := s.cfg.TTS.SynthesizeStream(ctx, textCh, s.cfg.Voice)
	if err != nil {
		s.publish(StagePipelineError, fmt.Errorf("voicepipeline: TTS start failed: %w", err))
		return
	}

	s.publish(StageTTSStarted, turn)
	for chunk := range audioCh {
		s.publish(StageTTSAudioChunk, len(chunk))
	}
	s.publish(StageTTSCompleted, turn)
}

func (s *Session) acquirePlayback() {
	s.playbackMu.Lock()
	s.playing = true
	s.playbackMu.Unlock()
	s.publish(StageAudioControlPause, nil)
}

func (s *Session) releasePlaybackAfterCooldown() {
	time.Sleep(s.cfg.ResumeCooldown)
	s.playbackMu.Lock()
	s.playing = false
	s.playbackMu.Unlock()
	s.publish(StageAudioControlResume, nil)
}

// Playing reports whether TTS playback is currently bracketed by a
// pause/resume recording pair.
func (s *Session) Playing() bool {
	s.playbackMu.Lock()
	defer s.playbackMu.Unlock()
	return s.playing
}

// CancelTurn cancels the in-flight turn, if any. Safe to call when no turn
// is running.
func (s *Session) CancelTurn() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.turnCancel != nil {
		s.turnCancel()
	}
}

// Close cancels any in-flight turn and releases the VAD/STT/Diarization
// sessions. Safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	if s.turnCancel != nil {
		s.turnCancel()
	}
	s.mu.Unlock()

	var errs []error
	if s.vadSession != nil {
		if err := s.vadSession.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if s.sttSession != nil {
		if err := s.sttSession.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if s.diarSess != nil {
		if err := s.diarSess.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	s.wg.Wait()

	if len(errs) > 0 {
		return fmt.Errorf("voicepipeline: close: %v", errs)
	}
	return nil
}

func (s *Session) publish(name string, payload any) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(sdktypes.Event{
		Timestamp: time.Now(),
		Category:  sdktypes.EventVoice,
		Name:      name,
		Dest:      sdktypes.DestBoth,
		Payload:   payload,
	})
}

// pcm16ToFloat32 converts little-endian 16-bit PCM samples to the
// normalized float32 span diarization.SessionHandle.Identify expects.
func pcm16ToFloat32(pcm []byte) []float32 {
	n := len(pcm) / 2
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		sample := int16(uint16(pcm[2*i]) | uint16(pcm[2*i+1])<<8)
		out[i] = float32(sample) / 32768.0
	}
	return out
}
