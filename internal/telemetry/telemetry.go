// Package telemetry implements the Telemetry & Analytics Queue: a bounded,
// consent-gated buffer of typed events partitioned by modality, flushed by
// size threshold, timed interval, or explicit request, and persisted
// across restarts so events a prior run never got to transmit are
// resubmitted at the next flush rather than lost.
//
// Grounded on internal/observe.Metrics's typed-instrument schema (named
// fields per concern, never a free-form property bag) for the shape of
// Event, and on internal/agent/npcstore.PostgresStore's "buffer in
// memory, batch through a Store interface, JSON-marshal the sub-fields a
// flat row can't hold" persistence contract, carried over to the
// on-device store in internal/store/sqlite.
package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Modality partitions events so a receiver can route to specialized
// storage. The zero value is "unspecified" (events with no particular
// modality, e.g. sdk_initialized).
type Modality string

const (
	ModalityUnspecified Modality = ""
	ModalityLLM         Modality = "llm"
	ModalitySTT         Modality = "stt"
	ModalityTTS         Modality = "tts"
	ModalityModel       Modality = "model"
)

// EventType is one of the stable, snake_case event names capabilities
// emit. Component- and model-scoped names are built with ComponentEvent
// and ModelEvent rather than enumerated, since they're parameterized by
// component name.
type EventType string

const (
	EventSDKInitialized EventType = "sdk_initialized"
	EventSDKShutdown    EventType = "sdk_shutdown"

	EventGenerationStarted         EventType = "generation_started"
	EventGenerationCompleted       EventType = "generation_completed"
	EventGenerationFailed          EventType = "generation_failed"
	EventGenerationFirstToken      EventType = "generation_first_token"
	EventGenerationStreamingUpdate EventType = "generation_streaming_update"

	EventSTTTranscriptionStarted   EventType = "stt_transcription_started"
	EventSTTPartialTranscript      EventType = "stt_partial_transcript"
	EventSTTFinalTranscript        EventType = "stt_final_transcript"
	EventSTTTranscriptionCompleted EventType = "stt_transcription_completed"
	EventSTTTranscriptionFailed    EventType = "stt_transcription_failed"
	EventSTTLanguageDetected       EventType = "stt_language_detected"
	EventSTTSpeakerChanged         EventType = "stt_speaker_changed"

	EventTTSSynthesisStarted   EventType = "tts_synthesis_started"
	EventTTSAudioChunk         EventType = "tts_audio_chunk"
	EventTTSSynthesisCompleted EventType = "tts_synthesis_completed"
	EventTTSSynthesisFailed    EventType = "tts_synthesis_failed"

	EventVADStarted       EventType = "vad_started"
	EventVADStopped       EventType = "vad_stopped"
	EventVADSpeechStarted EventType = "vad_speech_started"
	EventVADSpeechEnded   EventType = "vad_speech_ended"

	EventPipelineStarted   EventType = "pipeline_started"
	EventPipelineError     EventType = "pipeline_error"
	EventPipelineCompleted EventType = "pipeline_completed"

	EventAudioControlPauseRecording  EventType = "audio_control_pause_recording"
	EventAudioControlResumeRecording EventType = "audio_control_resume_recording"
)

// ComponentEvent builds a component_<name>_<phase> event name, e.g.
// ComponentEvent("stt-whisper", "initialization_started").
func ComponentEvent(name, phase string) EventType {
	return EventType(fmt.Sprintf("component_%s_%s", name, phase))
}

// ModelEvent builds a model_<phase> event name, e.g.
// ModelEvent("load_completed").
func ModelEvent(phase string) EventType {
	return EventType("model_" + phase)
}

// LLMFields carries the modality-specific fields spec.md's telemetry
// endpoint expects for llm events.
type LLMFields struct {
	PromptTokens       int
	CompletionTokens   int
	TotalTokens        int
	TimeToFirstTokenMs int64
	TokensPerSecond    float64
}

// STTFields carries the modality-specific fields for stt events.
type STTFields struct {
	AudioDurationMs      int64
	ProcessingDurationMs int64
	RealTimeFactor       float64
}

// TTSFields carries the modality-specific fields for tts events.
type TTSFields struct {
	CharacterCount int
	AudioBytes     int
}

// Event is one typed telemetry record. Modality-specific fields are
// pointers left nil when not applicable, so JSON round-trips (and the
// sqlite persistence layer's JSON sub-column) carry only what the event
// actually has.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"event_type"`
	Modality  Modality  `json:"modality,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	CreatedAt time.Time `json:"created_at"`

	SessionID  string `json:"session_id,omitempty"`
	ModelID    string `json:"model_id,omitempty"`
	Framework  string `json:"framework,omitempty"`
	Device     string `json:"device,omitempty"`
	Platform   string `json:"platform,omitempty"`
	SDKVersion string `json:"sdk_version,omitempty"`

	LLM *LLMFields `json:"llm,omitempty"`
	STT *STTFields `json:"stt,omitempty"`
	TTS *TTSFields `json:"tts,omitempty"`
}

// Consent gates whether Track persists anything at all.
type Consent string

const (
	ConsentGranted Consent = "granted"
	ConsentDenied  Consent = "denied"
)

// Store is the persistence contract a Queue sits on top of to survive a
// restart. A Queue with a nil Store is purely in-memory: unflushed events
// are lost on process exit.
type Store interface {
	Persist(ctx context.Context, events []Event) error
	LoadPending(ctx context.Context) ([]Event, error)
	MarkTransmitted(ctx context.Context, ids []string) error
}

// Transmitter sends a flushed batch to its destination (the backend
// telemetry endpoint). A Queue with a nil Transmitter still buffers and
// persists events but never removes its sync_pending marker, since there
// is nowhere for them to go.
type Transmitter interface {
	Transmit(ctx context.Context, events []Event) error
}

const (
	// DefaultMaxBuffered is the default bound on in-memory buffered events
	// before the oldest is dropped to make room for a new one.
	DefaultMaxBuffered = 1000

	// DefaultFlushInterval is the default timed flush cadence.
	DefaultFlushInterval = 30 * time.Second
)

// Config configures a Queue. Store and Transmitter may both be nil (pure
// in-memory, no transmission — useful for tests).
type Config struct {
	MaxBuffered   int
	FlushInterval time.Duration
	Store         Store
	Transmitter   Transmitter
	Logger        *slog.Logger
}

// Queue is the bounded, consent-gated, modality-partitioned telemetry
// buffer. Safe for concurrent use.
type Queue struct {
	mu      sync.Mutex
	buf     []Event
	dropped int
	consent Consent

	maxBuffered   int
	flushInterval time.Duration
	store         Store
	transmitter   Transmitter
	logger        *slog.Logger

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New constructs a Queue, loading any events a prior run left pending in
// Store (if set) back into the in-memory buffer so they resubmit at the
// next flush. Consent starts denied; callers must call SetConsent(Granted)
// before Track records anything.
func New(cfg Config) (*Queue, error) {
	if cfg.MaxBuffered <= 0 {
		cfg.MaxBuffered = DefaultMaxBuffered
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultFlushInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	q := &Queue{
		maxBuffered:   cfg.MaxBuffered,
		flushInterval: cfg.FlushInterval,
		store:         cfg.Store,
		transmitter:   cfg.Transmitter,
		logger:        cfg.Logger,
		consent:       ConsentDenied,
		stop:          make(chan struct{}),
	}
	if cfg.Store != nil {
		pending, err := cfg.Store.LoadPending(context.Background())
		if err != nil {
			return nil, fmt.Errorf("telemetry: load pending events: %w", err)
		}
		q.buf = append(q.buf, pending...)
	}
	return q, nil
}

// SetConsent changes whether Track records events. Switching to Denied
// does not clear already-buffered events; it only stops new ones from
// being recorded.
func (q *Queue) SetConsent(c Consent) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.consent = c
}

// Consent reports the current consent state.
func (q *Queue) Consent() Consent {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.consent
}

// Track records e if consent is granted; otherwise it is a no-op, per
// spec.md §4.10 ("denied consent causes track() to be a no-op"). When the
// buffer is already at its bound, the oldest buffered event is dropped
// and a running counter incremented. Reaching the bound after appending
// also triggers an asynchronous flush.
func (q *Queue) Track(e Event) {
	q.mu.Lock()
	if q.consent == ConsentDenied {
		q.mu.Unlock()
		return
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = e.Timestamp
	}

	overflowed := len(q.buf) >= q.maxBuffered
	if overflowed {
		q.buf = append(q.buf[1:], e)
		q.dropped++
	} else {
		q.buf = append(q.buf, e)
	}
	reachedThreshold := len(q.buf) >= q.maxBuffered
	droppedTotal := q.dropped
	q.mu.Unlock()

	if q.store != nil {
		if err := q.store.Persist(context.Background(), []Event{e}); err != nil {
			q.logger.Warn("telemetry: persist failed", "event_id", e.ID, "error", err)
		}
	}
	if overflowed {
		q.logger.Warn("telemetry: buffer full, dropped oldest event", "dropped_total", droppedTotal)
	}
	if reachedThreshold {
		go func() {
			if err := q.Flush(context.Background()); err != nil {
				q.logger.Warn("telemetry: size-triggered flush failed", "error", err)
			}
		}()
	}
}

// Dropped returns the running count of events dropped to overflow.
func (q *Queue) Dropped() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

// Partition groups events by Modality, e.g. for a receiver that routes
// each modality to specialized storage.
func Partition(events []Event) map[Modality][]Event {
	out := make(map[Modality][]Event)
	for _, e := range events {
		out[e.Modality] = append(out[e.Modality], e)
	}
	return out
}

// Flush drains the current buffer and transmits it. If transmission
// fails, the batch is put back at the front of the buffer so a later
// flush retries it rather than losing it; if it succeeds and a Store is
// configured, the transmitted events are marked so LoadPending won't
// resubmit them again.
func (q *Queue) Flush(ctx context.Context) error {
	q.mu.Lock()
	if len(q.buf) == 0 {
		q.mu.Unlock()
		return nil
	}
	batch := q.buf
	q.buf = nil
	q.mu.Unlock()

	if q.transmitter == nil {
		// Nothing to transmit to; leave the persisted copies marked pending
		// (if a Store is configured) and drop them from the in-memory buffer,
		// since New() will reload them from Store on next startup anyway.
		return nil
	}

	if err := q.transmitter.Transmit(ctx, batch); err != nil {
		q.mu.Lock()
		q.buf = append(batch, q.buf...)
		q.mu.Unlock()
		return fmt.Errorf("telemetry: transmit: %w", err)
	}

	if q.store != nil {
		ids := make([]string, len(batch))
		for i, e := range batch {
			ids[i] = e.ID
		}
		if err := q.store.MarkTransmitted(ctx, ids); err != nil {
			q.logger.Warn("telemetry: mark transmitted failed", "error", err)
		}
	}
	return nil
}

// Start runs the timed flush loop until ctx is done or Close is called.
func (q *Queue) Start(ctx context.Context) {
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		ticker := time.NewTicker(q.flushInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-q.stop:
				return
			case <-ticker.C:
				if err := q.Flush(ctx); err != nil {
					q.logger.Warn("telemetry: periodic flush failed", "error", err)
				}
			}
		}
	}()
}

// Close stops the timed flush loop started by Start and waits for it to
// exit. It does not flush; callers that want a final flush on shutdown
// should call Flush explicitly first.
func (q *Queue) Close() {
	q.stopOnce.Do(func() { close(q.stop) })
	q.wg.Wait()
}
