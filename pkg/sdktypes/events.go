package sdktypes

import "time"

// EventCategory groups events for routing and subscription.
type EventCategory string

const (
	EventLifecycle EventCategory = "lifecycle"
	EventGeneration EventCategory = "generation"
	EventVoice      EventCategory = "voice"
	EventAnalytics  EventCategory = "analytics"
)

// Destination controls which sinks an event is delivered to.
type Destination int

const (
	DestPublic Destination = iota
	DestAnalytics
	DestBoth
)

// Event is the envelope every publish/subscribe message travels in. Payload
// carries the strongly-typed, event-specific data; callers type-assert it
// against the concrete payload types declared alongside each emitting
// subsystem (e.g. voicepipeline.StageEvent, telemetry.TokenUsageEvent).
type Event struct {
	Timestamp time.Time
	Category  EventCategory
	Name      string
	Dest      Destination
	Payload   any
}

// Modality is the routing hint telemetry events carry so the receiving store
// can shard by specialized table.
type Modality string

const (
	ModalityLLM     Modality = "llm"
	ModalitySTT     Modality = "stt"
	ModalityTTS     Modality = "tts"
	ModalityModel   Modality = "model"
	ModalityUnknown Modality = ""
)

// TelemetryEvent is the subset of Event destined for analytics. Fields are
// typed per modality rather than carried in a free-form property bag.
type TelemetryEvent struct {
	ID        string
	EventType string // snake_case, stable
	Timestamp time.Time
	CreatedAt time.Time
	Modality  Modality

	SessionID string
	ModelID   string
	Framework string
	Device    string
	Platform  string
	SDKVersion string

	// Modality-specific fields. Zero-valued when not applicable to Modality.
	PromptTokens     int
	CompletionTokens int
	TokensPerSecond  float64
	TimeToFirstToken time.Duration

	AudioDurationMs   int64
	RealTimeFactor    float64
	CharacterCount    int
	AudioBytes        int64
}
