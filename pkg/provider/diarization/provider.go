// Package diarization defines the Service interface for Speaker Diarization
// backends.
//
// The teacher's own types.Transcript carries a SpeakerID as if diarization
// were a side effect of speech-to-text; this package promotes it to a
// first-class capability with its own registry entry, grounded on the
// shape of the VAD Engine/SessionHandle split (stateful, per-stream
// sessions fed one audio span at a time) since diarization, like VAD,
// accumulates per-stream speaker state across a conversation.
//
// Implementations must be safe for concurrent use across different
// sessions. A single SessionHandle should not be shared across goroutines
// unless the implementation explicitly documents thread safety for that
// type.
package diarization

import "time"

// Config holds the parameters for a diarization session.
type Config struct {
	// SampleRate is the audio sample rate in Hz of the spans passed to
	// Identify. Must match the voice pipeline's STT input rate.
	SampleRate int

	// MaxSpeakers bounds how many distinct speakers the session will track
	// before it starts merging low-confidence identifications into the
	// closest known speaker. Zero means unbounded.
	MaxSpeakers int

	// MinConfidence is the threshold below which Identify reports an empty
	// SpeakerID rather than guessing.
	MinConfidence float64
}

// SpeakerInfo identifies the speaker of one utterance.
type SpeakerInfo struct {
	// ID is a session-scoped, stable identifier for this speaker. Empty if
	// the session could not confidently attribute the utterance.
	ID string

	// Name is an optional human-assigned label, set only when the host
	// application has registered a voice profile for this speaker.
	Name string

	// Confidence is the identification confidence, in [0.0, 1.0].
	Confidence float64
}

// SessionHandle represents an active diarization session for a single
// conversation. It accumulates speaker embeddings across calls to Identify
// so that the same speaker is recognized consistently within one session.
type SessionHandle interface {
	// Identify analyses one utterance's audio span (already VAD/STT
	// delimited — start to end of a single speech segment, raw
	// little-endian PCM float32 at Config.SampleRate) and returns the
	// speaker it attributes the utterance to.
	//
	// This method is called once per sttFinalTranscript in the voice
	// pipeline and must not block longer than the pipeline's STT stage
	// timeout.
	Identify(audio []float32, utteranceStart, utteranceEnd time.Duration) (SpeakerInfo, error)

	// Reset clears accumulated speaker state without closing the session,
	// for use when a conversation restarts with potentially different
	// participants.
	Reset()

	// Close releases all resources associated with the session. Calling
	// Close more than once is safe and returns nil.
	Close() error
}

// Service is the factory for diarization sessions, the top-level interface
// implemented by each diarization backend.
type Service interface {
	// NewSession creates a new diarization session with the given
	// configuration.
	NewSession(cfg Config) (SessionHandle, error)
}
