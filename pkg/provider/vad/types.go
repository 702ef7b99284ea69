package vad

import "github.com/glyphoxa-sdk/runtime/pkg/types"

// VADEvent and VADEventType are aliases onto the shared cross-package types so
// that SessionHandle implementations (real backends and mocks alike) can
// return the shorter vad.VADEvent spelling interchangeably with types.VADEvent.
type VADEvent = types.VADEvent

type VADEventType = types.VADEventType

const (
	// VADSpeechStart indicates speech has just begun.
	VADSpeechStart = types.VADSpeechStart

	// VADSpeechContinue indicates ongoing speech.
	VADSpeechContinue = types.VADSpeechContinue

	// VADSpeechEnd indicates speech has just ended.
	VADSpeechEnd = types.VADSpeechEnd

	// VADSilence indicates no speech detected.
	VADSilence = types.VADSilence
)
