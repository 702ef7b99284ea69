// Package mock provides test doubles for the diarization package
// interfaces.
//
// Use Service to verify sessions are created with the expected Config. Use
// Session to inject SpeakerInfo responses and inspect the audio spans
// submitted for identification.
package mock

import (
	"sync"
	"time"

	"github.com/glyphoxa-sdk/runtime/pkg/provider/diarization"
)

// NewSessionCall records a single invocation of Service.NewSession.
type NewSessionCall struct {
	Cfg diarization.Config
}

// Service is a mock implementation of diarization.Service.
type Service struct {
	mu sync.Mutex

	// Session is the SessionHandle returned by NewSession. If nil,
	// NewSession returns a new default Session.
	Session diarization.SessionHandle

	// NewSessionErr, if non-nil, is returned as the error from NewSession.
	NewSessionErr error

	NewSessionCalls []NewSessionCall
}

func (s *Service) NewSession(cfg diarization.Config) (diarization.SessionHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.NewSessionCalls = append(s.NewSessionCalls, NewSessionCall{Cfg: cfg})
	if s.NewSessionErr != nil {
		return nil, s.NewSessionErr
	}
	if s.Session != nil {
		return s.Session, nil
	}
	return &Session{}, nil
}

var _ diarization.Service = (*Service)(nil)

// IdentifyCall records a single invocation of Session.Identify.
type IdentifyCall struct {
	Audio          []float32
	UtteranceStart time.Duration
	UtteranceEnd   time.Duration
}

// Session is a mock implementation of diarization.SessionHandle.
type Session struct {
	mu sync.Mutex

	// SpeakerResult is returned by every Identify call.
	SpeakerResult diarization.SpeakerInfo

	// IdentifyErr, if non-nil, is returned as the error from Identify.
	IdentifyErr error

	IdentifyCalls []IdentifyCall

	ResetCalls int
	CloseCalls int
	CloseErr   error
}

func (s *Session) Identify(audio []float32, utteranceStart, utteranceEnd time.Duration) (diarization.SpeakerInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	frame := make([]float32, len(audio))
	copy(frame, audio)
	s.IdentifyCalls = append(s.IdentifyCalls, IdentifyCall{Audio: frame, UtteranceStart: utteranceStart, UtteranceEnd: utteranceEnd})
	if s.IdentifyErr != nil {
		return diarization.SpeakerInfo{}, s.IdentifyErr
	}
	return s.SpeakerResult, nil
}

func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ResetCalls++
}

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCalls++
	return s.CloseErr
}

var _ diarization.SessionHandle = (*Session)(nil)
