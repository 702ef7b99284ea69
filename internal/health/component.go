package health

import (
	"context"
	"fmt"

	"github.com/glyphoxa-sdk/runtime/internal/lifecycle"
)

// ComponentChecker builds a Checker that reports a capability component
// (LLM, STT, TTS, VAD, Diarization, ...) ready only once its lifecycle
// has reached StateReady. A component still initializing, failed, or
// shutting down fails the check with its current state and last error.
func ComponentChecker(name string, comp *lifecycle.Component) Checker {
	return Checker{
		Name: name,
		Check: func(context.Context) error {
			if state := comp.State(); state != lifecycle.StateReady {
				if err := comp.Err(); err != nil {
					return fmt.Errorf("%s: %w", state, err)
				}
				return fmt.Errorf("not ready: %s", state)
			}
			return nil
		},
	}
}
