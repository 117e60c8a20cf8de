// Package speech turns recorded audio artifacts into text. The
// orchestrator only sees the Transcriber interface; the concrete backend
// is chosen at wiring time.
package speech

import (
	"context"
	"errors"
)

// ErrEmptyAudio is returned when the artifact contains no audio data.
var ErrEmptyAudio = errors.New("speech: empty audio artifact")

// Transcriber converts one recorded artifact into its transcript.
type Transcriber interface {
	// Transcribe reads the audio file at path and returns the transcript
	// text. Blocking; honor ctx for cancellation.
	Transcribe(ctx context.Context, path string) (string, error)
}

// TranscribeFunc is an adapter to allow the use of ordinary functions as
// Transcribers.
type TranscribeFunc func(ctx context.Context, path string) (string, error)

// Transcribe calls the underlying function.
func (f TranscribeFunc) Transcribe(ctx context.Context, path string) (string, error) {
	return f(ctx, path)
}
