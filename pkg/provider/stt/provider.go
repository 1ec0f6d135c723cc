// Package stt defines the Transcriber interface for speech-to-text backends.
//
// MoSheng's dictation flow is utterance-based: the user holds a hotkey, an
// external recorder captures one buffer, and the whole buffer is transcribed
// at once after speaker verification. The interface is therefore a single
// batch call rather than a streaming session.
//
// Implementations must be safe for concurrent use unless documented
// otherwise; the pipeline invokes Transcribe from one goroutine at a time.
package stt

import (
	"context"

	"github.com/bensenx/MoSheng/pkg/audio"
)

// Transcriber is the abstraction over any speech-to-text backend.
type Transcriber interface {
	// Transcribe converts one utterance to text. The buffer must be mono at a
	// rate the backend supports (the whisper backend requires 16 kHz; the
	// pipeline resamples on ingest). Returns the recognised text, which may be
	// empty for silent or unintelligible audio, or an error if inference fails
	// or ctx is cancelled.
	Transcribe(ctx context.Context, buf audio.Buffer) (string, error)

	// ModelID returns the backend-specific model identifier (e.g.,
	// "ggml-base.en"). Useful for logging and status reporting.
	ModelID() string

	// Close releases the model and all associated resources. Calling Close
	// more than once is safe and returns nil.
	Close() error
}
