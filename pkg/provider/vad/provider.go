// Package vad defines the Detector interface for voice activity detection.
//
// In the dictation pipeline VAD is a cheap pre-filter: before any model is
// invoked for an utterance, the detector decides whether the buffer contains
// speech at all, so that accidental hotkey taps and empty captures never
// reach the speaker encoder or the transcriber.
//
// Detection is synchronous and must be fast relative to model inference.
// Implementations must be safe for concurrent use.
package vad

import "github.com/bensenx/MoSheng/pkg/audio"

// Detector reports whether an audio buffer contains speech.
type Detector interface {
	// HasSpeech reports whether buf contains any speech-like activity.
	HasSpeech(buf audio.Buffer) bool

	// SpeechRatio returns the fraction of the buffer's analysis chunks
	// classified as speech, in [0.0, 1.0]. An empty buffer yields 0.
	SpeechRatio(buf audio.Buffer) float64
}
