// Package energy implements vad.Detector with a fixed-chunk RMS energy gate.
//
// The detector splits the buffer into 32 ms chunks and classifies each chunk
// by comparing its RMS energy against a threshold. It has no model to load
// and no per-stream state, which makes it suitable as the always-on
// pre-filter in front of the heavier speaker and transcription models.
package energy

import (
	"github.com/bensenx/MoSheng/pkg/audio"
	"github.com/bensenx/MoSheng/pkg/provider/vad"
)

const (
	// defaultThreshold is the RMS level above which a chunk counts as speech.
	defaultThreshold = 0.01

	// chunkMs is the analysis chunk length in milliseconds.
	chunkMs = 32
)

// Detector is an RMS energy voice activity detector. It implements
// [vad.Detector] and is safe for concurrent use (read-only after
// construction).
type Detector struct {
	threshold float64
}

// Option is a functional option for configuring a [Detector].
type Option func(*Detector)

// WithThreshold sets the RMS speech threshold. Default: 0.01. Values at or
// below zero are ignored.
func WithThreshold(threshold float64) Option {
	return func(d *Detector) {
		if threshold > 0 {
			d.threshold = threshold
		}
	}
}

// New returns a new [Detector] configured with the supplied options.
func New(opts ...Option) *Detector {
	d := &Detector{threshold: defaultThreshold}
	for _, o := range opts {
		o(d)
	}
	return d
}

// HasSpeech reports whether any chunk of buf exceeds the RMS threshold.
func (d *Detector) HasSpeech(buf audio.Buffer) bool {
	chunk := d.chunkSamples(buf.SampleRate)
	for pos := 0; pos < len(buf.Samples); pos += chunk {
		end := min(pos+chunk, len(buf.Samples))
		if audio.RMS(buf.Samples[pos:end]) >= d.threshold {
			return true
		}
	}
	return false
}

// SpeechRatio returns the fraction of chunks classified as speech.
func (d *Detector) SpeechRatio(buf audio.Buffer) float64 {
	chunk := d.chunkSamples(buf.SampleRate)
	var total, speech int
	for pos := 0; pos < len(buf.Samples); pos += chunk {
		end := min(pos+chunk, len(buf.Samples))
		total++
		if audio.RMS(buf.Samples[pos:end]) >= d.threshold {
			speech++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(speech) / float64(total)
}

// chunkSamples returns the chunk length in samples for the given rate.
func (d *Detector) chunkSamples(sampleRate int) int {
	if sampleRate <= 0 {
		sampleRate = audio.DefaultSampleRate
	}
	n := sampleRate * chunkMs / 1000
	if n < 1 {
		n = 1
	}
	return n
}

// Compile-time interface check.
var _ vad.Detector = (*Detector)(nil)
