// Package mock provides a test double for the vad.Detector interface.
package mock

import (
	"sync"

	"github.com/bensenx/MoSheng/pkg/audio"
	"github.com/bensenx/MoSheng/pkg/provider/vad"
)

// Detector is a mock implementation of vad.Detector.
type Detector struct {
	mu sync.Mutex

	// HasSpeechResult is returned by HasSpeech.
	HasSpeechResult bool

	// SpeechRatioResult is returned by SpeechRatio.
	SpeechRatioResult float64

	// HasSpeechCalls records the buffers passed to HasSpeech in order.
	HasSpeechCalls []audio.Buffer

	// SpeechRatioCalls records the buffers passed to SpeechRatio in order.
	SpeechRatioCalls []audio.Buffer
}

// HasSpeech records the call and returns HasSpeechResult.
func (d *Detector) HasSpeech(buf audio.Buffer) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.HasSpeechCalls = append(d.HasSpeechCalls, buf)
	return d.HasSpeechResult
}

// SpeechRatio records the call and returns SpeechRatioResult.
func (d *Detector) SpeechRatio(buf audio.Buffer) float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.SpeechRatioCalls = append(d.SpeechRatioCalls, buf)
	return d.SpeechRatioResult
}

// Compile-time interface check.
var _ vad.Detector = (*Detector)(nil)
