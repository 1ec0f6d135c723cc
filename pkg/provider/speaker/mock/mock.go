// Package mock provides a test double for the speaker.Encoder interface.
//
// Use Encoder to return pre-canned embedding vectors without a live model and
// to verify which waveforms were submitted for encoding. EncodeFunc allows
// scripting a different result per call, which the verifier tests use to give
// each analysis window its own similarity to the enrolled centroid.
package mock

import (
	"context"
	"sync"

	"github.com/bensenx/MoSheng/pkg/provider/speaker"
)

// EncodeCall records a single invocation of Encode.
type EncodeCall struct {
	// Samples is a copy of the waveform passed to Encode.
	Samples []float32
	// SampleRate is the sample rate passed to Encode.
	SampleRate int
}

// Encoder is a mock implementation of speaker.Encoder.
type Encoder struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// EncodeResult is returned by Encode when EncodeFunc is nil.
	EncodeResult []float32

	// EncodeErr, if non-nil, is returned as the error from Encode.
	EncodeErr error

	// EncodeFunc, if non-nil, is called per invocation with the call index
	// (0-based) and the submitted waveform, and its result is returned.
	// Takes precedence over EncodeResult/EncodeErr.
	EncodeFunc func(call int, samples []float32) ([]float32, error)

	// DimensionsValue is returned by Dimensions.
	DimensionsValue int

	// ModelIDValue is returned by ModelID.
	ModelIDValue string

	// CloseErr is returned by Close.
	CloseErr error

	// --- Call records ---

	// EncodeCalls records every call to Encode in order.
	EncodeCalls []EncodeCall

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int
}

// Encode records the call and returns the configured result.
func (e *Encoder) Encode(_ context.Context, samples []float32, sampleRate int) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	cp := make([]float32, len(samples))
	copy(cp, samples)
	call := len(e.EncodeCalls)
	e.EncodeCalls = append(e.EncodeCalls, EncodeCall{Samples: cp, SampleRate: sampleRate})
	if e.EncodeFunc != nil {
		return e.EncodeFunc(call, cp)
	}
	return e.EncodeResult, e.EncodeErr
}

// Dimensions returns DimensionsValue.
func (e *Encoder) Dimensions() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.DimensionsValue
}

// ModelID returns ModelIDValue.
func (e *Encoder) ModelID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ModelIDValue
}

// Close records the call and returns CloseErr.
func (e *Encoder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.CloseCallCount++
	return e.CloseErr
}

// Reset clears all recorded calls. Thread-safe.
func (e *Encoder) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.EncodeCalls = nil
	e.CloseCallCount = 0
}

// Opener is a mock speaker.Opener that returns a fixed Encoder or error.
type Opener struct {
	mu sync.Mutex

	// Enc is returned by Open when OpenErr is nil.
	Enc speaker.Encoder

	// OpenErr, if non-nil, is returned as the error from Open.
	OpenErr error

	// OpenCallCount is the number of times Open was called.
	OpenCallCount int
}

// Open records the call and returns Enc, OpenErr.
func (o *Opener) Open(_ context.Context) (speaker.Encoder, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.OpenCallCount++
	if o.OpenErr != nil {
		return nil, o.OpenErr
	}
	return o.Enc, nil
}

// Compile-time interface checks.
var (
	_ speaker.Encoder = (*Encoder)(nil)
	_ speaker.Opener  = (*Opener)(nil)
)
