// Package mock provides a test double for the stt.Transcriber interface.
package mock

import (
	"context"
	"sync"

	"github.com/bensenx/MoSheng/pkg/audio"
	"github.com/bensenx/MoSheng/pkg/provider/stt"
)

// TranscribeCall records a single invocation of Transcribe.
type TranscribeCall struct {
	// Buf is the buffer passed to Transcribe (samples not copied).
	Buf audio.Buffer
}

// Transcriber is a mock implementation of stt.Transcriber.
type Transcriber struct {
	mu sync.Mutex

	// TranscribeResult is returned by Transcribe.
	TranscribeResult string

	// TranscribeErr, if non-nil, is returned as the error from Transcribe.
	TranscribeErr error

	// ModelIDValue is returned by ModelID.
	ModelIDValue string

	// TranscribeCalls records every call to Transcribe in order.
	TranscribeCalls []TranscribeCall

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int
}

// Transcribe records the call and returns the configured result.
func (t *Transcriber) Transcribe(_ context.Context, buf audio.Buffer) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.TranscribeCalls = append(t.TranscribeCalls, TranscribeCall{Buf: buf})
	return t.TranscribeResult, t.TranscribeErr
}

// ModelID returns ModelIDValue.
func (t *Transcriber) ModelID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ModelIDValue
}

// Close records the call and returns nil.
func (t *Transcriber) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.CloseCallCount++
	return nil
}

// Compile-time interface check.
var _ stt.Transcriber = (*Transcriber)(nil)
