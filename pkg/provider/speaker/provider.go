// Package speaker defines the Encoder interface for speaker-embedding
// backends.
//
// An encoder wraps a speaker-identity model (e.g., an ECAPA-TDNN encoder
// served by a local sidecar) and maps a mono audio waveform to a fixed-length
// float32 vector. These vectors are compared by cosine similarity to decide
// whether two utterances were spoken by the same person.
//
// Encoders are treated as a single shared, non-reentrant resource: the model
// behind an Encoder instance may be GPU-resident and stateful, so callers
// must serialise Encode calls on one instance. The verification core does
// this with its own mutex; other callers must do the same.
package speaker

import "context"

// Encoder is the abstraction over any speaker-embedding backend.
//
// All vectors returned by a single Encoder instance share the same
// dimensionality (returned by Dimensions). Vectors from different encoder
// instances must not be mixed in the same similarity computation unless both
// use the same model.
type Encoder interface {
	// Encode computes the speaker embedding for a mono float32 waveform at the
	// given sample rate. Returns a vector of length Dimensions() or an error if
	// inference fails or ctx is cancelled. Encode is deterministic for
	// identical input.
	Encode(ctx context.Context, samples []float32, sampleRate int) ([]float32, error)

	// Dimensions returns the fixed length of every vector produced by this
	// encoder. Constant for the lifetime of the instance.
	Dimensions() int

	// ModelID returns the backend-specific model identifier (e.g.,
	// "ecapa-voxceleb"). Useful for logging and status reporting.
	ModelID() string

	// Close releases all resources held by the encoder (model weights, GPU
	// memory, connections). After Close, Encode must return an error. Calling
	// Close more than once is safe and returns nil.
	Close() error
}

// Opener creates an Encoder on demand. It is the explicit load step for
// backends whose model is large enough that loading must be lifecycle-managed
// (load on enable, release on disable) rather than done per call.
type Opener interface {
	// Open loads the model and returns a ready Encoder. The caller owns the
	// Encoder and must call Close when it is no longer needed.
	Open(ctx context.Context) (Encoder, error)
}

// OpenerFunc adapts a function to the [Opener] interface.
type OpenerFunc func(ctx context.Context) (Encoder, error)

// Open calls f.
func (f OpenerFunc) Open(ctx context.Context) (Encoder, error) { return f(ctx) }
