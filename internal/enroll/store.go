// Package enroll implements speaker enrollment: the guided multi-sample
// validation flow and the durable storage of exactly one enrollment record
// per installation.
package enroll

import (
	"context"
	"errors"
	"time"
)

// ErrNoEnrollment is returned by Load and LoadCentroid when no enrollment
// record exists.
var ErrNoEnrollment = errors.New("enroll: no enrollment record")

// Record is the persisted unit of enrollment: the per-sample embeddings in
// recording order, the centroid derived from them, and the metadata needed
// to explain the record later. A Record is created atomically at the end of
// a successful enrollment and overwritten wholesale by a later one; it is
// never partially written.
type Record struct {
	// ID uniquely identifies this enrollment (a fresh UUID per enrollment).
	ID string `json:"id"`

	// Embeddings holds one embedding per enrollment sample, in recording
	// order.
	Embeddings [][]float32 `json:"embeddings"`

	// Centroid is the element-wise mean of Embeddings.
	Centroid []float32 `json:"centroid"`

	// SampleCount is the number of samples the speaker recorded.
	SampleCount int `json:"sample_count"`

	// CreatedAt is when the enrollment completed.
	CreatedAt time.Time `json:"created_at"`

	// Threshold is the per-segment similarity threshold that was active at
	// enrollment time, kept for diagnostics.
	Threshold float64 `json:"threshold"`
}

// Store persists the single enrollment record of an installation.
//
// Loading is idempotent and side-effect-free. Save must appear atomic to any
// concurrent reader: a reader either sees the previous complete record or
// the new complete record, never a mix.
type Store interface {
	// Save writes rec, replacing any existing record wholesale.
	Save(ctx context.Context, rec Record) error

	// Load reads the full record, or [ErrNoEnrollment] if none exists.
	Load(ctx context.Context) (*Record, error)

	// LoadCentroid reads only the centroid vector, or [ErrNoEnrollment].
	// Cheaper than Load when the per-sample embeddings are not needed.
	LoadCentroid(ctx context.Context) ([]float32, error)

	// Exists reports whether an enrollment record is present without loading
	// it. Status checks use this.
	Exists(ctx context.Context) (bool, error)
}
