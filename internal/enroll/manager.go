package enroll

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/bensenx/MoSheng/internal/observe"
	"github.com/bensenx/MoSheng/internal/verify"
	"github.com/bensenx/MoSheng/pkg/audio"
)

// DefaultSampleCount is the number of guided recording samples an enrollment
// expects.
const DefaultSampleCount = 3

// Result is the user-facing outcome of an enrollment attempt. Validation
// failures (inconsistent samples, model not ready) are expected, recoverable
// outcomes (the user re-records), so they are reported here rather than as
// errors. Errors are reserved for unexpected failures: encoder inference or
// storage I/O.
type Result struct {
	// OK reports whether enrollment completed and the centroid is active.
	OK bool

	// Message explains the outcome in terms the user can act on, naming the
	// offending sample pair on a consistency failure.
	Message string
}

// Manager drives the enrollment flow: embed each guided sample, cross-check
// every sample pair for speaker consistency, and persist the record
// atomically. On success the new centroid is activated on the verifier
// immediately, with no restart required.
type Manager struct {
	verifier    *verify.Verifier
	store       Store
	sampleCount int
	metrics     *observe.Metrics
}

// ManagerOption configures a [Manager].
type ManagerOption func(*Manager)

// WithSampleCount overrides the expected number of enrollment samples.
// Default: 3. Values below 2 are ignored (cross-validation needs pairs).
func WithSampleCount(n int) ManagerOption {
	return func(m *Manager) {
		if n >= 2 {
			m.sampleCount = n
		}
	}
}

// WithMetrics overrides the package-default metrics instance.
func WithMetrics(metrics *observe.Metrics) ManagerOption {
	return func(m *Manager) {
		if metrics != nil {
			m.metrics = metrics
		}
	}
}

// NewManager creates a Manager bound to the verifier whose encoder embeds
// the samples and whose centroid is replaced on success.
func NewManager(v *verify.Verifier, store Store, opts ...ManagerOption) *Manager {
	m := &Manager{
		verifier:    v,
		store:       store,
		sampleCount: DefaultSampleCount,
		metrics:     observe.DefaultMetrics(),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// SampleCount returns the number of samples an enrollment expects.
func (m *Manager) SampleCount() int { return m.sampleCount }

// Enroll validates and persists a new enrollment from the guided samples.
//
// The cross-validation deliberately checks every unordered pair, not just
// consecutive ones, so a single inconsistent sample among otherwise
// consistent ones is always caught. Storage is untouched unless every pair
// passes: a failed attempt can never clobber an existing enrollment.
func (m *Manager) Enroll(ctx context.Context, samples []audio.Buffer) (Result, error) {
	if !m.verifier.IsReady() {
		return Result{Message: "speaker model is not loaded; enable verification and try again"}, nil
	}
	if len(samples) != m.sampleCount {
		return Result{Message: fmt.Sprintf("expected %d samples, got %d", m.sampleCount, len(samples))}, nil
	}

	embeddings := make([][]float32, 0, len(samples))
	for i, sample := range samples {
		start := time.Now()
		emb, err := m.verifier.ExtractEmbedding(ctx, sample)
		m.metrics.EmbedDuration.Record(ctx, time.Since(start).Seconds())
		if err != nil {
			return Result{}, fmt.Errorf("enroll: embed sample %d: %w", i+1, err)
		}
		embeddings = append(embeddings, emb)
		slog.Info("enrollment sample embedded", "sample", i+1, "duration", sample.Duration())
	}

	threshold := m.verifier.GetThresholds().Accept
	for i := range embeddings {
		for j := i + 1; j < len(embeddings); j++ {
			sim := verify.Cosine(embeddings[i], embeddings[j])
			slog.Info("enrollment pairwise similarity", "i", i+1, "j", j+1, "similarity", sim)
			if sim < threshold {
				return Result{Message: fmt.Sprintf(
					"samples %d and %d sound too different (similarity %.2f, need at least %.2f); please re-record them",
					i+1, j+1, sim, threshold)}, nil
			}
		}
	}

	centroid := meanEmbedding(embeddings)

	rec := Record{
		ID:          uuid.NewString(),
		Embeddings:  embeddings,
		Centroid:    centroid,
		SampleCount: len(samples),
		CreatedAt:   time.Now().UTC(),
		Threshold:   threshold,
	}
	if err := m.store.Save(ctx, rec); err != nil {
		return Result{}, fmt.Errorf("enroll: save record: %w", err)
	}

	m.verifier.SetCentroid(centroid)
	slog.Info("speaker enrolled", "id", rec.ID, "samples", rec.SampleCount)
	return Result{OK: true, Message: "enrollment complete"}, nil
}

// meanEmbedding returns the element-wise mean of the embeddings.
func meanEmbedding(embeddings [][]float32) []float32 {
	if len(embeddings) == 0 {
		return nil
	}
	dim := len(embeddings[0])
	mean := make([]float32, dim)
	for _, emb := range embeddings {
		for i := 0; i < dim; i++ {
			mean[i] += emb[i]
		}
	}
	for i := range mean {
		mean[i] /= float32(len(embeddings))
	}
	return mean
}
