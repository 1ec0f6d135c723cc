// Package verify implements two-tier speaker verification: a fast
// whole-buffer embedding comparison, with a fallback to windowed
// segmentation when the fast score lands in the ambiguous zone between the
// auto-reject and auto-accept cutoffs.
//
// The Verifier is an explicit state machine (Unloaded, Loaded with model
// ready but nobody enrolled, Enrolled) driven by [Verifier.LoadModel],
// [Verifier.UnloadModel], and [Verifier.SetCentroid]. In the Unloaded and
// Loaded states Verify bypasses: it accepts everything unfiltered, so a
// misconfigured or not-yet-set-up installation never blocks dictation.
//
// Errors from the embedding encoder propagate out of Verify unmodified. The
// fail-open policy for those errors belongs to the caller (see the pipeline
// Guard), so it is decided exactly once, at the integration boundary.
package verify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bensenx/MoSheng/pkg/audio"
	"github.com/bensenx/MoSheng/pkg/provider/speaker"
)

// Slow-path segmentation parameters, applied to the pipeline's native
// 16 kHz buffers.
const (
	// WindowSeconds is the analysis window length.
	WindowSeconds = 2.0

	// HopSeconds is the window hop (50% overlap at the default window).
	HopSeconds = 1.0

	// MinTailSeconds is the minimum length of a trailing partial segment for
	// it to be analysed at all.
	MinTailSeconds = 0.5

	// SilenceRMSFloor is the RMS energy below which a window is skipped
	// without invoking the encoder. Near-silent windows waste inference time
	// and produce meaningless similarity scores.
	SilenceRMSFloor = 0.005
)

// ScoreNoSegments is the sentinel score reported when the slow path
// evaluated zero windows (every window under the silence floor and no
// qualifying tail). It lies below any valid cosine similarity so it can
// never be confused with a real score.
const ScoreNoSegments = -2.0

// State identifies the verifier's lifecycle state.
type State int

const (
	// StateUnloaded means no encoder model is loaded; Verify bypasses.
	StateUnloaded State = iota

	// StateLoaded means the encoder is ready but no speaker is enrolled;
	// Verify bypasses.
	StateLoaded

	// StateEnrolled means the encoder is ready and a centroid is active;
	// Verify performs real decisions.
	StateEnrolled
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateUnloaded:
		return "unloaded"
	case StateLoaded:
		return "loaded"
	case StateEnrolled:
		return "enrolled"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Path identifies which decision branch produced a [Result].
type Path string

const (
	// PathBypass means verification was skipped (model unloaded, nobody
	// enrolled, or the fail-open guard absorbed an error).
	PathBypass Path = "bypass"

	// PathFastAccept means the whole-buffer similarity reached the high
	// threshold.
	PathFastAccept Path = "fast_accept"

	// PathFastReject means the whole-buffer similarity fell to the low
	// threshold.
	PathFastReject Path = "fast_reject"

	// PathSlowAccept means windowed segmentation found user speech.
	PathSlowAccept Path = "slow_accept"

	// PathSlowReject means windowed segmentation found no user speech.
	PathSlowReject Path = "slow_reject"
)

// Result is the outcome of one Verify call. It is produced fresh per call
// and never persisted.
type Result struct {
	// Audio is the audio to forward to transcription: the original buffer on
	// accept/bypass, the concatenated user segments on slow-path accept, or
	// nil on reject.
	Audio *audio.Buffer

	// IsUser reports whether the enrolled user's speech was detected.
	IsUser bool

	// Score is the whole-buffer similarity (fast path) or the maximum
	// per-window similarity (slow path). 1.0 on bypass, [ScoreNoSegments]
	// when the slow path evaluated nothing.
	Score float64

	// Path identifies the decision branch taken.
	Path Path
}

// ErrNotReady is returned by embedding extraction when no encoder model is
// loaded.
var ErrNotReady = errors.New("verify: encoder model not loaded")

// Verifier decides whether captured audio was spoken by the enrolled user.
//
// All methods are safe for concurrent use. A single mutex serialises every
// call into the encoder: the model behind it is a shared, non-reentrant
// resource, and slow-path windows must be evaluated sequentially in time
// order anyway.
type Verifier struct {
	opener speaker.Opener

	mu         sync.Mutex
	enc        speaker.Encoder
	centroid   []float32
	thresholds Thresholds
}

// New creates a Verifier in the Unloaded state. The opener is invoked by
// [Verifier.LoadModel]; thresholds start at [DefaultThresholds].
func New(opener speaker.Opener) *Verifier {
	return &Verifier{
		opener:     opener,
		thresholds: DefaultThresholds(),
	}
}

// LoadModel loads the encoder model. It is idempotent: loading while already
// loaded is a no-op. Model loading is the one expensive lifecycle operation;
// the loaded encoder is reused by every subsequent call.
func (v *Verifier) LoadModel(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.enc != nil {
		return nil
	}
	enc, err := v.opener.Open(ctx)
	if err != nil {
		return fmt.Errorf("verify: load encoder model: %w", err)
	}
	v.enc = enc
	slog.Info("speaker encoder loaded", "model", enc.ModelID(), "dimensions", enc.Dimensions())
	return nil
}

// UnloadModel releases the encoder model. The enrolled centroid is kept, so
// a later LoadModel returns the verifier to the Enrolled state.
func (v *Verifier) UnloadModel() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.enc == nil {
		return nil
	}
	err := v.enc.Close()
	v.enc = nil
	if err != nil {
		return fmt.Errorf("verify: unload encoder model: %w", err)
	}
	slog.Info("speaker encoder unloaded")
	return nil
}

// IsReady reports whether an encoder model is loaded.
func (v *Verifier) IsReady() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.enc != nil
}

// IsEnrolled reports whether a speaker centroid is active.
func (v *Verifier) IsEnrolled() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.centroid != nil
}

// CurrentState returns the verifier's lifecycle state.
func (v *Verifier) CurrentState() State {
	v.mu.Lock()
	defer v.mu.Unlock()
	switch {
	case v.enc == nil:
		return StateUnloaded
	case v.centroid == nil:
		return StateLoaded
	default:
		return StateEnrolled
	}
}

// ModelID returns the loaded encoder's model identifier, or "" when unloaded.
func (v *Verifier) ModelID() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.enc == nil {
		return ""
	}
	return v.enc.ModelID()
}

// SetThresholds replaces the similarity thresholds. The new values take
// effect on the next Verify call; no restart is required. Invalid
// combinations (ordering violated, out of range) are rejected and the
// previous values stay active.
func (v *Verifier) SetThresholds(t Thresholds) error {
	if err := t.Validate(); err != nil {
		return err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.thresholds = t
	return nil
}

// GetThresholds returns the active thresholds.
func (v *Verifier) GetThresholds() Thresholds {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.thresholds
}

// SetCentroid activates a new enrolled centroid. A copy is stored; passing
// nil clears the enrollment.
func (v *Verifier) SetCentroid(centroid []float32) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if centroid == nil {
		v.centroid = nil
		return
	}
	v.centroid = make([]float32, len(centroid))
	copy(v.centroid, centroid)
}

// ExtractEmbedding computes a speaker embedding for the whole buffer. It
// returns [ErrNotReady] when no model is loaded. Enrollment uses this to
// embed its reference samples through the same shared encoder.
func (v *Verifier) ExtractEmbedding(ctx context.Context, buf audio.Buffer) ([]float32, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.extractLocked(ctx, buf.Samples, buf.SampleRate)
}

// extractLocked invokes the encoder. Callers must hold v.mu.
func (v *Verifier) extractLocked(ctx context.Context, samples []float32, sampleRate int) ([]float32, error) {
	if v.enc == nil {
		return nil, ErrNotReady
	}
	return v.enc.Encode(ctx, samples, sampleRate)
}

// Verify runs the two-tier decision over one captured utterance.
//
// Not ready or not enrolled → bypass (accept unfiltered, score 1.0).
// Otherwise the whole-buffer similarity is compared against the high/low
// cutoffs; scores strictly between them fall through to windowed
// segmentation. Encoder failures propagate as errors.
func (v *Verifier) Verify(ctx context.Context, buf audio.Buffer) (Result, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.enc == nil || v.centroid == nil {
		return Result{Audio: &buf, IsUser: true, Score: 1.0, Path: PathBypass}, nil
	}

	th := v.thresholds

	emb, err := v.extractLocked(ctx, buf.Samples, buf.SampleRate)
	if err != nil {
		return Result{}, fmt.Errorf("verify: fast path embedding: %w", err)
	}
	score := Cosine(emb, v.centroid)
	slog.Debug("verify fast path",
		"score", score, "high", th.High, "low", th.Low)

	if score >= th.High {
		return Result{Audio: &buf, IsUser: true, Score: score, Path: PathFastAccept}, nil
	}
	if score <= th.Low {
		return Result{IsUser: false, Score: score, Path: PathFastReject}, nil
	}

	slog.Debug("verify entering slow path", "score", score)
	return v.slowPathLocked(ctx, buf, th)
}

// slowPathLocked performs windowed segmentation: overlapping fixed windows
// are scored against the centroid, windows at or above the per-segment
// threshold mark their span as user speech, and the marked samples are
// concatenated as the filtered output. Callers must hold v.mu.
func (v *Verifier) slowPathLocked(ctx context.Context, buf audio.Buffer, th Thresholds) (Result, error) {
	windowSamples := int(WindowSeconds * float64(buf.SampleRate))
	hopSamples := int(HopSeconds * float64(buf.SampleRate))
	minTailSamples := int(MinTailSeconds * float64(buf.SampleRate))
	total := len(buf.Samples)

	if total < windowSamples {
		// Too short for windowed analysis: single whole-buffer check against
		// the per-segment threshold.
		emb, err := v.extractLocked(ctx, buf.Samples, buf.SampleRate)
		if err != nil {
			return Result{}, fmt.Errorf("verify: slow path embedding: %w", err)
		}
		score := Cosine(emb, v.centroid)
		if score >= th.Accept {
			return Result{Audio: &buf, IsUser: true, Score: score, Path: PathSlowAccept}, nil
		}
		return Result{IsUser: false, Score: score, Path: PathSlowReject}, nil
	}

	mask := NewSpanMask(total)
	maxScore := ScoreNoSegments

	lastEnd := 0
	for pos := 0; pos+windowSamples <= total; pos += hopSamples {
		lastEnd = pos + windowSamples
		window := buf.Samples[pos:lastEnd]

		rms := audio.RMS(window)
		if rms < SilenceRMSFloor {
			continue
		}

		emb, err := v.extractLocked(ctx, window, buf.SampleRate)
		if err != nil {
			return Result{}, fmt.Errorf("verify: window embedding at sample %d: %w", pos, err)
		}
		score := Cosine(emb, v.centroid)
		slog.Debug("verify slow path window",
			"start", pos, "end", lastEnd, "score", score, "rms", rms)

		if score >= th.Accept {
			mask.Mark(pos, lastEnd)
		}
		maxScore = max(maxScore, score)
	}

	// Remainder past the last full window, if long enough to carry speaker
	// identity.
	if total-lastEnd >= minTailSamples {
		tail := buf.Samples[lastEnd:]
		if audio.RMS(tail) >= SilenceRMSFloor {
			emb, err := v.extractLocked(ctx, tail, buf.SampleRate)
			if err != nil {
				return Result{}, fmt.Errorf("verify: tail embedding at sample %d: %w", lastEnd, err)
			}
			score := Cosine(emb, v.centroid)
			if score >= th.Accept {
				mask.Mark(lastEnd, total)
			}
			maxScore = max(maxScore, score)
		}
	}

	if mask.Any() {
		filtered := mask.Apply(buf.Samples)
		slog.Debug("verify slow path accepted",
			"kept_samples", len(filtered), "total_samples", total, "max_score", maxScore)
		return Result{
			Audio:  &audio.Buffer{Samples: filtered, SampleRate: buf.SampleRate},
			IsUser: true,
			Score:  maxScore,
			Path:   PathSlowAccept,
		}, nil
	}

	slog.Debug("verify slow path rejected", "max_score", maxScore)
	return Result{IsUser: false, Score: maxScore, Path: PathSlowReject}, nil
}
