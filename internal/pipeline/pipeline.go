package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/bensenx/MoSheng/internal/observe"
	"github.com/bensenx/MoSheng/internal/textproc"
	"github.com/bensenx/MoSheng/internal/verify"
	"github.com/bensenx/MoSheng/pkg/audio"
	"github.com/bensenx/MoSheng/pkg/provider/stt"
	"github.com/bensenx/MoSheng/pkg/provider/vad"
)

// State is the user-visible outcome class of one utterance.
type State string

const (
	// StateTranscribed means the utterance produced text.
	StateTranscribed State = "transcribed"

	// StateTooShort means the utterance was below the minimum duration and
	// no inference ran.
	StateTooShort State = "too_short"

	// StateNoSpeech means the energy gate found no speech.
	StateNoSpeech State = "no_speech"

	// StateFiltered means verification rejected the audio as another
	// speaker. This is a normal outcome, not an error.
	StateFiltered State = "filtered"

	// StateEmpty means transcription or cleanup yielded no text.
	StateEmpty State = "empty"
)

// Outcome is the result of processing one utterance.
type Outcome struct {
	// Text is the final post-processed transcription. Empty unless State
	// is StateTranscribed.
	Text string `json:"text"`

	// State classifies the outcome.
	State State `json:"state"`

	// Score is the verification similarity score.
	Score float64 `json:"score"`

	// Path is the verification decision branch.
	Path verify.Path `json:"path"`
}

// DefaultMinDuration drops utterances shorter than this before any model
// runs. Accidental key taps produce buffers well under it.
const DefaultMinDuration = 300 * time.Millisecond

// Pipeline runs an utterance through gates, verification, transcription,
// and text cleanup. Safe for concurrent use; the underlying model calls
// serialise on their own locks.
type Pipeline struct {
	guard       *Guard
	transcriber stt.Transcriber
	detector    vad.Detector
	processor   *textproc.Processor
	vocabulary  *textproc.Vocabulary
	metrics     *observe.Metrics
	minDuration time.Duration
}

// Option configures a [Pipeline].
type Option func(*Pipeline)

// WithDetector installs a voice-activity gate. Without one the gate is
// skipped.
func WithDetector(d vad.Detector) Option {
	return func(p *Pipeline) { p.detector = d }
}

// WithVocabulary installs a phonetic vocabulary corrector.
func WithVocabulary(v *textproc.Vocabulary) Option {
	return func(p *Pipeline) { p.vocabulary = v }
}

// WithMinDuration overrides [DefaultMinDuration]. Zero disables the gate.
func WithMinDuration(d time.Duration) Option {
	return func(p *Pipeline) {
		if d >= 0 {
			p.minDuration = d
		}
	}
}

// WithMetrics overrides the package-default metrics instance.
func WithMetrics(m *observe.Metrics) Option {
	return func(p *Pipeline) {
		if m != nil {
			p.metrics = m
		}
	}
}

// New creates a Pipeline. guard and transcriber are required; processor may
// be nil to skip text cleanup.
func New(guard *Guard, transcriber stt.Transcriber, processor *textproc.Processor, opts ...Option) *Pipeline {
	p := &Pipeline{
		guard:       guard,
		transcriber: transcriber,
		processor:   processor,
		metrics:     observe.DefaultMetrics(),
		minDuration: DefaultMinDuration,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// ResetSession clears per-session text state. Call at recording start.
func (p *Pipeline) ResetSession() {
	if p.processor != nil {
		p.processor.ResetSession()
	}
}

// FinishSession returns the deferred sentence-final period, if any. Call
// once after the last segment of a progressive session.
func (p *Pipeline) FinishSession() string {
	if p.processor == nil {
		return ""
	}
	return p.processor.ConsumePendingPeriod()
}

// ProcessUtterance runs one utterance through the full pipeline.
//
// Filtered audio is a normal [Outcome], not an error. Errors are reserved
// for transcription failures; verification failures are absorbed by the
// fail-open guard upstream of this decision.
func (p *Pipeline) ProcessUtterance(ctx context.Context, buf audio.Buffer) (Outcome, error) {
	ctx, span := observe.StartSpan(ctx, "pipeline.ProcessUtterance")
	defer span.End()

	if p.minDuration > 0 && buf.Duration() < p.minDuration {
		return p.finish(ctx, Outcome{State: StateTooShort}), nil
	}

	if p.detector != nil && !p.detector.HasSpeech(buf) {
		return p.finish(ctx, Outcome{State: StateNoSpeech}), nil
	}

	verifyStart := time.Now()
	res := p.guard.Verify(ctx, buf)
	p.metrics.VerifyDuration.Record(ctx, time.Since(verifyStart).Seconds(),
		metric.WithAttributes(attribute.String("path", string(res.Path))))
	p.metrics.RecordDecision(ctx, string(res.Path))

	if !res.IsUser || res.Audio == nil || len(res.Audio.Samples) == 0 {
		return p.finish(ctx, Outcome{State: StateFiltered, Score: res.Score, Path: res.Path}), nil
	}

	sttStart := time.Now()
	raw, err := p.transcriber.Transcribe(ctx, *res.Audio)
	p.metrics.STTDuration.Record(ctx, time.Since(sttStart).Seconds())
	if err != nil {
		return Outcome{}, fmt.Errorf("pipeline: transcribe: %w", err)
	}

	text := raw
	if p.processor != nil {
		text = p.processor.Process(text)
	}
	if p.vocabulary != nil {
		text = p.vocabulary.Correct(text)
	}

	out := Outcome{Text: text, State: StateTranscribed, Score: res.Score, Path: res.Path}
	if text == "" {
		out.State = StateEmpty
	}
	return p.finish(ctx, out), nil
}

func (p *Pipeline) finish(ctx context.Context, out Outcome) Outcome {
	p.metrics.RecordUtterance(ctx, string(out.State))
	return out
}
