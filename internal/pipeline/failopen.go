// Package pipeline assembles the dictation flow: pre-inference gates,
// speaker verification behind a fail-open guard, transcription, and text
// post-processing.
package pipeline

import (
	"context"
	"log/slog"

	"github.com/bensenx/MoSheng/internal/observe"
	"github.com/bensenx/MoSheng/internal/verify"
	"github.com/bensenx/MoSheng/pkg/audio"
)

// Guard is the single fail-open boundary around speaker verification.
//
// Dictation must keep working when verification breaks: a crashed encoder
// sidecar or a corrupt enrollment must never cost the user their words.
// Guard.Verify therefore never returns an error. Any error from the wrapped
// Verifier is logged, counted, and converted into a pass-through result
// that carries the original audio. The distinction between a healthy bypass
// and an absorbed error survives only in logs and the fail-open counter.
type Guard struct {
	verifier *verify.Verifier
	metrics  *observe.Metrics
}

// NewGuard wraps v. A nil metrics falls back to the package default.
func NewGuard(v *verify.Verifier, metrics *observe.Metrics) *Guard {
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &Guard{verifier: v, metrics: metrics}
}

// Verify runs speaker verification and absorbs any failure into a
// pass-through result.
func (g *Guard) Verify(ctx context.Context, buf audio.Buffer) verify.Result {
	res, err := g.verifier.Verify(ctx, buf)
	if err != nil {
		observe.Logger(ctx).Warn("verification failed, passing audio through unfiltered",
			"err", err,
			"duration_s", buf.Duration().Seconds(),
		)
		g.metrics.FailOpens.Add(ctx, 1)
		return verify.Result{Audio: &buf, IsUser: true, Score: 1.0, Path: verify.PathBypass}
	}
	if res.Path == verify.PathBypass {
		slog.Debug("verification bypassed", "state", g.verifier.CurrentState())
	}
	return res
}
