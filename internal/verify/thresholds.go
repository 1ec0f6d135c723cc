package verify

import "fmt"

// Thresholds holds the three similarity cutoffs that drive the two-tier
// decision. All values are cosine similarities in [-1, 1].
type Thresholds struct {
	// Accept is the per-segment acceptance threshold used by the slow path and
	// by enrollment cross-validation.
	Accept float64 `yaml:"threshold" json:"threshold"`

	// High is the fast-path auto-accept cutoff: a whole-buffer similarity at
	// or above it accepts without segmentation.
	High float64 `yaml:"high_threshold" json:"high_threshold"`

	// Low is the fast-path auto-reject cutoff: a whole-buffer similarity at
	// or below it rejects without segmentation.
	Low float64 `yaml:"low_threshold" json:"low_threshold"`
}

// DefaultThresholds returns the stock configuration (0.25 / 0.40 / 0.10).
func DefaultThresholds() Thresholds {
	return Thresholds{Accept: 0.25, High: 0.40, Low: 0.10}
}

// Validate checks that the ordering Low ≤ Accept ≤ High holds and that every
// value is a valid cosine similarity. An inverted ordering would make the
// slow path inconsistent with the fast path (e.g., a score the fast path
// auto-rejects could pass per-segment checks), so it is rejected outright.
func (t Thresholds) Validate() error {
	for name, v := range map[string]float64{"threshold": t.Accept, "high_threshold": t.High, "low_threshold": t.Low} {
		if v < -1 || v > 1 {
			return fmt.Errorf("verify: %s %.3f is outside [-1, 1]", name, v)
		}
	}
	if t.Low > t.Accept {
		return fmt.Errorf("verify: low_threshold %.3f exceeds threshold %.3f", t.Low, t.Accept)
	}
	if t.Accept > t.High {
		return fmt.Errorf("verify: threshold %.3f exceeds high_threshold %.3f", t.Accept, t.High)
	}
	return nil
}
