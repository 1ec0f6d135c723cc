// Package textproc post-processes raw ASR output before it reaches the
// user: filler-word removal for Chinese and English, punctuation artifact
// cleanup, deferred sentence-final periods for progressive dictation, and
// phonetic vocabulary correction for user-specific terms.
package textproc

import (
	"regexp"
	"strings"
)

// Go's regexp has no lookbehind, so the clause-opener and sandwiched-particle
// patterns capture their surrounding punctuation and restore it in the
// replacement instead.
var (
	// Standalone utterances that should produce no output at all.
	reStandaloneZh = regexp.MustCompile(`^\s*[嗯呃哦唔啊哎呦]*[，,、\s]*[嗯呃哦唔啊哎呦，,、\s]*\s*$`)
	reStandaloneEn = regexp.MustCompile(`(?i)^\s*(um+|uh+|hmm+|mm+|er+)[,.]?\s*$`)

	// Stuttering repeated filler phrases.
	reStutter = regexp.MustCompile(`(那个|然后|就是|这个){2,}`)

	// Clause-opener filler at start of text or after punctuation.
	reClauseOpener = regexp.MustCompile(`(^|[，。！？；：、,.!?;:])\s*就是说[，,]?\s*`)

	// Single-char particles at boundaries and sandwiched between punctuation.
	reParticleStart   = regexp.MustCompile(`^[嗯呃哦唔啊呦]+[，,]?\s*`)
	reParticleEnd     = regexp.MustCompile(`\s*[，,]?[嗯呃哦唔啊呦]+$`)
	reParticleBetween = regexp.MustCompile(`([，。！？；：、,.!?;:])\s*[嗯呃哦唔啊呦]+\s*([，。！？；：、,.!?;:])`)

	// Interjections at start or end only.
	reInterjectionStart = regexp.MustCompile(`^(哎呀|哎哟|哎|呐)[，,]?\s*`)
	reInterjectionEnd   = regexp.MustCompile(`\s*[，,]?(哎呀|哎哟|哎|呐)$`)

	// End-of-utterance softeners (trailing only).
	reSoftenerEnd = regexp.MustCompile(`[啦嘛呗]+$`)

	// English fillers at the start or sandwiched between commas.
	reEnFillerStart = regexp.MustCompile(`(?i)^(um+|uh+|hmm+|mm+|er+)[,\s]+`)
	reEnFillerMid   = regexp.MustCompile(`(?i),\s*(um+|uh+|hmm+|mm+|er+)\s*,`)

	// Punctuation artifacts left behind by filler removal.
	reDoubleComma   = regexp.MustCompile(`[，,]{2,}`)
	reLeadingComma  = regexp.MustCompile(`^[，,]\s*`)
	reTrailingComma = regexp.MustCompile(`\s*[，,]$`)
	reDoublePeriod  = regexp.MustCompile(`。{2,}`)
)

// Options control which cleanup stages [Clean] applies.
type Options struct {
	// RemoveFillers strips filler words and particles.
	RemoveFillers bool

	// SmartPunctuation normalises punctuation artifacts. The deferred-period
	// logic in [Processor] additionally requires this to be enabled.
	SmartPunctuation bool
}

// DefaultOptions enables every cleanup stage.
func DefaultOptions() Options {
	return Options{RemoveFillers: true, SmartPunctuation: true}
}

// Clean post-processes one segment of raw ASR text. It returns the empty
// string when the text is pure filler with no meaningful content. Trailing
// periods are NOT stripped here; [Processor.Process] owns the
// deferred-period logic.
func Clean(text string, opts Options) string {
	if text == "" {
		return text
	}
	t := strings.TrimSpace(text)

	if opts.RemoveFillers {
		if reStandaloneEn.MatchString(t) || reStandaloneZh.MatchString(t) {
			return ""
		}

		t = reEnFillerStart.ReplaceAllString(t, "")
		t = reEnFillerMid.ReplaceAllString(t, ",")
		t = reStutter.ReplaceAllString(t, "")
		t = reClauseOpener.ReplaceAllString(t, "$1")
		t = reSoftenerEnd.ReplaceAllString(t, "")
		t = reInterjectionStart.ReplaceAllString(t, "")
		t = reInterjectionEnd.ReplaceAllString(t, "")
		t = reParticleBetween.ReplaceAllString(t, "${1}，${2}")
		t = reParticleStart.ReplaceAllString(t, "")
		t = reParticleEnd.ReplaceAllString(t, "")
	}

	if opts.SmartPunctuation {
		t = reDoublePeriod.ReplaceAllString(t, "。")
	}

	if opts.RemoveFillers {
		t = reDoubleComma.ReplaceAllString(t, "，")
		t = reLeadingComma.ReplaceAllString(t, "")
		t = reTrailingComma.ReplaceAllString(t, "")
	}

	return strings.TrimSpace(t)
}
