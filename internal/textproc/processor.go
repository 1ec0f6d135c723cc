package textproc

import (
	"strings"
	"sync"
)

// Processor is the stateful wrapper around [Clean] used for progressive
// dictation, where an utterance arrives as several ASR segments.
//
// Each segment's trailing period is deferred: it is stripped and remembered,
// and if another segment follows in the same session it turns into a joining
// comma, so mid-dictation pauses do not produce sentence breaks. The last
// pending period is injected once when the session ends, via
// [Processor.ConsumePendingPeriod].
//
// Safe for concurrent use, though segments are expected to arrive in order.
type Processor struct {
	mu            sync.Mutex
	opts          Options
	pendingPeriod string // "。" or "." from the previous segment, or ""
}

// NewProcessor creates a Processor with the given options.
func NewProcessor(opts Options) *Processor {
	return &Processor{opts: opts}
}

// Update changes the options without recreating the processor. Takes effect
// on the next Process call.
func (p *Processor) Update(opts Options) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.opts = opts
}

// ResetSession clears the deferred period. Call at recording start so no
// punctuation carries over between sessions.
func (p *Processor) ResetSession() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pendingPeriod = ""
}

// PendingPeriod returns the period deferred from the last processed segment,
// without consuming it.
func (p *Processor) PendingPeriod() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pendingPeriod
}

// ConsumePendingPeriod returns and clears the deferred period. Call after
// session end to inject the final period.
func (p *Processor) ConsumePendingPeriod() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	period := p.pendingPeriod
	p.pendingPeriod = ""
	return period
}

// ProcessSimple cleans one standalone segment without deferred-period
// handling. Used in push-to-talk mode where every recording is independent.
func (p *Processor) ProcessSimple(text string) string {
	p.mu.Lock()
	opts := p.opts
	p.mu.Unlock()
	return Clean(text, opts)
}

// Process cleans one segment of a progressive session, applying the
// deferred-period logic described on the type.
func (p *Processor) Process(text string) string {
	p.mu.Lock()
	defer p.mu.Unlock()

	result := Clean(text, p.opts)

	if !p.opts.SmartPunctuation {
		return result
	}
	if result == "" {
		// Pure filler: keep the existing pending period unchanged.
		return result
	}

	var newPending string
	switch {
	case strings.HasSuffix(result, "。"):
		result = strings.TrimSuffix(result, "。")
		newPending = "。"
	case strings.HasSuffix(result, "."):
		result = strings.TrimSuffix(result, ".")
		newPending = "."
	}

	if p.pendingPeriod != "" && result != "" {
		result = "，" + result
	}
	p.pendingPeriod = newPending
	return result
}
