package verify

import "sort"

// span is a half-open sample interval [start, end).
type span struct {
	start, end int
}

// SpanMask accumulates sample intervals classified as user speech during the
// slow path. Marking is monotonic: once a sample is inside a marked span it
// stays marked, so an overlapping window's negative result can never erase a
// positive one. The mask is finalised by [SpanMask.Apply], which concatenates
// the marked samples in original time order.
type SpanMask struct {
	total int
	spans []span
}

// NewSpanMask creates a mask over a buffer of total samples.
func NewSpanMask(total int) *SpanMask {
	return &SpanMask{total: total}
}

// Mark adds the half-open interval [start, end), clamped to the buffer
// bounds. Overlapping and adjacent spans are merged.
func (m *SpanMask) Mark(start, end int) {
	if start < 0 {
		start = 0
	}
	if end > m.total {
		end = m.total
	}
	if start >= end {
		return
	}
	m.spans = append(m.spans, span{start: start, end: end})
	m.normalize()
}

// normalize sorts spans by start and merges overlaps.
func (m *SpanMask) normalize() {
	if len(m.spans) < 2 {
		return
	}
	sort.Slice(m.spans, func(i, j int) bool { return m.spans[i].start < m.spans[j].start })
	merged := m.spans[:1]
	for _, s := range m.spans[1:] {
		last := &merged[len(merged)-1]
		if s.start <= last.end {
			if s.end > last.end {
				last.end = s.end
			}
			continue
		}
		merged = append(merged, s)
	}
	m.spans = merged
}

// Any reports whether at least one sample is marked.
func (m *SpanMask) Any() bool {
	return len(m.spans) > 0
}

// MarkedSamples returns the total number of marked samples.
func (m *SpanMask) MarkedSamples() int {
	var n int
	for _, s := range m.spans {
		n += s.end - s.start
	}
	return n
}

// Contains reports whether sample index i is marked.
func (m *SpanMask) Contains(i int) bool {
	for _, s := range m.spans {
		if i >= s.start && i < s.end {
			return true
		}
	}
	return false
}

// Apply returns the concatenation of the marked samples in time order.
// Samples from disjoint spans are joined with no gap-filling. The result is
// a fresh slice; samples is not modified.
func (m *SpanMask) Apply(samples []float32) []float32 {
	out := make([]float32, 0, m.MarkedSamples())
	for _, s := range m.spans {
		end := s.end
		if end > len(samples) {
			end = len(samples)
		}
		if s.start < end {
			out = append(out, samples[s.start:end]...)
		}
	}
	return out
}
