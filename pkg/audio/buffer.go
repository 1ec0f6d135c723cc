// Package audio provides the in-memory audio representation shared by the
// MoSheng pipeline: mono float32 sample buffers normalised to [-1.0, 1.0],
// plus PCM16 and WAV codecs and a linear resampler.
//
// The pipeline's native format is 16 kHz mono float32. Helpers in this
// package convert external inputs (little-endian PCM16 bytes, WAV blobs)
// into that format on ingest.
package audio

import (
	"math"
	"time"
)

// DefaultSampleRate is the pipeline's native sample rate in Hz. Every model
// in the pipeline (speaker encoder, VAD, whisper) consumes 16 kHz mono.
const DefaultSampleRate = 16000

// Buffer is a single mono utterance: float32 samples in [-1.0, 1.0] at a
// fixed sample rate. A Buffer is transient: it lives for the duration of
// one capture, verify, transcribe cycle and is never persisted.
type Buffer struct {
	Samples    []float32
	SampleRate int
}

// Duration returns the playback duration of the buffer.
func (b Buffer) Duration() time.Duration {
	if b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(len(b.Samples)) / float64(b.SampleRate) * float64(time.Second))
}

// RMS returns the root-mean-square energy of samples, or 0 for an empty slice.
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// PCM16ToFloat32 converts 16-bit signed little-endian PCM bytes to float32
// samples normalised to [-1.0, 1.0]. Any trailing odd byte is ignored.
func PCM16ToFloat32(pcm []byte) []float32 {
	n := len(pcm) / 2
	samples := make([]float32, n)
	for i := 0; i < n; i++ {
		sample := int16(uint16(pcm[i*2]) | uint16(pcm[i*2+1])<<8)
		samples[i] = float32(sample) / 32768.0
	}
	return samples
}

// Float32ToPCM16 converts float32 samples in [-1.0, 1.0] to 16-bit signed
// little-endian PCM bytes. Out-of-range samples are clamped.
func Float32ToPCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := s * 32768.0
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		sample := int16(v)
		out[i*2] = byte(sample)
		out[i*2+1] = byte(sample >> 8)
	}
	return out
}

// Resample converts samples from srcRate to dstRate using linear
// interpolation. If the rates match (or either is invalid) the input slice is
// returned unchanged.
func Resample(samples []float32, srcRate, dstRate int) []float32 {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || len(samples) < 2 {
		return samples
	}
	dstLen := int(int64(len(samples)) * int64(dstRate) / int64(srcRate))
	if dstLen == 0 {
		return nil
	}

	out := make([]float32, dstLen)
	ratio := float64(srcRate) / float64(dstRate)
	for i := 0; i < dstLen; i++ {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := float32(srcPos - float64(srcIdx))

		s0 := samples[srcIdx]
		s1 := s0
		if srcIdx+1 < len(samples) {
			s1 = samples[srcIdx+1]
		}
		out[i] = s0*(1-frac) + s1*frac
	}
	return out
}
