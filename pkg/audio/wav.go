package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// DecodeWAV decodes a WAV blob into a mono [Buffer]. Multi-channel input is
// downmixed by averaging channels. The sample rate is taken from the WAV
// header; callers that need the pipeline's native rate should pass the result
// through [Resample].
func DecodeWAV(b []byte) (Buffer, error) {
	dec := wav.NewDecoder(bytes.NewReader(b))
	if !dec.IsValidFile() {
		return Buffer{}, errors.New("audio: not a valid wav file")
	}

	pcm, err := dec.FullPCMBuffer()
	if err != nil && err != io.EOF {
		return Buffer{}, fmt.Errorf("audio: decode wav: %w", err)
	}
	if pcm == nil || len(pcm.Data) == 0 {
		return Buffer{}, errors.New("audio: empty wav buffer")
	}

	bitDepth := pcm.SourceBitDepth
	if bitDepth <= 0 {
		bitDepth = 16
	}
	scale := float32(int(1) << (bitDepth - 1))

	channels := 1
	if pcm.Format != nil && pcm.Format.NumChannels > 1 {
		channels = pcm.Format.NumChannels
	}

	frames := len(pcm.Data) / channels
	samples := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float32
		for ch := 0; ch < channels; ch++ {
			sum += float32(pcm.Data[i*channels+ch]) / scale
		}
		samples[i] = sum / float32(channels)
	}

	rate := int(dec.SampleRate)
	if rate == 0 && pcm.Format != nil {
		rate = pcm.Format.SampleRate
	}
	if rate == 0 {
		rate = DefaultSampleRate
	}
	return Buffer{Samples: samples, SampleRate: rate}, nil
}

// EncodeWAV encodes a mono [Buffer] as a 16-bit PCM WAV blob.
func EncodeWAV(buf Buffer) ([]byte, error) {
	if buf.SampleRate <= 0 {
		return nil, errors.New("audio: encode wav: sample rate must be positive")
	}

	data := make([]int, len(buf.Samples))
	for i, s := range buf.Samples {
		v := s * 32768.0
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		data[i] = int(v)
	}

	var out seekableBuffer
	enc := wav.NewEncoder(&out, buf.SampleRate, 16, 1, 1)
	pcm := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: buf.SampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(pcm); err != nil {
		return nil, fmt.Errorf("audio: encode wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("audio: finalise wav: %w", err)
	}
	return out.data, nil
}

// seekableBuffer is a minimal in-memory io.WriteSeeker for the wav encoder,
// which seeks back to patch chunk sizes on Close.
type seekableBuffer struct {
	data []byte
	pos  int
}

func (b *seekableBuffer) Write(p []byte) (int, error) {
	if need := b.pos + len(p); need > len(b.data) {
		grown := make([]byte, need)
		copy(grown, b.data)
		b.data = grown
	}
	copy(b.data[b.pos:], p)
	b.pos += len(p)
	return len(p), nil
}

func (b *seekableBuffer) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = int64(b.pos) + offset
	case io.SeekEnd:
		abs = int64(len(b.data)) + offset
	default:
		return 0, errors.New("audio: invalid seek whence")
	}
	if abs < 0 {
		return 0, errors.New("audio: negative seek position")
	}
	b.pos = int(abs)
	return abs, nil
}
