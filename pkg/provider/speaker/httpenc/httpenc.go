// Package httpenc implements speaker.Encoder against a local embedding
// sidecar over HTTP.
//
// The sidecar owns the actual speaker model (typically a Python process
// serving an ECAPA-TDNN encoder) and exposes two endpoints:
//
//	POST /v1/embed?sample_rate=16000   raw little-endian PCM16 body
//	                                   → {"embedding": [...], "model": "..."}
//	GET  /v1/info                      → {"model": "...", "dimensions": 192}
//
// Open probes /v1/info so that model identity and vector dimensionality are
// known before the first Encode call, and so that a missing sidecar surfaces
// as a load failure rather than a per-utterance error.
package httpenc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/bensenx/MoSheng/pkg/audio"
	"github.com/bensenx/MoSheng/pkg/provider/speaker"
)

const (
	defaultBaseURL = "http://127.0.0.1:8237"
	defaultTimeout = 30 * time.Second
)

// Opener creates encoders bound to a sidecar endpoint. It implements
// [speaker.Opener].
type Opener struct {
	baseURL string
	client  *http.Client
}

// Option is a functional option for configuring an [Opener].
type Option func(*Opener)

// WithBaseURL overrides the sidecar base URL. Default: http://127.0.0.1:8237.
func WithBaseURL(url string) Option {
	return func(o *Opener) {
		if url != "" {
			o.baseURL = url
		}
	}
}

// WithHTTPClient replaces the HTTP client used for all requests. Useful in
// tests and for custom timeouts.
func WithHTTPClient(c *http.Client) Option {
	return func(o *Opener) {
		if c != nil {
			o.client = c
		}
	}
}

// NewOpener returns an [Opener] configured with the supplied options.
func NewOpener(opts ...Option) *Opener {
	o := &Opener{
		baseURL: defaultBaseURL,
		client:  &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Open probes the sidecar's /v1/info endpoint and returns a ready Encoder.
func (o *Opener) Open(ctx context.Context) (speaker.Encoder, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+"/v1/info", nil)
	if err != nil {
		return nil, fmt.Errorf("httpenc: build info request: %w", err)
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("httpenc: probe encoder sidecar: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("httpenc: sidecar info returned status %d", resp.StatusCode)
	}

	var info struct {
		Model      string `json:"model"`
		Dimensions int    `json:"dimensions"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("httpenc: decode sidecar info: %w", err)
	}
	if info.Dimensions <= 0 {
		return nil, fmt.Errorf("httpenc: sidecar reported invalid dimensions %d", info.Dimensions)
	}

	return &encoder{
		baseURL:    o.baseURL,
		client:     o.client,
		modelID:    info.Model,
		dimensions: info.Dimensions,
	}, nil
}

// encoder is a live connection to the embedding sidecar.
type encoder struct {
	baseURL    string
	client     *http.Client
	modelID    string
	dimensions int
	closed     bool
}

var errClosed = errors.New("httpenc: encoder is closed")

// Encode submits the waveform as PCM16 and returns the embedding vector.
func (e *encoder) Encode(ctx context.Context, samples []float32, sampleRate int) ([]float32, error) {
	if e.closed {
		return nil, errClosed
	}
	if len(samples) == 0 {
		return nil, errors.New("httpenc: empty waveform")
	}

	body := audio.Float32ToPCM16(samples)
	url := e.baseURL + "/v1/embed?sample_rate=" + strconv.Itoa(sampleRate)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("httpenc: build embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("httpenc: embed request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("httpenc: embed returned status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	var out struct {
		Embedding []float32 `json:"embedding"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("httpenc: decode embedding: %w", err)
	}
	if len(out.Embedding) != e.dimensions {
		return nil, fmt.Errorf("httpenc: embedding has %d dimensions, want %d", len(out.Embedding), e.dimensions)
	}
	return out.Embedding, nil
}

// Dimensions returns the vector length reported by the sidecar at Open time.
func (e *encoder) Dimensions() int { return e.dimensions }

// ModelID returns the model identifier reported by the sidecar.
func (e *encoder) ModelID() string { return e.modelID }

// Close marks the encoder unusable. The sidecar process itself is managed
// externally; there is no remote state to release.
func (e *encoder) Close() error {
	e.closed = true
	return nil
}

// Compile-time interface checks.
var (
	_ speaker.Opener  = (*Opener)(nil)
	_ speaker.Encoder = (*encoder)(nil)
)
