package httpenc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bensenx/MoSheng/pkg/audio"
)

// fakeSidecar serves /v1/info and /v1/embed the way the embedding sidecar
// does, recording the PCM payloads it receives.
type fakeSidecar struct {
	model      string
	dimensions int
	embedding  []float32

	embedCalls []embedCall
}

type embedCall struct {
	sampleRate  string
	payloadSize int64
}

func (f *fakeSidecar) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/info", func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"model":      f.model,
			"dimensions": f.dimensions,
		})
	})
	mux.HandleFunc("POST /v1/embed", func(w http.ResponseWriter, r *http.Request) {
		f.embedCalls = append(f.embedCalls, embedCall{
			sampleRate:  r.URL.Query().Get("sample_rate"),
			payloadSize: r.ContentLength,
		})
		json.NewEncoder(w).Encode(map[string]any{
			"embedding": f.embedding,
			"model":     f.model,
		})
	})
	return mux
}

func newSidecar(t *testing.T) (*fakeSidecar, *httptest.Server) {
	t.Helper()
	f := &fakeSidecar{
		model:      "ecapa-tdnn",
		dimensions: 3,
		embedding:  []float32{0.1, 0.2, 0.3},
	}
	ts := httptest.NewServer(f.handler())
	t.Cleanup(ts.Close)
	return f, ts
}

func TestOpenProbesInfo(t *testing.T) {
	t.Parallel()
	_, ts := newSidecar(t)

	enc, err := NewOpener(WithBaseURL(ts.URL)).Open(context.Background())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer enc.Close()

	if enc.ModelID() != "ecapa-tdnn" {
		t.Errorf("ModelID() = %q", enc.ModelID())
	}
	if enc.Dimensions() != 3 {
		t.Errorf("Dimensions() = %d, want 3", enc.Dimensions())
	}
}

func TestOpenFailsWhenSidecarDown(t *testing.T) {
	t.Parallel()

	// A closed listener: connection refused at Open time, not at Encode time.
	ts := httptest.NewServer(http.NotFoundHandler())
	ts.Close()

	if _, err := NewOpener(WithBaseURL(ts.URL)).Open(context.Background()); err == nil {
		t.Fatal("Open succeeded against a dead sidecar")
	}
}

func TestEncode(t *testing.T) {
	t.Parallel()
	sidecar, ts := newSidecar(t)

	enc, err := NewOpener(WithBaseURL(ts.URL)).Open(context.Background())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer enc.Close()

	samples := make([]float32, audio.DefaultSampleRate)
	emb, err := enc.Encode(context.Background(), samples, audio.DefaultSampleRate)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(emb) != 3 || emb[0] != 0.1 {
		t.Errorf("embedding = %v", emb)
	}

	if len(sidecar.embedCalls) != 1 {
		t.Fatalf("sidecar received %d embed calls, want 1", len(sidecar.embedCalls))
	}
	call := sidecar.embedCalls[0]
	if call.sampleRate != "16000" {
		t.Errorf("sample_rate = %q, want 16000", call.sampleRate)
	}
	// PCM16 payload: two bytes per sample.
	if call.payloadSize != int64(len(samples)*2) {
		t.Errorf("payload = %d bytes, want %d", call.payloadSize, len(samples)*2)
	}
}

func TestEncodeRejectsDimensionMismatch(t *testing.T) {
	t.Parallel()
	sidecar, ts := newSidecar(t)
	sidecar.embedding = []float32{0.1} // shorter than the advertised 3

	enc, err := NewOpener(WithBaseURL(ts.URL)).Open(context.Background())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer enc.Close()

	if _, err := enc.Encode(context.Background(), []float32{0.1, 0.2}, audio.DefaultSampleRate); err == nil {
		t.Error("dimension mismatch accepted")
	}
}

func TestEncodeRejectsEmptyWaveform(t *testing.T) {
	t.Parallel()
	_, ts := newSidecar(t)

	enc, err := NewOpener(WithBaseURL(ts.URL)).Open(context.Background())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer enc.Close()

	if _, err := enc.Encode(context.Background(), nil, audio.DefaultSampleRate); err == nil {
		t.Error("empty waveform accepted")
	}
}

func TestEncodeAfterClose(t *testing.T) {
	t.Parallel()
	_, ts := newSidecar(t)

	enc, err := NewOpener(WithBaseURL(ts.URL)).Open(context.Background())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	enc.Close()

	if _, err := enc.Encode(context.Background(), []float32{0.1}, audio.DefaultSampleRate); err == nil {
		t.Error("Encode succeeded on a closed encoder")
	}
}

func TestOpenRejectsBadInfo(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"model": "x", "dimensions": 0})
	}))
	t.Cleanup(ts.Close)

	if _, err := NewOpener(WithBaseURL(ts.URL)).Open(context.Background()); err == nil {
		t.Error("zero dimensions accepted")
	}
}
