package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/bensenx/MoSheng/internal/enroll"
	"github.com/bensenx/MoSheng/internal/pipeline"
	"github.com/bensenx/MoSheng/internal/server"
	"github.com/bensenx/MoSheng/internal/verify"
	"github.com/bensenx/MoSheng/pkg/audio"
	speakermock "github.com/bensenx/MoSheng/pkg/provider/speaker/mock"
	sttmock "github.com/bensenx/MoSheng/pkg/provider/stt/mock"
)

// fixture wires a full server around mock providers.
type fixture struct {
	verifier *verify.Verifier
	enc      *speakermock.Encoder
	stt      *sttmock.Transcriber
	ts       *httptest.Server
}

func newFixture(t *testing.T, enrolled bool) *fixture {
	t.Helper()

	enc := &speakermock.Encoder{
		EncodeResult:    []float32{1, 0},
		ModelIDValue:    "test-encoder",
		DimensionsValue: 2,
	}
	v := verify.New(&speakermock.Opener{Enc: enc})
	if err := v.LoadModel(context.Background()); err != nil {
		t.Fatalf("LoadModel: %v", err)
	}
	if enrolled {
		v.SetCentroid([]float32{1, 0})
	}

	tr := &sttmock.Transcriber{TranscribeResult: "hello world"}
	store := enroll.NewFileStore(t.TempDir())
	manager := enroll.NewManager(v, store)
	pipe := pipeline.New(pipeline.NewGuard(v, nil), tr, nil)

	srv := server.New("127.0.0.1:0", v, manager, pipe, nil)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &fixture{verifier: v, enc: enc, stt: tr, ts: ts}
}

// wavBody encodes a one second tone as a WAV upload body.
func wavBody(t *testing.T, amp float32) []byte {
	t.Helper()
	samples := make([]float32, audio.DefaultSampleRate)
	for i := range samples {
		samples[i] = amp
	}
	data, err := audio.EncodeWAV(audio.Buffer{Samples: samples, SampleRate: audio.DefaultSampleRate})
	if err != nil {
		t.Fatalf("EncodeWAV: %v", err)
	}
	return data
}

func decodeJSON(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestHealthz(t *testing.T) {
	t.Parallel()
	f := newFixture(t, false)

	resp, err := http.Get(f.ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestStatus(t *testing.T) {
	t.Parallel()
	f := newFixture(t, true)

	resp, err := http.Get(f.ts.URL + "/v1/status")
	if err != nil {
		t.Fatalf("GET /v1/status: %v", err)
	}
	var got struct {
		State      string            `json:"state"`
		Enrolled   bool              `json:"enrolled"`
		ModelID    string            `json:"model_id"`
		Thresholds verify.Thresholds `json:"thresholds"`
	}
	decodeJSON(t, resp, &got)

	if got.State != "enrolled" || !got.Enrolled {
		t.Errorf("status = %+v, want enrolled", got)
	}
	if got.ModelID != "test-encoder" {
		t.Errorf("model_id = %q", got.ModelID)
	}
	if got.Thresholds != verify.DefaultThresholds() {
		t.Errorf("thresholds = %+v", got.Thresholds)
	}
}

func TestDictate(t *testing.T) {
	t.Parallel()
	f := newFixture(t, true)

	resp, err := http.Post(f.ts.URL+"/v1/dictate", "audio/wav", bytes.NewReader(wavBody(t, 0.1)))
	if err != nil {
		t.Fatalf("POST /v1/dictate: %v", err)
	}
	var out pipeline.Outcome
	decodeJSON(t, resp, &out)

	if out.State != pipeline.StateTranscribed || out.Text != "hello world" {
		t.Errorf("outcome = %+v", out)
	}
	if out.Path != verify.PathFastAccept {
		t.Errorf("path = %s", out.Path)
	}
}

// Uploads at foreign sample rates are resampled to the native 16 kHz before
// they reach any model.
func TestDictateResamplesInput(t *testing.T) {
	t.Parallel()
	f := newFixture(t, true)

	samples := make([]float32, 8000) // one second at 8 kHz
	for i := range samples {
		samples[i] = 0.1
	}
	data, err := audio.EncodeWAV(audio.Buffer{Samples: samples, SampleRate: 8000})
	if err != nil {
		t.Fatalf("EncodeWAV: %v", err)
	}

	resp, err := http.Post(f.ts.URL+"/v1/dictate", "audio/wav", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("POST /v1/dictate: %v", err)
	}
	var out pipeline.Outcome
	decodeJSON(t, resp, &out)
	if out.State != pipeline.StateTranscribed {
		t.Fatalf("state = %s", out.State)
	}

	if len(f.stt.TranscribeCalls) != 1 {
		t.Fatalf("transcriber called %d times", len(f.stt.TranscribeCalls))
	}
	got := f.stt.TranscribeCalls[0].Buf
	if got.SampleRate != audio.DefaultSampleRate {
		t.Errorf("transcriber sample rate = %d, want %d", got.SampleRate, audio.DefaultSampleRate)
	}
	if len(got.Samples) != audio.DefaultSampleRate {
		t.Errorf("transcriber received %d samples, want one second at 16 kHz", len(got.Samples))
	}
}

func TestDictateRejectsBadBody(t *testing.T) {
	t.Parallel()
	f := newFixture(t, true)

	resp, err := http.Post(f.ts.URL+"/v1/dictate", "audio/wav", strings.NewReader("not a wav"))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestVerifyEndpoint(t *testing.T) {
	t.Parallel()
	f := newFixture(t, true)

	resp, err := http.Post(f.ts.URL+"/v1/verify", "audio/wav", bytes.NewReader(wavBody(t, 0.1)))
	if err != nil {
		t.Fatalf("POST /v1/verify: %v", err)
	}
	var got struct {
		IsUser bool        `json:"is_user"`
		Score  float64     `json:"score"`
		Path   verify.Path `json:"path"`
	}
	decodeJSON(t, resp, &got)

	if !got.IsUser || got.Path != verify.PathFastAccept {
		t.Errorf("got %+v", got)
	}
	// The transcriber must not run for a verify-only request.
	if len(f.stt.TranscribeCalls) != 0 {
		t.Error("verify endpoint triggered transcription")
	}
}

func TestEnrollEndpoint(t *testing.T) {
	t.Parallel()
	f := newFixture(t, false)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for i := 0; i < 3; i++ {
		fw, err := mw.CreateFormFile("sample", fmt.Sprintf("sample-%d.wav", i+1))
		if err != nil {
			t.Fatal(err)
		}
		if _, err := fw.Write(wavBody(t, 0.1)); err != nil {
			t.Fatal(err)
		}
	}
	mw.Close()

	resp, err := http.Post(f.ts.URL+"/v1/enroll", mw.FormDataContentType(), &body)
	if err != nil {
		t.Fatalf("POST /v1/enroll: %v", err)
	}
	var got struct {
		OK      bool   `json:"ok"`
		Message string `json:"message"`
	}
	decodeJSON(t, resp, &got)

	if !got.OK {
		t.Fatalf("enroll rejected: %q", got.Message)
	}
	if !f.verifier.IsEnrolled() {
		t.Error("verifier not enrolled after successful request")
	}
}

func TestEnrollEndpointNoFiles(t *testing.T) {
	t.Parallel()
	f := newFixture(t, false)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	mw.Close()

	resp, err := http.Post(f.ts.URL+"/v1/enroll", mw.FormDataContentType(), &body)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestThresholdsUpdate(t *testing.T) {
	t.Parallel()
	f := newFixture(t, true)

	body := `{"threshold":0.3,"high_threshold":0.5,"low_threshold":0.1}`
	req, err := http.NewRequest(http.MethodPut, f.ts.URL+"/v1/thresholds", strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("PUT /v1/thresholds: %v", err)
	}
	var got verify.Thresholds
	decodeJSON(t, resp, &got)

	if got.Accept != 0.3 || got.High != 0.5 {
		t.Errorf("response thresholds = %+v", got)
	}
	if f.verifier.GetThresholds().Accept != 0.3 {
		t.Error("verifier thresholds not updated")
	}
}

func TestThresholdsRejectsInvalid(t *testing.T) {
	t.Parallel()
	f := newFixture(t, true)

	body := `{"threshold":0.5,"high_threshold":0.3,"low_threshold":0.1}`
	req, err := http.NewRequest(http.MethodPut, f.ts.URL+"/v1/thresholds", strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("PUT: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", resp.StatusCode)
	}
	if f.verifier.GetThresholds() != verify.DefaultThresholds() {
		t.Error("invalid update changed the live thresholds")
	}
}

func TestModelLifecycleEndpoints(t *testing.T) {
	t.Parallel()
	f := newFixture(t, true)

	resp, err := http.Post(f.ts.URL+"/v1/model/unload", "", nil)
	if err != nil {
		t.Fatalf("POST /v1/model/unload: %v", err)
	}
	var got map[string]string
	decodeJSON(t, resp, &got)
	if got["state"] != "unloaded" {
		t.Errorf("state = %q, want unloaded", got["state"])
	}

	resp, err = http.Post(f.ts.URL+"/v1/model/load", "", nil)
	if err != nil {
		t.Fatalf("POST /v1/model/load: %v", err)
	}
	decodeJSON(t, resp, &got)
	// The centroid survives the unload, so reload restores Enrolled.
	if got["state"] != "enrolled" {
		t.Errorf("state = %q, want enrolled", got["state"])
	}
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()
	f := newFixture(t, false)

	resp, err := http.Get(f.ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestStream(t *testing.T) {
	t.Parallel()
	f := newFixture(t, true)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(f.ts.URL, "http") + "/v1/stream"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	// One second of PCM16 audio split across two frames.
	samples := make([]float32, audio.DefaultSampleRate)
	for i := range samples {
		samples[i] = 0.1
	}
	pcm := audio.Float32ToPCM16(samples)
	half := len(pcm) / 2
	if err := conn.Write(ctx, websocket.MessageBinary, pcm[:half]); err != nil {
		t.Fatalf("write frame 1: %v", err)
	}
	if err := conn.Write(ctx, websocket.MessageBinary, pcm[half:]); err != nil {
		t.Fatalf("write frame 2: %v", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, []byte("stop")); err != nil {
		t.Fatalf("write stop: %v", err)
	}

	typ, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read result: %v", err)
	}
	if typ != websocket.MessageText {
		t.Fatalf("message type = %v", typ)
	}
	var got struct {
		Session string           `json:"session"`
		Outcome pipeline.Outcome `json:"outcome"`
	}
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal %q: %v", data, err)
	}
	if got.Session == "" {
		t.Error("missing session id")
	}
	if got.Outcome.State != pipeline.StateTranscribed || got.Outcome.Text != "hello world" {
		t.Errorf("outcome = %+v", got.Outcome)
	}
}

func TestStreamUnknownCommand(t *testing.T) {
	t.Parallel()
	f := newFixture(t, true)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(f.ts.URL, "http") + "/v1/stream"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	if err := conn.Write(ctx, websocket.MessageText, []byte("bogus")); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, _, err = conn.Read(ctx)
	if websocket.CloseStatus(err) != websocket.StatusUnsupportedData {
		t.Errorf("close status = %v, want unsupported data", err)
	}
}
