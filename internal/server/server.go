// Package server exposes the dictation pipeline over a local HTTP and
// WebSocket API. The daemon binds to loopback by default; clients are the
// capture frontend and operator tooling (curl, Prometheus).
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bensenx/MoSheng/internal/enroll"
	"github.com/bensenx/MoSheng/internal/observe"
	"github.com/bensenx/MoSheng/internal/pipeline"
	"github.com/bensenx/MoSheng/internal/verify"
	"github.com/bensenx/MoSheng/pkg/audio"
)

// maxBodyBytes caps uploaded audio. Two minutes of 16 kHz PCM16 WAV is
// under 4 MiB; 32 MiB leaves headroom for higher rates.
const maxBodyBytes = 32 << 20

// Server routes HTTP and WebSocket requests to the pipeline, verifier, and
// enrollment manager.
type Server struct {
	verifier *verify.Verifier
	manager  *enroll.Manager
	pipeline *pipeline.Pipeline
	metrics  *observe.Metrics

	httpSrv *http.Server
}

// New creates a Server listening on addr once [Server.ListenAndServe] is
// called.
func New(addr string, v *verify.Verifier, m *enroll.Manager, p *pipeline.Pipeline, metrics *observe.Metrics) *Server {
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	s := &Server{
		verifier: v,
		manager:  m,
		pipeline: p,
		metrics:  metrics,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /v1/status", s.handleStatus)
	mux.HandleFunc("POST /v1/dictate", s.handleDictate)
	mux.HandleFunc("POST /v1/verify", s.handleVerify)
	mux.HandleFunc("POST /v1/enroll", s.handleEnroll)
	mux.HandleFunc("PUT /v1/thresholds", s.handleThresholds)
	mux.HandleFunc("POST /v1/model/load", s.handleModelLoad)
	mux.HandleFunc("POST /v1/model/unload", s.handleModelUnload)
	mux.HandleFunc("GET /v1/stream", s.handleStream)
	mux.Handle("GET /metrics", promhttp.Handler())

	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           observe.Middleware(metrics)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the server's root handler, middleware included. Used by
// tests to serve from an ephemeral listener.
func (s *Server) Handler() http.Handler { return s.httpSrv.Handler }

// ListenAndServe blocks serving HTTP until Shutdown is called or the
// listener fails.
func (s *Server) ListenAndServe() error {
	slog.Info("http server listening", "addr", s.httpSrv.Addr)
	err := s.httpSrv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error { return s.httpSrv.Shutdown(ctx) }

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// statusResponse is the body of GET /v1/status.
type statusResponse struct {
	State      string            `json:"state"`
	Enrolled   bool              `json:"enrolled"`
	ModelID    string            `json:"model_id,omitempty"`
	Thresholds verify.Thresholds `json:"thresholds"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{
		State:      s.verifier.CurrentState().String(),
		Enrolled:   s.verifier.IsEnrolled(),
		ModelID:    s.verifier.ModelID(),
		Thresholds: s.verifier.GetThresholds(),
	})
}

func (s *Server) handleDictate(w http.ResponseWriter, r *http.Request) {
	buf, ok := s.readAudioBody(w, r)
	if !ok {
		return
	}
	out, err := s.pipeline.ProcessUtterance(r.Context(), buf)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// verifyResponse is the body of POST /v1/verify.
type verifyResponse struct {
	IsUser bool        `json:"is_user"`
	Score  float64     `json:"score"`
	Path   verify.Path `json:"path"`
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	buf, ok := s.readAudioBody(w, r)
	if !ok {
		return
	}
	res, err := s.verifier.Verify(r.Context(), buf)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, verifyResponse{IsUser: res.IsUser, Score: res.Score, Path: res.Path})
}

// enrollResponse is the body of POST /v1/enroll.
type enrollResponse struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

// handleEnroll accepts a multipart form with one WAV file per sample, field
// name "sample", in recording order.
func (s *Server) handleEnroll(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := r.ParseMultipartForm(maxBodyBytes); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("parse multipart form: %w", err))
		return
	}
	files := r.MultipartForm.File["sample"]
	if len(files) == 0 {
		writeError(w, http.StatusBadRequest, errors.New(`no "sample" files in form`))
		return
	}

	samples := make([]audio.Buffer, 0, len(files))
	for i, fh := range files {
		buf, err := readWAVPart(fh)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("sample %d: %w", i+1, err))
			return
		}
		samples = append(samples, buf)
	}

	res, err := s.manager.Enroll(r.Context(), samples)
	if err != nil {
		s.metrics.RecordEnrollAttempt(r.Context(), "error")
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	status := "ok"
	if !res.OK {
		status = "rejected"
	}
	s.metrics.RecordEnrollAttempt(r.Context(), status)
	writeJSON(w, http.StatusOK, enrollResponse{OK: res.OK, Message: res.Message})
}

func (s *Server) handleThresholds(w http.ResponseWriter, r *http.Request) {
	var t verify.Thresholds
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(&t); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode thresholds: %w", err))
		return
	}
	if err := s.verifier.SetThresholds(t); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	writeJSON(w, http.StatusOK, s.verifier.GetThresholds())
}

func (s *Server) handleModelLoad(w http.ResponseWriter, r *http.Request) {
	if err := s.verifier.LoadModel(r.Context()); err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"state": s.verifier.CurrentState().String()})
}

func (s *Server) handleModelUnload(w http.ResponseWriter, _ *http.Request) {
	if err := s.verifier.UnloadModel(); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"state": s.verifier.CurrentState().String()})
}

// readAudioBody reads a WAV request body into a Buffer at the pipeline's
// native sample rate, writing the error response itself on failure.
func (s *Server) readAudioBody(w http.ResponseWriter, r *http.Request) (audio.Buffer, bool) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("read body: %w", err))
		return audio.Buffer{}, false
	}
	buf, err := audio.DecodeWAV(data)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode wav: %w", err))
		return audio.Buffer{}, false
	}
	return toNativeRate(buf), true
}

func readWAVPart(fh *multipart.FileHeader) (audio.Buffer, error) {
	f, err := fh.Open()
	if err != nil {
		return audio.Buffer{}, fmt.Errorf("open part: %w", err)
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, maxBodyBytes))
	if err != nil {
		return audio.Buffer{}, fmt.Errorf("read part: %w", err)
	}
	buf, err := audio.DecodeWAV(data)
	if err != nil {
		return audio.Buffer{}, err
	}
	return toNativeRate(buf), nil
}

// toNativeRate resamples decoded audio to the pipeline's native rate. Every
// model downstream consumes 16 kHz mono.
func toNativeRate(buf audio.Buffer) audio.Buffer {
	if buf.SampleRate == audio.DefaultSampleRate {
		return buf
	}
	return audio.Buffer{
		Samples:    audio.Resample(buf.Samples, buf.SampleRate, audio.DefaultSampleRate),
		SampleRate: audio.DefaultSampleRate,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error":"encode response"}`, http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
