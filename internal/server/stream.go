package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"

	"github.com/bensenx/MoSheng/internal/observe"
	"github.com/bensenx/MoSheng/pkg/audio"
)

// streamIdleTimeout closes a stream that sends nothing for this long.
const streamIdleTimeout = 5 * time.Minute

// maxStreamSamples caps buffered audio per utterance (10 minutes at 16 kHz).
const maxStreamSamples = 10 * 60 * audio.DefaultSampleRate

// streamResult is the JSON message sent after each "stop" command.
type streamResult struct {
	Session string `json:"session"`
	Outcome any    `json:"outcome"`
}

// handleStream upgrades to WebSocket for push-to-talk dictation. The client
// sends binary frames of little-endian PCM16 at the configured sample rate
// while the hotkey is held, then the text command "stop" to run the
// pipeline on the accumulated utterance. "reset" discards the buffer and
// per-session text state. The connection stays open across utterances so a
// session can dictate progressively.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		observe.Logger(r.Context()).Warn("websocket accept failed", "err", err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "stream aborted")

	session := uuid.NewString()
	ctx := r.Context()
	log := observe.Logger(ctx).With("session", session)
	log.Info("stream opened")

	s.metrics.ActiveStreams.Add(ctx, 1)
	defer s.metrics.ActiveStreams.Add(ctx, -1)

	s.pipeline.ResetSession()
	var pcm []byte

	for {
		readCtx, cancel := context.WithTimeout(ctx, streamIdleTimeout)
		typ, data, err := conn.Read(readCtx)
		cancel()
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
				log.Info("stream closed")
			} else if !errors.Is(err, context.Canceled) {
				log.Warn("stream read failed", "err", err)
			}
			conn.Close(websocket.StatusNormalClosure, "")
			return
		}

		switch typ {
		case websocket.MessageBinary:
			if len(pcm)/2+len(data)/2 > maxStreamSamples {
				conn.Close(websocket.StatusMessageTooBig, "utterance too long")
				return
			}
			pcm = append(pcm, data...)

		case websocket.MessageText:
			switch strings.TrimSpace(string(data)) {
			case "stop":
				buf := audio.Buffer{
					Samples:    audio.PCM16ToFloat32(pcm),
					SampleRate: audio.DefaultSampleRate,
				}
				pcm = pcm[:0]

				out, err := s.pipeline.ProcessUtterance(ctx, buf)
				if err != nil {
					log.Error("stream utterance failed", "err", err)
					conn.Close(websocket.StatusInternalError, "pipeline failed")
					return
				}
				if err := wsjson.Write(ctx, conn, streamResult{Session: session, Outcome: out}); err != nil {
					log.Warn("stream write failed", "err", err)
					return
				}

			case "reset":
				pcm = pcm[:0]
				s.pipeline.ResetSession()

			default:
				conn.Close(websocket.StatusUnsupportedData, "unknown command")
				return
			}
		}
	}
}
