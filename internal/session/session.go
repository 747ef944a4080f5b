package session

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/eleven-am/livescribe/internal/capture"
	"github.com/eleven-am/livescribe/internal/connection"
	"github.com/eleven-am/livescribe/internal/transcript"
	"github.com/google/uuid"
)

type Config struct {
	Connection connection.Config
	Capture    capture.Config
}

// Hooks are optional observer callbacks. They run on the connection's
// dispatch goroutine, so they must not block.
type Hooks struct {
	OnFragment        func(text string)
	OnConnectionState func(connected bool)
	OnTransportError  func(message string)
}

// Session ties one connection, one capture controller and one transcript
// together for the lifetime of a dictation run. Transcription fragments are
// folded into the transcript in arrival order; a fragment that fails to
// decode contributes empty text rather than aborting the stream.
type Session struct {
	ID string

	log        *slog.Logger
	conn       *connection.Manager
	recorder   *capture.Controller
	transcript *transcript.Accumulator
	hooks      Hooks

	closeOnce sync.Once
}

func New(cfg Config, device capture.Device, hooks Hooks, log *slog.Logger) *Session {
	if log == nil {
		log = slog.Default()
	}

	id := uuid.NewString()
	log = log.With("component", "session", "session_id", id)

	conn := connection.NewManager(cfg.Connection, log)
	s := &Session{
		ID:         id,
		log:        log,
		conn:       conn,
		recorder:   capture.NewController(cfg.Capture, device, conn, log),
		transcript: transcript.NewAccumulator(),
		hooks:      hooks,
	}

	conn.On(connection.EventTranscriptionResult, s.handleFragment)
	conn.On(connection.EventConnected, func(json.RawMessage) {
		s.log.Info("session connected")
		if s.hooks.OnConnectionState != nil {
			s.hooks.OnConnectionState(true)
		}
	})
	conn.On(connection.EventDisconnected, func(json.RawMessage) {
		s.log.Info("session disconnected")
		if s.hooks.OnConnectionState != nil {
			s.hooks.OnConnectionState(false)
		}
	})
	conn.On(connection.EventTransportError, func(payload json.RawMessage) {
		var details connection.ErrorDetails
		_ = json.Unmarshal(payload, &details)
		s.log.Error("transport error", "message", details.Message)
		if s.hooks.OnTransportError != nil {
			s.hooks.OnTransportError(details.Message)
		}
	})

	return s
}

func (s *Session) handleFragment(payload json.RawMessage) {
	var frag connection.Fragment
	if err := json.Unmarshal(payload, &frag); err != nil {
		s.log.Warn("malformed transcription fragment", "error", err)
		frag.Text = ""
	}

	s.transcript.Append(frag.Text)
	if s.hooks.OnFragment != nil {
		s.hooks.OnFragment(frag.Text)
	}
}

// Open dials the transcription service. It returns before the connection is
// established; the OnConnectionState hook reports the outcome.
func (s *Session) Open(ctx context.Context) error {
	return s.conn.Open(ctx)
}

// StartRecording opens the microphone and begins streaming. Recording is
// permitted while disconnected; chunks produced then are dropped.
func (s *Session) StartRecording(ctx context.Context) error {
	return s.recorder.Start(ctx)
}

func (s *Session) StopRecording() error {
	return s.recorder.Stop()
}

func (s *Session) IsRecording() bool {
	return s.recorder.IsRecording()
}

func (s *Session) IsConnected() bool {
	return s.conn.IsConnected()
}

// Transcript returns everything transcribed so far.
func (s *Session) Transcript() string {
	return s.transcript.String()
}

// Fragments returns the ordered transcription fragments received so far.
func (s *Session) Fragments() []string {
	return s.transcript.Fragments()
}

// Close stops any active recording and tears down the connection. Idempotent.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		_ = s.recorder.Stop()
		_ = s.conn.Close()
		s.log.Info("session closed")
	})
	return nil
}
