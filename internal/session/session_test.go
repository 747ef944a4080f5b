package session

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/eleven-am/livescribe/internal/audio"
	"github.com/eleven-am/livescribe/internal/capture"
	"github.com/eleven-am/livescribe/internal/connection"
	"github.com/gorilla/websocket"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type fakeStream struct {
	mu     sync.Mutex
	data   []byte
	closed chan struct{}
	once   sync.Once
}

func (s *fakeStream) Read(buf []byte) (int, error) {
	s.mu.Lock()
	if len(s.data) > 0 {
		n := copy(buf, s.data)
		s.data = s.data[n:]
		s.mu.Unlock()
		return n, nil
	}
	s.mu.Unlock()
	<-s.closed
	return 0, io.EOF
}

func (s *fakeStream) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

type fakeDevice struct {
	pcm []byte
}

func (d *fakeDevice) Open(ctx context.Context, cfg capture.StreamConfig) (capture.Stream, error) {
	return &fakeStream{data: d.pcm, closed: make(chan struct{})}, nil
}

func tone(samples int) []byte {
	pcm := make([]int16, samples)
	for i := range pcm {
		pcm[i] = int16((i % 64) * 100)
	}
	return audio.Int16ToPCMBytes(pcm)
}

// transcribeEachChunk answers every binary frame with one canned fragment.
func transcribeEachChunk(fragments []string) func(ws *websocket.Conn) {
	return func(ws *websocket.Conn) {
		i := 0
		for {
			msgType, _, err := ws.ReadMessage()
			if err != nil {
				return
			}
			if msgType != websocket.BinaryMessage || i >= len(fragments) {
				continue
			}
			payload, _ := json.Marshal(connection.Fragment{Text: fragments[i]})
			env, _ := json.Marshal(connection.Envelope{
				Event:   connection.EventTranscriptionResult,
				Payload: payload,
			})
			if err := ws.WriteMessage(websocket.TextMessage, env); err != nil {
				return
			}
			i++
		}
	}
}

func newWSServer(t *testing.T, serve func(ws *websocket.Conn)) (*httptest.Server, string) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		defer ws.Close()
		serve(ws)
	}))
	return srv, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func newTestSession(url string, device capture.Device, hooks Hooks) *Session {
	return New(Config{
		Connection: connection.Config{Endpoint: url},
		Capture: capture.Config{
			ChunkInterval: 20 * time.Millisecond,
			SampleRate:    16000,
		},
	}, device, hooks, testLogger)
}

func TestSession_EndToEndTranscription(t *testing.T) {
	srv, url := newWSServer(t, transcribeEachChunk([]string{"hello", "world"}))
	defer srv.Close()

	var mu sync.Mutex
	var seen []string
	done := make(chan struct{})
	connected := make(chan struct{})

	s := newTestSession(url, &fakeDevice{pcm: tone(32000)}, Hooks{
		OnConnectionState: func(up bool) {
			if up {
				close(connected)
			}
		},
		OnFragment: func(text string) {
			mu.Lock()
			seen = append(seen, text)
			if len(seen) == 2 {
				close(done)
			}
			mu.Unlock()
		},
	})
	defer s.Close()

	if err := s.Open(context.Background()); err != nil {
		t.Fatalf("Open error: %v", err)
	}
	select {
	case <-connected:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting to connect")
	}

	if err := s.StartRecording(context.Background()); err != nil {
		t.Fatalf("StartRecording error: %v", err)
	}
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for fragments")
	}
	if err := s.StopRecording(); err != nil {
		t.Fatalf("StopRecording error: %v", err)
	}

	if got := s.Transcript(); got != "hello world " {
		t.Errorf("expected %q, got %q", "hello world ", got)
	}

	mu.Lock()
	defer mu.Unlock()
	if seen[0] != "hello" || seen[1] != "world" {
		t.Errorf("fragments arrived out of order: %v", seen)
	}
}

func TestSession_RecordingWhileDisconnected(t *testing.T) {
	s := newTestSession("ws://127.0.0.1:1/ws", &fakeDevice{pcm: tone(32000)}, Hooks{})
	defer s.Close()

	// No Open: the session has never connected, so every chunk is dropped.
	if err := s.StartRecording(context.Background()); err != nil {
		t.Fatalf("StartRecording error: %v", err)
	}
	time.Sleep(100 * time.Millisecond)
	if err := s.StopRecording(); err != nil {
		t.Fatalf("StopRecording error: %v", err)
	}

	if got := s.Transcript(); got != "" {
		t.Errorf("expected empty transcript while disconnected, got %q", got)
	}
}

func TestSession_MalformedFragmentTolerated(t *testing.T) {
	srv, url := newWSServer(t, func(ws *websocket.Conn) {
		bad, _ := json.Marshal(connection.Envelope{
			Event:   connection.EventTranscriptionResult,
			Payload: json.RawMessage(`{"transcription": 42}`),
		})
		_ = ws.WriteMessage(websocket.TextMessage, bad)

		payload, _ := json.Marshal(connection.Fragment{Text: "recovered"})
		good, _ := json.Marshal(connection.Envelope{
			Event:   connection.EventTranscriptionResult,
			Payload: payload,
		})
		_ = ws.WriteMessage(websocket.TextMessage, good)

		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer srv.Close()

	var mu sync.Mutex
	count := 0
	done := make(chan struct{})
	s := newTestSession(url, &fakeDevice{}, Hooks{
		OnFragment: func(string) {
			mu.Lock()
			count++
			if count == 2 {
				close(done)
			}
			mu.Unlock()
		},
	})
	defer s.Close()

	if err := s.Open(context.Background()); err != nil {
		t.Fatalf("Open error: %v", err)
	}
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for fragments")
	}

	if got := s.Transcript(); got != " recovered " {
		t.Errorf("malformed fragment should append empty text, got %q", got)
	}
}

func TestSession_StopNotifiesBackend(t *testing.T) {
	stopSeen := make(chan connection.StopPayload, 1)
	srv, url := newWSServer(t, func(ws *websocket.Conn) {
		for {
			msgType, data, err := ws.ReadMessage()
			if err != nil {
				return
			}
			if msgType != websocket.TextMessage {
				continue
			}
			var env connection.Envelope
			if json.Unmarshal(data, &env) == nil && env.Event == connection.EventStopRecording {
				var stop connection.StopPayload
				_ = json.Unmarshal(env.Payload, &stop)
				stopSeen <- stop
			}
		}
	})
	defer srv.Close()

	connected := make(chan struct{})
	s := newTestSession(url, &fakeDevice{}, Hooks{
		OnConnectionState: func(up bool) {
			if up {
				close(connected)
			}
		},
	})
	defer s.Close()

	if err := s.Open(context.Background()); err != nil {
		t.Fatalf("Open error: %v", err)
	}
	select {
	case <-connected:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting to connect")
	}

	if err := s.StartRecording(context.Background()); err != nil {
		t.Fatalf("StartRecording error: %v", err)
	}
	if err := s.StopRecording(); err != nil {
		t.Fatalf("StopRecording error: %v", err)
	}

	select {
	case stop := <-stopSeen:
		if stop.Reason != "user_request" {
			t.Errorf("expected reason user_request, got %q", stop.Reason)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for stop_recording")
	}

	if s.IsRecording() {
		t.Error("expected idle after stop")
	}
}

func TestSession_CloseIdempotent(t *testing.T) {
	s := newTestSession("ws://127.0.0.1:1/ws", &fakeDevice{}, Hooks{})
	if err := s.Close(); err != nil {
		t.Fatalf("first Close error: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close error: %v", err)
	}
}
