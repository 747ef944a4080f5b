package simserver

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/eleven-am/livescribe/internal/audio"
	"github.com/eleven-am/livescribe/internal/connection"
	"github.com/eleven-am/livescribe/internal/shared"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512 * 1024
)

type Config struct {
	// ResponseDelay simulates transcription latency per chunk.
	ResponseDelay time.Duration

	// Phrases cycle as canned transcription results, one per chunk.
	Phrases []string
}

var defaultPhrases = []string{
	"the quick brown fox",
	"jumps over the lazy dog",
	"while the microphone listens",
	"and the transcript grows",
}

func (c Config) withDefaults() Config {
	if len(c.Phrases) == 0 {
		c.Phrases = defaultPhrases
	}
	return c
}

// Handler serves the simulated transcription endpoint. Every binary audio
// frame is answered, in order and after the configured delay, with the next
// canned phrase; a stop_recording event flushes one final phrase for the
// utterance in flight.
type Handler struct {
	cfg      Config
	log      *slog.Logger
	upgrader websocket.Upgrader
}

func NewHandler(cfg Config, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		cfg: cfg.withDefaults(),
		log: log.With("component", "simserver"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

func (h *Handler) Register(e *echo.Echo) {
	e.GET("/ws", h.handleWS)
	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
}

func (h *Handler) handleWS(c echo.Context) error {
	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.log.Error("upgrade failed", "error", err)
		return err
	}

	clientID := shared.NewID("cli_")
	cl := &client{
		ws:   ws,
		cfg:  h.cfg,
		log:  h.log.With("client_id", clientID),
		send: make(chan []byte, 64),
		jobs: make(chan job, 64),
		done: make(chan struct{}),
	}

	h.log.Info("client connected", "client_id", clientID, "remote", ws.RemoteAddr().String())

	go cl.writePump()
	go cl.transcribeLoop()
	cl.readPump()
	return nil
}

type job struct {
	final bool
}

type client struct {
	ws   *websocket.Conn
	cfg  Config
	log  *slog.Logger
	send chan []byte
	jobs chan job
	done chan struct{}
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.ws.Close()
	})
}

func (c *client) readPump() {
	defer c.close()

	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	chunksSinceStop := 0
	for {
		msgType, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Error("read error", "error", err)
			}
			return
		}

		switch msgType {
		case websocket.BinaryMessage:
			dur, err := audio.WAVDuration(data)
			if err != nil {
				c.log.Warn("discarding non-WAV chunk", "bytes", len(data), "error", err)
				continue
			}
			c.log.Debug("chunk received", "bytes", len(data), "duration_s", dur)
			chunksSinceStop++
			c.enqueue(job{})

		case websocket.TextMessage:
			var env connection.Envelope
			if err := json.Unmarshal(data, &env); err != nil {
				c.log.Warn("malformed envelope", "error", err)
				continue
			}
			if env.Event != connection.EventStopRecording {
				continue
			}
			var stop connection.StopPayload
			_ = json.Unmarshal(env.Payload, &stop)
			c.log.Info("stop received", "reason", stop.Reason, "chunks", chunksSinceStop)
			if chunksSinceStop > 0 {
				c.enqueue(job{final: true})
			}
			chunksSinceStop = 0
		}
	}
}

func (c *client) enqueue(j job) {
	select {
	case c.jobs <- j:
	default:
		c.log.Warn("transcription backlog full, dropping chunk")
	}
}

// transcribeLoop answers jobs one at a time so results arrive in chunk order.
func (c *client) transcribeLoop() {
	i := 0
	for {
		select {
		case <-c.done:
			return
		case <-c.jobs:
			if c.cfg.ResponseDelay > 0 {
				select {
				case <-time.After(c.cfg.ResponseDelay):
				case <-c.done:
					return
				}
			}

			phrase := c.cfg.Phrases[i%len(c.cfg.Phrases)]
			i++

			payload, _ := json.Marshal(connection.Fragment{Text: phrase})
			env, err := json.Marshal(connection.Envelope{
				Event:   connection.EventTranscriptionResult,
				Payload: payload,
			})
			if err != nil {
				c.log.Error("marshal result failed", "error", err)
				continue
			}

			select {
			case c.send <- env:
			case <-c.done:
				return
			}
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.log.Error("write failed", "error", err)
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
