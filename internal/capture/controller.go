package capture

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/eleven-am/livescribe/internal/audio"
	"github.com/eleven-am/livescribe/internal/connection"
	"github.com/eleven-am/livescribe/internal/shared"
)

type State string

const (
	StateIdle      State = "idle"
	StateRecording State = "recording"
)

const readChunkSize = 4096

// Sink is where captured audio and control events go. *connection.Manager
// satisfies it.
type Sink interface {
	Send(event string, payload any) error
	SendBinary(data []byte) error
	IsConnected() bool
}

type Config struct {
	// ChunkInterval is the cadence at which buffered audio is cut into a
	// chunk and shipped. Defaults to 250ms.
	ChunkInterval time.Duration

	// SampleRate is the rate chunks are encoded at. Audio arriving from the
	// device at a different rate is resampled. Defaults to 16kHz.
	SampleRate int

	// Stream is the format requested from the device.
	Stream StreamConfig
}

func (c Config) withDefaults() Config {
	if c.ChunkInterval <= 0 {
		c.ChunkInterval = 250 * time.Millisecond
	}
	if c.SampleRate <= 0 {
		c.SampleRate = 16000
	}
	c.Stream = c.Stream.withDefaults()
	return c
}

// Controller drives the idle/recording state machine. While recording it
// drains the device buffer on every tick, wraps the audio in a WAV container
// and hands it to the sink. Empty ticks and ticks with no live connection
// produce no chunk.
type Controller struct {
	cfg    Config
	log    *slog.Logger
	device Device
	sink   Sink

	mu     sync.Mutex
	state  State
	stream Stream
	stop   chan struct{}

	bufMu sync.Mutex
	buf   []byte
}

func NewController(cfg Config, device Device, sink Sink, log *slog.Logger) *Controller {
	if log == nil {
		log = slog.Default()
	}
	return &Controller{
		cfg:    cfg.withDefaults(),
		log:    log.With("component", "capture"),
		device: device,
		sink:   sink,
		state:  StateIdle,
	}
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) IsRecording() bool {
	return c.State() == StateRecording
}

// Start opens the device and begins streaming chunks. Starting while already
// recording is rejected; the in-flight recording is unaffected.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateRecording {
		c.mu.Unlock()
		return shared.ErrAlreadyRecording
	}

	stream, err := c.device.Open(ctx, c.cfg.Stream)
	if err != nil {
		c.mu.Unlock()
		return fmt.Errorf("open capture device: %w", err)
	}

	c.stream = stream
	c.state = StateRecording
	c.stop = make(chan struct{})
	stop := c.stop
	c.mu.Unlock()

	c.bufMu.Lock()
	c.buf = c.buf[:0]
	c.bufMu.Unlock()

	go c.readLoop(stream, stop)
	go c.flushLoop(stop)

	c.log.Info("recording started",
		"chunk_interval", c.cfg.ChunkInterval,
		"sample_rate", c.cfg.SampleRate)
	return nil
}

// Stop ends the recording, flushes any buffered tail audio and notifies the
// backend. Stopping while idle is a no-op.
func (c *Controller) Stop() error {
	return c.stopWithReason("user_request")
}

func (c *Controller) stopWithReason(reason string) error {
	c.mu.Lock()
	if c.state != StateRecording {
		c.mu.Unlock()
		return nil
	}
	c.state = StateIdle
	stream := c.stream
	c.stream = nil
	close(c.stop)
	c.stop = nil
	c.mu.Unlock()

	_ = stream.Close()
	c.flush()

	if err := c.sink.Send(connection.EventStopRecording, connection.StopPayload{Reason: reason}); err != nil {
		c.log.Error("stop notification failed", "error", err)
	}

	c.log.Info("recording stopped", "reason", reason)
	return nil
}

func (c *Controller) readLoop(stream Stream, stop chan struct{}) {
	buf := make([]byte, readChunkSize)
	for {
		n, err := stream.Read(buf)
		if n > 0 {
			c.bufMu.Lock()
			c.buf = append(c.buf, buf[:n]...)
			c.bufMu.Unlock()
		}
		if err != nil {
			select {
			case <-stop:
			default:
				c.log.Error("device read failed", "error", err)
				_ = c.stopWithReason("device_error")
			}
			return
		}
	}
}

func (c *Controller) flushLoop(stop chan struct{}) {
	ticker := time.NewTicker(c.cfg.ChunkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.flush()
		}
	}
}

// flush cuts everything buffered so far into one chunk. Zero-size chunks and
// chunks with no connection to carry them are dropped.
func (c *Controller) flush() {
	c.bufMu.Lock()
	pcm := c.buf
	c.buf = nil
	c.bufMu.Unlock()

	if len(pcm) == 0 {
		return
	}
	if !c.sink.IsConnected() {
		c.log.Debug("dropping chunk, not connected", "bytes", len(pcm))
		return
	}

	samples := audio.PCMBytesToInt16(pcm)
	if c.cfg.Stream.SampleRate != c.cfg.SampleRate {
		samples = audio.ResampleInt16(samples, c.cfg.Stream.SampleRate, c.cfg.SampleRate)
	}

	chunk, err := audio.EncodeWAV(samples, c.cfg.SampleRate)
	if err != nil {
		c.log.Error("encode chunk failed", "error", err)
		return
	}
	if err := c.sink.SendBinary(chunk); err != nil {
		c.log.Error("send chunk failed", "error", err)
	}
}
