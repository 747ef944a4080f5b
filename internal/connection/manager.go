package connection

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/eleven-am/livescribe/internal/shared"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512 * 1024
)

// Handler is invoked once per received event, on the dispatch goroutine.
type Handler func(payload json.RawMessage)

type outbound struct {
	messageType int
	data        []byte
}

// Manager owns the single bidirectional channel to the transcription service
// for the lifetime of a session. It stays usable across connect/disconnect
// churn: sends while disconnected are dropped, never buffered, and the caller
// may dial again with Open after observing a disconnect. All handlers run in
// arrival order on one dispatch goroutine.
type Manager struct {
	cfg Config
	log *slog.Logger

	mu        sync.RWMutex
	ws        *websocket.Conn
	send      chan outbound
	connDone  chan struct{}
	connected bool
	opening   bool
	closed    bool
	handlers  map[string][]Handler

	events    chan Envelope
	done      chan struct{}
	closeOnce sync.Once
}

func NewManager(cfg Config, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}

	m := &Manager{
		cfg:      cfg.withDefaults(),
		log:      log.With("component", "connection"),
		handlers: make(map[string][]Handler),
		done:     make(chan struct{}),
	}
	m.events = make(chan Envelope, m.cfg.BufferSizes.Events)

	go m.dispatchLoop()
	return m
}

// Open begins asynchronous connection negotiation and returns without waiting
// for the dial to finish. At most one live connection (or dial in flight) may
// exist at a time; after a disconnect the caller may invoke Open again.
func (m *Manager) Open(ctx context.Context) error {
	if !m.supportsTransport() {
		return fmt.Errorf("no supported transport in %v", m.cfg.Transports)
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return shared.ErrConnectionClosed
	}
	if m.opening || m.connected {
		m.mu.Unlock()
		return shared.ErrAlreadyOpen
	}
	m.opening = true
	m.mu.Unlock()

	go m.connect(ctx)
	return nil
}

func (m *Manager) supportsTransport() bool {
	for _, t := range m.cfg.Transports {
		if t == TransportWebSocket {
			return true
		}
	}
	return false
}

func (m *Manager) connect(ctx context.Context) {
	dialer := websocket.Dialer{HandshakeTimeout: m.cfg.DialTimeout}
	ws, _, err := dialer.DialContext(ctx, m.cfg.Endpoint, nil)
	if err != nil {
		m.mu.Lock()
		m.opening = false
		m.mu.Unlock()
		m.log.Error("dial failed", "endpoint", m.cfg.Endpoint, "error", err)
		m.emitError(err)
		return
	}

	send := make(chan outbound, m.cfg.BufferSizes.Send)
	connDone := make(chan struct{})

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		_ = ws.Close()
		return
	}
	m.ws = ws
	m.send = send
	m.connDone = connDone
	m.connected = true
	m.opening = false
	m.mu.Unlock()

	m.log.Info("connected", "endpoint", m.cfg.Endpoint)

	go m.writePump(ws, send, connDone)
	go m.readPump(ws)

	m.emit(EventConnected, nil)
}

// Send transmits a named event as a JSON envelope. When not connected the
// send is dropped silently: stale events have no value once the live stream
// is gone, and the caller can consult IsConnected first.
func (m *Manager) Send(event string, payload any) error {
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal payload: %w", err)
		}
		raw = data
	}

	data, err := json.Marshal(Envelope{Event: event, Payload: raw})
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	m.enqueue(outbound{messageType: websocket.TextMessage, data: data})
	return nil
}

// SendBinary transmits one audio chunk as a binary frame, with the same
// drop-when-disconnected policy as Send.
func (m *Manager) SendBinary(data []byte) error {
	m.enqueue(outbound{messageType: websocket.BinaryMessage, data: data})
	return nil
}

func (m *Manager) enqueue(out outbound) {
	m.mu.RLock()
	if !m.connected {
		m.mu.RUnlock()
		return
	}
	send := m.send
	m.mu.RUnlock()

	select {
	case send <- out:
	default:
		m.log.Warn("send buffer full, dropping message")
	}
}

// On registers a handler for a wire or lifecycle event. Handlers registered
// for the same event run in registration order.
func (m *Manager) On(event string, handler Handler) {
	m.mu.Lock()
	m.handlers[event] = append(m.handlers[event], handler)
	m.mu.Unlock()
}

func (m *Manager) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connected
}

// Close tears down the connection and the dispatch goroutine. Idempotent.
func (m *Manager) Close() error {
	m.closeOnce.Do(func() {
		m.mu.Lock()
		m.closed = true
		ws := m.ws
		m.mu.Unlock()

		if ws != nil {
			_ = ws.Close()
		}
		close(m.done)
	})
	return nil
}

func (m *Manager) readPump(ws *websocket.Conn) {
	defer m.teardown(ws)

	ws.SetReadLimit(maxMessageSize)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		_ = ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		msgType, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				m.log.Error("read error", "error", err)
				m.emitError(err)
			}
			return
		}

		if msgType != websocket.TextMessage {
			continue
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			m.log.Error("malformed envelope", "error", err)
			continue
		}
		m.push(env)
	}
}

func (m *Manager) writePump(ws *websocket.Conn, send chan outbound, connDone chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-connDone:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			_ = ws.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case out := <-send:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(out.messageType, out.data); err != nil {
				m.log.Error("write error", "error", err)
				return
			}

		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (m *Manager) teardown(ws *websocket.Conn) {
	m.mu.Lock()
	if m.ws != ws {
		m.mu.Unlock()
		return
	}
	m.ws = nil
	m.send = nil
	m.connected = false
	close(m.connDone)
	m.connDone = nil
	closed := m.closed
	m.mu.Unlock()

	_ = ws.Close()
	m.log.Info("disconnected", "endpoint", m.cfg.Endpoint)

	if !closed {
		m.emit(EventDisconnected, nil)
	}
}

func (m *Manager) push(env Envelope) {
	select {
	case m.events <- env:
	case <-m.done:
	}
}

func (m *Manager) emit(event string, payload any) {
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			m.log.Error("marshal event payload failed", "event", event, "error", err)
			return
		}
		raw = data
	}
	m.push(Envelope{Event: event, Payload: raw})
}

func (m *Manager) emitError(err error) {
	m.emit(EventTransportError, ErrorDetails{Message: err.Error()})
}

func (m *Manager) dispatchLoop() {
	for {
		select {
		case <-m.done:
			return
		case env := <-m.events:
			m.mu.RLock()
			handlers := append([]Handler(nil), m.handlers[env.Event]...)
			m.mu.RUnlock()
			for _, h := range handlers {
				h(env.Payload)
			}
		}
	}
}
