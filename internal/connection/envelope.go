package connection

import "encoding/json"

// Wire events exchanged with the transcription service. Audio chunks travel
// as binary websocket frames and carry no envelope; everything else is a JSON
// envelope on a text frame.
const (
	EventStopRecording       = "stop_recording"
	EventTranscriptionResult = "transcription_result"
)

// Lifecycle events surfaced through the same handler registry as wire events.
const (
	EventConnected      = "connected"
	EventDisconnected   = "disconnected"
	EventTransportError = "transport_error"
)

type Envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Fragment is one unit of transcribed text received from the backend. A
// missing transcription field decodes as empty text rather than failing.
type Fragment struct {
	Text string `json:"transcription"`
}

type StopPayload struct {
	Reason string `json:"reason"`
}

type ErrorDetails struct {
	Message string `json:"message"`
}
