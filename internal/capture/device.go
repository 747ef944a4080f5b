package capture

import "context"

// StreamConfig describes the raw PCM format requested from a device.
type StreamConfig struct {
	SampleRate int
	Channels   int
}

func (c StreamConfig) withDefaults() StreamConfig {
	if c.SampleRate <= 0 {
		c.SampleRate = 16000
	}
	if c.Channels <= 0 {
		c.Channels = 1
	}
	return c
}

// Stream delivers little-endian PCM16 audio from an open device.
type Stream interface {
	Read(buf []byte) (int, error)
	Close() error
}

// Device is a microphone source. Open may fail with
// shared.ErrDeviceAccessDenied or shared.ErrDeviceUnavailable.
type Device interface {
	Open(ctx context.Context, cfg StreamConfig) (Stream, error)
}
