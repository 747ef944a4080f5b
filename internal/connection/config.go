package connection

import "time"

type Transport string

const (
	TransportWebSocket Transport = "websocket"
)

type Config struct {
	Endpoint    string
	Transports  []Transport
	DialTimeout time.Duration
	BufferSizes BufferSizes
}

type BufferSizes struct {
	Send   int
	Events int
}

func (c Config) withDefaults() Config {
	if len(c.Transports) == 0 {
		c.Transports = []Transport{TransportWebSocket}
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 10 * time.Second
	}
	if c.BufferSizes.Send <= 0 {
		c.BufferSizes.Send = 128
	}
	if c.BufferSizes.Events <= 0 {
		c.BufferSizes.Events = 64
	}
	return c
}
