package bootstrap

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// ClientConfig is read from the environment, with an optional .env file.
type ClientConfig struct {
	Endpoint         string   `env:"LIVESCRIBE_ENDPOINT" envDefault:"ws://localhost:8080/ws"`
	Transport        string   `env:"LIVESCRIBE_TRANSPORT" envDefault:"websocket"`
	DialTimeoutMS    int      `env:"LIVESCRIBE_DIAL_TIMEOUT_MS" envDefault:"10000"`
	ChunkIntervalMS  int      `env:"LIVESCRIBE_CHUNK_INTERVAL_MS" envDefault:"250"`
	SampleRate       int      `env:"LIVESCRIBE_SAMPLE_RATE" envDefault:"16000"`
	DeviceSampleRate int      `env:"LIVESCRIBE_DEVICE_SAMPLE_RATE" envDefault:"16000"`
	RecorderCommand  string   `env:"LIVESCRIBE_RECORDER" envDefault:"arecord"`
	RecorderArgs     []string `env:"LIVESCRIBE_RECORDER_ARGS" envSeparator:","`
	LogLevel         string   `env:"LIVESCRIBE_LOG_LEVEL" envDefault:"info"`
}

func (c *ClientConfig) DialTimeout() time.Duration {
	return time.Duration(c.DialTimeoutMS) * time.Millisecond
}

func (c *ClientConfig) ChunkInterval() time.Duration {
	return time.Duration(c.ChunkIntervalMS) * time.Millisecond
}

func LoadClientConfig() (*ClientConfig, error) {
	_ = godotenv.Load()
	cfg := &ClientConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse client config: %w", err)
	}
	return cfg, nil
}

// ServerConfig configures the simulated transcription backend.
type ServerConfig struct {
	Addr            string `env:"SIMSERVER_ADDR" envDefault:":8080"`
	ResponseDelayMS int    `env:"SIMSERVER_RESPONSE_DELAY_MS" envDefault:"150"`
	LogLevel        string `env:"SIMSERVER_LOG_LEVEL" envDefault:"info"`
}

func (c *ServerConfig) ResponseDelay() time.Duration {
	return time.Duration(c.ResponseDelayMS) * time.Millisecond
}

func LoadServerConfig() (*ServerConfig, error) {
	_ = godotenv.Load()
	cfg := &ServerConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse server config: %w", err)
	}
	return cfg, nil
}
