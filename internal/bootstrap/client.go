package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/eleven-am/livescribe/internal/capture"
	"github.com/eleven-am/livescribe/internal/connection"
	"github.com/eleven-am/livescribe/internal/console"
	"github.com/eleven-am/livescribe/internal/session"
	"go.uber.org/fx"
)

// ClientModule assembles the dictation client: config, microphone device,
// session and interactive console.
var ClientModule = fx.Options(
	fx.Provide(
		LoadClientConfig,
		newClientLogger,
		newDevice,
		newSession,
		newConsole,
	),
	fx.Invoke(registerClient),
)

func RunClient() {
	fx.New(ClientModule).Run()
}

func newClientLogger(cfg *ClientConfig) *slog.Logger {
	return NewLogger(cfg.LogLevel)
}

func newDevice(cfg *ClientConfig, log *slog.Logger) capture.Device {
	return capture.NewExecDevice(cfg.RecorderCommand, cfg.RecorderArgs, log)
}

func newSession(cfg *ClientConfig, device capture.Device, log *slog.Logger) *session.Session {
	hooks := session.Hooks{
		OnFragment: func(text string) {
			if strings.TrimSpace(text) != "" {
				fmt.Println(text)
			}
		},
		OnConnectionState: func(up bool) {
			if up {
				fmt.Println("[connected]")
			} else {
				fmt.Println("[disconnected]")
			}
		},
		OnTransportError: func(message string) {
			fmt.Printf("[transport error: %s]\n", message)
		},
	}

	return session.New(session.Config{
		Connection: connection.Config{
			Endpoint:    cfg.Endpoint,
			Transports:  []connection.Transport{connection.Transport(cfg.Transport)},
			DialTimeout: cfg.DialTimeout(),
		},
		Capture: capture.Config{
			ChunkInterval: cfg.ChunkInterval(),
			SampleRate:    cfg.SampleRate,
			Stream: capture.StreamConfig{
				SampleRate: cfg.DeviceSampleRate,
				Channels:   1,
			},
		},
	}, device, hooks, log)
}

func newConsole(s *session.Session, sh fx.Shutdowner, log *slog.Logger) *console.Console {
	return console.New(s, os.Stdin, os.Stdout, func() { _ = sh.Shutdown() }, log)
}

func registerClient(lc fx.Lifecycle, sh fx.Shutdowner, s *session.Session, c *console.Console, log *slog.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := s.Open(ctx); err != nil {
				return err
			}
			go func() {
				if err := c.Run(context.Background()); err != nil {
					log.Error("console exited", "error", err)
				}
				_ = sh.Shutdown()
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return s.Close()
		},
	})
}
