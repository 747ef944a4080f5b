package bootstrap

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/eleven-am/livescribe/internal/simserver"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/fx"
)

// ServerModule assembles the simulated transcription backend.
var ServerModule = fx.Options(
	fx.Provide(
		LoadServerConfig,
		newServerLogger,
		newEchoServer,
		newSimHandler,
	),
	fx.Invoke(registerServer),
)

func RunServer() {
	fx.New(ServerModule).Run()
}

func newServerLogger(cfg *ServerConfig) *slog.Logger {
	return NewLogger(cfg.LogLevel)
}

func newEchoServer() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	return e
}

func newSimHandler(cfg *ServerConfig, log *slog.Logger) *simserver.Handler {
	return simserver.NewHandler(simserver.Config{
		ResponseDelay: cfg.ResponseDelay(),
	}, log)
}

func registerServer(lc fx.Lifecycle, e *echo.Echo, h *simserver.Handler, cfg *ServerConfig, log *slog.Logger) {
	h.Register(e)

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("simserver listening", "addr", cfg.Addr)
				if err := e.Start(cfg.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("server stopped", "error", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return e.Shutdown(ctx)
		},
	})
}
