package httpsrv

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopfloor-ops/change-relay/config"
	"github.com/shopfloor-ops/change-relay/internal/domain/registry"
	"github.com/shopfloor-ops/change-relay/internal/handler/sse"
	"github.com/shopfloor-ops/change-relay/internal/handler/status"
	"github.com/shopfloor-ops/change-relay/internal/handler/ws"
	"github.com/shopfloor-ops/change-relay/internal/service"
	"go.uber.org/fx"
)

var Module = fx.Module("http_server",
	fx.Provide(
		func(logger *slog.Logger, relayer service.Relayer, cfg *config.Config) *sse.SSEHandler {
			return sse.NewSSEHandler(logger, relayer, cfg.Server.WriteTimeout)
		},
		func(logger *slog.Logger, relayer service.Relayer, cfg *config.Config) *ws.WSHandler {
			return ws.NewWSHandler(logger, relayer, cfg.Server.WriteTimeout)
		},
		status.NewStatusHandler,
		func(s *sse.SSEHandler, w *ws.WSHandler, st *status.StatusHandler, reg *prometheus.Registry, logger *slog.Logger) http.Handler {
			return NewRouter(Handlers{SSE: s, WS: w, Status: st}, reg, logger)
		},
		func(cfg *config.Config, h http.Handler, logger *slog.Logger) *Server {
			return New(cfg.Server.Addr, h, logger)
		},
	),
	fx.Invoke(func(lc fx.Lifecycle, srv *Server, hub registry.Hubber, logger *slog.Logger) {
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				return srv.Start()
			},
			OnStop: func(ctx context.Context) error {
				// [GRACEFUL_SHUTDOWN] Sessions first: http.Server.Shutdown waits on every open stream.
				if err := hub.Shutdown(ctx); err != nil {
					logger.Warn("REGISTRY_SHUTDOWN_INCOMPLETE", slog.Any("err", err))
				}
				return srv.Stop(ctx)
			},
		})
	}),
)
