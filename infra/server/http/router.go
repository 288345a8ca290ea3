package httpsrv

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopfloor-ops/change-relay/internal/handler/sse"
	"github.com/shopfloor-ops/change-relay/internal/handler/status"
	"github.com/shopfloor-ops/change-relay/internal/handler/ws"
)

// Handlers groups every HTTP surface the router mounts.
type Handlers struct {
	SSE    *sse.SSEHandler
	WS     *ws.WSHandler
	Status *status.StatusHandler
}

// NewRouter mounts the stream endpoints and the operational routes.
// Streams are long-lived, so there is no timeout middleware.
func NewRouter(h Handlers, reg *prometheus.Registry, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		LoggingMiddleware(logger),
		middleware.Recoverer,
	)

	r.Route("/streams/{topic}", func(r chi.Router) {
		r.Get("/", h.SSE.Stream)
		r.Get("/{id}", h.SSE.Stream)
	})
	r.Route("/ws/{topic}", func(r chi.Router) {
		r.Get("/", h.WS.ServeHTTP)
		r.Get("/{id}", h.WS.ServeHTTP)
	})

	r.Get("/topics", h.Status.Topics)
	r.Get("/stats", h.Status.Stats)
	r.Get("/healthz", h.Status.Health)
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	return r
}
