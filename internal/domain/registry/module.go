package registry

import (
	"github.com/shopfloor-ops/change-relay/config"
	"go.uber.org/fx"
)

// Module provides the session registry. The HTTP server module drains it on
// stop, before closing listeners.
var Module = fx.Module("registry",
	fx.Provide(
		// [CLEAN_INJECTION] Configure Hub using Functional Options
		func(cfg *config.Config) *Hub {
			return NewHub(
				WithMaxSessionsPerTopic(cfg.Server.MaxSessionsPerTopic),
			)
		},
		fx.Annotate(
			func(h *Hub) Hubber { return h },
			fx.As(new(Hubber)),
		),
	),
)
