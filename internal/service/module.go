package service

import (
	"log/slog"

	"github.com/shopfloor-ops/change-relay/config"
	"github.com/shopfloor-ops/change-relay/internal/domain/feed"
	"go.uber.org/fx"
)

var Module = fx.Module(
	"service",

	fx.Provide(
		func(cfg *config.Config) RelayConfig {
			return RelayConfig{
				Topics:    cfg.TopicConfigs(),
				Policy:    NewRetryPolicy(cfg.Retry.MaxAttempts, cfg.Retry.Interval),
				KeepAlive: cfg.Server.KeepAlive,
			}
		},
		newResolver,
		// Domain services
		fx.Annotate(
			NewRelayService,
			fx.As(new(Relayer)),
		),
	),

	// [DECORATION_LAYER] Intercept Lookup to add cross-cutting concerns
	fx.Decorate(func(orig feed.Lookup, logger *slog.Logger) feed.Lookup {
		if orig == nil {
			return nil
		}
		return NewLookupMiddleware(orig, logger)
	}),
)

// newResolver yields a nil Resolver when no lookup store is wired (bus driver
// without Mongo); projections then forward what the feed carried.
func newResolver(store feed.Lookup, cfg *config.Config) (Resolver, error) {
	if store == nil {
		return nil, nil
	}
	cached, err := NewCachedLookup(store, LookupOptions{
		CacheSize:       cfg.Lookup.CacheSize,
		Timeout:         cfg.Lookup.Timeout,
		BreakerFailures: cfg.Lookup.BreakerFailures,
		BreakerCooldown: cfg.Lookup.BreakerCooldown,
	})
	if err != nil {
		return nil, err
	}
	return cached, nil
}
