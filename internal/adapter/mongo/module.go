package mongo

import (
	"log/slog"

	"github.com/shopfloor-ops/change-relay/config"
	"github.com/shopfloor-ops/change-relay/internal/domain/feed"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/fx"
)

// SourceModule wires change streams as the relay's feed.
var SourceModule = fx.Module("mongo_feed",
	fx.Provide(
		fx.Annotate(
			func(db *mongo.Database, cfg *config.Config, logger *slog.Logger) *Source {
				return NewSource(db, cfg.Feed.MaxAwait, logger)
			},
			fx.As(new(feed.Source)),
		),
	),
)

// LookupModule wires point reads for aggregate enrichment.
var LookupModule = fx.Module("mongo_lookup",
	fx.Provide(
		fx.Annotate(
			NewLookup,
			fx.As(new(feed.Lookup)),
		),
	),
)
