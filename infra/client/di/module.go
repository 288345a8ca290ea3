package clientdi

import (
	"context"
	"log/slog"

	"github.com/shopfloor-ops/change-relay/config"
	mongoclient "github.com/shopfloor-ops/change-relay/infra/client/mongo"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/fx"
)

var Module = fx.Module(
	"storage_clients",

	// [CONSTRUCTOR] Provides the shared MongoDB client
	fx.Provide(func(cfg *config.Config, logger *slog.Logger) (*mongoclient.Client, error) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		return mongoclient.New(ctx, cfg.Mongo.URI, cfg.Mongo.Database, cfg.Mongo.ConnectTimeout, logger)
	}),
	fx.Provide(func(c *mongoclient.Client) *mongo.Database { return c.Database() }),

	// [LIFECYCLE] Ensures the connection pool is closed gracefully on app shutdown
	fx.Invoke(func(lc fx.Lifecycle, client *mongoclient.Client) {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				return client.Close(ctx)
			},
		})
	}),
)
