package cmd

import (
	"context"
	"fmt"

	"github.com/shopfloor-ops/change-relay/config"
	clientdi "github.com/shopfloor-ops/change-relay/infra/client/di"
	httpsrv "github.com/shopfloor-ops/change-relay/infra/server/http"
	mongoadapter "github.com/shopfloor-ops/change-relay/internal/adapter/mongo"
	"github.com/shopfloor-ops/change-relay/internal/adapter/pubsub"
	"github.com/shopfloor-ops/change-relay/internal/domain/feed"
	"github.com/shopfloor-ops/change-relay/internal/domain/model"
	"github.com/shopfloor-ops/change-relay/internal/domain/registry"
	"github.com/shopfloor-ops/change-relay/internal/observability"
	"github.com/shopfloor-ops/change-relay/internal/service"
	"go.uber.org/fx"
)

func NewApp(cfg *config.Config) *fx.App {
	return fx.New(appOptions(cfg)...)
}

func appOptions(cfg *config.Config) []fx.Option {
	return []fx.Option{
		fx.Provide(
			func() *config.Config { return cfg },
			ProvideLogger,
			ProvideWatermillLogger,
		),
		fx.StartTimeout(cfg.Mongo.ConnectTimeout+cfg.Server.ShutdownTimeout),
		fx.StopTimeout(cfg.Server.ShutdownTimeout),
		feedModule(cfg),
		observability.Module,
		registry.Module,
		service.Module,
		httpsrv.Module,
	}
}

// feedModule picks the change feed driver. Aggregate lookups always read
// Mongo; on the bus driver they are enabled only when a Mongo URI is set.
func feedModule(cfg *config.Config) fx.Option {
	switch cfg.Feed.Driver {
	case config.DriverAMQP:
		if cfg.Mongo.URI == "" {
			return fx.Options(
				pubsub.SourceModule,
				fx.Provide(func() feed.Lookup { return nil }),
			)
		}
		return fx.Options(pubsub.SourceModule, clientdi.Module, mongoadapter.LookupModule)
	default:
		return fx.Options(clientdi.Module, mongoadapter.SourceModule, mongoadapter.LookupModule)
	}
}

// NewEmitApp publishes rec once on start. Errors surface through Err/Start.
func NewEmitApp(cfg *config.Config, collection string, rec *model.ChangeRecord) *fx.App {
	return fx.New(
		fx.NopLogger,
		fx.Provide(
			func() *config.Config { return cfg },
			ProvideLogger,
			ProvideWatermillLogger,
		),
		pubsub.PublisherModule,
		fx.Invoke(func(lc fx.Lifecycle, p *pubsub.Publisher) {
			lc.Append(fx.Hook{
				OnStart: func(ctx context.Context) error {
					token, err := p.Publish(ctx, collection, rec)
					if err != nil {
						return err
					}
					fmt.Printf("published %s %s/%s seq=%s\n", rec.Op, collection, rec.DocumentID, token)
					return nil
				},
			})
		}),
	)
}
