package pubsub

import (
	"context"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/shopfloor-ops/change-relay/config"
	"github.com/shopfloor-ops/change-relay/internal/domain/feed"
	"go.uber.org/fx"
)

// SourceModule wires the message bus as the relay's feed.
var SourceModule = fx.Module("bus_feed",
	fx.Provide(
		func(cfg *config.Config, logger watermill.LoggerAdapter) *AMQPFactory {
			return NewAMQPFactory(cfg.AMQP.URI, logger)
		},
		fx.Annotate(
			func(f *AMQPFactory, cfg *config.Config, logger *slog.Logger) *Source {
				return NewSource(f, cfg.AMQP.TopicPrefix, cfg.Feed.MaxAwait, logger)
			},
			fx.As(new(feed.Source)),
		),
	),
)

// PublisherModule wires the change publisher used by the emit command.
var PublisherModule = fx.Module("bus_publisher",
	fx.Provide(
		func(cfg *config.Config, logger watermill.LoggerAdapter) *AMQPFactory {
			return NewAMQPFactory(cfg.AMQP.URI, logger)
		},
		func(lc fx.Lifecycle, f *AMQPFactory, cfg *config.Config) (*Publisher, error) {
			pub, err := f.Publisher()
			if err != nil {
				return nil, err
			}
			p := NewPublisher(pub, cfg.AMQP.TopicPrefix)
			lc.Append(fx.Hook{
				OnStop: func(ctx context.Context) error { return p.Close() },
			})
			return p, nil
		},
	),
)
