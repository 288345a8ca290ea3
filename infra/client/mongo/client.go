// Package mongo builds the shared MongoDB client.
package mongo

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const appName = "change-relay"

// Client owns the driver connection pool and the relay's database handle.
type Client struct {
	client *mongo.Client
	db     *mongo.Database
	logger *slog.Logger
}

// New connects and pings the primary so a bad URI fails at startup, not on
// the first browser request.
func New(ctx context.Context, uri, database string, connectTimeout time.Duration, logger *slog.Logger) (*Client, error) {
	if connectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, connectTimeout)
		defer cancel()
	}

	opts := options.Client().
		ApplyURI(uri).
		SetAppName(appName)
	if connectTimeout > 0 {
		opts.SetServerSelectionTimeout(connectTimeout)
	}

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}

	logger.Info("MONGO_CONNECTED", slog.String("database", database))
	return &Client{client: client, db: client.Database(database), logger: logger}, nil
}

func (c *Client) Database() *mongo.Database { return c.db }

func (c *Client) Close(ctx context.Context) error {
	c.logger.Info("MONGO_DISCONNECTING")
	return c.client.Disconnect(ctx)
}
