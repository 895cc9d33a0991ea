package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// Client wraps a connected mongo client, its database and the per-operation timeout.
type Client struct {
	*mongo.Client
	DB        *mongo.Database
	OpTimeout time.Duration
	logger    *zap.Logger
}

// Connect opens a MongoDB connection and verifies it with a ping.
func Connect(ctx context.Context, uri, dbName string, timeout time.Duration, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	connectCtx, cancel := context.WithTimeout(ctx, timeout)
	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	cancel()
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	err = client.Ping(pingCtx, nil)
	cancel()
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}

	logger.Info("MongoDB client connected", zap.String("database", dbName))
	return &Client{Client: client, DB: client.Database(dbName), OpTimeout: timeout, logger: logger}, nil
}

// EnsureIndex creates an index on keys if it does not exist.
func (c *Client) EnsureIndex(ctx context.Context, collection string, keys bson.D, unique bool) error {
	ctx, cancel := context.WithTimeout(ctx, c.OpTimeout)
	defer cancel()
	model := mongo.IndexModel{Keys: keys, Options: options.Index().SetUnique(unique)}
	if _, err := c.DB.Collection(collection).Indexes().CreateOne(ctx, model); err != nil {
		return fmt.Errorf("create index on %s: %w", collection, err)
	}
	c.logger.Debug("index ensured", zap.String("collection", collection))
	return nil
}

// Close disconnects the client.
func (c *Client) Close(ctx context.Context) error {
	return c.Client.Disconnect(ctx)
}
