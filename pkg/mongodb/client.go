package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
)

// Config holds MongoDB connection configuration. The engine writes ledger
// events and outbox records in one transaction, so the deployment must be a
// replica set.
type Config struct {
	URI            string        `yaml:"uri"`
	Database       string        `yaml:"database"`
	ReplicaSet     string        `yaml:"replicaSet"`
	ConnectTimeout time.Duration `yaml:"connectTimeout"`
	PingTimeout    time.Duration `yaml:"pingTimeout"`
	MaxPoolSize    uint64        `yaml:"maxPoolSize"`
	MinPoolSize    uint64        `yaml:"minPoolSize"`

	Username string `yaml:"username"`
	Password string `yaml:"password"`
	AuthDB   string `yaml:"authDb"`
}

// DefaultConfig returns a Config for a local single node replica set
func DefaultConfig() *Config {
	return &Config{
		URI:            "mongodb://localhost:27017",
		Database:       "stock_engine",
		ConnectTimeout: 10 * time.Second,
		PingTimeout:    5 * time.Second,
		MaxPoolSize:    100,
		MinPoolSize:    10,
	}
}

// clientOptions builds driver options from config. Writes are acknowledged by a
// majority so a committed ledger append survives a primary failover.
func clientOptions(config *Config) *options.ClientOptions {
	opts := options.Client().
		ApplyURI(config.URI).
		SetConnectTimeout(config.ConnectTimeout).
		SetMaxPoolSize(config.MaxPoolSize).
		SetMinPoolSize(config.MinPoolSize).
		SetWriteConcern(writeconcern.Majority()).
		SetRetryWrites(true)

	if config.ReplicaSet != "" {
		opts.SetReplicaSet(config.ReplicaSet)
	}
	if config.Username != "" {
		opts.SetAuth(options.Credential{
			Username:   config.Username,
			Password:   config.Password,
			AuthSource: config.AuthDB,
		})
	}
	return opts
}

// Client owns the driver connection and the engine database handle
type Client struct {
	client   *mongo.Client
	database *mongo.Database
}

// NewClient connects and waits for the primary to answer a ping
func NewClient(ctx context.Context, config *Config) (*Client, error) {
	client, err := mongo.Connect(ctx, clientOptions(config))
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", config.Database, err)
	}

	timeout := config.PingTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping primary: %w", err)
	}

	return &Client{client: client, database: client.Database(config.Database)}, nil
}

// Database returns the database handle
func (c *Client) Database() *mongo.Database {
	return c.database
}

// Close disconnects the client
func (c *Client) Close(ctx context.Context) error {
	return c.client.Disconnect(ctx)
}

// HealthCheck pings the primary. Readiness fails while no primary is elected.
func (c *Client) HealthCheck(ctx context.Context) error {
	return c.client.Ping(ctx, readpref.Primary())
}
