package testing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	mongoImage      = "mongo:6"
	mongoReplicaSet = "rs"
)

// MongoReplicaSet is a single node replica set in a container, enough for
// multi-document transactions
type MongoReplicaSet struct {
	container *mongodb.MongoDBContainer
	client    *mongo.Client
	URI       string
}

// StartMongoReplicaSet starts the container and connects to it
func StartMongoReplicaSet(ctx context.Context, opts ...testcontainers.ContainerCustomizer) (*MongoReplicaSet, error) {
	opts = append([]testcontainers.ContainerCustomizer{mongodb.WithReplicaSet(mongoReplicaSet)}, opts...)
	container, err := mongodb.Run(ctx, mongoImage, opts...)
	if err != nil {
		return nil, fmt.Errorf("start mongo container: %w", err)
	}

	rs := &MongoReplicaSet{container: container}
	if err := rs.connect(ctx); err != nil {
		_ = container.Terminate(ctx)
		return nil, err
	}
	return rs, nil
}

func (rs *MongoReplicaSet) connect(ctx context.Context) error {
	uri, err := rs.container.ConnectionString(ctx)
	if err != nil {
		return fmt.Errorf("mongo connection string: %w", err)
	}
	rs.URI = uri

	// the member advertises its in-container hostname, so skip discovery
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri).SetDirect(true))
	if err != nil {
		return fmt.Errorf("connect to mongo container: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return fmt.Errorf("ping mongo container: %w", err)
	}
	rs.client = client
	return nil
}

// Client returns the shared client
func (rs *MongoReplicaSet) Client() *mongo.Client { return rs.client }

// FreshDatabase returns a database no other caller has used
func (rs *MongoReplicaSet) FreshDatabase(prefix string) *mongo.Database {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return rs.client.Database(prefix + "_" + suffix)
}

// Terminate disconnects and removes the container
func (rs *MongoReplicaSet) Terminate(ctx context.Context) error {
	if rs.client != nil {
		_ = rs.client.Disconnect(ctx)
	}
	return rs.container.Terminate(ctx)
}
