package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/wms-platform/stock-engine/internal/config"
	mongoRepo "github.com/wms-platform/stock-engine/internal/infrastructure/mongodb"
	"github.com/wms-platform/stock-engine/pkg/kafka"
	"github.com/wms-platform/stock-engine/pkg/logging"
	"github.com/wms-platform/stock-engine/pkg/mongodb"
)

// Creates the indexes the engine relies on and, with -topics, the Kafka
// topics it reads and writes. Safe to run repeatedly.

var (
	only        = flag.String("collection", "", "Only migrate this collection")
	timeout     = flag.Duration("timeout", 2*time.Minute, "Overall timeout")
	topics      = flag.Bool("topics", false, "Also create missing Kafka topics")
	replication = flag.Int("replication", 0, "Override the replication factor of created topics")
)

func main() {
	flag.Parse()

	logger := logging.New(logging.DefaultConfig(config.ServiceName + "-migrate"))

	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Error("Invalid configuration")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	client, err := mongodb.NewClient(ctx, cfg.MongoDB)
	if err != nil {
		logger.WithError(err).Error("Failed to connect to MongoDB")
		os.Exit(1)
	}
	defer client.Close(context.Background())

	applied := 0
	for _, m := range mongoRepo.IndexMigrations(client.Database()) {
		if *only != "" && m.Collection != *only {
			continue
		}
		start := time.Now()
		if err := m.Ensure(ctx); err != nil {
			logger.WithError(err).Error("Index migration failed", "collection", m.Collection)
			os.Exit(1)
		}
		applied++
		logger.Info("Indexes ensured", "collection", m.Collection, "durationMs", time.Since(start).Milliseconds())
	}

	if applied == 0 {
		logger.Warn("No collection matched", "collection", *only)
		os.Exit(1)
	}
	logger.Info("Index migration complete", "database", cfg.MongoDB.Database, "collections", applied)

	if *topics {
		if err := ensureTopics(ctx, cfg.Kafka.Brokers, logger); err != nil {
			logger.WithError(err).Error("Topic migration failed")
			os.Exit(1)
		}
	}
}

func ensureTopics(ctx context.Context, brokers []string, logger *logging.Logger) error {
	wanted := kafka.DefaultTopicConfigs()
	if *replication > 0 {
		for i := range wanted {
			wanted[i].ReplicationFactor = *replication
		}
	}

	created, err := kafka.EnsureTopics(ctx, brokers, wanted)
	if err != nil {
		return err
	}
	logger.Info("Topics ensured", "created", created, "wanted", len(wanted))
	return nil
}
