package temporal

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/log"
	"go.temporal.io/sdk/worker"
)

// TaskQueues contains the stock engine task queue names
var TaskQueues = struct {
	StockEngine string
}{
	StockEngine: "stock-engine-queue",
}

// WorkflowNames contains the stock engine workflow names
var WorkflowNames = struct {
	DelayedDelivery string
}{
	DelayedDelivery: "DelayedDeliveryWorkflow",
}

// ActivityTimeout bounds a single delivery activity attempt
const ActivityTimeout = 30 * time.Second

// Config holds the Temporal connection and the engine worker's limits
type Config struct {
	HostPort  string `yaml:"hostPort"`
	Namespace string `yaml:"namespace"`
	Identity  string `yaml:"identity"`
	TaskQueue string `yaml:"taskQueue"`

	MaxConcurrentActivities int `yaml:"maxConcurrentActivities"`
	MaxConcurrentWorkflows  int `yaml:"maxConcurrentWorkflows"`
	Pollers                 int `yaml:"pollers"`
}

// DefaultConfig returns a Config for a local Temporal frontend
func DefaultConfig() *Config {
	return &Config{
		HostPort:                "localhost:7233",
		Namespace:               "default",
		Identity:                "stock-engine",
		TaskQueue:               TaskQueues.StockEngine,
		MaxConcurrentActivities: 50,
		MaxConcurrentWorkflows:  50,
		Pollers:                 2,
	}
}

// Dial connects to the Temporal frontend. SDK logs go through logger.
func Dial(ctx context.Context, config *Config, logger *slog.Logger) (client.Client, error) {
	opts := client.Options{
		HostPort:  config.HostPort,
		Namespace: config.Namespace,
		Identity:  config.Identity,
	}
	if logger != nil {
		opts.Logger = log.NewStructuredLogger(logger.With("component", "temporal"))
	}

	c, err := client.DialContext(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("dial temporal %s/%s: %w", config.HostPort, config.Namespace, err)
	}
	return c, nil
}

// NewWorker creates a worker on the configured task queue. Registration and
// Start are left to the caller.
func NewWorker(c client.Client, config *Config) worker.Worker {
	return worker.New(c, config.TaskQueue, workerOptions(config))
}

func workerOptions(config *Config) worker.Options {
	return worker.Options{
		Identity:                               config.Identity,
		MaxConcurrentActivityExecutionSize:     config.MaxConcurrentActivities,
		MaxConcurrentWorkflowTaskExecutionSize: config.MaxConcurrentWorkflows,
		MaxConcurrentActivityTaskPollers:       config.Pollers,
		MaxConcurrentWorkflowTaskPollers:       config.Pollers,
	}
}
