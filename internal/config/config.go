// Package config loads the stock engine configuration from defaults, an optional YAML file
// and the environment, in that order of precedence.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/wms-platform/stock-engine/internal/application"
	"github.com/wms-platform/stock-engine/internal/infrastructure/mongodb"
	"github.com/wms-platform/stock-engine/internal/saga"
	"github.com/wms-platform/stock-engine/pkg/idempotency"
	"github.com/wms-platform/stock-engine/pkg/kafka"
	"github.com/wms-platform/stock-engine/pkg/logging"
	mongopkg "github.com/wms-platform/stock-engine/pkg/mongodb"
	"github.com/wms-platform/stock-engine/pkg/outbox"
	"github.com/wms-platform/stock-engine/pkg/resilience"
	"github.com/wms-platform/stock-engine/pkg/temporal"
	"github.com/wms-platform/stock-engine/pkg/tracing"
)

// ServiceName identifies the engine in logs, metrics and traces
const ServiceName = "stock-engine"

// FileEnv names the environment variable pointing at the YAML config file
const FileEnv = "STOCK_ENGINE_CONFIG"

// Retry scheduler backends
const (
	SchedulerMongoDB  = "mongodb"
	SchedulerTemporal = "temporal"
)

// Config holds the engine configuration
type Config struct {
	HTTPAddr    string           `yaml:"httpAddr"`
	Environment string           `yaml:"environment"`
	LogLevel    string           `yaml:"logLevel"`
	MongoDB     *mongopkg.Config `yaml:"mongodb"`
	Kafka       *kafka.Config    `yaml:"kafka"`
	Temporal    *temporal.Config `yaml:"temporal"`
	Tracing     *tracing.Config  `yaml:"tracing"`

	Outbox      *outbox.PublisherConfig    `yaml:"outbox"`
	RetryPoller *mongodb.RetryPollerConfig `yaml:"retryPoller"`
	Claims      ClaimConfig                `yaml:"claims"`
	Engine      EngineConfig               `yaml:"engine"`
}

// EngineConfig bounds the movement retry loop and the pick saga
type EngineConfig struct {
	// MaxRetries is the total number of load-validate-append attempts per movement
	MaxRetries int `yaml:"maxRetries"`

	// MaxRetryAttempts is the number of reservation consumption attempts before a saga fails
	MaxRetryAttempts int `yaml:"maxRetryAttempts"`

	BackoffInitialDelay time.Duration `yaml:"backoffInitialDelay"`
	BackoffMaxDelay     time.Duration `yaml:"backoffMaxDelay"`
	BackoffFactor       float64       `yaml:"backoffFactor"`

	// Scheduler selects the saga retry scheduler: mongodb or temporal
	Scheduler string `yaml:"scheduler"`
}

// ClaimConfig configures the command claim store
type ClaimConfig struct {
	LeaseTimeout    time.Duration `yaml:"leaseTimeout"`
	RetentionPeriod time.Duration `yaml:"retentionPeriod"`
}

// Default returns the configuration used when nothing is overridden
func Default() *Config {
	claims := idempotency.DefaultClaimConfig()
	backoff := resilience.DefaultBackoff()

	return &Config{
		HTTPAddr:    ":8080",
		Environment: "development",
		LogLevel:    string(logging.LevelInfo),
		MongoDB:     mongopkg.DefaultConfig(),
		Kafka:       kafka.DefaultConfig(),
		Temporal:    temporal.DefaultConfig(),
		Tracing:     tracing.DefaultConfig(ServiceName),
		Outbox:      outbox.DefaultPublisherConfig(),
		RetryPoller: mongodb.DefaultRetryPollerConfig(),
		Claims: ClaimConfig{
			LeaseTimeout:    claims.LeaseTimeout,
			RetentionPeriod: claims.RetentionPeriod,
		},
		Engine: EngineConfig{
			MaxRetries:          application.DefaultMaxRetries,
			MaxRetryAttempts:    saga.DefaultMaxRetryAttempts,
			BackoffInitialDelay: backoff.InitialDelay,
			BackoffMaxDelay:     backoff.MaxDelay,
			BackoffFactor:       backoff.Factor,
			Scheduler:           SchedulerMongoDB,
		},
	}
}

// Load builds the configuration: defaults, then the YAML file named by
// STOCK_ENGINE_CONFIG if set, then environment overrides
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv(FileEnv); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := cfg.mergeYAML(data); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) mergeYAML(data []byte) error {
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.HTTPAddr = getEnv("HTTP_ADDR", c.HTTPAddr)
	c.Environment = getEnv("ENVIRONMENT", c.Environment)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)

	c.MongoDB.URI = getEnv("MONGODB_URI", c.MongoDB.URI)
	c.MongoDB.Database = getEnv("MONGODB_DATABASE", c.MongoDB.Database)
	c.MongoDB.ReplicaSet = getEnv("MONGODB_REPLICA_SET", c.MongoDB.ReplicaSet)

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		c.Kafka.Brokers = strings.Split(brokers, ",")
	}
	c.Kafka.ConsumerGroup = getEnv("KAFKA_CONSUMER_GROUP", c.Kafka.ConsumerGroup)

	c.Temporal.HostPort = getEnv("TEMPORAL_HOST", c.Temporal.HostPort)
	c.Temporal.Namespace = getEnv("TEMPORAL_NAMESPACE", c.Temporal.Namespace)

	c.Tracing.OTLPEndpoint = getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", c.Tracing.OTLPEndpoint)
	c.Tracing.Environment = c.Environment
	c.Tracing.Enabled = getEnvBool("TRACING_ENABLED", c.Tracing.Enabled)

	c.Engine.MaxRetries = getEnvInt("ENGINE_MAX_RETRIES", c.Engine.MaxRetries)
	c.Engine.MaxRetryAttempts = getEnvInt("SAGA_MAX_RETRY_ATTEMPTS", c.Engine.MaxRetryAttempts)
	c.Engine.BackoffInitialDelay = getEnvDuration("SAGA_BACKOFF_INITIAL_DELAY", c.Engine.BackoffInitialDelay)
	c.Engine.BackoffMaxDelay = getEnvDuration("SAGA_BACKOFF_MAX_DELAY", c.Engine.BackoffMaxDelay)
	c.Engine.Scheduler = getEnv("SAGA_RETRY_SCHEDULER", c.Engine.Scheduler)
}

// Validate checks the engine bounds and the scheduler choice
func (c *Config) Validate() error {
	if c.Engine.MaxRetries < 1 {
		return fmt.Errorf("engine max retries must be at least 1, got %d", c.Engine.MaxRetries)
	}
	if err := c.Saga().Validate(); err != nil {
		return err
	}
	switch c.Engine.Scheduler {
	case SchedulerMongoDB, SchedulerTemporal:
	default:
		return fmt.Errorf("unknown retry scheduler %q", c.Engine.Scheduler)
	}
	if c.MongoDB.URI == "" || c.MongoDB.Database == "" {
		return fmt.Errorf("mongodb uri and database are required")
	}
	if len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("at least one kafka broker is required")
	}
	return nil
}

// Saga returns the saga bounds
func (c *Config) Saga() saga.Config {
	return saga.Config{
		MaxRetryAttempts: c.Engine.MaxRetryAttempts,
		Backoff: resilience.Backoff{
			InitialDelay: c.Engine.BackoffInitialDelay,
			MaxDelay:     c.Engine.BackoffMaxDelay,
			Factor:       c.Engine.BackoffFactor,
		},
	}
}

// Movements returns the movement handler bounds
func (c *Config) Movements() application.MovementHandlerConfig {
	return application.MovementHandlerConfig{MaxRetries: c.Engine.MaxRetries}
}

// ClaimStore returns the claim store settings
func (c *Config) ClaimStore() *idempotency.ClaimConfig {
	return &idempotency.ClaimConfig{
		LeaseTimeout:    c.Claims.LeaseTimeout,
		RetentionPeriod: c.Claims.RetentionPeriod,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if v, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return v
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if v, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return v
	}
	return defaultValue
}
