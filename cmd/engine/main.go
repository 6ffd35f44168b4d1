package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/wms-platform/stock-engine/internal/application"
	"github.com/wms-platform/stock-engine/internal/config"
	"github.com/wms-platform/stock-engine/internal/domain"
	"github.com/wms-platform/stock-engine/internal/infrastructure/messaging"
	mongoRepo "github.com/wms-platform/stock-engine/internal/infrastructure/mongodb"
	"github.com/wms-platform/stock-engine/internal/infrastructure/projections"
	temporalRetry "github.com/wms-platform/stock-engine/internal/infrastructure/temporal"
	"github.com/wms-platform/stock-engine/internal/saga"
	"github.com/wms-platform/stock-engine/pkg/cloudevents"
	"github.com/wms-platform/stock-engine/pkg/contracts/asyncapi"
	"github.com/wms-platform/stock-engine/pkg/idempotency"
	"github.com/wms-platform/stock-engine/pkg/kafka"
	"github.com/wms-platform/stock-engine/pkg/logging"
	"github.com/wms-platform/stock-engine/pkg/metrics"
	"github.com/wms-platform/stock-engine/pkg/middleware"
	"github.com/wms-platform/stock-engine/pkg/mongodb"
	"github.com/wms-platform/stock-engine/pkg/outbox"
	outboxMongo "github.com/wms-platform/stock-engine/pkg/outbox/mongodb"
	"github.com/wms-platform/stock-engine/pkg/temporal"
	"github.com/wms-platform/stock-engine/pkg/tracing"
)

func main() {
	cfg, err := config.Load()

	logConfig := logging.DefaultConfig(config.ServiceName)
	if cfg != nil {
		logConfig.Level = logging.LogLevel(cfg.LogLevel)
	}
	logger := logging.New(logConfig)
	logger.SetDefault()

	if err != nil {
		logger.WithError(err).Error("Invalid configuration")
		os.Exit(1)
	}

	logger.Info("Starting stock engine", "scheduler", cfg.Engine.Scheduler)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Tracing is best effort
	shutdownTracing, err := tracing.Initialize(ctx, cfg.Tracing)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize tracing")
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownTracing(shutdownCtx); err != nil {
				logger.WithError(err).Error("Failed to flush traces")
			}
		}()
		logger.Info("Tracing initialized", "enabled", cfg.Tracing.Enabled, "endpoint", cfg.Tracing.OTLPEndpoint)
	}

	m := metrics.New(metrics.DefaultConfig(config.ServiceName))
	claimMetrics := idempotency.NewMetrics(m.Registry())

	mongoClient, err := mongodb.NewClient(ctx, cfg.MongoDB)
	if err != nil {
		logger.WithError(err).Error("Failed to connect to MongoDB")
		os.Exit(1)
	}
	defer mongoClient.Close(context.Background())
	db := mongoClient.Database()
	instr := mongodb.NewInstrumentation(m, cfg.MongoDB.Database)
	logger.Info("Connected to MongoDB", "database", cfg.MongoDB.Database)

	if err := mongoRepo.EnsureIndexes(ctx, db); err != nil {
		logger.WithError(err).Error("Failed to ensure indexes")
		os.Exit(1)
	}

	// Write side: every store appends its events to the outbox in the same transaction
	outboxRepo := outboxMongo.NewOutboxRepository(db)
	envelopes := messaging.NewEnvelopeFactory()
	bus := messaging.NewOutboxBus(outboxRepo, envelopes)

	ledger := mongoRepo.NewLedgerRepository(db, outboxRepo, envelopes, instr)
	reservationRepo := mongoRepo.NewReservationRepository(db, outboxRepo, envelopes, instr)
	sagaStore := mongoRepo.NewSagaStore(db, outboxRepo, envelopes, instr)

	reservations := application.NewReservationService(reservationRepo, nil, logger, m)
	movements := application.NewMovementHandler(ledger, cfg.Movements(), logger, m)
	picks := application.NewPickStockHandler(movements, reservations, bus, logger, m)
	engine := application.NewEngine(movements, picks, idempotency.NewMongoClaimStore(db, cfg.ClaimStore()), logger, claimMetrics)

	scheduler, stopScheduler, err := startRetryScheduler(ctx, cfg, db, instr, bus, logger)
	if err != nil {
		logger.WithError(err).Error("Failed to start retry scheduler")
		os.Exit(1)
	}
	defer stopScheduler()

	sagaHandler, err := saga.NewHandler(sagaStore, scheduler, reservations, cfg.Saga(), logger, m)
	if err != nil {
		logger.WithError(err).Error("Invalid saga configuration")
		os.Exit(1)
	}

	projector := projections.NewAvailableStockProjector(
		projections.NewMongoAvailableStockRepository(db, instr), logger, m)

	// Outbound: outbox to Kafka
	producer := kafka.NewProductionProducer(cfg.Kafka, m, logger)
	defer producer.Close()

	outboxPublisher := outbox.NewPublisher(outboxRepo, producer, logger, m, cfg.Outbox)
	if err := outboxPublisher.Start(ctx); err != nil {
		logger.WithError(err).Error("Failed to start outbox publisher")
		os.Exit(1)
	}
	defer outboxPublisher.Stop()

	// Inbound: commands, saga messages and projected events
	consumer := kafka.NewProductionConsumer(cfg.Kafka, m, logger)
	defer consumer.Close()

	contract, err := asyncapi.NewStockEngineValidator()
	if err != nil {
		logger.WithError(err).Error("Failed to compile event contracts")
		os.Exit(1)
	}
	router := messaging.NewRouter(consumer, contract, idempotency.NewMongoMessageRepository(db), claimMetrics,
		messaging.RouterConfig{ServiceName: config.ServiceName, ConsumerGroup: cfg.Kafka.ConsumerGroup}, logger)

	router.Route(kafka.Topics.StockEvents, []string{
		cloudevents.StockMoved,
		cloudevents.PickingStarted,
		cloudevents.ReservationConsumed,
		cloudevents.ReservationCancelled,
	}, projector.Handle)
	router.Route(kafka.Topics.PickSagaCommands, []string{
		cloudevents.PickReservationDeferred,
		cloudevents.RetryConsumeReservation,
	}, sagaHandler.Handle)
	messaging.NewCommandConsumer(engine, reservations, contract, logger).Register(consumer)

	go func() {
		if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.WithError(err).Error("Kafka consumer stopped")
		}
	}()
	logger.Info("Kafka consumer started", "group", cfg.Kafka.ConsumerGroup)

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           opsRouter(cfg, m, mongoClient, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("Ops server listening", "addr", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("Ops server failed")
			cancel()
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-ctx.Done():
	}

	logger.Info("Shutting down stock engine")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Ops server forced to shutdown")
	}

	logger.Info("Stock engine stopped")
}

// startRetryScheduler builds the configured saga retry scheduler and whatever delivers its retries
func startRetryScheduler(
	ctx context.Context,
	cfg *config.Config,
	db *mongo.Database,
	instr *mongodb.Instrumentation,
	publisher domain.EventPublisher,
	logger *logging.Logger,
) (saga.RetryScheduler, func(), error) {
	if cfg.Engine.Scheduler == config.SchedulerTemporal {
		tc, err := temporal.Dial(ctx, cfg.Temporal, logger.Logger)
		if err != nil {
			return nil, nil, err
		}
		w := temporal.NewWorker(tc, cfg.Temporal)
		temporalRetry.Register(w, temporalRetry.NewDeliveryActivities(publisher))
		if err := w.Start(); err != nil {
			tc.Close()
			return nil, nil, err
		}
		logger.Info("Temporal retry worker started", "taskQueue", cfg.Temporal.TaskQueue)
		return temporalRetry.NewRetryScheduler(tc, cfg.Temporal.TaskQueue), func() {
			w.Stop()
			tc.Close()
		}, nil
	}

	store := mongoRepo.NewRetryScheduleStore(db, instr)
	poller := mongoRepo.NewRetryPoller(store, publisher, logger, cfg.RetryPoller)
	if err := poller.Start(ctx); err != nil {
		return nil, nil, err
	}
	logger.Info("Retry poller started", "interval", cfg.RetryPoller.PollInterval)
	return store, func() { _ = poller.Stop() }, nil
}

func opsRouter(cfg *config.Config, m *metrics.Metrics, mongoClient *mongodb.Client, logger *logging.Logger) *gin.Engine {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	return middleware.NewOpsRouter(middleware.OpsConfig{
		ServiceName: config.ServiceName,
		Logger:      logger.Logger,
		Metrics:     m,
		Checks: map[string]middleware.Check{
			"mongodb": mongoClient.HealthCheck,
		},
	})
}
