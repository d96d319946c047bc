package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/nick-amizich/zmf-production-dashboard-sub003/internal/application"
	"github.com/nick-amizich/zmf-production-dashboard-sub003/internal/changefeed"
	"github.com/nick-amizich/zmf-production-dashboard-sub003/internal/domain"
	"github.com/nick-amizich/zmf-production-dashboard-sub003/internal/infrastructure/changes"
	"github.com/nick-amizich/zmf-production-dashboard-sub003/internal/infrastructure/clients"
	"github.com/nick-amizich/zmf-production-dashboard-sub003/internal/infrastructure/messaging"
	mongoRepo "github.com/nick-amizich/zmf-production-dashboard-sub003/internal/infrastructure/mongodb"
	"github.com/nick-amizich/zmf-production-dashboard-sub003/internal/infrastructure/roster"
	"github.com/nick-amizich/zmf-production-dashboard-sub003/internal/infrastructure/sqlite"
	"github.com/nick-amizich/zmf-production-dashboard-sub003/pkg/cloudevents"
	"github.com/nick-amizich/zmf-production-dashboard-sub003/pkg/idempotency"
	"github.com/nick-amizich/zmf-production-dashboard-sub003/pkg/kafka"
	"github.com/nick-amizich/zmf-production-dashboard-sub003/pkg/logging"
	"github.com/nick-amizich/zmf-production-dashboard-sub003/pkg/metrics"
	"github.com/nick-amizich/zmf-production-dashboard-sub003/pkg/mongodb"
	"github.com/nick-amizich/zmf-production-dashboard-sub003/pkg/outbox"
	"github.com/nick-amizich/zmf-production-dashboard-sub003/pkg/tracing"
)

func main() {
	// Setup enhanced logger
	logConfig := logging.DefaultConfig(serviceName)
	logConfig.Level = logging.LogLevel(getEnv("LOG_LEVEL", "info"))
	logger := logging.New(logConfig)
	logger.SetDefault()

	logger.Info("Starting production-service API")

	config := loadConfig()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize OpenTelemetry tracing
	tracingConfig := tracing.DefaultConfig(serviceName)
	tracingConfig.OTLPEndpoint = getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317")
	tracingConfig.Environment = config.Environment
	tracingConfig.Enabled = getEnv("TRACING_ENABLED", "true") == "true"
	if rate, err := strconv.ParseFloat(getEnv("TRACING_SAMPLE_RATE", "1"), 64); err == nil {
		tracingConfig.SampleRate = rate
	}

	tracerProvider, err := tracing.Initialize(ctx, tracingConfig)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize tracing")
		// Continue without tracing - don't exit
	} else if tracerProvider != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
				logger.WithError(err).Error("Failed to shutdown tracer")
			}
		}()
		logger.Info("Tracing initialized", "endpoint", tracingConfig.OTLPEndpoint)
	}

	m := metrics.New(metrics.DefaultConfig(serviceName))
	logger.Info("Metrics initialized")

	eventFactory := cloudevents.NewEventFactory(cloudevents.SourceProduction)
	builder := changes.NewBuilder(eventFactory)

	st, err := openStore(ctx, config, builder, m, logger)
	if err != nil {
		logger.WithError(err).Error("Failed to open store", "driver", config.StoreDriver)
		os.Exit(1)
	}
	defer st.close()
	logger.Info("Store ready", "driver", config.StoreDriver)

	bus := changefeed.NewBus(0, m, logger)
	defer bus.Close()

	// Change delivery: Kafka when configured, otherwise straight onto the bus
	var (
		producer outbox.EventProducer = changefeed.NewBusProducer(bus)
		notifier domain.Notifier      = messaging.NewLogNotifier(logger)
	)
	if config.Kafka != nil {
		kafkaProducer := kafka.NewProductionProducer(config.Kafka, m, logger)
		defer kafkaProducer.Close()
		producer = kafkaProducer
		notifier = messaging.NewEventNotifier(kafkaProducer, eventFactory)

		bridge := messaging.NewBridge(config.Kafka, bus, m, logger)
		defer bridge.Close()
		go func() {
			if err := bridge.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.WithError(err).Error("Changefeed bridge stopped")
			}
		}()
		logger.Info("Kafka initialized", "brokers", config.Kafka.Brokers, "bridgeGroup", bridge.Group())
	}

	outboxPublisher := outbox.NewPublisher(
		st.outbox,
		producer,
		logger,
		m,
		&outbox.PublisherConfig{
			PollInterval: 500 * time.Millisecond,
			BatchSize:    100,
		},
	)
	if err := outboxPublisher.Start(ctx); err != nil {
		logger.WithError(err).Error("Failed to start outbox publisher")
		os.Exit(1)
	}
	defer outboxPublisher.Stop()
	logger.Info("Outbox publisher started")

	collab, err := newCollaborators(config, m, logger)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize collaborators")
		os.Exit(1)
	}

	// Initialize application services
	pipelineService := application.NewPipelineService(st.app, collab.orders, collab.quality, logger,
		application.WithMetrics(m))
	assignmentService := application.NewAssignmentService(st.app, collab.workers, notifier, logger,
		application.WithMetrics(m))

	projection := changefeed.NewPipelineProjection(logger)
	go followPipeline(ctx, bus, projection, pipelineService.ActiveBatches, logger)

	router := newRouter(&routerDeps{
		Pipeline:    pipelineService,
		Assignments: assignmentService,
		Bus:         bus,
		Projection:  projection,
		Idempotency: st.idempotency,
		Metrics:     m,
		Logger:      logger,
		Ready:       st.health,
	})

	// Change streams are long-lived, so only reads are bounded
	srv := &http.Server{
		Addr:              config.ServerAddr,
		Handler:           router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	// Graceful shutdown
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server error", "error", err)
		}
	}()
	logger.Info("Server started", "addr", config.ServerAddr)

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	// ends change streams and background loops before the server drains
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}

	logger.Info("Server stopped")
}

// storeBundle is the selected store with its outbox and idempotency keys
type storeBundle struct {
	app         application.Store
	outbox      outbox.Repository
	idempotency idempotency.KeyRepository
	health      func(ctx context.Context) error
	close       func()
}

func openStore(ctx context.Context, config *Config, builder *changes.Builder, m *metrics.Metrics, logger *logging.Logger) (*storeBundle, error) {
	switch config.StoreDriver {
	case storeSQLite:
		store, err := sqlite.Open(ctx, sqlite.Config{
			Path:    config.SQLitePath,
			Builder: builder,
			Metrics: m,
			Logger:  logger,
		})
		if err != nil {
			return nil, err
		}
		return &storeBundle{
			app: application.Store{
				Batches:     sqlite.NewBatchRepository(store),
				Assignments: sqlite.NewAssignmentRepository(store),
				WorkerLoads: sqlite.NewWorkerLoadRepository(store),
				Transactor:  store,
			},
			outbox:      sqlite.NewOutboxRepository(store),
			idempotency: sqlite.NewIdempotencyRepository(store),
			health:      store.HealthCheck,
			close:       func() { _ = store.Close() },
		}, nil

	case storeMongoDB:
		client, err := mongodb.NewClient(ctx, config.MongoDB)
		if err != nil {
			return nil, err
		}
		store := mongoRepo.NewStore(client, builder, m, logger)
		if err := store.EnsureIndexes(ctx); err != nil {
			_ = client.Close(ctx)
			return nil, err
		}

		keys := idempotency.NewMongoKeyRepository(client.Database())
		if err := keys.EnsureIndexes(ctx); err != nil {
			logger.WithError(err).Warn("Failed to initialize idempotency indexes")
		}

		return &storeBundle{
			app: application.Store{
				Batches:     mongoRepo.NewBatchRepository(store),
				Assignments: mongoRepo.NewAssignmentRepository(store),
				WorkerLoads: mongoRepo.NewWorkerLoadRepository(store),
				Transactor:  store,
			},
			outbox:      store.Outbox(),
			idempotency: keys,
			health:      store.HealthCheck,
			close: func() {
				closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = client.Close(closeCtx)
			},
		}, nil

	default:
		return nil, fmt.Errorf("unknown store driver %q", config.StoreDriver)
	}
}

// collaborators are the order, quality and labor sources
type collaborators struct {
	orders  domain.OrderSource
	quality domain.QualityGate
	workers domain.WorkerDirectory
}

func newCollaborators(config *Config, m *metrics.Metrics, logger *logging.Logger) (*collaborators, error) {
	if config.RosterPath != "" {
		r, err := roster.Load(config.RosterPath)
		if err != nil {
			return nil, err
		}
		logger.Info("Using static roster", "path", config.RosterPath, "workers", len(r.Workers()))
		return &collaborators{orders: r, quality: r, workers: r}, nil
	}

	return &collaborators{
		orders:  clients.NewOrderServiceClient(config.Clients, m, logger),
		quality: clients.NewQualityServiceClient(config.Clients, m, logger),
		workers: clients.NewLaborServiceClient(config.Clients, m, logger),
	}, nil
}

// followPipeline keeps projection in step with the batch channel. A dropped
// subscription is replaced and the projection reloaded from the store.
func followPipeline(ctx context.Context, bus *changefeed.Bus, projection *changefeed.PipelineProjection, load func(context.Context) ([]*domain.Batch, error), logger *logging.Logger) {
	logger = logger.WithComponent("pipeline-projection")

	for ctx.Err() == nil {
		// subscribe first so nothing committed after the load is missed
		sub := bus.Subscribe(changefeed.EntityBatches)

		batches, err := load(ctx)
		if err != nil {
			logger.WithError(err).Warn("Failed to load active batches")
		} else {
			projection.Reseed(batches)
		}

		projection.Run(ctx, sub)
		sub.Close()

		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Second):
			logger.Warn("Pipeline projection subscription ended, reseeding")
		}
	}
}
