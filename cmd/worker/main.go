package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tabletop-shop/shop-engine/internal/activities"
	"github.com/tabletop-shop/shop-engine/internal/application"
	"github.com/tabletop-shop/shop-engine/internal/infrastructure/catalog"
	"github.com/tabletop-shop/shop-engine/internal/infrastructure/character"
	mongoRepo "github.com/tabletop-shop/shop-engine/internal/infrastructure/mongodb"
	"github.com/tabletop-shop/shop-engine/internal/workflows"
	"github.com/tabletop-shop/shop-engine/pkg/cloudevents"
	"github.com/tabletop-shop/shop-engine/pkg/logging"
	"github.com/tabletop-shop/shop-engine/pkg/metrics"
	"github.com/tabletop-shop/shop-engine/pkg/mongodb"
	outboxMongo "github.com/tabletop-shop/shop-engine/pkg/outbox/mongodb"
	"github.com/tabletop-shop/shop-engine/pkg/temporal"
	"github.com/tabletop-shop/shop-engine/pkg/tracing"
)

const serviceName = "shop-engine-worker"

func main() {
	logger := logging.New(logging.DefaultConfig(serviceName))
	logger.SetDefault()

	logger.Info("Starting checkout worker")

	config := loadConfig()
	ctx := context.Background()

	tracerProvider, err := tracing.Initialize(ctx, config.Tracing)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize tracing")
	} else if tracerProvider != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = tracerProvider.Shutdown(shutdownCtx)
		}()
	}

	m := metrics.New(metrics.DefaultConfig(serviceName))

	mongoClient, err := mongodb.NewClient(ctx, config.MongoDB, m)
	if err != nil {
		logger.WithError(err).Error("Failed to connect to MongoDB")
		os.Exit(1)
	}
	defer mongoClient.Close(ctx)

	// Events staged here are relayed to Kafka by the API's outbox publisher.
	db := mongoClient.Database()
	outboxRepo := outboxMongo.NewOutboxRepository(db)
	eventFactory := cloudevents.NewEventFactory(cloudevents.SourceCheckout)
	transactor := mongoClient.Transactor()
	shopRepo := mongoRepo.NewShopRepository(db, transactor, outboxRepo, eventFactory)
	basketRepo := mongoRepo.NewBasketStateRepository(db, transactor, outboxRepo, eventFactory)
	receiptRepo := mongoRepo.NewReceiptRepository(db, transactor, outboxRepo, eventFactory)
	ledgerRepo := mongoRepo.NewLedgerRepository(db, transactor, outboxRepo, eventFactory)

	catalogStore, err := catalog.Load(config.CatalogPath)
	if err != nil {
		logger.WithError(err).Error("Failed to load catalog", "path", config.CatalogPath)
		os.Exit(1)
	}

	characterClient := character.NewClient(config.Character, logger, m)

	stockService := application.NewStockService(shopRepo, catalogStore, catalogStore, logger, m)
	basketService := application.NewBasketService(basketRepo, shopRepo, characterClient, logger, m)
	receiptService := application.NewReceiptService(receiptRepo, ledgerRepo, logger, m)

	checkoutActivities := activities.NewCheckoutActivities(
		basketService,
		stockService,
		receiptService,
		characterClient,
		logger,
		m,
	)

	temporalClient, err := temporal.NewClient(config.Temporal, logger.Logger)
	if err != nil {
		logger.WithError(err).Error("Failed to create Temporal client")
		os.Exit(1)
	}
	defer temporalClient.Close()
	logger.Info("Connected to Temporal", "hostPort", config.Temporal.HostPort, "namespace", config.Temporal.Namespace)

	w := temporalClient.NewWorker(temporal.DefaultWorkerOptions(temporal.TaskQueues.Checkout))
	w.RegisterWorkflow(workflows.CheckoutWorkflow)
	w.RegisterActivity(checkoutActivities)
	logger.Info("Registered workflows", "workflows", []string{temporal.WorkflowNames.Checkout})

	if err := w.Start(); err != nil {
		logger.WithError(err).Error("Failed to start worker")
		os.Exit(1)
	}
	logger.Info("Worker started", "taskQueue", temporal.TaskQueues.Checkout)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down worker...")

	w.Stop()
	logger.Info("Worker stopped")
}

// Config holds worker configuration
type Config struct {
	CatalogPath string
	MongoDB     *mongodb.Config
	Temporal    *temporal.Config
	Tracing     *tracing.Config
	Character   *character.Config
}

func loadConfig() *Config {
	return &Config{
		CatalogPath: getEnv("CATALOG_PATH", ""),
		MongoDB:     mongodb.DefaultConfig(),
		Temporal:    temporal.DefaultConfig(serviceName),
		Tracing:     tracing.DefaultConfig(serviceName),
		Character:   character.DefaultConfig(),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
