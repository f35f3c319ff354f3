package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/tabletop-shop/shop-engine/api"
	"github.com/tabletop-shop/shop-engine/internal/api/handlers"
	"github.com/tabletop-shop/shop-engine/internal/application"
	"github.com/tabletop-shop/shop-engine/internal/infrastructure/catalog"
	"github.com/tabletop-shop/shop-engine/internal/infrastructure/character"
	mongoRepo "github.com/tabletop-shop/shop-engine/internal/infrastructure/mongodb"
	"github.com/tabletop-shop/shop-engine/pkg/cloudevents"
	"github.com/tabletop-shop/shop-engine/pkg/contracts/openapi"
	"github.com/tabletop-shop/shop-engine/pkg/kafka"
	"github.com/tabletop-shop/shop-engine/pkg/logging"
	"github.com/tabletop-shop/shop-engine/pkg/metrics"
	"github.com/tabletop-shop/shop-engine/pkg/mongodb"
	"github.com/tabletop-shop/shop-engine/pkg/outbox"
	outboxMongo "github.com/tabletop-shop/shop-engine/pkg/outbox/mongodb"
	"github.com/tabletop-shop/shop-engine/pkg/temporal"
	"github.com/tabletop-shop/shop-engine/pkg/tracing"
)

const serviceName = "shop-engine-api"

func main() {
	logger := logging.New(logging.DefaultConfig(serviceName))
	logger.SetDefault()

	logger.Info("Starting shop engine API")

	config := loadConfig()
	ctx := context.Background()

	tracerProvider, err := tracing.Initialize(ctx, config.Tracing)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize tracing")
		// Continue without tracing
	} else if tracerProvider != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
				logger.WithError(err).Error("Failed to shutdown tracer")
			}
		}()
		logger.Info("Tracing initialized", "endpoint", config.Tracing.OTLPEndpoint)
	}

	m := metrics.New(metrics.DefaultConfig(serviceName))

	mongoClient, err := mongodb.NewClient(ctx, config.MongoDB, m)
	if err != nil {
		logger.WithError(err).Error("Failed to connect to MongoDB")
		os.Exit(1)
	}
	defer mongoClient.Close(ctx)
	logger.Info("Connected to MongoDB", "database", config.MongoDB.Database)

	db := mongoClient.Database()
	outboxRepo := outboxMongo.NewOutboxRepository(db)
	if err := outboxRepo.EnsureIndexes(ctx); err != nil {
		logger.WithError(err).Warn("Failed to ensure outbox indexes")
	}

	producer, baseProducer := kafka.NewProductionProducer(config.Kafka, m, logger)
	defer baseProducer.Close()
	logger.Info("Kafka producer initialized", "brokers", config.Kafka.Brokers)

	outboxPublisher := outbox.NewPublisher(outboxRepo, producer, logger, m, outbox.DefaultPublisherConfig())
	if err := outboxPublisher.Start(ctx); err != nil {
		logger.WithError(err).Error("Failed to start outbox publisher")
		os.Exit(1)
	}
	defer outboxPublisher.Stop()

	eventFactory := cloudevents.NewEventFactory(cloudevents.SourceShopAPI)
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
	logger.Info("Catalog loaded", "items", catalogStore.Len(), "presets", catalogStore.PresetNames())

	characterClient := character.NewClient(config.Character, logger, m)

	temporalClient, err := temporal.NewClient(config.Temporal, logger.Logger)
	if err != nil {
		logger.WithError(err).Error("Failed to connect to Temporal")
		os.Exit(1)
	}
	defer temporalClient.Close()
	logger.Info("Connected to Temporal", "namespace", config.Temporal.Namespace)

	stockService := application.NewStockService(shopRepo, catalogStore, catalogStore, logger, m)
	basketService := application.NewBasketService(basketRepo, shopRepo, characterClient, logger, m)
	checkoutService := application.NewCheckoutService(basketService, temporalClient, logger, m)
	receiptService := application.NewReceiptService(receiptRepo, ledgerRepo, logger, m)

	validator, err := openapi.NewValidatorFromBytes(api.OpenAPISpec)
	if err != nil {
		logger.WithError(err).Error("Failed to load API contract")
		os.Exit(1)
	}

	router := newRouter(routerDeps{
		logger:    logger,
		metrics:   m,
		validator: validator,
		ready: func() error {
			return mongoClient.HealthCheck(ctx)
		},
		origins: config.AllowedOrigins,
		registrars: []routeRegistrar{
			handlers.NewShopHandlers(stockService, logger),
			handlers.NewBasketHandlers(basketService, checkoutService, logger),
			handlers.NewReceiptHandlers(receiptService, logger),
		},
	})

	srv := &http.Server{
		Addr:         config.ServerAddr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("Server error")
		}
	}()
	logger.Info("Server started", "addr", config.ServerAddr)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}

	logger.Info("Server stopped")
}

// Config holds application configuration
type Config struct {
	ServerAddr     string
	CatalogPath    string
	AllowedOrigins []string
	MongoDB        *mongodb.Config
	Kafka          *kafka.Config
	Temporal       *temporal.Config
	Tracing        *tracing.Config
	Character      *character.Config
}

func loadConfig() *Config {
	return &Config{
		ServerAddr:     getEnv("SERVER_ADDR", ":8040"),
		CatalogPath:    getEnv("CATALOG_PATH", ""),
		AllowedOrigins: splitList(getEnv("CORS_ALLOWED_ORIGINS", "")),
		MongoDB:        mongodb.DefaultConfig(),
		Kafka:          kafka.DefaultConfig(),
		Temporal:       temporal.DefaultConfig(serviceName),
		Tracing:        tracing.DefaultConfig(serviceName),
		Character:      character.DefaultConfig(),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
