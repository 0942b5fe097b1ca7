package api

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/payetonkawa/order-api/internal/domains/orders/adapters/consumer"
	httpapi "github.com/payetonkawa/order-api/internal/domains/orders/adapters/http"
	ordersmemory "github.com/payetonkawa/order-api/internal/domains/orders/adapters/memory"
	ordersobs "github.com/payetonkawa/order-api/internal/domains/orders/adapters/observability"
	orderspostgres "github.com/payetonkawa/order-api/internal/domains/orders/adapters/persistence/postgres"
	ordersapp "github.com/payetonkawa/order-api/internal/domains/orders/application"
	ordersports "github.com/payetonkawa/order-api/internal/domains/orders/ports"
	"github.com/payetonkawa/order-api/internal/platform/migrations"
	platformobservability "github.com/payetonkawa/order-api/internal/platform/observability"
	platformpostgres "github.com/payetonkawa/order-api/internal/platform/postgres"
	"github.com/payetonkawa/order-api/internal/platform/rabbitmq"
)

// Run boots the order HTTP API with observability, storage, and the event
// consumer wired. The broker and database are both optional at startup: the
// process degrades to an in-memory store and a no-op publisher rather than
// refusing to serve.
func Run(ctx context.Context) error {
	const serviceName = "order-api"
	instruments, shutdown, err := platformobservability.Init(ctx, serviceName)
	if err != nil {
		return fmt.Errorf("failed to initialize observability: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			instruments.Logger.Error("failed to shutdown observability", slog.String("error", err.Error()))
		}
	}()
	logger := instruments.Logger

	cfg, err := LoadConfig()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	repo, cleanupRepo := buildOrderRepository(ctx, cfg, logger)
	defer cleanupRepo()

	broker := rabbitmq.New(rabbitmq.Config{
		URL:          cfg.RabbitURL,
		Exchange:     cfg.RabbitExchange,
		ExchangeType: cfg.RabbitExchTyp,
		Prefetch:     cfg.RabbitPrefetch,
	}, logger)
	if err := broker.Connect(ctx); err != nil {
		return fmt.Errorf("failed to set up rabbitmq client: %w", err)
	}
	defer broker.Close()

	coreService := ordersapp.NewService(repo, broker, ordersapp.WithLogger(logger))
	orderService := ordersobs.New(
		coreService,
		ordersobs.WithLogger(logger),
		ordersobs.WithTracer(instruments.Tracer("internal.orders.application")),
		ordersobs.WithMeter(instruments.Meter("internal.orders.application")),
	)

	handlers := consumer.New(orderService, broker, logger)
	if err := broker.StartConsumer(ctx, cfg.RabbitQueue, cfg.ConsumerPatterns, handlers.Handle); err != nil {
		return fmt.Errorf("failed to start event consumer: %w", err)
	}

	server := httpapi.NewServer(orderService, serviceName, logger)
	engine := server.Engine()
	addr := ":" + cfg.Port
	logger.Info("order API listening", slog.String("addr", addr))
	if err := engine.Run(addr); err != nil {
		logger.Error("order API server exited", slog.String("addr", addr), slog.String("error", err.Error()))
		return err
	}
	return nil
}

func buildOrderRepository(ctx context.Context, cfg Config, logger *slog.Logger) (ordersports.Repository, func()) {
	db, cleanup := platformpostgres.TryConnect(ctx, cfg.PostgresDSN, logger)
	if db == nil {
		return ordersmemory.NewRepository(), cleanup
	}
	if err := migrations.Run(db); err != nil {
		logger.Warn("failed to run order schema migrations, falling back to memory", slog.String("error", err.Error()))
		cleanup()
		return ordersmemory.NewRepository(), func() {}
	}
	logger.Info("order repository configured with postgres")
	return orderspostgres.NewRepository(db), cleanup
}
