package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/sync/errgroup"

	_ "github.com/lib/pq" // PostgreSQL driver

	"offermart/internal/broker"
	"offermart/internal/config"
	"offermart/internal/constants"
	"offermart/internal/dedup"
	"offermart/internal/engine"
	"offermart/internal/logger"
	"offermart/internal/ops"
	"offermart/internal/store"
	"offermart/internal/validation"
	"offermart/pkg/bootstrap"
	"offermart/pkg/health"
	"offermart/pkg/logging"
	"offermart/pkg/metrics"
	"offermart/pkg/migrations"
	"offermart/pkg/models"
	"offermart/pkg/tracing"
)

type App struct {
	*bootstrap.Base
	dbConnector *bootstrap.DatabaseConnector
	redis       *redis.Client
	db          *sql.DB
	mongoClient *mongo.Client

	validationSvc  *validation.Service
	dedupSvc       *dedup.Service
	replayGuard    *dedup.ReplayGuard
	engineSvc      *engine.Service
	tracerProvider *tracing.TracerProvider
	server         *http.Server
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	if sugaredLogger, ok := log.(*logger.SugaredLogger); ok {
		sugaredLogger.SetServiceName("offer-engine")
	}
	return &App{
		Base:        bootstrap.NewBase(cfg, log),
		dbConnector: bootstrap.NewDatabaseConnector(cfg.Database, log),
	}
}

func (a *App) Initialize(ctx context.Context) error {
	if err := a.initDatabases(ctx); err != nil {
		return fmt.Errorf("failed to initialize databases: %w", err)
	}

	if err := a.InitBroker("offer-engine"); err != nil {
		return fmt.Errorf("failed to initialize broker: %w", err)
	}

	if err := a.initServices(ctx); err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}

	tp, err := tracing.Init(a.Config.Tracing, "offer-engine")
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.tracerProvider = tp

	metrics.RegisterEngineMetrics()
	metrics.RegisterBrokerMetrics()
	metrics.RegisterOpsMetrics()
	if a.Config.CircuitBreaker.Enabled {
		metrics.RegisterCircuitBreakerMetrics()
	}

	if err := a.initHTTPServer(); err != nil {
		return fmt.Errorf("failed to initialize HTTP server: %w", err)
	}

	return nil
}

func (a *App) initDatabases(ctx context.Context) error {
	rdb, err := a.dbConnector.InitRedis(ctx)
	if err != nil {
		return err
	}
	a.redis = rdb

	db, err := a.dbConnector.InitPostgreSQL(ctx)
	if err != nil {
		return err
	}
	if db == nil {
		return fmt.Errorf("postgres configuration is required")
	}
	a.db = db

	if a.Config.Database.RunMigrations {
		path := a.Config.Database.MigrationsPath
		if path == "" {
			path = "migrations/postgres"
		}
		if err := migrations.RunPostgres(a.db, path); err != nil {
			return err
		}
		a.Logger.InfowCtx(ctx, "PostgreSQL migrations applied", "path", path)
	}

	mongoClient, err := a.dbConnector.InitMongoDB(ctx)
	if err != nil {
		return err
	}
	if mongoClient == nil {
		return fmt.Errorf("mongodb configuration is required")
	}
	a.mongoClient = mongoClient

	if err := migrations.EnsureMongoCollection(ctx, a.mongoDatabase()); err != nil {
		return fmt.Errorf("failed to ensure audit collection: %w", err)
	}

	return nil
}

func (a *App) mongoDatabase() *mongo.Database {
	return a.mongoClient.Database(a.Config.Database.MongoDB.Database)
}

func (a *App) initServices(ctx context.Context) error {
	ruleRepo := validation.NewRepository(a.db)
	validationSvc, err := validation.NewService(ruleRepo, a.Config.Validation, a.Logger)
	if err != nil {
		return err
	}
	if err := validationSvc.ReloadRules(ctx); err != nil {
		a.Logger.WarnwCtx(ctx, "Initial rule load failed, starting with builtin rules only",
			"error", err,
		)
	}
	a.validationSvc = validationSvc

	a.dedupSvc = dedup.NewService(a.Config.Dedup, a.Logger)

	baseRepo := dedup.NewRepository(a.redis)
	var replayRepo dedup.Repository = baseRepo
	if a.Config.CircuitBreaker.Enabled {
		replayRepo = dedup.NewCircuitBreakerRepository(baseRepo, a.Config.CircuitBreaker)
		a.Logger.InfowCtx(ctx, "Circuit breaker enabled for replay guard repository")
	}
	a.replayGuard = dedup.NewReplayGuard(replayRepo, a.Config.Dedup.ReplayGuard, a.Logger)

	offers := store.NewOfferRepository(a.db)
	audit := store.NewAuditLog(a.mongoDatabase())

	resultTopic := a.Config.Broker.Kafka.ResultTopic
	if resultTopic == "" {
		resultTopic = constants.DefaultResultTopic
	}

	a.engineSvc = engine.NewService(
		a.validationSvc,
		a.dedupSvc,
		a.replayGuard,
		offers,
		audit,
		a.Producer,
		resultTopic,
		a.Logger,
	)

	return nil
}

func (a *App) initHTTPServer() error {
	router := ops.NewRouter(a.Config.Ops, a.Logger)

	healthRegistry := health.NewCheckerRegistry()
	healthRegistry.Register(health.NewPostgreSQLChecker(a.db))
	healthRegistry.Register(health.NewRedisChecker(a.redis))
	healthRegistry.Register(health.NewMongoDBChecker(a.mongoClient))

	handler := ops.NewHandler(a.validationSvc, a.dedupSvc, healthRegistry, a.Logger)
	handler.RegisterRoutes(router)

	a.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler: router,
	}
	return nil
}

func (a *App) Run(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Logger.InfowCtx(ctx, "HTTP server starting", "port", a.Config.Server.Port)
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return a.validationSvc.StartReloader(gCtx)
	})

	g.Go(func() error {
		a.replayGuard.ReportCacheSize(gCtx, constants.ReplayCacheSizeReportPeriod)
		return nil
	})

	a.startConfigConsumer(gCtx, g)

	inputTopic := a.Config.Broker.Kafka.InputTopic
	if inputTopic == "" {
		inputTopic = constants.DefaultInputTopic
	}

	g.Go(func() error {
		return a.Consumer.Consume(gCtx, inputTopic, a.engineSvc.ProcessBatch)
	})

	return g.Wait()
}

// startConfigConsumer listens for rule and policy updates. Both
// handlers filter on event and service type, so they can share one
// topic subscription.
func (a *App) startConfigConsumer(gCtx context.Context, g *errgroup.Group) {
	if a.Config.Broker.Type != "kafka" || a.Config.Broker.Kafka.ConfigUpdateTopic == "" {
		return
	}

	configConsumer, err := broker.NewConsumer(a.Config.Broker, a.Logger)
	if err != nil {
		a.Logger.WarnwCtx(gCtx, "Failed to create config event consumer, event-driven reload disabled",
			"error", err,
		)
		return
	}
	configConsumer.SetServiceName("offer-engine")

	validationHandler := validation.NewHandler(a.validationSvc, a.Logger)
	dedupHandler := dedup.NewHandler(a.dedupSvc, a.Logger)

	g.Go(func() error {
		defer configConsumer.Close()
		a.Logger.InfowCtx(gCtx, "Starting config update event consumer",
			"topic", a.Config.Broker.Kafka.ConfigUpdateTopic,
		)
		return configConsumer.Consume(gCtx, a.Config.Broker.Kafka.ConfigUpdateTopic, func(cCtx context.Context, msg models.MessageEnvelope) error {
			if err := validationHandler.HandleConfigUpdateEvent(cCtx, msg); err != nil {
				return err
			}
			return dedupHandler.HandleConfigUpdateEvent(cCtx, msg)
		})
	})
}

func (a *App) Shutdown(ctx context.Context) error {
	shutdownCtx := logging.WithServiceName(ctx, "offer-engine")
	a.Logger.InfowCtx(shutdownCtx, "Shutting down offer engine")

	additionalShutdown := func(ctx context.Context) []error {
		var errs []error

		if a.server != nil {
			serverCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
			defer cancel()
			if err := a.server.Shutdown(serverCtx); err != nil {
				errs = append(errs, fmt.Errorf("HTTP server shutdown error: %w", err))
			}
		}

		if a.tracerProvider != nil {
			if err := a.tracerProvider.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("tracer provider shutdown error: %w", err))
			}
		}

		errs = append(errs, a.dbConnector.ShutdownDatabases(ctx, a.redis, a.db, a.mongoClient)...)

		return errs
	}

	return a.Base.Shutdown(ctx, additionalShutdown)
}
