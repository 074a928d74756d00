// Package main provides the change feed worker entry point.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/lllypuk/claimservice/internal/config"
	"github.com/lllypuk/claimservice/internal/infrastructure/eventbus"
	"github.com/lllypuk/claimservice/internal/infrastructure/healthcheck"
	"github.com/lllypuk/claimservice/internal/infrastructure/httpserver"
	"github.com/lllypuk/claimservice/internal/infrastructure/metrics"
	mongodbinfra "github.com/lllypuk/claimservice/internal/infrastructure/mongodb"
	"github.com/lllypuk/claimservice/internal/infrastructure/repository/mongodb"
	"github.com/lllypuk/claimservice/internal/worker"
)

// Timeout constants for worker service.
const (
	redisPingTimeout       = 5 * time.Second
	mongoDisconnectTimeout = 10 * time.Second
)

var errNoEventBus = errors.New("event_bus.type must be redis or kafka for the change feed worker")

func main() {
	cfg, err := config.Load()
	if err != nil {
		//nolint:sloglint // No context available before logger setup
		slog.Error("failed to load configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger := setupLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	if runErr := run(ctx, cfg, logger); runErr != nil {
		logger.Error("worker stopped with error", slog.String("error", runErr.Error()))
		stop()
		os.Exit(1) //nolint:gocritic // stop() called before exit
	}
	logger.Info("worker service shutdown complete")
}

//nolint:funlen // Startup orchestration reads top to bottom
func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	logger.InfoContext(ctx, "starting claimservice change feed worker",
		slog.String("environment", cfg.App.Env),
		slog.String("event_bus", cfg.EventBus.Type),
	)

	mongoClient, err := connectMongoDB(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("mongodb: %w", err)
	}
	defer func() {
		disconnectCtx, cancel := context.WithTimeout(context.Background(), mongoDisconnectTimeout)
		defer cancel()
		if disconnectErr := mongoClient.Disconnect(disconnectCtx); disconnectErr != nil {
			logger.Error("failed to disconnect from MongoDB", slog.String("error", disconnectErr.Error()))
		}
	}()
	db := mongoClient.Database(cfg.MongoDB.Database)

	health := healthcheck.NewAggregator(healthcheck.WithLogger(logger))
	health.Register(healthcheck.NewMongoChecker(mongoClient))

	var redisClient *redis.Client
	if cfg.EventBus.Type == config.EventBusRedis {
		redisClient, err = connectRedis(ctx, cfg, logger)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		defer func() { _ = redisClient.Close() }()
		health.Register(healthcheck.NewRedisChecker(redisClient))
	}
	if cfg.EventBus.Type == config.EventBusKafka {
		health.Register(healthcheck.NewKafkaChecker(cfg.EventBus.KafkaBrokers))
	}

	subscriber, err := newSubscriber(cfg, redisClient, logger)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	changeFeed := worker.NewChangeFeedWorker(
		subscriber,
		mongodb.NewChangeLogRepository(db, logger),
		logger,
		worker.ChangeFeedConfig{
			Enabled:  cfg.Worker.ChangeFeedEnabled,
			Entities: cfg.Worker.Entities,
		},
		metrics.NewChangeFeedMetrics(registry),
	)

	server := newOpsServer(cfg, logger, health, registry)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	workCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	fail := func(name string, runErr error) {
		if runErr == nil {
			return
		}
		logger.Error(name+" error", slog.String("error", runErr.Error()))
		mu.Lock()
		if firstErr == nil {
			firstErr = runErr
		}
		mu.Unlock()
		cancel()
	}

	wg.Add(2)
	go func() {
		defer wg.Done()
		fail("change feed worker", changeFeed.Run(workCtx))
		// The ops server has nothing to report once the feed is gone.
		cancel()
	}()
	go func() {
		defer wg.Done()
		fail("ops server", server.Run(workCtx))
	}()
	wg.Wait()

	return firstErr
}

// newSubscriber picks the change feed source from the event bus type.
func newSubscriber(cfg *config.Config, redisClient redis.UniversalClient, logger *slog.Logger) (worker.Subscriber, error) {
	opts := []eventbus.Option{
		eventbus.WithLogger(logger),
		eventbus.WithChannelPrefix(cfg.EventBus.RedisChannelPrefix),
	}

	switch cfg.EventBus.Type {
	case config.EventBusRedis:
		if redisClient == nil {
			return nil, errors.New("redis client is required for the redis event bus")
		}
		return eventbus.NewRedisSubscriber(redisClient, opts...), nil
	case config.EventBusKafka:
		return eventbus.NewKafkaSubscriber(eventbus.KafkaConfig{
			Brokers: cfg.EventBus.KafkaBrokers,
			Topic:   cfg.EventBus.KafkaTopic,
			GroupID: cfg.EventBus.KafkaGroupID,
		}, opts...)
	default:
		return nil, errNoEventBus
	}
}

// newOpsServer serves the worker's health and metrics endpoints.
func newOpsServer(
	cfg *config.Config,
	logger *slog.Logger,
	health *healthcheck.Aggregator,
	gatherer prometheus.Gatherer,
) *httpserver.Server {
	server := httpserver.NewServer(httpserver.ServerConfig{
		Host:            cfg.Server.Host,
		Port:            cfg.Worker.Port,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, logger)

	e := server.Echo()
	httpserver.NewHealthEndpoints(health, httpserver.WithServiceName(cfg.App.Name+"-worker")).Register(e)
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	return server
}

// setupLogger creates and configures the structured logger based on configuration.
func setupLogger(cfg *config.Config) *slog.Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level:     parseLogLevel(cfg.Log.Level),
		AddSource: cfg.IsDevelopment(),
	}

	switch strings.ToLower(cfg.Log.Format) {
	case "text":
		handler = slog.NewTextHandler(os.Stdout, opts)
	default:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	logger := slog.New(handler).With(slog.String("service", cfg.App.Name+"-worker"))
	slog.SetDefault(logger)

	return logger
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// connectMongoDB establishes a connection to MongoDB and ensures indexes.
func connectMongoDB(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*mongo.Client, error) {
	clientOpts := options.Client().
		ApplyURI(cfg.MongoDB.URI).
		SetMaxPoolSize(cfg.MongoDB.MaxPoolSize)

	client, err := mongo.Connect(clientOpts)
	if err != nil {
		return nil, err
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, cfg.MongoDB.Timeout)
	defer pingCancel()

	if pingErr := client.Ping(pingCtx, nil); pingErr != nil {
		_ = client.Disconnect(context.Background())
		return nil, pingErr
	}

	if indexErr := mongodbinfra.CreateCollectionIndexes(
		pingCtx, client.Database(cfg.MongoDB.Database), mongodbinfra.CollectionChangeLog,
	); indexErr != nil {
		_ = client.Disconnect(context.Background())
		return nil, indexErr
	}

	logger.InfoContext(ctx, "connected to MongoDB",
		slog.String("database", cfg.MongoDB.Database),
	)

	return client, nil
}

func connectRedis(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})

	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}

	logger.InfoContext(ctx, "connected to Redis", slog.String("addr", cfg.Redis.Addr))
	return client, nil
}
