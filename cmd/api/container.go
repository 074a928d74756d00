// Package main provides the API server entry point.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/lllypuk/claimservice/internal/application/crud"
	"github.com/lllypuk/claimservice/internal/config"
	"github.com/lllypuk/claimservice/internal/domain/entity"
	"github.com/lllypuk/claimservice/internal/domain/event"
	"github.com/lllypuk/claimservice/internal/domain/model"
	"github.com/lllypuk/claimservice/internal/infrastructure/eventbus"
	"github.com/lllypuk/claimservice/internal/infrastructure/healthcheck"
	"github.com/lllypuk/claimservice/internal/infrastructure/keycloak"
	"github.com/lllypuk/claimservice/internal/infrastructure/metrics"
	mongodbinfra "github.com/lllypuk/claimservice/internal/infrastructure/mongodb"
	"github.com/lllypuk/claimservice/internal/infrastructure/repository/memory"
	"github.com/lllypuk/claimservice/internal/infrastructure/repository/mongodb"
	"github.com/lllypuk/claimservice/internal/middleware"
)

// Container initialization timeouts.
const (
	containerInitTimeout   = 30 * time.Second
	redisPingTimeout       = 5 * time.Second
	mongoDisconnectTimeout = 10 * time.Second
)

const rateLimitKeyPrefix = "claimservice:ratelimit:"

// Container holds all application dependencies and manages their lifecycle.
type Container struct {
	Config *config.Config
	Logger *slog.Logger

	// Infrastructure, nil in mock mode
	MongoDB *mongo.Client
	Redis   *redis.Client

	Catalog  *entity.Catalog
	Store    crud.Store
	EventBus event.Bus
	Registry *crud.Registry

	MetricsRegistry *prometheus.Registry
	RecordMetrics   *metrics.RecordMetrics
	Health          *healthcheck.Aggregator

	TokenValidator middleware.TokenValidator
	JWTValidator   keycloak.JWTValidator // closed on shutdown
	RateLimitStore middleware.RateLimitStore

	closers []namedCloser
}

type namedCloser struct {
	name   string
	closer io.Closer
}

// ContainerOption configures the Container.
type ContainerOption func(*Container)

// WithLogger sets a custom logger for the container.
func WithLogger(logger *slog.Logger) ContainerOption {
	return func(c *Container) {
		c.Logger = logger
	}
}

// NewContainer creates a new dependency injection container.
// The wiring mode (real/mock) is determined by config.App.Mode.
func NewContainer(cfg *config.Config, opts ...ContainerOption) (*Container, error) {
	c := &Container{
		Config:  cfg,
		Logger:  slog.Default(),
		Catalog: model.NewCatalog(),
	}

	for _, opt := range opts {
		opt(c)
	}

	c.logWiringMode()
	c.setupMetrics()
	c.Health = healthcheck.NewAggregator(healthcheck.WithLogger(c.Logger))

	if err := c.setupInfrastructure(); err != nil {
		// Clean up any partially initialized resources
		_ = c.Close()
		return nil, fmt.Errorf("failed to setup infrastructure: %w", err)
	}

	if err := c.setupEventBus(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("failed to setup event bus: %w", err)
	}

	if err := c.setupTokenValidator(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("failed to setup token validator: %w", err)
	}

	c.setupRateLimitStore()
	c.setupRegistry()

	if err := c.validateWiring(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("wiring validation failed: %w", err)
	}

	return c, nil
}

func (c *Container) logWiringMode() {
	mode := c.Config.App.Mode
	if mode == "" {
		mode = config.AppModeReal
	}

	if c.Config.App.IsMockMode() {
		c.Logger.Warn("running in MOCK mode, records are kept in memory only",
			slog.String("mode", string(mode)),
		)
		return
	}
	c.Logger.Info("running in REAL mode", slog.String("mode", string(mode)))
}

func (c *Container) validateWiring() error {
	var errs []error
	if c.Store == nil {
		errs = append(errs, errors.New("record store not initialized"))
	}
	if c.Registry == nil {
		errs = append(errs, errors.New("service registry not initialized"))
	}
	if c.TokenValidator == nil {
		errs = append(errs, errors.New("token validator not initialized"))
	}
	if c.Config.App.IsRealMode() && (c.MongoDB == nil || c.Redis == nil) {
		errs = append(errs, errors.New("real mode requires MongoDB and Redis"))
	}
	return errors.Join(errs...)
}

func (c *Container) setupMetrics() {
	c.MetricsRegistry = prometheus.NewRegistry()
	c.MetricsRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	c.RecordMetrics = metrics.NewRecordMetrics(c.MetricsRegistry)
}

// setupInfrastructure picks the record store for the wiring mode.
func (c *Container) setupInfrastructure() error {
	if c.Config.App.IsMockMode() {
		c.Store = memory.NewRecordStore(c.Catalog)
		c.Health.Register(healthcheck.NewFuncChecker("memory_store", func(context.Context) error {
			return nil
		}))
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), containerInitTimeout)
	defer cancel()

	if err := c.setupMongoDB(ctx); err != nil {
		return fmt.Errorf("mongodb: %w", err)
	}
	if err := c.setupRedis(ctx); err != nil {
		return fmt.Errorf("redis: %w", err)
	}

	c.Store = mongodb.NewRecordRepository(
		c.MongoDB.Database(c.Config.MongoDB.Database),
		c.Catalog,
		mongodb.WithRecordRepoLogger(c.Logger),
	)
	c.Health.Register(healthcheck.NewMongoChecker(c.MongoDB))
	c.Health.Register(healthcheck.NewRedisChecker(c.Redis))
	return nil
}

func (c *Container) setupMongoDB(ctx context.Context) error {
	clientOpts := options.Client().
		ApplyURI(c.Config.MongoDB.URI).
		SetMaxPoolSize(c.Config.MongoDB.MaxPoolSize)

	client, connectErr := mongo.Connect(clientOpts)
	if connectErr != nil {
		return fmt.Errorf("failed to connect: %w", connectErr)
	}
	c.MongoDB = client

	pingCtx, cancel := context.WithTimeout(ctx, c.Config.MongoDB.Timeout)
	defer cancel()

	if pingErr := client.Ping(pingCtx, nil); pingErr != nil {
		return fmt.Errorf("failed to ping: %w", pingErr)
	}

	c.Logger.InfoContext(ctx, "connected to MongoDB",
		slog.String("database", c.Config.MongoDB.Database),
	)

	indexCtx, indexCancel := context.WithTimeout(ctx, c.Config.MongoDB.Timeout)
	defer indexCancel()

	if indexErr := mongodbinfra.EnsureIndexes(indexCtx, client.Database(c.Config.MongoDB.Database)); indexErr != nil {
		return fmt.Errorf("failed to create indexes: %w", indexErr)
	}

	c.Logger.InfoContext(ctx, "MongoDB indexes ensured")
	return nil
}

func (c *Container) setupRedis(ctx context.Context) error {
	c.Redis = redis.NewClient(&redis.Options{
		Addr:     c.Config.Redis.Addr,
		Password: c.Config.Redis.Password,
		DB:       c.Config.Redis.DB,
		PoolSize: c.Config.Redis.PoolSize,
	})

	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()

	if pingErr := c.Redis.Ping(pingCtx).Err(); pingErr != nil {
		return fmt.Errorf("failed to ping: %w", pingErr)
	}

	c.Logger.InfoContext(ctx, "connected to Redis", slog.String("addr", c.Config.Redis.Addr))
	return nil
}

// setupEventBus wires the change publisher. With type none, changes are not
// published at all.
func (c *Container) setupEventBus() error {
	cfg := c.Config.EventBus
	busOpts := []eventbus.Option{
		eventbus.WithLogger(c.Logger),
		eventbus.WithChannelPrefix(cfg.RedisChannelPrefix),
	}

	switch cfg.Type {
	case config.EventBusRedis:
		c.EventBus = eventbus.NewRedisPublisher(c.Redis, busOpts...)
	case config.EventBusKafka:
		publisher, err := eventbus.NewKafkaPublisher(eventbus.KafkaConfig{
			Brokers: cfg.KafkaBrokers,
			Topic:   cfg.KafkaTopic,
		}, busOpts...)
		if err != nil {
			return err
		}
		c.EventBus = publisher
		c.closers = append(c.closers, namedCloser{name: "kafka publisher", closer: publisher})
		c.Health.RegisterOptional(healthcheck.NewKafkaChecker(cfg.KafkaBrokers))
	default:
		c.Logger.Info("event bus disabled, record changes are not published")
		return nil
	}

	c.Logger.Info("event bus initialized", slog.String("type", cfg.Type))
	return nil
}

func (c *Container) setupTokenValidator() error {
	auth := c.Config.Auth

	var (
		validator keycloak.JWTValidator
		err       error
	)
	switch auth.Mode {
	case config.AuthModeJWT:
		validator, err = keycloak.NewHMACValidator(keycloak.HMACValidatorConfig{
			Secret:   auth.JWTSecret,
			Issuer:   auth.Issuer,
			Audience: auth.Audience,
			Leeway:   auth.Leeway,
		})
	case config.AuthModeKeycloak:
		// Audience is separate from ClientID: empty skips audience validation.
		validator, err = keycloak.NewJWTValidator(keycloak.JWTValidatorConfig{
			KeycloakURL:     auth.Keycloak.URL,
			Realm:           auth.Keycloak.Realm,
			ClientID:        auth.Audience,
			Leeway:          auth.Leeway,
			RefreshInterval: auth.Keycloak.RefreshInterval,
			Logger:          c.Logger,
		})
	default:
		c.Logger.Warn("using static token validator (development mode)")
		c.TokenValidator = middleware.NewStaticTokenValidator()
		return nil
	}
	if err != nil {
		return err
	}

	adapterOpts := make([]middleware.AdapterOption, 0, len(auth.RoleAliases))
	for realmRole, role := range c.Config.RoleAliasMap() {
		adapterOpts = append(adapterOpts, middleware.WithRoleAlias(realmRole, role))
	}

	c.JWTValidator = validator
	c.TokenValidator = middleware.NewKeycloakValidatorAdapter(validator, adapterOpts...)
	c.Logger.Info("token validator initialized", slog.String("mode", auth.Mode))
	return nil
}

func (c *Container) setupRateLimitStore() {
	if !c.Config.RateLimit.Enabled {
		return
	}
	if c.Redis != nil {
		c.RateLimitStore = middleware.NewRedisRateLimitStore(c.Redis, rateLimitKeyPrefix)
		return
	}
	c.RateLimitStore = middleware.NewMemoryRateLimitStore()
}

func (c *Container) setupRegistry() {
	opts := []crud.Option{
		crud.WithLogger(c.Logger),
		crud.WithMetrics(c.RecordMetrics),
	}
	if c.EventBus != nil {
		opts = append(opts, crud.WithEventBus(c.EventBus))
	}
	c.Registry = crud.NewRegistry(c.Catalog, c.Store, opts...)
}

// Close releases every resource the container opened.
func (c *Container) Close() error {
	c.Logger.Info("closing container resources...")

	var errs []error

	if c.JWTValidator != nil {
		if err := c.JWTValidator.Close(); err != nil {
			errs = append(errs, fmt.Errorf("jwt validator close: %w", err))
		}
	}

	for _, nc := range c.closers {
		if err := nc.closer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s close: %w", nc.name, err))
		}
	}

	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis close: %w", err))
		} else {
			c.Logger.Debug("redis connection closed")
		}
	}

	if c.MongoDB != nil {
		ctx, cancel := context.WithTimeout(context.Background(), mongoDisconnectTimeout)
		defer cancel()

		if err := c.MongoDB.Disconnect(ctx); err != nil {
			errs = append(errs, fmt.Errorf("mongodb disconnect: %w", err))
		} else {
			c.Logger.Debug("mongodb connection closed")
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	c.Logger.Info("all container resources closed")
	return nil
}
