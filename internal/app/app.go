// Package app wires configuration into the shared infrastructure used by
// every binary: logger, metrics, graph store, relation cache and event bus.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/alem-hub/socialgraph/config"
	"github.com/alem-hub/socialgraph/internal/application/eventhandler"
	"github.com/alem-hub/socialgraph/internal/domain/graph"
	"github.com/alem-hub/socialgraph/internal/domain/shared"
	"github.com/alem-hub/socialgraph/internal/infrastructure/messaging"
	"github.com/alem-hub/socialgraph/internal/infrastructure/observability"
	"github.com/alem-hub/socialgraph/internal/infrastructure/persistence/memory"
	"github.com/alem-hub/socialgraph/internal/infrastructure/persistence/postgres"
	"github.com/alem-hub/socialgraph/internal/infrastructure/persistence/redis"
	"github.com/alem-hub/socialgraph/internal/interface/http/handlers"
	"github.com/alem-hub/socialgraph/pkg/logger"
)

// MetricsNamespace prefixes every exported metric.
const MetricsNamespace = "socialgraph"

// EventBus is a bus that owns background resources.
type EventBus interface {
	shared.EventBus
	Close() error
}

// Infrastructure holds the opened dependencies of a process.
type Infrastructure struct {
	Config  *config.Config
	Logger  *logger.Logger
	Metrics *observability.Metrics

	Store graph.Store

	// DB is nil when the memory store is configured.
	DB *postgres.Connection

	// Redis and RelationCache are nil when Redis is disabled or unreachable.
	Redis         *redis.Cache
	RelationCache graph.RelationCache

	Bus EventBus

	closers []func() error
}

// NewLogger builds the process logger from the observability settings.
func NewLogger(cfg *config.Config) *logger.Logger {
	opts := logger.DefaultOptions()
	opts.Output = os.Stdout
	opts.Level = logger.ParseLevel(cfg.Observability.LogLevel)
	opts.Format = cfg.Observability.LogFormat
	return logger.New(opts).With(
		logger.String("service", cfg.App.Name),
		logger.String("env", string(cfg.App.Environment)),
	)
}

// Open connects the store, the optional Redis cache and the event bus. On
// error everything opened so far is closed again.
func Open(ctx context.Context, cfg *config.Config, log *logger.Logger) (_ *Infrastructure, err error) {
	infra := &Infrastructure{
		Config:  cfg,
		Logger:  log,
		Metrics: observability.NewMetrics(MetricsNamespace),
	}
	defer func() {
		if err != nil {
			_ = infra.Close()
		}
	}()

	if err := infra.openStore(ctx); err != nil {
		return nil, err
	}
	if err := infra.openRedis(); err != nil {
		return nil, err
	}
	if err := infra.openBus(); err != nil {
		return nil, err
	}
	return infra, nil
}

func (i *Infrastructure) openStore(ctx context.Context) error {
	if i.Config.Store.Driver == config.StoreMemory {
		i.Logger.Warn("using in-memory store, data is lost on exit")
		i.Store = memory.NewStore()
		return nil
	}

	i.Logger.Info("connecting to database")
	conn, err := postgres.NewConnection(ctx, postgres.Config{
		URL:             i.Config.Database.URL,
		MaxConns:        i.Config.Database.MaxConns,
		MinConns:        i.Config.Database.MinConns,
		MaxConnLifetime: i.Config.Database.MaxConnLifetime,
		MaxConnIdleTime: i.Config.Database.MaxConnIdleTime,
	})
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	i.DB = conn
	i.closers = append(i.closers, func() error {
		conn.Close()
		return nil
	})

	if i.Config.Database.AutoMigrate {
		applied, err := postgres.NewMigrator(conn).Migrate(ctx)
		if err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
		i.Logger.Info("database schema is up to date", logger.Int("applied", len(applied)))
	}

	i.Store = postgres.NewStore(conn)
	return nil
}

func (i *Infrastructure) openRedis() error {
	if i.Config.Redis.Disabled {
		return nil
	}

	rc := i.Config.Redis
	cfg := redis.DefaultConfig()
	cfg.URL = rc.URL
	cfg.Host = rc.Host
	cfg.Port = rc.Port
	cfg.Password = rc.Password
	cfg.DB = rc.DB
	cfg.PoolSize = rc.PoolSize
	cfg.MinIdleConns = rc.MinIdleConns
	cfg.DialTimeout = rc.DialTimeout
	cfg.ReadTimeout = rc.ReadTimeout
	cfg.WriteTimeout = rc.WriteTimeout

	cache, err := redis.NewCache(cfg)
	if err != nil {
		if i.Config.Events.Bus == config.BusRedis {
			return fmt.Errorf("connect redis: %w", err)
		}
		i.Logger.Warn("redis unavailable, relation cache disabled", logger.Err(err))
		return nil
	}

	i.Redis = cache
	i.closers = append(i.closers, cache.Close)
	i.RelationCache = redis.NewRelationCache(cache, redis.RelationCacheConfig{
		TTL:       rc.RelationTTL,
		AbsentTTL: rc.RelationAbsentTTL,
		Observer:  i.Metrics,
		Logger:    i.Logger,
	})
	i.Logger.Info("redis connection established")
	return nil
}

func (i *Infrastructure) openBus() error {
	local := messaging.DefaultInMemoryEventBusConfig()
	local.Logger = i.Logger
	local.Observer = i.Metrics

	if i.Config.Events.Bus == config.BusRedis {
		bus, err := messaging.NewRedisEventBus(messaging.RedisEventBusConfig{
			Client:         redis.NewPubSub(i.Redis),
			ChannelName:    i.Config.Events.Channel,
			LocalBusConfig: local,
			Logger:         i.Logger,
		})
		if err != nil {
			return fmt.Errorf("start redis event bus: %w", err)
		}
		i.Bus = bus
	} else {
		i.Bus = messaging.NewInMemoryEventBus(local)
	}
	// Closed first so that in-flight handlers finish before the store goes away.
	i.closers = append(i.closers, i.Bus.Close)

	if err := eventhandler.NewMetricsRecorder(i.Metrics).Register(i.Bus); err != nil {
		return fmt.Errorf("subscribe metrics recorder: %w", err)
	}
	if i.RelationCache != nil {
		if err := eventhandler.NewRelationCacheInvalidator(i.RelationCache, i.Logger).Register(i.Bus); err != nil {
			return fmt.Errorf("subscribe relation cache invalidator: %w", err)
		}
	}
	return nil
}

// HealthChecker returns a checker that pings every remote dependency.
func (i *Infrastructure) HealthChecker() *handlers.CompositeHealthChecker {
	checker := handlers.NewCompositeHealthChecker(i.Config.App.Version)
	if i.DB != nil {
		checker.AddCheck("postgres", handlers.NewPingCheck(i.DB))
	}
	if i.Redis != nil {
		checker.AddCheck("redis", handlers.NewPingCheck(i.Redis))
	}
	return checker
}

// Close releases resources in reverse order of acquisition.
func (i *Infrastructure) Close() error {
	var errs []error
	for n := len(i.closers) - 1; n >= 0; n-- {
		if err := i.closers[n](); err != nil {
			errs = append(errs, err)
		}
	}
	i.closers = nil
	return errors.Join(errs...)
}
