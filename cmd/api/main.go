// Command api serves the social graph REST API.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/alem-hub/socialgraph/config"
	"github.com/alem-hub/socialgraph/internal/app"
	"github.com/alem-hub/socialgraph/internal/infrastructure/observability"
	httpserver "github.com/alem-hub/socialgraph/internal/interface/http"
	"github.com/alem-hub/socialgraph/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "api: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log := app.NewLogger(cfg).With(logger.Component("api"))
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.InitTracing(ctx, log, observability.TracingConfig{
		ServiceName: cfg.App.Name,
		Environment: string(cfg.App.Environment),
		Version:     cfg.App.Version,
		Endpoint:    cfg.Observability.TracingEndpoint,
		Insecure:    cfg.Observability.TracingInsecure,
		SampleRatio: cfg.Observability.TracingSampleRatio,
	})
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}

	infra, err := app.Open(ctx, cfg, log)
	if err != nil {
		return err
	}

	deps := httpserver.NewDependencies(infra.Store, infra.Bus, infra.RelationCache, cfg.App.BcryptCost, log)
	deps.Health = infra.HealthChecker()
	if cfg.Observability.MetricsEnabled {
		deps.Metrics = infra.Metrics
	}

	serverCfg := httpserver.DefaultConfig()
	serverCfg.Host = cfg.HTTP.Host
	serverCfg.Port = cfg.HTTP.Port
	serverCfg.ReadTimeout = cfg.HTTP.ReadTimeout
	serverCfg.WriteTimeout = cfg.HTTP.WriteTimeout
	serverCfg.IdleTimeout = cfg.HTTP.IdleTimeout
	serverCfg.MaxBodyBytes = cfg.HTTP.MaxBodyBytes
	serverCfg.AllowedOrigins = cfg.HTTP.AllowedOrigins
	serverCfg.Version = cfg.App.Version
	server := httpserver.NewServer(serverCfg, deps)

	log.Info("social graph API starting",
		logger.String("version", cfg.App.Version),
		logger.String("store", cfg.Store.Driver),
		logger.String("event_bus", cfg.Events.Bus),
		logger.Bool("relation_cache", infra.RelationCache != nil),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(server.Start)
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down", logger.Duration("timeout", cfg.App.ShutdownTimeout))

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
		defer cancel()

		return errors.Join(
			server.Shutdown(shutdownCtx),
			infra.Close(),
			shutdownTracing(shutdownCtx),
		)
	})

	if err := g.Wait(); err != nil {
		log.Error("shutdown with error", logger.Err(err))
		return err
	}
	log.Info("shutdown completed")
	return nil
}
