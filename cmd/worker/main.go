// Command worker runs the periodic maintenance jobs of the social graph.
//
// The only job today is counter reconciliation: it recounts followers,
// following, likes, members and review aggregates from the edge tables and
// repairs any drift in the denormalized columns.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alem-hub/socialgraph/config"
	"github.com/alem-hub/socialgraph/internal/app"
	"github.com/alem-hub/socialgraph/internal/infrastructure/observability"
	"github.com/alem-hub/socialgraph/internal/infrastructure/scheduler"
	"github.com/alem-hub/socialgraph/internal/infrastructure/scheduler/jobs"
	"github.com/alem-hub/socialgraph/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "worker: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log := app.NewLogger(cfg).With(logger.Component("worker"))
	defer func() { _ = log.Sync() }()

	if !cfg.Scheduler.Enabled {
		log.Warn("scheduler disabled, nothing to do")
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer stop()

	shutdownTracing, err := observability.InitTracing(ctx, log, observability.TracingConfig{
		ServiceName: cfg.App.Name + "-worker",
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

	sched := scheduler.New(scheduler.Config{
		Logger:     log,
		Observer:   infra.Metrics,
		Timezone:   cfg.App.Location(),
		JobTimeout: cfg.Scheduler.JobTimeout,
	})

	reconcile := jobs.NewReconcileCountersJob(infra.Store, infra.Bus, log, jobs.ReconcileCountersConfig{
		DryRun: cfg.Scheduler.ReconcileDryRun,
	})
	if err := sched.Register(reconcile, cfg.Scheduler.ReconcileSchedule); err != nil {
		_ = infra.Close()
		return fmt.Errorf("register %s: %w", reconcile.Name(), err)
	}

	if err := sched.Start(ctx); err != nil {
		_ = infra.Close()
		return fmt.Errorf("start scheduler: %w", err)
	}

	for _, job := range sched.ListJobs() {
		log.Info("job scheduled",
			logger.String("job", job.Name),
			logger.String("schedule", job.Schedule),
			logger.Time("next_run", job.NextRun),
		)
	}

	<-ctx.Done()
	log.Info("shutting down", logger.Duration("timeout", cfg.App.ShutdownTimeout))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	err = errors.Join(
		sched.Stop(shutdownCtx),
		infra.Close(),
		shutdownTracing(shutdownCtx),
	)
	if err != nil {
		log.Error("shutdown with error", logger.Err(err))
		return err
	}
	log.Info("shutdown completed")
	return nil
}
