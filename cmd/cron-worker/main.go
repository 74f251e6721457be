package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/quizlink-backend/internal/bootstrap"
	"github.com/angelmondragon/quizlink-backend/internal/cron"
	"github.com/angelmondragon/quizlink-backend/pkg/config"
	"github.com/angelmondragon/quizlink-backend/pkg/db"
	"github.com/angelmondragon/quizlink-backend/pkg/logger"
	"github.com/angelmondragon/quizlink-backend/pkg/metrics"
	"github.com/angelmondragon/quizlink-backend/pkg/migrate"
	"github.com/angelmondragon/quizlink-backend/pkg/redis"
)

const (
	serviceName       = "cron-worker"
	outboxBacklogWarn = 1000
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	cfg.Service.Kind = serviceName
	logg := logger.ForService(serviceName, cfg.App)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"serviceKind": cfg.Service.Kind,
		"interval":    cfg.Sync.Interval.String(),
		"run_once":    cfg.Cron.RunOnce,
	})

	if err := run(ctx, cfg, logg); err != nil {
		logg.Error(ctx, "cron worker stopped", err)
		stop()
		os.Exit(1)
	}
	logg.Info(ctx, "cron worker shut down")
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) error {
	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer closeQuietly(ctx, logg, "database", dbClient.Close)

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return fmt.Errorf("dev migrations: %w", err)
	}

	var redisClient *redis.Client
	if cfg.Redis.Enabled() {
		if redisClient, err = redis.New(ctx, cfg.Redis, logg); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		defer closeQuietly(ctx, logg, "redis", redisClient.Close)
	}

	service, err := buildService(ctx, cfg, logg, dbClient, redisClient, prometheus.DefaultRegisterer)
	if err != nil {
		return err
	}

	if cfg.Cron.RunOnce {
		logg.Info(ctx, "running one cron cycle")
		if err := service.RunOnce(ctx); err != nil && !errors.Is(err, cron.ErrCycleSkipped) {
			return err
		}
		return nil
	}

	logg.Info(ctx, "cron worker started")
	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// buildService registers the sync job, plus the outbox backlog probe when
// sync events are emitted, behind one environment-wide cycle lock.
func buildService(ctx context.Context, cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client, reg prometheus.Registerer) (*cron.Service, error) {
	stack, err := bootstrap.NewSyncStack(ctx, cfg, logg, dbClient, redisClient, reg)
	if err != nil {
		return nil, fmt.Errorf("sync stack: %w", err)
	}

	syncJob, err := cron.NewAttributionSyncJob(cron.AttributionSyncJobParams{
		Logger:      logg,
		Syncer:      stack.Reconciler,
		Shops:       stack.Sessions,
		StaticShops: cfg.Sync.Shops,
		Concurrency: cfg.Sync.Concurrency,
	})
	if err != nil {
		return nil, err
	}
	jobs := []cron.Job{syncJob}

	if cfg.Sync.EmitEvents {
		backlog, err := cron.NewOutboxBacklogJob(cron.OutboxBacklogJobParams{
			Logger:    logg,
			Outbox:    stack.OutboxEvents,
			Metrics:   metrics.NewOutboxMetrics(reg),
			WarnAbove: outboxBacklogWarn,
		})
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, backlog)
	}

	registry, err := cron.NewRegistry(jobs...)
	if err != nil {
		return nil, err
	}

	locker, err := bootstrap.NewLocker(ctx, cfg, logg, redisClient, serviceName)
	if err != nil {
		return nil, fmt.Errorf("cron locker: %w", err)
	}
	lock, err := locker.For(cycleLockID(cfg.App.Env))
	if err != nil {
		return nil, err
	}

	logg.Info(logg.WithField(ctx, "jobs", registry.Names()), "cron jobs registered")
	return cron.NewService(cron.ServiceParams{
		Logger:     logg,
		Registry:   registry,
		Lock:       lock,
		Metrics:    metrics.NewCronJobMetrics(reg),
		Interval:   cfg.Sync.Interval,
		JobTimeout: cfg.Cron.JobTimeout,
	})
}

// cycleLockID scopes the cycle lock per environment so staging and
// production can share one redis.
func cycleLockID(env string) string {
	if env == "" {
		env = "local"
	}
	return env + ":sync-all"
}

func closeQuietly(ctx context.Context, logg *logger.Logger, what string, closeFn func() error) {
	if err := closeFn(); err != nil {
		logg.Error(logg.WithField(ctx, "resource", what), "close failed", err)
	}
}
