package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/quizlink-backend/internal/analytics"
	"github.com/angelmondragon/quizlink-backend/internal/attribution"
	"github.com/angelmondragon/quizlink-backend/internal/locks"
	"github.com/angelmondragon/quizlink-backend/internal/orders"
	"github.com/angelmondragon/quizlink-backend/internal/reconcile"
	"github.com/angelmondragon/quizlink-backend/internal/sessions"
	"github.com/angelmondragon/quizlink-backend/pkg/config"
	"github.com/angelmondragon/quizlink-backend/pkg/db"
	"github.com/angelmondragon/quizlink-backend/pkg/logger"
	"github.com/angelmondragon/quizlink-backend/pkg/metrics"
	"github.com/angelmondragon/quizlink-backend/pkg/outbox"
	"github.com/angelmondragon/quizlink-backend/pkg/redis"
)

const syncLockScope = "sync"

// SyncStack is the assembled attribution pipeline shared by the api and cron-worker binaries.
type SyncStack struct {
	Sessions     sessions.Repository
	Orders       orders.Repository
	Attributions attribution.Repository
	Summaries    analytics.Repository
	Watermarks   reconcile.WatermarkRepository
	Locker       locks.Locker
	Metrics      *metrics.SyncMetrics
	OutboxEvents *outbox.Repository
	Outbox       *outbox.Service
	Reconciler   *reconcile.Service
}

// NewSyncStack wires repositories, matcher, aggregator and orchestrator.
// redisClient may be nil; the stack then falls back to in-process locks.
func NewSyncStack(ctx context.Context, cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client, reg prometheus.Registerer) (*SyncStack, error) {
	if cfg == nil || logg == nil || dbClient == nil {
		return nil, errors.New("config, logger and database are required")
	}

	policy, err := attribution.PolicyFromConfig(cfg.Sync)
	if err != nil {
		return nil, err
	}

	locker, err := NewLocker(ctx, cfg, logg, redisClient, syncLockScope)
	if err != nil {
		return nil, err
	}

	conn := dbClient.DB()
	stack := &SyncStack{
		Sessions:     sessions.NewRepository(conn),
		Orders:       orders.NewRepository(conn),
		Attributions: attribution.NewRepository(conn),
		Summaries:    analytics.NewRepository(conn),
		Watermarks:   reconcile.NewWatermarkRepository(conn),
		Locker:       locker,
		Metrics:      metrics.NewSyncMetrics(reg),
		OutboxEvents: outbox.NewRepository(conn),
	}

	attributer, err := attribution.NewService(attribution.ServiceParams{
		Logger:     logg,
		Sessions:   stack.Sessions,
		Orders:     stack.Orders,
		Repository: stack.Attributions,
		DB:         dbClient,
		Policy:     policy,
	})
	if err != nil {
		return nil, fmt.Errorf("attribution service: %w", err)
	}

	aggregator, err := analytics.NewAggregator(analytics.AggregatorParams{
		Logger:     logg,
		Repository: stack.Summaries,
		DB:         dbClient,
		Location:   cfg.Sync.Location(),
	})
	if err != nil {
		return nil, fmt.Errorf("analytics aggregator: %w", err)
	}

	params := reconcile.ServiceParams{
		Logger:            logg,
		Attributer:        attributer,
		Aggregator:        aggregator,
		Sessions:          stack.Sessions,
		Watermarks:        stack.Watermarks,
		DB:                dbClient,
		Locker:            locker,
		Metrics:           stack.Metrics,
		MaxWindow:         cfg.Sync.MaxWindow,
		SafetyLag:         cfg.Sync.SafetyLag,
		BootstrapLookback: cfg.Sync.BootstrapLookback,
	}
	if cfg.Sync.EmitEvents {
		stack.Outbox = outbox.NewService(stack.OutboxEvents, logg)
		params.Events = stack.Outbox
	}
	stack.Reconciler, err = reconcile.NewService(params)
	if err != nil {
		return nil, fmt.Errorf("reconcile service: %w", err)
	}
	return stack, nil
}

// NewLocker picks a redis-backed locker unless local locks are forced or redis is absent.
func NewLocker(ctx context.Context, cfg *config.Config, logg *logger.Logger, redisClient *redis.Client, scope string) (locks.Locker, error) {
	if cfg.FeatureFlags.UseLocalLock || redisClient == nil {
		logg.Warn(logg.WithField(ctx, "lock_scope", scope), "using in-process locks; runs are not coordinated across instances")
		return locks.NewLocalLocker(), nil
	}
	return locks.NewRedisLocker(redisClient, scope, cfg.Sync.LockTTL)
}
