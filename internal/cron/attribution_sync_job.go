package cron

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/quizlink-backend/internal/reconcile"
	"github.com/angelmondragon/quizlink-backend/pkg/logger"
)

const defaultSyncConcurrency = 4

type shopSyncer interface {
	RunSync(ctx context.Context, shopID string) (*reconcile.Result, error)
}

type shopLister interface {
	ListShops(ctx context.Context) ([]string, error)
}

// AttributionSyncJobParams configure the attribution sync job.
type AttributionSyncJobParams struct {
	Logger      *logger.Logger
	Syncer      shopSyncer
	Shops       shopLister
	StaticShops []string
	Concurrency int
}

// NewAttributionSyncJob builds the cron job that reconciles every shop.
func NewAttributionSyncJob(params AttributionSyncJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Syncer == nil {
		return nil, fmt.Errorf("syncer required")
	}
	static := cleanShops(params.StaticShops)
	if params.Shops == nil && len(static) == 0 {
		return nil, fmt.Errorf("shop lister or static shop list required")
	}
	concurrency := params.Concurrency
	if concurrency <= 0 {
		concurrency = defaultSyncConcurrency
	}
	return &attributionSyncJob{
		logg:        params.Logger,
		syncer:      params.Syncer,
		lister:      params.Shops,
		static:      static,
		concurrency: concurrency,
	}, nil
}

type attributionSyncJob struct {
	logg        *logger.Logger
	syncer      shopSyncer
	lister      shopLister
	static      []string
	concurrency int
}

func (j *attributionSyncJob) Name() string { return "attribution-sync" }

func (j *attributionSyncJob) Run(ctx context.Context) error {
	shops, err := j.shops(ctx)
	if err != nil {
		return err
	}

	var (
		mu        sync.Mutex
		errs      error
		processed int
		skipped   int
	)
	var group errgroup.Group
	group.SetLimit(j.concurrency)
	for _, shop := range shops {
		group.Go(func() error {
			result, err := j.syncer.RunSync(ctx, shop)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("shop %s: %w", shop, err))
				return nil
			}
			if result.Skipped {
				skipped++
			}
			if result.WindowProcessed {
				processed++
			}
			return nil
		})
	}
	_ = group.Wait()

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"shops":     len(shops),
		"processed": processed,
		"skipped":   skipped,
		"failed":    len(multierr.Errors(errs)),
	})
	j.logg.Info(logCtx, "attribution sync loop complete")
	return errs
}

func (j *attributionSyncJob) shops(ctx context.Context) ([]string, error) {
	if len(j.static) > 0 {
		return j.static, nil
	}
	shops, err := j.lister.ListShops(ctx)
	if err != nil {
		return nil, fmt.Errorf("list shops: %w", err)
	}
	return cleanShops(shops), nil
}

func cleanShops(shops []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(shops))
	for _, shop := range shops {
		shop = strings.TrimSpace(shop)
		if shop == "" {
			continue
		}
		if _, ok := seen[shop]; ok {
			continue
		}
		seen[shop] = struct{}{}
		out = append(out, shop)
	}
	sort.Strings(out)
	return out
}
