package reconcile

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/quizlink-backend/internal/analytics"
	"github.com/angelmondragon/quizlink-backend/internal/attribution"
	"github.com/angelmondragon/quizlink-backend/internal/locks"
	"github.com/angelmondragon/quizlink-backend/pkg/db/models"
	"github.com/angelmondragon/quizlink-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/quizlink-backend/pkg/errors"
	"github.com/angelmondragon/quizlink-backend/pkg/logger"
	"github.com/angelmondragon/quizlink-backend/pkg/metrics"
	"github.com/angelmondragon/quizlink-backend/pkg/outbox"
	"github.com/angelmondragon/quizlink-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/quizlink-backend/pkg/types"
)

const (
	defaultSafetyLag         = 5 * time.Minute
	defaultBootstrapLookback = 24 * time.Hour
	defaultMaxWindow         = 7 * 24 * time.Hour
)

type attributer interface {
	Attribute(ctx context.Context, shopID string, start, end time.Time) (*attribution.Result, error)
}

type aggregator interface {
	ApplyAttributions(ctx context.Context, attributions []models.OrderAttribution, sessions []models.QuizSession) ([]analytics.AppliedDelta, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// eventEmitter queues domain events in the caller's transaction.
type eventEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type completedSessionReader interface {
	ListSessionsCompleted(ctx context.Context, shopID string, window types.TimeRange) ([]models.QuizSession, error)
}

// ServiceParams wires the sync orchestrator.
type ServiceParams struct {
	Logger            *logger.Logger
	Attributer        attributer
	Aggregator        aggregator
	Sessions          completedSessionReader
	Watermarks        WatermarkRepository
	DB                txRunner
	Events            eventEmitter
	Locker            locks.Locker
	Metrics           *metrics.SyncMetrics
	MaxWindow         time.Duration
	SafetyLag         time.Duration
	BootstrapLookback time.Duration
	Now               func() time.Time
}

// Service runs one reconciliation pass per shop and owns the watermark.
type Service struct {
	logg              *logger.Logger
	attributer        attributer
	aggregator        aggregator
	sessions          completedSessionReader
	watermarks        WatermarkRepository
	db                txRunner
	events            eventEmitter
	locker            locks.Locker
	metrics           *metrics.SyncMetrics
	maxWindow         time.Duration
	safetyLag         time.Duration
	bootstrapLookback time.Duration
	now               func() time.Time
}

// Result summarises one RunSync call.
type Result struct {
	ShopID           string          `json:"shop_id"`
	Window           types.TimeRange `json:"window"`
	WindowProcessed  bool            `json:"window_processed"`
	Skipped          bool            `json:"skipped"`
	Orders           int             `json:"orders"`
	OrdersAttributed int             `json:"orders_attributed"`
	SummariesTouched int             `json:"summaries_touched"`
	Tiers            map[string]int  `json:"tiers,omitempty"`
	Watermark        time.Time       `json:"watermark"`
}

// Status reports where a shop's sync stands.
type Status struct {
	ShopID     string     `json:"shop_id"`
	Watermark  *time.Time `json:"watermark,omitempty"`
	LastRunAt  *time.Time `json:"last_run_at,omitempty"`
	LastOrders int        `json:"last_orders"`
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if params.Attributer == nil {
		return nil, fmt.Errorf("attributer is required")
	}
	if params.Aggregator == nil {
		return nil, fmt.Errorf("aggregator is required")
	}
	if params.Sessions == nil {
		return nil, fmt.Errorf("session reader is required")
	}
	if params.Watermarks == nil {
		return nil, fmt.Errorf("watermark repository is required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("transaction runner is required")
	}
	if params.Locker == nil {
		return nil, fmt.Errorf("locker is required")
	}
	svc := &Service{
		logg:              params.Logger,
		attributer:        params.Attributer,
		aggregator:        params.Aggregator,
		sessions:          params.Sessions,
		watermarks:        params.Watermarks,
		db:                params.DB,
		events:            params.Events,
		locker:            params.Locker,
		metrics:           params.Metrics,
		maxWindow:         params.MaxWindow,
		safetyLag:         params.SafetyLag,
		bootstrapLookback: params.BootstrapLookback,
		now:               params.Now,
	}
	if svc.maxWindow <= 0 {
		svc.maxWindow = defaultMaxWindow
	}
	if svc.safetyLag < 0 {
		svc.safetyLag = defaultSafetyLag
	}
	if svc.bootstrapLookback <= 0 {
		svc.bootstrapLookback = defaultBootstrapLookback
	}
	if svc.now == nil {
		svc.now = time.Now
	}
	return svc, nil
}

// RunSync reconciles the next window for shopID.
//
// Concurrent calls for the same shop do not overlap; the loser returns a
// skipped result. The watermark advances only after both attribution and
// aggregation succeed.
func (s *Service) RunSync(ctx context.Context, shopID string) (*Result, error) {
	if shopID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "shop id is required")
	}
	ctx = s.logg.WithShopID(ctx, shopID)
	started := s.now()

	result, err := s.runLocked(ctx, shopID)
	outcome := metrics.OutcomeSuccess
	switch {
	case err != nil:
		outcome = metrics.OutcomeFailure
	case result.Skipped:
		outcome = metrics.OutcomeSkipped
	case !result.WindowProcessed:
		outcome = metrics.OutcomeIdle
	}
	s.metrics.ObserveRun(shopID, outcome, s.now().Sub(started))
	return result, err
}

func (s *Service) runLocked(ctx context.Context, shopID string) (*Result, error) {
	lock, err := s.locker.For(shopID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build shop lock")
	}
	locked, err := lock.Acquire(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquire shop lock")
	}
	if !locked {
		s.logg.Info(ctx, "sync already running for shop; skipping")
		return &Result{ShopID: shopID, Skipped: true}, nil
	}
	defer func() {
		if relErr := lock.Release(ctx); relErr != nil {
			s.logg.Error(ctx, "failed to release shop lock", relErr)
		}
	}()

	window, err := s.nextWindow(ctx, shopID)
	if err != nil {
		return nil, err
	}
	result := &Result{ShopID: shopID, Window: window, Watermark: window.Start}
	if window.IsEmpty() {
		s.logg.Debug(ctx, "sync window empty; nothing to do")
		return result, nil
	}

	ctx = s.logg.WithFields(ctx, map[string]any{
		"window_start": window.Start,
		"window_end":   window.End,
	})

	matched, err := s.attributer.Attribute(ctx, shopID, window.Start, window.End)
	if err != nil {
		return nil, err
	}

	snapshot, err := s.withCompletedSessions(ctx, shopID, window, matched.Sessions)
	if err != nil {
		return nil, err
	}

	applied, err := s.aggregator.ApplyAttributions(ctx, matched.Attributions, snapshot)
	if err != nil {
		return nil, err
	}

	result.Orders = len(matched.Attributions)
	result.SummariesTouched = len(applied)
	result.Tiers = map[string]int{}
	for tier, count := range matched.CountByTier() {
		result.Tiers[tier.String()] = count
		if tier.Matched() {
			result.OrdersAttributed += count
		}
	}

	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.watermarks.Advance(ctx, tx, shopID, window.End, s.now(), result.Orders); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "advance watermark")
		}
		return s.emitCompleted(ctx, tx, result)
	})
	if err != nil {
		return nil, err
	}

	result.WindowProcessed = true
	result.Watermark = window.End
	for tier, count := range result.Tiers {
		s.metrics.AddAttributions(shopID, tier, count)
	}
	s.metrics.AddSummariesTouched(shopID, len(applied))
	s.metrics.SetWatermarkLag(shopID, s.now().Sub(window.End))

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"orders":            result.Orders,
		"orders_attributed": result.OrdersAttributed,
		"summaries_touched": result.SummariesTouched,
	}), "sync window reconciled")
	return result, nil
}

func (s *Service) emitCompleted(ctx context.Context, tx *gorm.DB, result *Result) error {
	if s.events == nil {
		return nil
	}
	event := outbox.DomainEvent{
		EventType:     enums.EventSyncCompleted,
		AggregateType: enums.AggregateShop,
		AggregateID:   result.ShopID,
		Data: payloads.SyncCompletedEvent{
			ShopID:           result.ShopID,
			WindowStart:      result.Window.Start,
			WindowEnd:        result.Window.End,
			Orders:           result.Orders,
			OrdersAttributed: result.OrdersAttributed,
			SummariesTouched: result.SummariesTouched,
			Tiers:            result.Tiers,
		},
	}
	if err := s.events.Emit(ctx, tx, event); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "queue sync completed event")
	}
	return nil
}

// nextWindow computes [watermark, now-safetyLag) clamped to the maximum span.
func (s *Service) nextWindow(ctx context.Context, shopID string) (types.TimeRange, error) {
	end := s.now().UTC().Add(-s.safetyLag)
	wm, err := s.watermarks.Get(ctx, shopID)
	if err != nil {
		return types.TimeRange{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load watermark")
	}
	start := end.Add(-s.bootstrapLookback)
	if wm != nil {
		start = wm.WatermarkAt.UTC()
	}
	if !end.After(start) {
		return types.NewTimeRange(start, start), nil
	}
	if end.Sub(start) > s.maxWindow {
		end = start.Add(s.maxWindow)
	}
	return types.NewTimeRange(start, end), nil
}

// withCompletedSessions adds sessions completed inside window that the
// started-at snapshot missed.
func (s *Service) withCompletedSessions(ctx context.Context, shopID string, window types.TimeRange, sessions []models.QuizSession) ([]models.QuizSession, error) {
	completed, err := s.sessions.ListSessionsCompleted(ctx, shopID, window)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeUpstreamUnavailable, err, "fetch completed sessions")
	}
	seen := make(map[string]struct{}, len(sessions))
	merged := make([]models.QuizSession, 0, len(sessions)+len(completed))
	for _, session := range sessions {
		seen[session.ID] = struct{}{}
		merged = append(merged, session)
	}
	for _, session := range completed {
		if _, ok := seen[session.ID]; ok {
			continue
		}
		if err := session.Validate(); err != nil {
			s.logg.Warn(s.logg.WithField(ctx, "session_id", session.ID), "dropping malformed completed session")
			continue
		}
		seen[session.ID] = struct{}{}
		merged = append(merged, session)
	}
	return merged, nil
}

// Status returns the persisted watermark for shopID.
func (s *Service) Status(ctx context.Context, shopID string) (*Status, error) {
	wm, err := s.watermarks.Get(ctx, shopID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load watermark")
	}
	status := &Status{ShopID: shopID}
	if wm != nil {
		watermark := wm.WatermarkAt.UTC()
		lastRun := wm.LastRunAt.UTC()
		status.Watermark = &watermark
		status.LastRunAt = &lastRun
		status.LastOrders = wm.LastOrders
	}
	return status, nil
}
