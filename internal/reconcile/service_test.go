package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/quizlink-backend/internal/analytics"
	"github.com/angelmondragon/quizlink-backend/internal/attribution"
	"github.com/angelmondragon/quizlink-backend/internal/locks"
	"github.com/angelmondragon/quizlink-backend/internal/orders"
	"github.com/angelmondragon/quizlink-backend/internal/sessions"
	"github.com/angelmondragon/quizlink-backend/pkg/db"
	"github.com/angelmondragon/quizlink-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/quizlink-backend/pkg/errors"
	"github.com/angelmondragon/quizlink-backend/pkg/enums"
	"github.com/angelmondragon/quizlink-backend/pkg/logger"
	"github.com/angelmondragon/quizlink-backend/pkg/outbox"
	"github.com/angelmondragon/quizlink-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/quizlink-backend/pkg/types"
)

var base = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

type fixture struct {
	conn       *gorm.DB
	client     *db.Client
	logg       *logger.Logger
	service    *Service
	aggregator *flakyAggregator
	locker     *locks.LocalLocker
	clock      *clock
	watermarks WatermarkRepository
	summaries  analytics.Repository
	params     ServiceParams
}

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

type flakyAggregator struct {
	inner   *analytics.Aggregator
	failing bool
	calls   int
}

func (f *flakyAggregator) ApplyAttributions(ctx context.Context, attributions []models.OrderAttribution, snapshot []models.QuizSession) ([]analytics.AppliedDelta, error) {
	f.calls++
	if f.failing {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, errors.New("disk full"), "apply analytics deltas")
	}
	return f.inner.ApplyAttributions(ctx, attributions, snapshot)
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(models.All()...))

	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	client := db.NewFromConn(conn)
	sessionRepo := sessions.NewRepository(conn)

	attributer, err := attribution.NewService(attribution.ServiceParams{
		Logger:     logg,
		Sessions:   sessionRepo,
		Orders:     orders.NewRepository(conn),
		Repository: attribution.NewRepository(conn),
		DB:         client,
		Policy:     attribution.DefaultPolicy(),
	})
	require.NoError(t, err)

	summaries := analytics.NewRepository(conn)
	agg, err := analytics.NewAggregator(analytics.AggregatorParams{Logger: logg, Repository: summaries, DB: client})
	require.NoError(t, err)

	f := &fixture{
		conn:       conn,
		client:     client,
		logg:       logg,
		aggregator: &flakyAggregator{inner: agg},
		locker:     locks.NewLocalLocker(),
		clock:      &clock{now: base.Add(2 * time.Hour)},
		watermarks: NewWatermarkRepository(conn),
		summaries:  summaries,
	}
	f.params = ServiceParams{
		Logger:            logg,
		Attributer:        attributer,
		Aggregator:        f.aggregator,
		Sessions:          sessionRepo,
		Watermarks:        f.watermarks,
		DB:                client,
		Locker:            f.locker,
		MaxWindow:         7 * 24 * time.Hour,
		SafetyLag:         5 * time.Minute,
		BootstrapLookback: 24 * time.Hour,
		Now:               f.clock.Now,
	}
	f.service, err = NewService(f.params)
	require.NoError(t, err)
	return f
}

type failingCompletedSessions struct{}

func (failingCompletedSessions) ListSessionsCompleted(context.Context, string, types.TimeRange) ([]models.QuizSession, error) {
	return nil, errors.New("quiz api 503")
}

func strPtr(v string) *string { return &v }

func seedScenario(t *testing.T, conn *gorm.DB) {
	t.Helper()
	require.NoError(t, conn.Create(&models.QuizSession{ID: "A", ShopID: "s1", QuizID: "q1", StartedAt: base, CustomerID: strPtr("c1")}).Error)
	require.NoError(t, conn.Create(&models.StoreOrder{ID: "O1", ShopID: "s1", CreatedAt: base.Add(5 * time.Minute), CustomerID: strPtr("c1"), TotalPrice: decimal.RequireFromString("20.00"), Currency: "USD"}).Error)
}

func TestRunSyncReconcilesAndAdvancesWatermark(t *testing.T) {
	f := newFixture(t)
	seedScenario(t, f.conn)
	ctx := context.Background()

	result, err := f.service.RunSync(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, result.WindowProcessed)
	assert.Equal(t, 1, result.Orders)
	assert.Equal(t, 1, result.OrdersAttributed)
	assert.Equal(t, 1, result.SummariesTouched)
	assert.Equal(t, 1, result.Tiers["exact_customer"])

	wantEnd := f.clock.now.Add(-5 * time.Minute)
	assert.True(t, result.Window.End.Equal(wantEnd))
	assert.True(t, result.Window.Start.Equal(wantEnd.Add(-24*time.Hour)))

	wm, err := f.watermarks.Get(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, wm)
	assert.True(t, wm.WatermarkAt.Equal(wantEnd))

	row, err := f.summaries.FindSummary(ctx, analytics.SummaryKey{ShopID: "s1", QuizID: "q1", Date: analytics.SummaryDate(base, time.UTC)})
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, int64(1), row.AttributedOrderCount)
	assert.True(t, row.AttributedRevenue.Equal(decimal.RequireFromString("20.00")))
}

func TestRunSyncEmptyWindowDoesNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.watermarks.Advance(ctx, nil, "s1", f.clock.now, f.clock.now, 0))

	result, err := f.service.RunSync(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, result.WindowProcessed)
	assert.False(t, result.Skipped)
	assert.Zero(t, f.aggregator.calls)
}

func TestRunSyncFailureKeepsWatermark(t *testing.T) {
	f := newFixture(t)
	seedScenario(t, f.conn)
	ctx := context.Background()

	start := base.Add(-time.Hour)
	require.NoError(t, f.watermarks.Advance(ctx, nil, "s1", start, start, 0))

	f.aggregator.failing = true
	_, err := f.service.RunSync(ctx, "s1")
	require.Error(t, err)

	wm, err := f.watermarks.Get(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, wm.WatermarkAt.Equal(start))

	f.aggregator.failing = false
	f.clock.now = f.clock.now.Add(10 * time.Minute)
	result, err := f.service.RunSync(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, result.Window.Start.Equal(start))
	assert.True(t, result.WindowProcessed)

	row, err := f.summaries.FindSummary(ctx, analytics.SummaryKey{ShopID: "s1", QuizID: "q1", Date: analytics.SummaryDate(base, time.UTC)})
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, int64(1), row.SessionCount)
	assert.Equal(t, int64(1), row.AttributedOrderCount)
}

func TestRunSyncCompletedSessionFailureKeepsWatermark(t *testing.T) {
	f := newFixture(t)
	seedScenario(t, f.conn)
	ctx := context.Background()

	start := base.Add(-time.Hour)
	require.NoError(t, f.watermarks.Advance(ctx, nil, "s1", start, start, 0))

	params := f.params
	params.Sessions = failingCompletedSessions{}
	svc, err := NewService(params)
	require.NoError(t, err)

	_, err = svc.RunSync(ctx, "s1")
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUpstreamUnavailable))
	assert.Zero(t, f.aggregator.calls)

	wm, err := f.watermarks.Get(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, wm.WatermarkAt.Equal(start))

	row, err := f.summaries.FindSummary(ctx, analytics.SummaryKey{ShopID: "s1", QuizID: "q1", Date: analytics.SummaryDate(base, time.UTC)})
	require.NoError(t, err)
	assert.Nil(t, row)
}

func TestRunSyncRerunDoesNotDoubleCount(t *testing.T) {
	f := newFixture(t)
	seedScenario(t, f.conn)
	ctx := context.Background()

	_, err := f.service.RunSync(ctx, "s1")
	require.NoError(t, err)

	// Rewind the watermark so the same window is processed again.
	require.NoError(t, f.watermarks.Advance(ctx, nil, "s1", base.Add(-time.Hour), base, 0))
	_, err = f.service.RunSync(ctx, "s1")
	require.NoError(t, err)

	row, err := f.summaries.FindSummary(ctx, analytics.SummaryKey{ShopID: "s1", QuizID: "q1", Date: analytics.SummaryDate(base, time.UTC)})
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, int64(1), row.SessionCount)
	assert.Equal(t, int64(1), row.AttributedOrderCount)
	assert.True(t, row.AttributedRevenue.Equal(decimal.RequireFromString("20.00")))
}

func TestRunSyncClampsToMaxWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	start := f.clock.now.Add(-30 * 24 * time.Hour)
	require.NoError(t, f.watermarks.Advance(ctx, nil, "s1", start, start, 0))

	result, err := f.service.RunSync(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, result.Window.Start.Equal(start))
	assert.Equal(t, 7*24*time.Hour, result.Window.Duration())
	assert.True(t, result.Watermark.Equal(start.Add(7*24*time.Hour)))
}

func TestRunSyncSkipsWhenShopLocked(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	held, err := f.locker.For("s1")
	require.NoError(t, err)
	ok, err := held.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	result, err := f.service.RunSync(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, result.Skipped)
	assert.Zero(t, f.aggregator.calls)

	wm, err := f.watermarks.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Nil(t, wm)
}

func TestRunSyncCountsSessionsCompletedInWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	startedAt := base.Add(-3 * 24 * time.Hour)
	completedAt := base
	require.NoError(t, f.conn.Create(&models.QuizSession{ID: "slow", ShopID: "s1", QuizID: "q1", StartedAt: startedAt, Completed: true, CompletedAt: &completedAt}).Error)
	require.NoError(t, f.watermarks.Advance(ctx, nil, "s1", base.Add(-time.Hour), base, 0))

	_, err := f.service.RunSync(ctx, "s1")
	require.NoError(t, err)

	row, err := f.summaries.FindSummary(ctx, analytics.SummaryKey{ShopID: "s1", QuizID: "q1", Date: analytics.SummaryDate(startedAt, time.UTC)})
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, int64(1), row.CompletedCount)
	assert.Equal(t, int64(1), row.SessionCount)
}

func TestStatusReportsWatermark(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	status, err := f.service.Status(ctx, "s1")
	require.NoError(t, err)
	assert.Nil(t, status.Watermark)

	require.NoError(t, f.watermarks.Advance(ctx, nil, "s1", base, base.Add(time.Minute), 4))
	status, err = f.service.Status(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, status.Watermark)
	assert.True(t, status.Watermark.Equal(base))
	assert.Equal(t, 4, status.LastOrders)
}

func TestRunSyncRequiresShop(t *testing.T) {
	f := newFixture(t)
	_, err := f.service.RunSync(context.Background(), "")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

type failingEmitter struct{}

func (failingEmitter) Emit(context.Context, *gorm.DB, outbox.DomainEvent) error {
	return errors.New("outbox unavailable")
}

func TestRunSyncQueuesCompletedEvent(t *testing.T) {
	f := newFixture(t)
	seedScenario(t, f.conn)
	ctx := context.Background()
	f.service.events = outbox.NewService(outbox.NewRepository(f.conn), f.logg)

	result, err := f.service.RunSync(ctx, "s1")
	require.NoError(t, err)

	var rows []models.OutboxEvent
	require.NoError(t, f.conn.Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, enums.EventSyncCompleted, rows[0].EventType)
	assert.Equal(t, "s1", rows[0].AggregateID)

	envelope, err := outbox.DecodeEnvelope(rows[0].Payload)
	require.NoError(t, err)
	var data payloads.SyncCompletedEvent
	require.NoError(t, json.Unmarshal(envelope.Data, &data))
	assert.Equal(t, result.OrdersAttributed, data.OrdersAttributed)
	assert.True(t, data.WindowEnd.Equal(result.Window.End))
	assert.Equal(t, 1, data.Tiers["exact_customer"])
}

func TestRunSyncEmitFailureKeepsWatermark(t *testing.T) {
	f := newFixture(t)
	seedScenario(t, f.conn)
	ctx := context.Background()
	f.service.events = failingEmitter{}

	_, err := f.service.RunSync(ctx, "s1")
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))

	wm, err := f.watermarks.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Nil(t, wm)
}

func TestRunSyncEmptyWindowQueuesNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.service.events = outbox.NewService(outbox.NewRepository(f.conn), f.logg)
	require.NoError(t, f.watermarks.Advance(ctx, nil, "s1", f.clock.now, f.clock.now, 0))

	_, err := f.service.RunSync(ctx, "s1")
	require.NoError(t, err)

	var count int64
	require.NoError(t, f.conn.Model(&models.OutboxEvent{}).Count(&count).Error)
	assert.Zero(t, count)
}
