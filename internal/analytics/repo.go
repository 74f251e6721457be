package analytics

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/quizlink-backend/internal/repo"
	"github.com/angelmondragon/quizlink-backend/pkg/db/models"
)

// Repository persists rollup rows together with the facts already folded into them.
type Repository interface {
	InsertSessionFact(ctx context.Context, tx *gorm.DB, fact *models.AnalyticsSessionFact) (bool, error)
	FindOrderFact(ctx context.Context, tx *gorm.DB, orderID string) (*models.AnalyticsOrderFact, error)
	SaveOrderFact(ctx context.Context, tx *gorm.DB, fact *models.AnalyticsOrderFact) error
	DeleteOrderFact(ctx context.Context, tx *gorm.DB, orderID string) error
	ApplySummaryDelta(ctx context.Context, tx *gorm.DB, key SummaryKey, delta SummaryDelta) error
	FindSummary(ctx context.Context, key SummaryKey) (*models.QuizAnalyticsDaily, error)
	ListSummaries(ctx context.Context, shopID string, from, to time.Time) ([]models.QuizAnalyticsDaily, error)
}

type repository struct {
	repo.Base
}

// NewRepository builds an analytics repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

// InsertSessionFact records the fact once, reporting whether this call inserted it.
func (r *repository) InsertSessionFact(ctx context.Context, tx *gorm.DB, fact *models.AnalyticsSessionFact) (bool, error) {
	res := r.Tx(ctx, tx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "session_id"}, {Name: "kind"}},
			DoNothing: true,
		}).
		Create(fact)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// FindOrderFact returns nil when the order was never folded into a rollup.
func (r *repository) FindOrderFact(ctx context.Context, tx *gorm.DB, orderID string) (*models.AnalyticsOrderFact, error) {
	var fact models.AnalyticsOrderFact
	err := r.Tx(ctx, tx).Where("order_id = ?", orderID).First(&fact).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &fact, nil
}

func (r *repository) SaveOrderFact(ctx context.Context, tx *gorm.DB, fact *models.AnalyticsOrderFact) error {
	return r.Tx(ctx, tx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "order_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"shop_id", "quiz_id", "session_id", "fact_date", "revenue", "updated_at"}),
		}).
		Create(fact).Error
}

func (r *repository) DeleteOrderFact(ctx context.Context, tx *gorm.DB, orderID string) error {
	return r.Tx(ctx, tx).Where("order_id = ?", orderID).Delete(&models.AnalyticsOrderFact{}).Error
}

// ApplySummaryDelta increments the row's counters, creating the row when absent.
func (r *repository) ApplySummaryDelta(ctx context.Context, tx *gorm.DB, key SummaryKey, delta SummaryDelta) error {
	row := models.QuizAnalyticsDaily{
		ShopID:               key.ShopID,
		QuizID:               key.QuizID,
		SummaryDate:          key.Date,
		SessionCount:         delta.Sessions,
		CompletedCount:       delta.Completed,
		AttributedOrderCount: delta.AttributedOrders,
		AttributedRevenue:    delta.Revenue,
		UpdatedAt:            time.Now().UTC(),
	}
	table := row.TableName()
	increment := func(column string) clause.Assignment {
		return clause.Assignment{
			Column: clause.Column{Name: column},
			Value:  gorm.Expr(table + "." + column + " + excluded." + column),
		}
	}
	return r.Tx(ctx, tx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "shop_id"}, {Name: "quiz_id"}, {Name: "summary_date"}},
			DoUpdates: clause.Set{
				increment("session_count"),
				increment("completed_count"),
				increment("attributed_order_count"),
				increment("attributed_revenue"),
				{Column: clause.Column{Name: "updated_at"}, Value: gorm.Expr("excluded.updated_at")},
			},
		}).
		Create(&row).Error
}

func (r *repository) FindSummary(ctx context.Context, key SummaryKey) (*models.QuizAnalyticsDaily, error) {
	var row models.QuizAnalyticsDaily
	err := r.DB(ctx).
		Where("shop_id = ? AND quiz_id = ? AND summary_date = ?", key.ShopID, key.QuizID, key.Date).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

// ListSummaries returns the shop's rollup rows with summary_date in [from, to].
func (r *repository) ListSummaries(ctx context.Context, shopID string, from, to time.Time) ([]models.QuizAnalyticsDaily, error) {
	var rows []models.QuizAnalyticsDaily
	err := r.DB(ctx).
		Where("shop_id = ? AND summary_date >= ? AND summary_date <= ?", shopID, from.UTC(), to.UTC()).
		Order("summary_date ASC").
		Order("quiz_id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
