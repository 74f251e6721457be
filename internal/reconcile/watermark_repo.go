package reconcile

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/quizlink-backend/internal/repo"
	"github.com/angelmondragon/quizlink-backend/pkg/db/models"
)

// WatermarkRepository persists the per-shop sync watermark.
type WatermarkRepository interface {
	Get(ctx context.Context, shopID string) (*models.SyncWatermark, error)
	Advance(ctx context.Context, tx *gorm.DB, shopID string, watermark, runAt time.Time, orders int) error
}

type watermarkRepository struct {
	repo.Base
}

// NewWatermarkRepository builds a watermark repository bound to the provided DB.
func NewWatermarkRepository(db *gorm.DB) WatermarkRepository {
	return &watermarkRepository{Base: repo.NewBase(db)}
}

// Get returns nil when the shop has never completed a sync.
func (r *watermarkRepository) Get(ctx context.Context, shopID string) (*models.SyncWatermark, error) {
	var row models.SyncWatermark
	err := r.DB(ctx).Where("shop_id = ?", shopID).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

// Advance upserts the watermark, inside tx when one is supplied.
func (r *watermarkRepository) Advance(ctx context.Context, tx *gorm.DB, shopID string, watermark, runAt time.Time, orders int) error {
	row := models.SyncWatermark{
		ShopID:      shopID,
		WatermarkAt: watermark.UTC(),
		LastRunAt:   runAt.UTC(),
		LastOrders:  orders,
		UpdatedAt:   time.Now().UTC(),
	}
	return r.Tx(ctx, tx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "shop_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"watermark_at", "last_run_at", "last_orders", "updated_at"}),
		}).
		Create(&row).Error
}
