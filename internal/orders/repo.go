package orders

import (
	"context"

	"gorm.io/gorm"

	"github.com/angelmondragon/quizlink-backend/internal/repo"
	"github.com/angelmondragon/quizlink-backend/pkg/db/models"
	"github.com/angelmondragon/quizlink-backend/pkg/types"
)

// Repository is the read-only order feed.
type Repository interface {
	ListOrders(ctx context.Context, shopID string, window types.TimeRange) ([]models.StoreOrder, error)
}

type repository struct {
	repo.Base
}

// NewRepository builds an order feed bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

// ListOrders returns the shop's orders created inside window, oldest first.
func (r *repository) ListOrders(ctx context.Context, shopID string, window types.TimeRange) ([]models.StoreOrder, error) {
	var rows []models.StoreOrder
	err := r.DB(ctx).
		Where("shop_id = ? AND created_at >= ? AND created_at < ?", shopID, window.Start.UTC(), window.End.UTC()).
		Order("created_at ASC").
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
