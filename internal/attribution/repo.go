package attribution

import (
	"context"
	"errors"
	"slices"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/quizlink-backend/internal/repo"
	"github.com/angelmondragon/quizlink-backend/pkg/db/models"
	"github.com/angelmondragon/quizlink-backend/pkg/enums"
	"github.com/angelmondragon/quizlink-backend/pkg/pagination"
	"github.com/angelmondragon/quizlink-backend/pkg/types"
)

const (
	upsertBatchSize = 500
	inClauseChunk   = 500
)

// ErrAttributionNotFound is returned when no verdict exists for an order.
var ErrAttributionNotFound = errors.New("order attribution not found")

// Repository persists matcher verdicts.
type Repository interface {
	UpsertAttribution(ctx context.Context, tx *gorm.DB, attribution *models.OrderAttribution) error
	UpsertAttributions(ctx context.Context, tx *gorm.DB, attributions []models.OrderAttribution) error
	FindByOrder(ctx context.Context, orderID string) (*models.OrderAttribution, error)
	ListPage(ctx context.Context, query ListQuery) (*Page, error)
	CountTiers(ctx context.Context, shopID string, window types.TimeRange) (map[enums.AttributionTier]int, error)
	ClaimedSessionsOutside(ctx context.Context, shopID string, sessionIDs []string, window types.TimeRange) (map[string]struct{}, error)
}

// ListQuery selects one page of verdicts for orders created inside Window.
type ListQuery struct {
	ShopID string
	Window types.TimeRange
	Tier   *enums.AttributionTier
	Page   pagination.Params
}

// Page is one keyset page ordered by order creation time then order id.
type Page struct {
	Attributions []models.OrderAttribution
	NextCursor   string
}

type repository struct {
	repo.Base
}

// NewRepository builds an attribution repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) UpsertAttribution(ctx context.Context, tx *gorm.DB, attribution *models.OrderAttribution) error {
	if attribution == nil {
		return nil
	}
	return r.UpsertAttributions(ctx, tx, []models.OrderAttribution{*attribution})
}

// UpsertAttributions overwrites any previous verdict keyed by order id.
// The caller's slice is not modified.
func (r *repository) UpsertAttributions(ctx context.Context, tx *gorm.DB, attributions []models.OrderAttribution) error {
	if len(attributions) == 0 {
		return nil
	}
	rows := slices.Clone(attributions)
	now := time.Now().UTC()
	for i := range rows {
		rows[i].UpdatedAt = now
	}
	return r.Tx(ctx, tx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "order_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"shop_id",
				"session_id",
				"quiz_id",
				"tier",
				"order_total",
				"order_created_at",
				"matched_at",
				"updated_at",
			}),
		}).
		CreateInBatches(&rows, upsertBatchSize).Error
}

func (r *repository) FindByOrder(ctx context.Context, orderID string) (*models.OrderAttribution, error) {
	var row models.OrderAttribution
	err := r.DB(ctx).Where("order_id = ?", orderID).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAttributionNotFound
		}
		return nil, err
	}
	return &row, nil
}

func (r *repository) ListPage(ctx context.Context, query ListQuery) (*Page, error) {
	cursor, err := pagination.ParseCursor(query.Page.Cursor)
	if err != nil {
		return nil, err
	}
	q := r.DB(ctx).
		Where("shop_id = ? AND order_created_at >= ? AND order_created_at < ?", query.ShopID, query.Window.Start.UTC(), query.Window.End.UTC())
	if query.Tier != nil {
		q = q.Where("tier = ?", *query.Tier)
	}
	if cursor != nil {
		q = q.Where("(order_created_at > ? OR (order_created_at = ? AND order_id > ?))", cursor.At, cursor.At, cursor.ID)
	}
	var rows []models.OrderAttribution
	err = q.Order("order_created_at ASC").
		Order("order_id ASC").
		Limit(pagination.LimitWithBuffer(query.Page.Limit)).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	rows, more := pagination.Trim(rows, query.Page.Limit)
	page := &Page{Attributions: rows}
	if more {
		last := rows[len(rows)-1]
		page.NextCursor = pagination.EncodeCursor(pagination.Cursor{At: last.OrderCreatedAt, ID: last.OrderID})
	}
	return page, nil
}

// CountTiers tallies every verdict in window by tier.
func (r *repository) CountTiers(ctx context.Context, shopID string, window types.TimeRange) (map[enums.AttributionTier]int, error) {
	var rows []struct {
		Tier  enums.AttributionTier
		Count int
	}
	err := r.DB(ctx).
		Model(&models.OrderAttribution{}).
		Select("tier, COUNT(*) AS count").
		Where("shop_id = ? AND order_created_at >= ? AND order_created_at < ?", shopID, window.Start.UTC(), window.End.UTC()).
		Group("tier").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[enums.AttributionTier]int, len(rows))
	for _, row := range rows {
		counts[row.Tier] = row.Count
	}
	return counts, nil
}

// ClaimedSessionsOutside returns the subset of sessionIDs already credited to
// an order created outside window.
func (r *repository) ClaimedSessionsOutside(ctx context.Context, shopID string, sessionIDs []string, window types.TimeRange) (map[string]struct{}, error) {
	claimed := map[string]struct{}{}
	for start := 0; start < len(sessionIDs); start += inClauseChunk {
		end := start + inClauseChunk
		if end > len(sessionIDs) {
			end = len(sessionIDs)
		}
		var ids []string
		err := r.DB(ctx).
			Model(&models.OrderAttribution{}).
			Where("shop_id = ? AND session_id IN ?", shopID, sessionIDs[start:end]).
			Where("(order_created_at < ? OR order_created_at >= ?)", window.Start.UTC(), window.End.UTC()).
			Pluck("session_id", &ids).Error
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			claimed[id] = struct{}{}
		}
	}
	return claimed, nil
}
