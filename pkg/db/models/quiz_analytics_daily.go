package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// QuizAnalyticsDaily is the per-shop, per-quiz, per-day conversion rollup.
type QuizAnalyticsDaily struct {
	ShopID               string          `gorm:"column:shop_id;type:text;primaryKey"`
	QuizID               string          `gorm:"column:quiz_id;type:text;primaryKey"`
	SummaryDate          time.Time       `gorm:"column:summary_date;type:date;primaryKey"`
	SessionCount         int64           `gorm:"column:session_count;not null;default:0"`
	CompletedCount       int64           `gorm:"column:completed_count;not null;default:0"`
	AttributedOrderCount int64           `gorm:"column:attributed_order_count;not null;default:0"`
	AttributedRevenue    decimal.Decimal `gorm:"column:attributed_revenue;type:numeric(14,2);not null;default:0"`
	UpdatedAt            time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (QuizAnalyticsDaily) TableName() string { return "quiz_analytics_daily" }
