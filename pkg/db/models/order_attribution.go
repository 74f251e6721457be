package models

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/quizlink-backend/pkg/enums"
)

// OrderAttribution stores the matcher's verdict for one order, including "no match".
type OrderAttribution struct {
	OrderID        string                `gorm:"column:order_id;type:text;primaryKey"`
	ShopID         string                `gorm:"column:shop_id;type:text;not null;index"`
	SessionID      *string               `gorm:"column:session_id;type:text;index"`
	QuizID         *string               `gorm:"column:quiz_id;type:text"`
	Tier           enums.AttributionTier `gorm:"column:tier;type:text;not null"`
	OrderTotal     decimal.Decimal       `gorm:"column:order_total;type:numeric(12,2);not null"`
	OrderCreatedAt time.Time             `gorm:"column:order_created_at;not null"`
	MatchedAt      time.Time             `gorm:"column:matched_at;not null"`
	UpdatedAt      time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}

func (OrderAttribution) TableName() string { return "order_attributions" }
