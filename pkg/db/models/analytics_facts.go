package models

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/quizlink-backend/pkg/enums"
)

// AnalyticsSessionFact marks a session lifecycle fact as already counted.
type AnalyticsSessionFact struct {
	SessionID string                `gorm:"column:session_id;type:text;primaryKey"`
	Kind      enums.SessionFactKind `gorm:"column:kind;type:text;primaryKey"`
	ShopID    string                `gorm:"column:shop_id;type:text;not null"`
	QuizID    string                `gorm:"column:quiz_id;type:text;not null"`
	FactDate  time.Time             `gorm:"column:fact_date;type:date;not null"`
	CreatedAt time.Time             `gorm:"column:created_at;autoCreateTime"`
}

func (AnalyticsSessionFact) TableName() string { return "analytics_session_facts" }

// AnalyticsOrderFact remembers which rollup row an order's revenue was folded into.
type AnalyticsOrderFact struct {
	OrderID   string          `gorm:"column:order_id;type:text;primaryKey"`
	ShopID    string          `gorm:"column:shop_id;type:text;not null"`
	QuizID    string          `gorm:"column:quiz_id;type:text;not null"`
	SessionID string          `gorm:"column:session_id;type:text;not null"`
	FactDate  time.Time       `gorm:"column:fact_date;type:date;not null"`
	Revenue   decimal.Decimal `gorm:"column:revenue;type:numeric(12,2);not null"`
	UpdatedAt time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (AnalyticsOrderFact) TableName() string { return "analytics_order_facts" }
