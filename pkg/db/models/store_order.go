package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// StoreOrder is the read-only view of a storefront order synced from the shop platform.
type StoreOrder struct {
	ID         string          `gorm:"column:id;type:text;primaryKey"`
	ShopID     string          `gorm:"column:shop_id;type:text;not null;index:idx_store_orders_shop_created,priority:1"`
	CreatedAt  time.Time       `gorm:"column:created_at;not null;index:idx_store_orders_shop_created,priority:2"`
	CustomerID *string         `gorm:"column:customer_id;type:text"`
	TotalPrice decimal.Decimal `gorm:"column:total_price;type:numeric(12,2);not null"`
	Currency   string          `gorm:"column:currency;type:text;not null;default:'USD'"`
}

func (StoreOrder) TableName() string { return "store_orders" }

// HasCustomer reports whether a non-empty customer reference is recorded.
func (o StoreOrder) HasCustomer() bool {
	return o.CustomerID != nil && *o.CustomerID != ""
}
