package models

import "time"

// SyncWatermark is the exclusive upper bound through which a shop's orders are reconciled.
type SyncWatermark struct {
	ShopID      string    `gorm:"column:shop_id;type:text;primaryKey"`
	WatermarkAt time.Time `gorm:"column:watermark_at;not null"`
	LastRunAt   time.Time `gorm:"column:last_run_at;not null"`
	LastOrders  int       `gorm:"column:last_orders;not null;default:0"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (SyncWatermark) TableName() string { return "sync_watermarks" }
