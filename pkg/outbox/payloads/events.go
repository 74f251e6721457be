package payloads

import "time"

// SyncCompletedEvent is emitted after a shop's sync window commits.
type SyncCompletedEvent struct {
	ShopID           string         `json:"shop_id"`
	WindowStart      time.Time      `json:"window_start"`
	WindowEnd        time.Time      `json:"window_end"`
	Orders           int            `json:"orders"`
	OrdersAttributed int            `json:"orders_attributed"`
	SummariesTouched int            `json:"summaries_touched"`
	Tiers            map[string]int `json:"tiers,omitempty"`
}
