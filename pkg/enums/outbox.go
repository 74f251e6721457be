package enums

import "slices"

// OutboxEventType names a domain event written to the outbox.
type OutboxEventType string

const (
	EventSyncCompleted OutboxEventType = "attribution.sync_completed"
)

var validOutboxEventTypes = []OutboxEventType{
	EventSyncCompleted,
}

func (e OutboxEventType) String() string {
	return string(e)
}

func (e OutboxEventType) IsValid() bool {
	return slices.Contains(validOutboxEventTypes, e)
}

// OutboxAggregateType names the entity an outbox event is about.
type OutboxAggregateType string

const (
	AggregateShop OutboxAggregateType = "shop"
)

func (a OutboxAggregateType) String() string {
	return string(a)
}

func (a OutboxAggregateType) IsValid() bool {
	return a == AggregateShop
}
