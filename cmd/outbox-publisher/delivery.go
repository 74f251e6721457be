package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"

	"github.com/angelmondragon/quizlink-backend/pkg/db/models"
	"github.com/angelmondragon/quizlink-backend/pkg/outbox"
)

type verdict int

const (
	verdictPublished verdict = iota
	verdictRetry
	verdictDead
)

func (v verdict) String() string {
	switch v {
	case verdictPublished:
		return "published"
	case verdictRetry:
		return "retry"
	default:
		return "dead"
	}
}

// errUndeliverable marks rows that can never be published as stored.
var errUndeliverable = errors.New("undeliverable outbox event")

// delivery tracks one outbox row from submit to settle.
type delivery struct {
	row      models.OutboxEvent
	envelope outbox.PayloadEnvelope
	topic    string
	pending  pendingPublish
	err      error
}

// submit validates the row and hands it to the sink without waiting for the ack.
func (r *Relay) submit(ctx context.Context, row models.OutboxEvent) *delivery {
	d := &delivery{row: row}

	topic, ok := r.routes[row.EventType]
	if !ok || topic == "" {
		d.err = fmt.Errorf("%w: no topic for event type %q", errUndeliverable, row.EventType)
		return d
	}
	d.topic = topic

	envelope, err := outbox.DecodeEnvelope(row.Payload)
	if err != nil {
		d.err = fmt.Errorf("%w: %v", errUndeliverable, err)
		return d
	}
	if envelope.EventID == "" {
		d.err = fmt.Errorf("%w: envelope has no event id", errUndeliverable)
		return d
	}
	d.envelope = envelope

	pending := r.sink.Publish(ctx, topic, d.message())
	if pending == nil {
		d.err = fmt.Errorf("%w: no publisher for topic %s", errUndeliverable, topic)
		return d
	}
	d.pending = pending
	return d
}

func (d *delivery) message() *gcppubsub.Message {
	return &gcppubsub.Message{
		Data: d.row.Payload,
		Attributes: map[string]string{
			"event_id":       d.envelope.EventID,
			"event_type":     string(d.row.EventType),
			"aggregate_type": string(d.row.AggregateType),
			"aggregate_id":   d.row.AggregateID,
			"created_at":     d.row.CreatedAt.UTC().Format(time.RFC3339Nano),
		},
	}
}

// await blocks until the broker acks or rejects a submitted message.
func (d *delivery) await(ctx context.Context) {
	if d.pending == nil || d.err != nil {
		return
	}
	if _, err := d.pending.Get(ctx); err != nil {
		d.err = err
	}
}

func (d *delivery) verdict(maxAttempts int) verdict {
	switch {
	case d.err == nil:
		return verdictPublished
	case errors.Is(d.err, errUndeliverable):
		return verdictDead
	case d.row.AttemptCount+1 >= maxAttempts:
		d.err = fmt.Errorf("gave up after %d attempts: %w", d.row.AttemptCount+1, d.err)
		return verdictDead
	default:
		return verdictRetry
	}
}

func (d *delivery) fields() map[string]any {
	fields := map[string]any{
		"outbox_id":     d.row.ID.String(),
		"event_type":    d.row.EventType,
		"shop_id":       d.row.AggregateID,
		"attempt_count": d.row.AttemptCount,
	}
	if d.topic != "" {
		fields["topic"] = d.topic
	}
	if d.envelope.EventID != "" {
		fields["event_id"] = d.envelope.EventID
	}
	return fields
}
