package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/quizlink-backend/pkg/config"
	"github.com/angelmondragon/quizlink-backend/pkg/db/models"
	"github.com/angelmondragon/quizlink-backend/pkg/enums"
	"github.com/angelmondragon/quizlink-backend/pkg/logger"
	"github.com/angelmondragon/quizlink-backend/pkg/outbox"
)

func TestDrainSettlesEachRowIndependently(t *testing.T) {
	store := &fakeStore{rows: []models.OutboxEvent{syncRow(t, "evt-1", 0), syncRow(t, "evt-2", 0)}}
	sink := &fakeSink{acks: []error{errors.New("unavailable"), nil}}
	relay := newTestRelay(t, store, sink, nil)

	n, err := relay.drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []uuid.UUID{store.rows[0].ID}, store.failed)
	assert.Equal(t, []uuid.UUID{store.rows[1].ID}, store.published)
	assert.Empty(t, store.terminal)
}

func TestDrainSubmitsWholeBatchBeforeAwaiting(t *testing.T) {
	store := &fakeStore{rows: []models.OutboxEvent{syncRow(t, "evt-1", 0), syncRow(t, "evt-2", 0)}}
	sink := &fakeSink{acks: []error{nil, nil}}
	relay := newTestRelay(t, store, sink, nil)

	_, err := relay.drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"publish", "publish", "get", "get"}, sink.calls)
}

func TestDrainRoutesSyncEventsWithAttributes(t *testing.T) {
	row := syncRow(t, "evt-1", 0)
	store := &fakeStore{rows: []models.OutboxEvent{row}}
	sink := &fakeSink{acks: []error{nil}}
	relay := newTestRelay(t, store, sink, nil)

	_, err := relay.drain(context.Background())
	require.NoError(t, err)
	require.Len(t, sink.sent, 1)
	assert.Equal(t, "attribution-sync", sink.topics[0])
	attrs := sink.sent[0].Attributes
	assert.Equal(t, "evt-1", attrs["event_id"])
	assert.Equal(t, "s1", attrs["aggregate_id"])
	assert.Equal(t, string(enums.EventSyncCompleted), attrs["event_type"])
	assert.JSONEq(t, string(row.Payload), string(sink.sent[0].Data))
}

func TestDrainDropsUndeliverableRows(t *testing.T) {
	unknown := syncRow(t, "evt-1", 0)
	unknown.EventType = "order.created"
	garbled := syncRow(t, "evt-2", 0)
	garbled.Payload = json.RawMessage(`not-json`)
	anonymous := syncRow(t, "", 0)

	store := &fakeStore{rows: []models.OutboxEvent{unknown, garbled, anonymous}}
	sink := &fakeSink{}
	relay := newTestRelay(t, store, sink, nil)

	_, err := relay.drain(context.Background())
	require.NoError(t, err)
	assert.Len(t, store.terminal, 3)
	assert.Empty(t, sink.sent, "nothing undeliverable reaches the broker")
	assert.Empty(t, store.published)
}

func TestDrainDropsRowAtAttemptLimit(t *testing.T) {
	store := &fakeStore{rows: []models.OutboxEvent{syncRow(t, "evt-1", 1)}}
	sink := &fakeSink{acks: []error{errors.New("unavailable")}}
	relay := newTestRelay(t, store, sink, &config.OutboxConfig{BatchSize: 1, MaxAttempts: 2})

	_, err := relay.drain(context.Background())
	require.NoError(t, err)
	assert.Len(t, store.terminal, 1)
	assert.Equal(t, 2, store.terminalAttempts)
	assert.Empty(t, store.failed)
	assert.Contains(t, store.lastErr.Error(), "gave up after 2 attempts")
}

func TestDrainMissingPublisherIsTerminal(t *testing.T) {
	store := &fakeStore{rows: []models.OutboxEvent{syncRow(t, "evt-1", 0)}}
	sink := &fakeSink{noPublisher: true}
	relay := newTestRelay(t, store, sink, nil)

	_, err := relay.drain(context.Background())
	require.NoError(t, err)
	assert.Len(t, store.terminal, 1)
}

func TestDrainEmptyBatch(t *testing.T) {
	relay := newTestRelay(t, &fakeStore{}, &fakeSink{}, nil)
	n, err := relay.drain(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDrainPropagatesClaimError(t *testing.T) {
	relay := newTestRelay(t, &fakeStore{fetchErr: errors.New("db gone")}, &fakeSink{}, nil)
	_, err := relay.drain(context.Background())
	assert.ErrorContains(t, err, "claim outbox rows")
}

func TestRunStopsOnCancel(t *testing.T) {
	relay := newTestRelay(t, &fakeStore{}, &fakeSink{}, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, relay.Run(ctx), context.DeadlineExceeded)
}

func TestRunFailsWhenSinkUnreachable(t *testing.T) {
	relay := newTestRelay(t, &fakeStore{}, &fakeSink{pingErr: errors.New("no creds")}, nil)
	assert.ErrorContains(t, relay.Run(context.Background()), "pubsub ping failed")
}

func TestNewRelayValidatesAndDefaults(t *testing.T) {
	_, err := NewRelay(RelayParams{})
	require.Error(t, err)

	cfg := &config.Config{}
	_, err = NewRelay(RelayParams{Config: cfg, Logger: quietLogger(), DB: fakeDB{}, Sink: &fakeSink{}})
	require.ErrorContains(t, err, "outbox store")

	relay, err := NewRelay(RelayParams{Config: cfg, Logger: quietLogger(), DB: fakeDB{}, Store: &fakeStore{}, Sink: &fakeSink{}})
	require.NoError(t, err)
	assert.Equal(t, defaultBatchSize, relay.batchSize)
	assert.Equal(t, defaultMaxAttempts, relay.maxAttempts)
	assert.Equal(t, defaultPublishTimeout, relay.publishTimeout)
	assert.Equal(t, defaultPollInterval, relay.pause.base)
}

func TestBackoffDoublesToCeiling(t *testing.T) {
	b := newBackoff(time.Second, 3*time.Second)
	first := b.fail()
	assert.GreaterOrEqual(t, first, 2*time.Second)
	assert.Less(t, first, 2*time.Second+500*time.Millisecond)

	b.fail()
	b.fail()
	assert.Equal(t, 3*time.Second, b.current)

	b.reset()
	assert.Equal(t, time.Second, b.current)
}

func newTestRelay(t *testing.T, store outboxStore, s sink, override *config.OutboxConfig) *Relay {
	t.Helper()
	outboxCfg := config.OutboxConfig{BatchSize: 2, PollInterval: 10 * time.Millisecond, MaxAttempts: 5}
	if override != nil {
		outboxCfg = *override
	}
	relay, err := NewRelay(RelayParams{
		Config: &config.Config{
			Outbox: outboxCfg,
			PubSub: config.PubSubConfig{SyncTopic: "attribution-sync"},
		},
		Logger: quietLogger(),
		DB:     fakeDB{},
		Store:  store,
		Sink:   s,
	})
	require.NoError(t, err)
	return relay
}

func quietLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "outbox-publisher-test", Output: io.Discard})
}

func syncRow(tb testing.TB, eventID string, attempts int) models.OutboxEvent {
	tb.Helper()
	payload, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    1,
		EventID:    eventID,
		OccurredAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Data:       json.RawMessage(`{"shop_id":"s1"}`),
	})
	require.NoError(tb, err)
	return models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventSyncCompleted,
		AggregateType: enums.AggregateShop,
		AggregateID:   "s1",
		Payload:       payload,
		AttemptCount:  attempts,
	}
}

type fakeStore struct {
	rows             []models.OutboxEvent
	fetchErr         error
	published        []uuid.UUID
	failed           []uuid.UUID
	terminal         []uuid.UUID
	terminalAttempts int
	lastErr          error
}

func (f *fakeStore) FetchUnpublishedForPublish(*gorm.DB, int, int) ([]models.OutboxEvent, error) {
	return f.rows, f.fetchErr
}

func (f *fakeStore) MarkPublishedTx(_ *gorm.DB, id uuid.UUID) error {
	f.published = append(f.published, id)
	return nil
}

func (f *fakeStore) MarkFailedTx(_ *gorm.DB, id uuid.UUID, err error) error {
	f.failed = append(f.failed, id)
	f.lastErr = err
	return nil
}

func (f *fakeStore) MarkTerminalTx(_ *gorm.DB, id uuid.UUID, err error, attempts int) error {
	f.terminal = append(f.terminal, id)
	f.terminalAttempts = attempts
	f.lastErr = err
	return nil
}

type fakeDB struct{}

func (fakeDB) Ping(context.Context) error { return nil }

func (fakeDB) WithTx(_ context.Context, fn func(*gorm.DB) error) error { return fn(nil) }

type fakeSink struct {
	acks        []error
	pingErr     error
	noPublisher bool
	sent        []*gcppubsub.Message
	topics      []string
	calls       []string
}

func (f *fakeSink) Ping(context.Context) error { return f.pingErr }

func (f *fakeSink) Publish(_ context.Context, topic string, msg *gcppubsub.Message) pendingPublish {
	if f.noPublisher {
		return nil
	}
	f.calls = append(f.calls, "publish")
	f.sent = append(f.sent, msg)
	f.topics = append(f.topics, topic)
	var ack error
	if len(f.acks) > 0 {
		ack, f.acks = f.acks[0], f.acks[1:]
	}
	return fakeAck{sink: f, err: ack}
}

type fakeAck struct {
	sink *fakeSink
	err  error
}

func (a fakeAck) Get(context.Context) (string, error) {
	a.sink.calls = append(a.sink.calls, "get")
	if a.err != nil {
		return "", a.err
	}
	return "server-id", nil
}
