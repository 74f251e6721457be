package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/quizlink-backend/pkg/config"
	"github.com/angelmondragon/quizlink-backend/pkg/db/models"
	"github.com/angelmondragon/quizlink-backend/pkg/enums"
	"github.com/angelmondragon/quizlink-backend/pkg/logger"
)

const (
	defaultBatchSize      = 50
	defaultPollInterval   = 500 * time.Millisecond
	defaultMaxBackoff     = 10 * time.Second
	defaultPublishTimeout = 15 * time.Second
	defaultMaxAttempts    = 10
)

type txDB interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type outboxStore interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
}

type RelayParams struct {
	Config *config.Config
	Logger *logger.Logger
	DB     txDB
	Store  outboxStore
	Sink   sink
}

// Relay drains the outbox table into Pub/Sub. Rows are locked for the
// length of one batch so parallel relays never deliver the same row twice.
type Relay struct {
	logg           *logger.Logger
	db             txDB
	store          outboxStore
	sink           sink
	routes         map[enums.OutboxEventType]string
	batchSize      int
	maxAttempts    int
	publishTimeout time.Duration
	pause          *backoff
}

func NewRelay(params RelayParams) (*Relay, error) {
	switch {
	case params.Config == nil:
		return nil, errors.New("config is required")
	case params.Logger == nil:
		return nil, errors.New("logger is required")
	case params.DB == nil:
		return nil, errors.New("database client is required")
	case params.Store == nil:
		return nil, errors.New("outbox store is required")
	case params.Sink == nil:
		return nil, errors.New("publish sink is required")
	}

	cfg := params.Config.Outbox
	return &Relay{
		logg:  params.Logger,
		db:    params.DB,
		store: params.Store,
		sink:  params.Sink,
		routes: map[enums.OutboxEventType]string{
			enums.EventSyncCompleted: params.Config.PubSub.SyncTopic,
		},
		batchSize:      positiveOr(cfg.BatchSize, defaultBatchSize),
		maxAttempts:    positiveOr(cfg.MaxAttempts, defaultMaxAttempts),
		publishTimeout: positiveOr(cfg.PublishTimeout, defaultPublishTimeout),
		pause:          newBackoff(positiveOr(cfg.PollInterval, defaultPollInterval), positiveOr(cfg.MaxBackoff, defaultMaxBackoff)),
	}, nil
}

// Run polls until ctx is cancelled. Idle polls wait one interval and failed
// batches back off exponentially.
func (r *Relay) Run(ctx context.Context) error {
	for name, ping := range map[string]func(context.Context) error{"database": r.db.Ping, "pubsub": r.sink.Ping} {
		if err := ping(ctx); err != nil {
			r.logg.Error(ctx, name+" ping failed", err)
			return fmt.Errorf("%s ping failed: %w", name, err)
		}
	}

	for {
		if err := ctx.Err(); err != nil {
			r.logg.Info(ctx, "outbox relay stopping")
			return err
		}

		n, err := r.drain(ctx)
		var wait time.Duration
		switch {
		case err != nil:
			r.logg.Error(ctx, "outbox relay batch failed", err)
			wait = r.pause.fail()
		case n == 0:
			wait = r.pause.idle()
		default:
			r.pause.reset()
			continue
		}
		if err := sleepCtx(ctx, wait); err != nil {
			return err
		}
	}
}

// drain claims one batch, publishes it and records every outcome in the
// same transaction. It returns the number of rows claimed.
func (r *Relay) drain(ctx context.Context) (int, error) {
	claimed := 0
	err := r.db.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := r.store.FetchUnpublishedForPublish(tx, r.batchSize, r.maxAttempts)
		if err != nil {
			return fmt.Errorf("claim outbox rows: %w", err)
		}
		claimed = len(rows)
		if claimed == 0 {
			return nil
		}

		publishCtx, cancel := context.WithTimeout(ctx, r.publishTimeout)
		defer cancel()

		deliveries := make([]*delivery, 0, len(rows))
		for _, row := range rows {
			deliveries = append(deliveries, r.submit(publishCtx, row))
		}
		for _, d := range deliveries {
			d.await(publishCtx)
			if err := r.settle(ctx, tx, d); err != nil {
				return err
			}
		}
		return nil
	})
	return claimed, err
}

func (r *Relay) settle(ctx context.Context, tx *gorm.DB, d *delivery) error {
	id := d.row.ID
	v := d.verdict(r.maxAttempts)
	logCtx := r.logg.WithFields(ctx, d.fields())
	logCtx = r.logg.WithField(logCtx, "verdict", v.String())

	switch v {
	case verdictPublished:
		if err := r.store.MarkPublishedTx(tx, id); err != nil {
			return fmt.Errorf("mark published %s: %w", id, err)
		}
		r.logg.Info(logCtx, "outbox event published")
	case verdictRetry:
		r.logg.Warn(r.logg.WithField(logCtx, "error", d.err.Error()), "outbox publish failed, will retry")
		if err := r.store.MarkFailedTx(tx, id, d.err); err != nil {
			return fmt.Errorf("mark failed %s: %w", id, err)
		}
	case verdictDead:
		r.logg.Warn(r.logg.WithField(logCtx, "error", d.err.Error()), "outbox event dropped")
		if err := r.store.MarkTerminalTx(tx, id, d.err, r.maxAttempts); err != nil {
			return fmt.Errorf("mark terminal %s: %w", id, err)
		}
	}
	return nil
}

type backoff struct {
	base    time.Duration
	max     time.Duration
	current time.Duration
}

func newBackoff(base, ceiling time.Duration) *backoff {
	return &backoff{base: base, max: max(base, ceiling), current: base}
}

// fail doubles the delay up to max and returns it with jitter.
func (b *backoff) fail() time.Duration {
	b.current = min(b.current*2, b.max)
	return jitter(b.current)
}

func (b *backoff) idle() time.Duration {
	b.current = b.base
	return jitter(b.base)
}

func (b *backoff) reset() {
	b.current = b.base
}

// jitter adds up to a quarter of d.
func jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	spread := int64(d / 4)
	if spread <= 0 {
		return d
	}
	return d + time.Duration(rand.Int64N(spread))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func positiveOr[T int | time.Duration](v, fallback T) T {
	if v > 0 {
		return v
	}
	return fallback
}
