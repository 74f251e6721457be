package cron

import (
	"context"
	"fmt"

	"github.com/angelmondragon/quizlink-backend/pkg/logger"
	"github.com/angelmondragon/quizlink-backend/pkg/metrics"
)

const outboxBacklogJobName = "outbox-backlog"

type pendingCounter interface {
	CountPending(ctx context.Context) (int64, error)
}

// OutboxBacklogJobParams configure the backlog gauge job.
type OutboxBacklogJobParams struct {
	Logger  *logger.Logger
	Outbox  pendingCounter
	Metrics *metrics.OutboxMetrics
	// WarnAbove logs a warning when the backlog exceeds it. Zero disables the warning.
	WarnAbove int64
}

type outboxBacklogJob struct {
	logg      *logger.Logger
	outbox    pendingCounter
	metrics   *metrics.OutboxMetrics
	warnAbove int64
}

// NewOutboxBacklogJob reports how many sync events still await publication.
func NewOutboxBacklogJob(params OutboxBacklogJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox repository required")
	}
	return &outboxBacklogJob{
		logg:      params.Logger,
		outbox:    params.Outbox,
		metrics:   params.Metrics,
		warnAbove: params.WarnAbove,
	}, nil
}

func (j *outboxBacklogJob) Name() string { return outboxBacklogJobName }

func (j *outboxBacklogJob) Run(ctx context.Context) error {
	pending, err := j.outbox.CountPending(ctx)
	if err != nil {
		return fmt.Errorf("count pending outbox events: %w", err)
	}
	j.metrics.SetPending(pending)
	if j.warnAbove > 0 && pending > j.warnAbove {
		j.logg.Warn(j.logg.WithField(ctx, "pending", pending), "outbox backlog above threshold")
	}
	return nil
}
