package cron

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/quizlink-backend/pkg/logger"
	"github.com/angelmondragon/quizlink-backend/pkg/metrics"
)

type fakePending struct {
	count int64
	err   error
}

func (f fakePending) CountPending(context.Context) (int64, error) { return f.count, f.err }

func TestOutboxBacklogJobSetsGaugeAndWarns(t *testing.T) {
	buf := &bytes.Buffer{}
	reg := prometheus.NewRegistry()
	job, err := NewOutboxBacklogJob(OutboxBacklogJobParams{
		Logger:    logger.New(logger.Options{ServiceName: "cron-test", Output: buf}),
		Outbox:    fakePending{count: 12},
		Metrics:   metrics.NewOutboxMetrics(reg),
		WarnAbove: 10,
	})
	require.NoError(t, err)
	assert.Equal(t, "outbox-backlog", job.Name())

	require.NoError(t, job.Run(context.Background()))
	families, err := reg.Gather()
	require.NoError(t, err)
	require.Len(t, families, 1)
	assert.Equal(t, "quizlink_outbox_pending_events", families[0].GetName())
	assert.Equal(t, float64(12), families[0].GetMetric()[0].GetGauge().GetValue())
	assert.Contains(t, buf.String(), "outbox backlog above threshold")
}

func TestOutboxBacklogJobPropagatesErrors(t *testing.T) {
	job, err := NewOutboxBacklogJob(OutboxBacklogJobParams{
		Logger: logger.New(logger.Options{ServiceName: "cron-test", Output: &bytes.Buffer{}}),
		Outbox: fakePending{err: errors.New("db down")},
	})
	require.NoError(t, err)
	assert.Error(t, job.Run(context.Background()))

	_, err = NewOutboxBacklogJob(OutboxBacklogJobParams{Logger: logger.New(logger.Options{ServiceName: "cron-test"})})
	assert.Error(t, err)
}
