package cron

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"github.com/angelmondragon/quizlink-backend/pkg/logger"
	"github.com/angelmondragon/quizlink-backend/pkg/metrics"
)

type fakeLock struct {
	acquired bool
	releases int
}

func (f *fakeLock) Acquire(context.Context) (bool, error) {
	if f.acquired {
		return false, nil
	}
	f.acquired = true
	return true, nil
}

func (f *fakeLock) Release(context.Context) error {
	f.acquired = false
	f.releases++
	return nil
}

type testJob struct {
	name     string
	err      error
	runs     int
	deadline bool
}

func (t *testJob) Name() string { return t.name }

func (t *testJob) Run(ctx context.Context) error {
	t.runs++
	_, t.deadline = ctx.Deadline()
	return t.err
}

func newTestCron(t *testing.T, lock *fakeLock, jobs ...Job) *Service {
	t.Helper()
	registry, err := NewRegistry(jobs...)
	require.NoError(t, err)
	service, err := NewService(ServiceParams{
		Logger:   logger.New(logger.Options{ServiceName: "cron-test", Output: io.Discard}),
		Registry: registry,
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.NewRegistry()),
	})
	require.NoError(t, err)
	return service
}

func TestRunOnceRunsAllJobsAndCombinesErrors(t *testing.T) {
	ok := &testJob{name: "attribution-sync"}
	failing := &testJob{name: "watermark-audit", err: errors.New("boom")}
	lock := &fakeLock{}
	service := newTestCron(t, lock, ok, failing)

	err := service.RunOnce(context.Background())
	require.Error(t, err)
	assert.Len(t, multierr.Errors(err), 1)
	assert.Contains(t, err.Error(), "watermark-audit")
	assert.Equal(t, 1, ok.runs)
	assert.Equal(t, 1, failing.runs)
	assert.True(t, ok.deadline, "jobs run under a timeout")
	assert.Equal(t, 1, lock.releases)
}

func TestRunOnceSkipsWhenLockHeld(t *testing.T) {
	job := &testJob{name: "attribution-sync"}
	service := newTestCron(t, &fakeLock{acquired: true}, job)

	err := service.RunOnce(context.Background())
	assert.ErrorIs(t, err, ErrCycleSkipped)
	assert.Zero(t, job.runs)
}

func TestRunStopsOnCancel(t *testing.T) {
	job := &testJob{name: "attribution-sync"}
	service := newTestCron(t, &fakeLock{}, job)
	service.interval = time.Hour

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := service.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, job.runs, "first cycle runs immediately")
}

func TestNewServiceDefaults(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "cron-test", Output: io.Discard})
	_, err := NewService(ServiceParams{Logger: logg})
	assert.Error(t, err, "lock is required")

	service, err := NewService(ServiceParams{Logger: logg, Lock: &fakeLock{}})
	require.NoError(t, err)
	assert.Equal(t, defaultInterval, service.interval)
	assert.Equal(t, defaultJobTimeout, service.jobTimeout)
	assert.NoError(t, service.RunOnce(context.Background()))
}
