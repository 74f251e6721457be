package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCronJobMetricsRunsByOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCronJobMetrics(reg)

	m.ObserveRun("attribution-sync", 250*time.Millisecond, nil)
	m.ObserveRun("attribution-sync", time.Second, errors.New("upstream down"))
	m.ObserveSkipped("attribution-sync")

	mfs, err := reg.Gather()
	require.NoError(t, err)

	runs := family(mfs, "quizlink_cron_job_runs_total")
	require.NotNil(t, runs)
	for _, outcome := range []string{OutcomeSuccess, OutcomeFailure, OutcomeSkipped} {
		metric := withLabels(runs, map[string]string{"job": "attribution-sync", "outcome": outcome})
		require.NotNil(t, metric, outcome)
		assert.Equal(t, 1.0, metric.GetCounter().GetValue(), outcome)
	}

	hist := withLabels(family(mfs, "quizlink_cron_job_duration_seconds"), map[string]string{"job": "attribution-sync"})
	require.NotNil(t, hist)
	assert.Equal(t, uint64(2), hist.GetHistogram().GetSampleCount())
	assert.InDelta(t, 1.25, hist.GetHistogram().GetSampleSum(), 1e-9)

	last := withLabels(family(mfs, "quizlink_cron_job_last_success_timestamp_seconds"), map[string]string{"job": "attribution-sync"})
	require.NotNil(t, last)
	assert.Greater(t, last.GetGauge().GetValue(), 0.0)
}

func TestCronJobMetricsNilSafe(t *testing.T) {
	var m *CronJobMetrics
	m.ObserveRun("job", time.Second, nil)
	m.ObserveSkipped("job")

	NewCronJobMetrics(nil).ObserveRun("job", time.Second, errors.New("x"))
}

func family(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

// withLabels returns the first series in mf whose labels include every pair in want.
func withLabels(mf *dto.MetricFamily, want map[string]string) *dto.Metric {
	if mf == nil {
		return nil
	}
	for _, metric := range mf.GetMetric() {
		matched := 0
		for _, pair := range metric.GetLabel() {
			if want[pair.GetName()] == pair.GetValue() {
				matched++
			}
		}
		if matched == len(want) {
			return metric
		}
	}
	return nil
}
