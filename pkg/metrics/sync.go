package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Sync run outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeSkipped = "skipped"
	OutcomeIdle    = "idle"
)

// SyncMetrics records reconciliation passes per shop.
type SyncMetrics struct {
	runs         *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	attributions *prometheus.CounterVec
	summaries    *prometheus.CounterVec
	watermarkLag *prometheus.GaugeVec
}

// NewSyncMetrics registers the sync metrics on the provided registerer.
func NewSyncMetrics(reg prometheus.Registerer) *SyncMetrics {
	if reg == nil {
		return &SyncMetrics{}
	}
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "quizlink_sync_runs_total",
		Help: "Attribution sync runs by outcome.",
	}, []string{"shop", "outcome"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "quizlink_sync_duration_seconds",
		Help:    "Duration of attribution sync runs in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"shop"})
	attributions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "quizlink_sync_attributions_total",
		Help: "Orders attributed by tier.",
	}, []string{"shop", "tier"})
	summaries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "quizlink_sync_summaries_touched_total",
		Help: "Daily rollup rows incremented by sync runs.",
	}, []string{"shop"})
	watermarkLag := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "quizlink_sync_watermark_lag_seconds",
		Help: "Distance between now and the shop's sync watermark.",
	}, []string{"shop"})
	reg.MustRegister(runs, duration, attributions, summaries, watermarkLag)
	return &SyncMetrics{
		runs:         runs,
		duration:     duration,
		attributions: attributions,
		summaries:    summaries,
		watermarkLag: watermarkLag,
	}
}

// ObserveRun records one run's outcome and duration.
func (s *SyncMetrics) ObserveRun(shop, outcome string, duration time.Duration) {
	if s == nil || s.runs == nil {
		return
	}
	shop = normalizeLabel(shop)
	s.runs.WithLabelValues(shop, normalizeLabel(outcome)).Inc()
	s.duration.WithLabelValues(shop).Observe(duration.Seconds())
}

// AddAttributions adds count orders attributed under tier.
func (s *SyncMetrics) AddAttributions(shop, tier string, count int) {
	if s == nil || s.attributions == nil || count <= 0 {
		return
	}
	s.attributions.WithLabelValues(normalizeLabel(shop), normalizeLabel(tier)).Add(float64(count))
}

// AddSummariesTouched adds count rollup rows incremented by a run.
func (s *SyncMetrics) AddSummariesTouched(shop string, count int) {
	if s == nil || s.summaries == nil || count <= 0 {
		return
	}
	s.summaries.WithLabelValues(normalizeLabel(shop)).Add(float64(count))
}

// SetWatermarkLag publishes how far the shop's watermark trails now.
func (s *SyncMetrics) SetWatermarkLag(shop string, lag time.Duration) {
	if s == nil || s.watermarkLag == nil {
		return
	}
	s.watermarkLag.WithLabelValues(normalizeLabel(shop)).Set(lag.Seconds())
}
