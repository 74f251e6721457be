package metrics

import "github.com/prometheus/client_golang/prometheus"

// OutboxMetrics exposes the publication backlog.
type OutboxMetrics struct {
	pending prometheus.Gauge
}

func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return &OutboxMetrics{}
	}
	pending := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "quizlink_outbox_pending_events",
		Help: "Outbox events not yet published.",
	})
	reg.MustRegister(pending)
	return &OutboxMetrics{pending: pending}
}

func (o *OutboxMetrics) SetPending(count int64) {
	if o == nil || o.pending == nil {
		return
	}
	o.pending.Set(float64(count))
}
