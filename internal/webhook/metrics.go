package webhook

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	resultSuccess = "success"
	resultFailure = "failure"

	reasonUnknownTransformer = "unknown_transformer"
	reasonEncoding           = "encoding"
)

// Metrics are the dispatcher collectors. A nil *Metrics records nothing.
type Metrics struct {
	deliveries    *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	groupFailures *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg when reg is
// not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "alarmhook",
			Subsystem: "webhook",
			Name:      "deliveries_total",
			Help:      "Webhook POSTs by group and result.",
		}, []string{"group", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "alarmhook",
			Subsystem: "webhook",
			Name:      "delivery_duration_seconds",
			Help:      "Latency of webhook POSTs.",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"group"}),
		groupFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "alarmhook",
			Subsystem: "webhook",
			Name:      "group_failures_total",
			Help:      "Groups skipped before any POST, by reason.",
		}, []string{"group", "reason"}),
	}
	if reg != nil {
		reg.MustRegister(m.deliveries, m.duration, m.groupFailures)
	}
	return m
}

func (m *Metrics) observeDelivery(group string, ok bool, d time.Duration) {
	if m == nil {
		return
	}
	result := resultSuccess
	if !ok {
		result = resultFailure
	}
	m.deliveries.WithLabelValues(group, result).Inc()
	m.duration.WithLabelValues(group).Observe(d.Seconds())
}

func (m *Metrics) groupFailed(group, reason string) {
	if m == nil {
		return
	}
	m.groupFailures.WithLabelValues(group, reason).Inc()
}
