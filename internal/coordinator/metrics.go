// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package coordinator

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/pdiddy/promptdesk/pkg/types"
)

const metricsNamespace = "promptdesk"

// Metrics holds the coordinator's prometheus collectors. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	submissions prometheus.Counter
	completions *prometheus.CounterVec
	inflight    prometheus.Gauge
	duration    prometheus.Histogram
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		submissions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "submissions_total",
			Help:      "Prompts accepted by the coordinator.",
		}),
		completions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "completions_total",
			Help:      "Finished submissions by outcome (applied, errored, stale, cancelled).",
		}, []string{"outcome"}),
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "inflight",
			Help:      "Operations started and not yet completed.",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "operation_seconds",
			Help:      "Wall time of prompt operations.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
	}
	reg.MustRegister(m.submissions, m.completions, m.inflight, m.duration)
	return m
}

func (m *Metrics) submitted() {
	if m == nil {
		return
	}
	m.submissions.Inc()
}

func (m *Metrics) started() {
	if m == nil {
		return
	}
	m.inflight.Inc()
}

func (m *Metrics) finished(d time.Duration) {
	if m == nil {
		return
	}
	m.inflight.Dec()
	m.duration.Observe(d.Seconds())
}

func (m *Metrics) completed(s types.Status) {
	if m == nil {
		return
	}
	m.completions.WithLabelValues(string(s)).Inc()
}
