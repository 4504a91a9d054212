package manual

import (
	"github.com/k4lls/zt100/internal/interfaces"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exports synchronizer activity to Prometheus
type Metrics struct {
	checks      *prometheus.CounterVec
	bytes       prometheus.Counter
	lastSuccess prometheus.Gauge
	updating    prometheus.Gauge
}

// NewMetrics creates the synchronizer collectors and registers them with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		checks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "zt100",
			Subsystem: "manual",
			Name:      "checks_total",
			Help:      "Manual update checks by outcome.",
		}, []string{"outcome", "reason"}),
		bytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "zt100",
			Subsystem: "manual",
			Name:      "downloaded_bytes_total",
			Help:      "Bytes of manual content downloaded.",
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "zt100",
			Subsystem: "manual",
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last check that confirmed or installed the manual.",
		}),
		updating: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "zt100",
			Subsystem: "manual",
			Name:      "updating",
			Help:      "1 while an update check is in flight.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.checks, m.bytes, m.lastSuccess, m.updating)
	}
	return m
}

func (m *Metrics) setUpdating(on bool) {
	if m == nil {
		return
	}
	if on {
		m.updating.Set(1)
	} else {
		m.updating.Set(0)
	}
}

func (m *Metrics) observe(result interfaces.SyncResult) {
	if m == nil {
		return
	}
	m.checks.WithLabelValues(string(result.Outcome), string(result.Reason)).Inc()
	m.bytes.Add(float64(result.Bytes))
	switch result.Outcome {
	case interfaces.OutcomeNoChange, interfaces.OutcomeIdentical, interfaces.OutcomeInstalled:
		m.lastSuccess.Set(float64(result.FinishedAt.Unix()))
	}
}
