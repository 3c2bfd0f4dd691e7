package audit

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsRecorder counts auth attempts by type, outcome and reason.
type MetricsRecorder struct {
	attempts *prometheus.CounterVec
}

// NewMetricsRecorder creates the counter and registers it with reg.
func NewMetricsRecorder(reg prometheus.Registerer) *MetricsRecorder {
	attempts := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tasktracker_auth_attempts_total",
			Help: "Total number of authentication attempts by type, outcome and reason",
		},
		[]string{"type", "outcome", "reason"},
	)
	reg.MustRegister(attempts)
	return &MetricsRecorder{attempts: attempts}
}

func (m *MetricsRecorder) Record(_ context.Context, ev Event) {
	m.attempts.WithLabelValues(ev.Type, ev.Outcome, ev.Reason).Inc()
}
