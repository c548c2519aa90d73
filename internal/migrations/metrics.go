package migrations

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/shepherrrd/gonmigrate/internal/models"
)

// Metrics counts applied and reverted migrations.
type Metrics struct {
	total    *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMetrics builds the collectors and registers them with reg when it is
// not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		total: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gonmigrate_migrations_total",
			Help: "Migrations executed, by direction and result.",
		}, []string{"direction", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gonmigrate_migration_duration_seconds",
			Help:    "Time spent executing one migration.",
			Buckets: prometheus.DefBuckets,
		}, []string{"direction"}),
	}
	if reg != nil {
		reg.MustRegister(m.total, m.duration)
	}
	return m
}

func (m *Metrics) observe(direction models.Direction, started time.Time, err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.total.WithLabelValues(string(direction), result).Inc()
	m.duration.WithLabelValues(string(direction)).Observe(time.Since(started).Seconds())
}
