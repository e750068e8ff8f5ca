// Package metrics exposes Prometheus collectors for mining runs, sweeps and the database pool.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"database/sql"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the service's collectors
type Metrics struct {
	miningRuns           *prometheus.CounterVec
	miningDuration       prometheus.Histogram
	suggestionsCreated   prometheus.Counter
	duplicateSuggestions prometheus.Counter
	sweepProjects        *prometheus.CounterVec
	sweepDuration        prometheus.Histogram

	dbOpenConnections prometheus.Gauge
	dbInUse           prometheus.Gauge
	dbIdle            prometheus.Gauge
	dbWaitCount       prometheus.Gauge
	dbWaitDuration    prometheus.Gauge
}

// New creates the collectors under namespace and registers them with reg
func New(namespace string, reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		miningRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mining_runs_total",
			Help:      "Link mining runs by outcome.",
		}, []string{"outcome"}),
		miningDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "mining_duration_seconds",
			Help:      "Duration of link mining runs.",
			Buckets:   prometheus.DefBuckets,
		}),
		suggestionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "suggestions_created_total",
			Help:      "LINK tasks created from suggestions.",
		}),
		duplicateSuggestions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duplicate_suggestions_total",
			Help:      "Suggestions rejected by the unique signature constraint.",
		}),
		sweepProjects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_projects_total",
			Help:      "Projects processed by sweeps, by result.",
		}, []string{"result"}),
		sweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sweep_duration_seconds",
			Help:      "Duration of full sweeps over active projects.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),
		dbOpenConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_open_connections",
			Help:      "Established database connections, in use or idle.",
		}),
		dbInUse: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_in_use_connections",
			Help:      "Database connections currently in use.",
		}),
		dbIdle: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_idle_connections",
			Help:      "Idle database connections.",
		}),
		dbWaitCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_wait_count",
			Help:      "Total connections waited for.",
		}),
		dbWaitDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_wait_duration_seconds",
			Help:      "Total time blocked waiting for a new connection.",
		}),
	}

	reg.MustRegister(
		m.miningRuns,
		m.miningDuration,
		m.suggestionsCreated,
		m.duplicateSuggestions,
		m.sweepProjects,
		m.sweepDuration,
		m.dbOpenConnections,
		m.dbInUse,
		m.dbIdle,
		m.dbWaitCount,
		m.dbWaitDuration,
	)

	return m
}

// ObserveMiningRun records one mining run
func (m *Metrics) ObserveMiningRun(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.miningRuns.WithLabelValues(outcome).Inc()
	m.miningDuration.Observe(d.Seconds())
}

// SuggestionCreated counts a persisted LINK task
func (m *Metrics) SuggestionCreated() {
	if m == nil {
		return
	}
	m.suggestionsCreated.Inc()
}

// DuplicateSuggestion counts a suggestion dropped by the unique signature constraint
func (m *Metrics) DuplicateSuggestion() {
	if m == nil {
		return
	}
	m.duplicateSuggestions.Inc()
}

// SweepProject counts one project outcome of a sweep: ok, error or skipped
func (m *Metrics) SweepProject(result string) {
	if m == nil {
		return
	}
	m.sweepProjects.WithLabelValues(result).Inc()
}

// ObserveSweep records the duration of a full sweep
func (m *Metrics) ObserveSweep(d time.Duration) {
	if m == nil {
		return
	}
	m.sweepDuration.Observe(d.Seconds())
}

// UpdateDBStats copies the connection pool statistics of db into the gauges
func (m *Metrics) UpdateDBStats(db *sql.DB) {
	if m == nil || db == nil {
		return
	}
	stats := db.Stats()
	m.dbOpenConnections.Set(float64(stats.OpenConnections))
	m.dbInUse.Set(float64(stats.InUse))
	m.dbIdle.Set(float64(stats.Idle))
	m.dbWaitCount.Set(float64(stats.WaitCount))
	m.dbWaitDuration.Set(stats.WaitDuration.Seconds())
}
