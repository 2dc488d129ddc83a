// Package metrics exposes Prometheus metrics for the segment reaper.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "tsreaper"
	subsystem = "reaper"
)

// Metrics holds the reaper counters and gauges.
type Metrics struct {
	registry *prometheus.Registry

	// CyclesTotal counts completed cleanup cycles.
	CyclesTotal prometheus.Counter

	// CycleFailuresTotal counts cycles that could not list the directory.
	CycleFailuresTotal prometheus.Counter

	// CyclesSkippedTotal counts ticks skipped because this node was not active.
	CyclesSkippedTotal prometheus.Counter

	// CycleDuration observes cycle wall time.
	CycleDuration prometheus.Histogram

	// SegmentsScannedTotal counts evaluated segment files.
	SegmentsScannedTotal prometheus.Counter

	// SegmentsDeletedTotal counts removed segments by reason.
	SegmentsDeletedTotal *prometheus.CounterVec

	// SegmentsKeptTotal counts segments kept with a definite verdict.
	SegmentsKeptTotal prometheus.Counter

	// SegmentsUndeterminedTotal counts segments kept because evaluation failed.
	SegmentsUndeterminedTotal prometheus.Counter

	// ErrorsTotal counts segment-local errors by kind.
	ErrorsTotal *prometheus.CounterVec

	// BytesReclaimedTotal counts bytes freed by deletions.
	BytesReclaimedTotal prometheus.Counter

	// LastCycleTimestamp is the unix time of the last completed cycle.
	LastCycleTimestamp prometheus.Gauge
}

// New creates metrics registered on a private registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.NewRegistry())
}

// NewWithRegistry creates metrics registered on reg.
func NewWithRegistry(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		registry: reg,
		CyclesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "cycles_total",
			Help:      "Total number of completed cleanup cycles.",
		}),
		CycleFailuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "cycle_failures_total",
			Help:      "Total number of cycles aborted because the directory could not be listed.",
		}),
		CyclesSkippedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "cycles_skipped_total",
			Help:      "Total number of ticks skipped because cleanup was not this node's responsibility.",
		}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "cycle_duration_seconds",
			Help:      "Duration of cleanup cycles.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}),
		SegmentsScannedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "segments_scanned_total",
			Help:      "Total number of segment files evaluated.",
		}),
		SegmentsDeletedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "segments_deleted_total",
			Help:      "Total number of segment files deleted, by reason.",
		}, []string{"reason"}),
		SegmentsKeptTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "segments_kept_total",
			Help:      "Total number of segment files kept.",
		}),
		SegmentsUndeterminedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "segments_undetermined_total",
			Help:      "Total number of segment files kept because their fate could not be determined.",
		}),
		ErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "errors_total",
			Help:      "Total number of segment-local errors, by kind.",
		}, []string{"kind"}),
		BytesReclaimedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "bytes_reclaimed_total",
			Help:      "Total number of bytes freed by segment deletions.",
		}),
		LastCycleTimestamp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "last_cycle_timestamp_seconds",
			Help:      "Unix time of the last completed cleanup cycle.",
		}),
	}

	reg.MustRegister(
		m.CyclesTotal,
		m.CycleFailuresTotal,
		m.CyclesSkippedTotal,
		m.CycleDuration,
		m.SegmentsScannedTotal,
		m.SegmentsDeletedTotal,
		m.SegmentsKeptTotal,
		m.SegmentsUndeterminedTotal,
		m.ErrorsTotal,
		m.BytesReclaimedTotal,
		m.LastCycleTimestamp,
	)

	return m
}

// Registry returns the registry the metrics are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Cycle records the totals of one completed cycle.
func (m *Metrics) Cycle(c CycleTotals) {
	m.CyclesTotal.Inc()
	m.CycleDuration.Observe(c.Duration.Seconds())
	m.SegmentsScannedTotal.Add(float64(c.Scanned))
	m.SegmentsKeptTotal.Add(float64(c.Kept))
	m.SegmentsUndeterminedTotal.Add(float64(c.Undetermined))
	m.BytesReclaimedTotal.Add(float64(c.BytesReclaimed))
	for reason, n := range c.DeletedByReason {
		m.SegmentsDeletedTotal.WithLabelValues(reason).Add(float64(n))
	}
	for kind, n := range c.Errors {
		m.ErrorsTotal.WithLabelValues(kind).Add(float64(n))
	}
	m.LastCycleTimestamp.Set(float64(c.Finished.Unix()))
}

// CycleFailed records a cycle that could not run.
func (m *Metrics) CycleFailed() {
	m.CycleFailuresTotal.Inc()
}

// CycleSkipped records a tick on which this node was not active.
func (m *Metrics) CycleSkipped() {
	m.CyclesSkippedTotal.Inc()
}

// CycleTotals is the per-cycle input to Cycle.
type CycleTotals struct {
	Duration        time.Duration
	Finished        time.Time
	Scanned         int
	Kept            int
	Undetermined    int
	BytesReclaimed  int64
	DeletedByReason map[string]int
	Errors          map[string]int
}
