package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ETLMetrics records per-run pipeline measurements.
type ETLMetrics struct {
	runDuration  *prometheus.HistogramVec
	runOutcome   *prometheus.CounterVec
	chunkOutcome *prometheus.CounterVec
	rowsLoaded   *prometheus.CounterVec
	tableFailure *prometheus.CounterVec
}

// NewETLMetrics registers the pipeline metrics on the provided registerer.
func NewETLMetrics(reg prometheus.Registerer) *ETLMetrics {
	if reg == nil {
		return &ETLMetrics{}
	}
	runDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sync_run_duration_seconds",
		Help:    "Duration of sync runs in seconds.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	}, []string{"account"})
	runOutcome := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sync_run_total",
		Help: "Sync runs by final status.",
	}, []string{"status"})
	chunkOutcome := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sync_fetch_chunks_total",
		Help: "Fetched chunks by outcome.",
	}, []string{"outcome"})
	rowsLoaded := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sync_rows_loaded_total",
		Help: "Rows upserted into warehouse tables.",
	}, []string{"table"})
	tableFailure := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sync_table_load_failures_total",
		Help: "Table loads that ended in error.",
	}, []string{"table"})
	reg.MustRegister(runDuration, runOutcome, chunkOutcome, rowsLoaded, tableFailure)
	return &ETLMetrics{
		runDuration:  runDuration,
		runOutcome:   runOutcome,
		chunkOutcome: chunkOutcome,
		rowsLoaded:   rowsLoaded,
		tableFailure: tableFailure,
	}
}

// ObserveRunDuration records the wall time of a finished run.
func (m *ETLMetrics) ObserveRunDuration(account string, duration time.Duration) {
	if m == nil || m.runDuration == nil {
		return
	}
	m.runDuration.WithLabelValues(normalizeLabel(account)).Observe(duration.Seconds())
}

// IncRunOutcome counts a finished run by status.
func (m *ETLMetrics) IncRunOutcome(status string) {
	if m == nil || m.runOutcome == nil {
		return
	}
	m.runOutcome.WithLabelValues(normalizeLabel(status)).Inc()
}

// IncChunk counts one fetched chunk outcome ("ok" or "failed").
func (m *ETLMetrics) IncChunk(outcome string) {
	if m == nil || m.chunkOutcome == nil {
		return
	}
	m.chunkOutcome.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// AddRowsLoaded counts rows upserted into the named table.
func (m *ETLMetrics) AddRowsLoaded(table string, rows int) {
	if m == nil || m.rowsLoaded == nil || rows <= 0 {
		return
	}
	m.rowsLoaded.WithLabelValues(normalizeLabel(table)).Add(float64(rows))
}

// IncTableFailure counts a failed table load.
func (m *ETLMetrics) IncTableFailure(table string) {
	if m == nil || m.tableFailure == nil {
		return
	}
	m.tableFailure.WithLabelValues(normalizeLabel(table)).Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
