package server

import (
	"fmt"
	"io"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/ulikoehler/YakDB-sub001/rpc/common"
)

// serverMetrics holds the metric set of one server
type serverMetrics struct {
	set         *metrics.Set
	scanStarted *metrics.Counter
}

// newServerMetrics creates the metric set. The gauges are evaluated on every scrape.
func newServerMetrics(openTables, liveTasks, activeScans func() int) *serverMetrics {
	set := metrics.NewSet()
	set.NewGauge("yakdb_open_tables", func() float64 { return float64(openTables()) })
	set.NewGauge("yakdb_live_tasks", func() float64 { return float64(liveTasks()) })
	set.NewGauge("yakdb_scan_jobs_active", func() float64 { return float64(activeScans()) })
	return &serverMetrics{
		set:         set,
		scanStarted: set.NewCounter("yakdb_scan_jobs_started_total"),
	}
}

// observe records one completed request
func (m *serverMetrics) observe(op common.Opcode, status common.Status, start time.Time) {
	m.set.GetOrCreateCounter(fmt.Sprintf(`yakdb_requests_total{op=%q}`, op)).Inc()
	if status.IsError() {
		m.set.GetOrCreateCounter(fmt.Sprintf(`yakdb_request_errors_total{op=%q,status=%q}`, op, status)).Inc()
	}
	m.set.GetOrCreateHistogram(fmt.Sprintf(`yakdb_request_duration_seconds{op=%q}`, op)).UpdateDuration(start)
}

// table counts one request addressed to a table
func (m *serverMetrics) table(index uint32) {
	m.set.GetOrCreateCounter(fmt.Sprintf(`yakdb_table_requests_total{table="%d"}`, index)).Inc()
}

// WritePrometheus writes the server metrics and the process metrics in Prometheus
// text format
func (m *serverMetrics) WritePrometheus(w io.Writer) {
	m.set.WritePrometheus(w)
	metrics.WriteProcessMetrics(w)
}
