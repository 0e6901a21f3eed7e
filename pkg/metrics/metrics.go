// Package metrics collects Prometheus metrics for download runs.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Failure reasons used as label values.
const (
	ReasonMetadata       = "metadata"
	ReasonUnknownAccount = "unknown_account"
	ReasonFetch          = "fetch"
	ReasonWrite          = "write"
	ReasonRecord         = "record"
)

// Collector records run metrics in a Prometheus registry.
type Collector struct {
	journals     *prometheus.CounterVec
	documents    prometheus.Counter
	filesWritten prometheus.Counter
	bytesWritten prometheus.Counter
	failures     *prometheus.CounterVec
	fetchLatency prometheus.Histogram
	lastRun      prometheus.Gauge
}

// NewCollector creates a Collector and registers its metrics with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		journals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bl_docs_journal_entries_total",
			Help: "Journal entries fetched, by whether they reference documents.",
		}, []string{"with_documents"}),
		documents: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bl_docs_documents_total",
			Help: "Document references processed.",
		}),
		filesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bl_docs_files_written_total",
			Help: "PDF files written.",
		}),
		bytesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bl_docs_bytes_written_total",
			Help: "Bytes of PDF written.",
		}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bl_docs_failures_total",
			Help: "Skipped items, by reason.",
		}, []string{"reason"}),
		fetchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "bl_docs_pdf_fetch_seconds",
			Help:    "Latency of PDF downloads in seconds.",
			Buckets: prometheus.DefBuckets,
		}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bl_docs_last_run_timestamp_seconds",
			Help: "Unix time the last run finished.",
		}),
	}

	reg.MustRegister(
		c.journals,
		c.documents,
		c.filesWritten,
		c.bytesWritten,
		c.failures,
		c.fetchLatency,
		c.lastRun,
	)

	return c
}

// RecordJournals records fetched journal entries.
func (c *Collector) RecordJournals(total, withDocuments int) {
	c.journals.WithLabelValues("true").Add(float64(withDocuments))
	c.journals.WithLabelValues("false").Add(float64(total - withDocuments))
}

// RecordDocument records a processed document reference.
func (c *Collector) RecordDocument() {
	c.documents.Inc()
}

// RecordFileWritten records a written PDF of size bytes.
func (c *Collector) RecordFileWritten(size int) {
	c.filesWritten.Inc()
	c.bytesWritten.Add(float64(size))
}

// RecordFailure records a skipped item.
func (c *Collector) RecordFailure(reason string) {
	c.failures.WithLabelValues(reason).Inc()
}

// RecordFetchLatency records how long a PDF download took.
func (c *Collector) RecordFetchLatency(duration time.Duration) {
	c.fetchLatency.Observe(duration.Seconds())
}

// RecordRunFinished stamps the end of a run.
func (c *Collector) RecordRunFinished(at time.Time) {
	c.lastRun.Set(float64(at.Unix()))
}

// WriteTextfile writes every metric in gatherer to path in the text exposition
// format, for node_exporter's textfile collector.
func WriteTextfile(path string, gatherer prometheus.Gatherer) error {
	if err := prometheus.WriteToTextfile(path, gatherer); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	return nil
}
