// Package metrics exposes Prometheus counters for coverage aggregation runs.
// Each Metrics owns a private registry that is written out as a node-exporter textfile.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "covmerge"

// Metrics holds the collectors updated while merging.
type Metrics struct {
	registry *prometheus.Registry

	RecordsIngested     *prometheus.CounterVec
	RecordsSkipped      *prometheus.CounterVec
	MergeConflicts      prometheus.Counter
	EnvironmentsMerged  prometheus.Counter
	MergeDuration       prometheus.Histogram
	CoveragePercent     *prometheus.GaugeVec
	ThresholdViolations prometheus.Counter
}

// New registers a fresh set of collectors on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		RecordsIngested: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_ingested_total",
			Help:      "File records accepted from environment payloads.",
		}, []string{"environment"}),
		RecordsSkipped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_skipped_total",
			Help:      "File records dropped during ingestion, by reason.",
		}, []string{"environment", "reason"}),
		MergeConflicts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "merge_conflicts_total",
			Help:      "Merges rejected because location sets differed.",
		}),
		EnvironmentsMerged: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "environments_merged_total",
			Help:      "Environment payloads merged into the coverage map.",
		}),
		MergeDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "merge_duration_seconds",
			Help:      "Time spent ingesting and merging one environment payload.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}),
		CoveragePercent: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "coverage_percent",
			Help:      "Project coverage percentage of the last merge, by category.",
		}, []string{"category"}),
		ThresholdViolations: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "threshold_violations_total",
			Help:      "Coverage threshold violations reported by checks.",
		}),
	}
}

// Registry returns the registry the collectors are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveMerge records the duration of one environment merge.
func (m *Metrics) ObserveMerge(start time.Time) {
	m.MergeDuration.Observe(time.Since(start).Seconds())
}

// WriteTextfile writes every collector in text exposition format to path.
// An empty path is a no-op.
func (m *Metrics) WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile %s: %w", path, err)
	}
	return nil
}
