package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_counters(t *testing.T) {
	m := New()

	m.RecordsIngested.WithLabelValues("web").Add(5)
	m.RecordsSkipped.WithLabelValues("web", "virtual").Add(3)
	m.RecordsSkipped.WithLabelValues("web", "setup-file").Inc()
	m.EnvironmentsMerged.Inc()
	m.MergeConflicts.Inc()
	m.ObserveMerge(time.Now())

	assert.Equal(t, 5.0, testutil.ToFloat64(m.RecordsIngested.WithLabelValues("web")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.RecordsSkipped.WithLabelValues("web", "virtual")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EnvironmentsMerged))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MergeConflicts))
	assert.Equal(t, 2, testutil.CollectAndCount(m.RecordsSkipped))
	assert.Equal(t, 1, testutil.CollectAndCount(m.MergeDuration))
}

func TestMetrics_privateRegistries(t *testing.T) {
	a, b := New(), New()
	a.EnvironmentsMerged.Inc()

	assert.Equal(t, 0.0, testutil.ToFloat64(b.EnvironmentsMerged))
}

func TestWriteTextfile(t *testing.T) {
	m := New()
	m.CoveragePercent.WithLabelValues("lines").Set(66.66)

	path := filepath.Join(t.TempDir(), "textfile", "covmerge.prom")
	require.NoError(t, m.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `covmerge_coverage_percent{category="lines"} 66.66`)

	assert.NoError(t, m.WriteTextfile(""))
}
