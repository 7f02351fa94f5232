package coverage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileCoverage_Summary_functionCount(t *testing.T) {
	m := NewCoverageMap()
	for _, rec := range ingestTestdata(t, "web", "report-payload.json") {
		require.NoError(t, m.Merge(rec))
	}

	fc, ok := m.FileCoverageFor("/project/src/function-count.ts")
	require.True(t, ok)

	functions := fc.Summary().Functions
	assert.Equal(t, 5, functions.Total)
	assert.Equal(t, 3, functions.Covered)
	assert.Equal(t, 60.0, functions.Pct)
}

func TestFileCoverage_Summary_multiEnvironment(t *testing.T) {
	web := ingestTestdata(t, "web", "multi-environment-web.json")[0]
	ssr := ingestTestdata(t, "ssr", "multi-environment-ssr.json")[0]
	merged, err := Merge(web, ssr)
	require.NoError(t, err)

	s := merged.Summary()
	assert.Equal(t, Totals{Total: 6, Covered: 4, Pct: 66.66}, s.Statements)
	assert.Equal(t, Totals{Total: 6, Covered: 4, Pct: 66.66}, s.Lines)
	assert.Equal(t, Totals{Total: 1, Covered: 1, Pct: 100}, s.Functions)
	assert.Equal(t, Totals{Total: 4, Covered: 3, Pct: 75}, s.Branches)

	// Each environment alone covers less than the union.
	assert.Less(t, web.Summary().Statements.Covered, s.Statements.Covered)
	assert.Less(t, ssr.Summary().Statements.Covered, s.Statements.Covered)
}

func TestFileCoverage_LineCoverage_keepsHighestStatement(t *testing.T) {
	fc := NewFileCoverage("/a.ts")
	fc.StatementMap["0"] = Range{Start: Position{Line: 3, Column: 0}}
	fc.StatementMap["1"] = Range{Start: Position{Line: 3, Column: 12}}
	fc.StatementMap["2"] = Range{Start: Position{Line: 4}}
	fc.S["0"] = 0
	fc.S["1"] = 5
	fc.S["2"] = 0

	assert.Equal(t, map[int]int{3: 5, 4: 0}, fc.LineCoverage())
}

func TestSummary_emptyCategories(t *testing.T) {
	s := NewFileCoverage("/empty.ts").Summary()

	for _, c := range Categories {
		assert.Equal(t, Totals{Pct: 100}, s.Get(c), string(c))
	}
}

func TestCoverageMap_Summary(t *testing.T) {
	m := NewCoverageMap()
	for _, rec := range ingestTestdata(t, "web", "report-payload.json") {
		require.NoError(t, m.Merge(rec))
	}

	files := m.FileSummaries()
	require.Len(t, files, 5)

	var statements, covered int
	for _, s := range files {
		statements += s.Statements.Total
		covered += s.Statements.Covered
	}

	total := m.Summary()
	assert.Equal(t, statements, total.Statements.Total)
	assert.Equal(t, covered, total.Statements.Covered)
	assert.Equal(t, Totals{Total: 9, Covered: 5, Pct: 55.55}, total.Functions)
	assert.Equal(t, total, m.Summary(), "projection is deterministic")
}

func TestPercent(t *testing.T) {
	assert.Equal(t, 100.0, percent(0, 0))
	assert.Equal(t, 33.33, percent(1, 3))
	assert.Equal(t, 66.66, percent(2, 3))
	assert.Equal(t, 0.0, percent(0, 7))
}
