package coverage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleSummary() Summary {
	return Summary{
		Lines:      newTotals(10, 8),
		Statements: newTotals(12, 9),
		Functions:  newTotals(5, 3),
		Branches:   newTotals(4, 1),
	}
}

func TestThresholds_Check(t *testing.T) {
	tests := []struct {
		name       string
		thresholds Thresholds
		want       []Category
	}{
		{
			name:       "disabled",
			thresholds: Thresholds{},
		},
		{
			name:       "all met",
			thresholds: Thresholds{Lines: 80, Statements: 75, Functions: 60, Branches: 25},
		},
		{
			name:       "percent violations",
			thresholds: Thresholds{Lines: 90, Statements: 75, Functions: 61, Branches: 25},
			want:       []Category{CategoryFunctions, CategoryLines},
		},
		{
			name:       "count thresholds",
			thresholds: Thresholds{Branches: -3, Functions: -1},
			want:       []Category{CategoryFunctions},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			violations := tt.thresholds.Check(sampleSummary(), "")
			var got []Category
			for _, v := range violations {
				got = append(got, v.Category)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestViolation_String(t *testing.T) {
	v := Thresholds{Lines: 90}.Check(sampleSummary(), "")
	require.Len(t, v, 1)
	assert.Equal(t, "Coverage for lines (80.00%) does not meet global threshold (90.00%)", v[0].String())

	v = Thresholds{Functions: -1}.Check(sampleSummary(), "/project/src/a.ts")
	require.Len(t, v, 1)
	assert.Equal(t, "Uncovered functions (2) exceed threshold for /project/src/a.ts (1)", v[0].String())
}

func TestThresholds_CheckMap_perFile(t *testing.T) {
	m := NewCoverageMap()
	for _, rec := range ingestTestdata(t, "web", "report-payload.json") {
		require.NoError(t, m.Merge(rec))
	}

	global := Thresholds{Functions: 50}
	assert.Empty(t, global.CheckMap(m))

	perFile := Thresholds{Functions: 50, PerFile: true}
	violations := perFile.CheckMap(m)
	require.Len(t, violations, 1)
	assert.Equal(t, "/project/src/untested-file.ts", violations[0].File)
	assert.Equal(t, 0.0, violations[0].Observed)

	err := &ThresholdError{Violations: violations}
	assert.Contains(t, err.Error(), "ERROR: Coverage for functions (0.00%)")
}

func TestThresholds_Raise(t *testing.T) {
	th := Thresholds{Lines: 50, Statements: 90, Functions: 0, Branches: -2, AutoUpdate: true}

	raised, changed := th.Raise(sampleSummary())
	assert.True(t, changed)
	assert.Equal(t, Thresholds{Lines: 80, Statements: 90, Functions: 0, Branches: -2, AutoUpdate: true}, raised)

	again, changed := raised.Raise(sampleSummary())
	assert.False(t, changed)
	assert.Equal(t, raised, again)
}

func TestThresholds_Enabled(t *testing.T) {
	assert.False(t, Thresholds{PerFile: true}.Enabled())
	assert.True(t, Thresholds{Branches: -1}.Enabled())
}
