package coverage

import (
	"errors"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

const multiEnvPath = "/project/src/multi-environment.ts"

func ingestTestdata(t *testing.T, env, name string) []*FileCoverage {
	t.Helper()
	result, err := NewIngestor(nil).Ingest(env, readTestdata(t, name))
	require.NoError(t, err)
	return result.Records
}

func TestMerge_multiEnvironment(t *testing.T) {
	web := ingestTestdata(t, "web", "multi-environment-web.json")
	ssr := ingestTestdata(t, "ssr", "multi-environment-ssr.json")
	require.Len(t, web, 1)
	require.Len(t, ssr, 1)

	merged, err := Merge(web[0], ssr[0])
	require.NoError(t, err)

	lines := merged.LineCoverage()
	assert.Equal(t, 0, lines[13], "not covered by any environment")
	assert.Equal(t, 1, lines[18], "covered by ssr only")
	assert.Equal(t, 0, lines[22], "not covered by any environment")
	assert.Equal(t, 1, lines[26], "covered by web only")
	assert.Equal(t, 2, lines[30], "covered by both")

	assert.Equal(t, 2, merged.F["0"])
	assert.Equal(t, []int{0, 2}, merged.B["0"])
	assert.Equal(t, []int{1, 1}, merged.B["1"])

	// Inputs are untouched.
	assert.Equal(t, 0, web[0].S["2"])
	assert.Equal(t, 1, ssr[0].S["2"])
}

func TestMerge_doubleCountsRepeatedPayload(t *testing.T) {
	web := ingestTestdata(t, "web", "multi-environment-web.json")
	again := ingestTestdata(t, "web", "multi-environment-web.json")

	once, err := Merge(web[0])
	require.NoError(t, err)
	twice, err := Merge(web[0], again[0])
	require.NoError(t, err)

	assert.Equal(t, 1, once.LineCoverage()[30])
	assert.Equal(t, 2, twice.LineCoverage()[30])
	assert.NotEqual(t, once.S, twice.S)
}

func TestMerge_locationMismatch(t *testing.T) {
	web := ingestTestdata(t, "web", "multi-environment-web.json")[0]

	tests := []struct {
		name   string
		mutate func(fc *FileCoverage)
	}{
		{
			name: "extra statement",
			mutate: func(fc *FileCoverage) {
				fc.StatementMap["99"] = Range{Start: Position{Line: 40}}
			},
		},
		{
			name: "moved statement",
			mutate: func(fc *FileCoverage) {
				r := fc.StatementMap["1"]
				r.Start.Line++
				fc.StatementMap["1"] = r
			},
		},
		{
			name: "missing function",
			mutate: func(fc *FileCoverage) {
				delete(fc.FnMap, "0")
				delete(fc.F, "0")
			},
		},
		{
			name: "branch arm added",
			mutate: func(fc *FileCoverage) {
				br := fc.BranchMap["0"]
				br.Locations = append(br.Locations, br.Loc)
				fc.BranchMap["0"] = br
				fc.B["0"] = append(fc.B["0"], 0)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			other := web.Clone()
			tt.mutate(other)

			_, err := Merge(web, other)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrLocationMismatch))

			var mismatch *MismatchError
			require.ErrorAs(t, err, &mismatch)
			assert.Equal(t, multiEnvPath, mismatch.Path)
		})
	}
}

func TestMerge_differentPaths(t *testing.T) {
	a := NewFileCoverage("/a.ts")
	b := NewFileCoverage("/b.ts")

	_, err := Merge(a, b)
	assert.ErrorIs(t, err, ErrLocationMismatch)
}

func TestMerge_empty(t *testing.T) {
	_, err := Merge()
	assert.Error(t, err)
}

// shape is the static location set shared by every record of a file.
type shape struct {
	statements int
	functions  int
	arms       []int
}

func drawShape(t *rapid.T) shape {
	return shape{
		statements: rapid.IntRange(0, 8).Draw(t, "statements"),
		functions:  rapid.IntRange(0, 4).Draw(t, "functions"),
		arms:       rapid.SliceOfN(rapid.IntRange(1, 3), 0, 4).Draw(t, "arms"),
	}
}

func drawRecord(t *rapid.T, s shape, label string) *FileCoverage {
	fc := NewFileCoverage("/project/src/prop.ts")
	count := rapid.IntRange(0, 5)
	for i := 0; i < s.statements; i++ {
		id := strconv.Itoa(i)
		fc.StatementMap[id] = Range{Start: Position{Line: i + 1}, End: Position{Line: i + 1, Column: 10}}
		fc.S[id] = count.Draw(t, label+"-s"+id)
	}
	for i := 0; i < s.functions; i++ {
		id := strconv.Itoa(i)
		fc.FnMap[id] = FunctionMeta{Name: "fn" + id, Line: i + 1}
		fc.F[id] = count.Draw(t, label+"-f"+id)
	}
	for i, n := range s.arms {
		id := strconv.Itoa(i)
		fc.BranchMap[id] = BranchMeta{Type: "if", Line: i + 1, Locations: make([]Range, n)}
		arms := make([]int, n)
		for j := range arms {
			arms[j] = count.Draw(t, label+"-b"+id)
		}
		fc.B[id] = arms
	}
	return fc
}

func TestMerge_commutative_rapid(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		s := drawShape(t)
		a := drawRecord(t, s, "a")
		b := drawRecord(t, s, "b")

		ab, err := Merge(a, b)
		if err != nil {
			t.Fatalf("merge a+b: %v", err)
		}
		ba, err := Merge(b, a)
		if err != nil {
			t.Fatalf("merge b+a: %v", err)
		}
		assert.Equal(t, ab, ba)
	})
}

func TestMerge_associative_rapid(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		s := drawShape(t)
		a := drawRecord(t, s, "a")
		b := drawRecord(t, s, "b")
		c := drawRecord(t, s, "c")

		ab, err := Merge(a, b)
		require.NoError(t, err)
		left, err := Merge(ab, c)
		require.NoError(t, err)

		bc, err := Merge(b, c)
		require.NoError(t, err)
		right, err := Merge(a, bc)
		require.NoError(t, err)

		assert.Equal(t, left, right)
	})
}

func TestMerge_countsDominateInputs_rapid(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		s := drawShape(t)
		a := drawRecord(t, s, "a")
		b := drawRecord(t, s, "b")

		merged, err := Merge(a, b)
		require.NoError(t, err)

		for id, n := range merged.S {
			if n < a.S[id] || n < b.S[id] {
				t.Fatalf("statement %s: merged %d below an input (%d, %d)", id, n, a.S[id], b.S[id])
			}
			if (n == 0) != (a.S[id] == 0 && b.S[id] == 0) {
				t.Fatalf("statement %s: merged %d but inputs (%d, %d)", id, n, a.S[id], b.S[id])
			}
		}
	})
}
