package coverage

import (
	"math"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Totals counts the covered and total items of one category.
type Totals struct {
	Total   int     `json:"total"`
	Covered int     `json:"covered"`
	Skipped int     `json:"skipped"`
	Pct     float64 `json:"pct"`
}

func newTotals(total, covered int) Totals {
	t := Totals{Total: total, Covered: covered}
	t.Pct = percent(covered, total)
	return t
}

// Uncovered returns the number of items without hits.
func (t Totals) Uncovered() int {
	return t.Total - t.Covered
}

func (t Totals) add(o Totals) Totals {
	return newTotals(t.Total+o.Total, t.Covered+o.Covered)
}

// percent is 100 for an empty category and otherwise truncated (floored) to
// two decimals, so 2/3 reports 66.66.
func percent(covered, total int) float64 {
	if total == 0 {
		return 100
	}
	return math.Floor(float64(covered)*10000/float64(total)) / 100
}

// Summary holds the totals of every category.
type Summary struct {
	Lines      Totals `json:"lines"`
	Statements Totals `json:"statements"`
	Functions  Totals `json:"functions"`
	Branches   Totals `json:"branches"`
}

// EmptySummary is the summary of no files at all.
func EmptySummary() Summary {
	return Summary{
		Lines:      newTotals(0, 0),
		Statements: newTotals(0, 0),
		Functions:  newTotals(0, 0),
		Branches:   newTotals(0, 0),
	}
}

// Add returns the category-wise sum of two summaries.
func (s Summary) Add(o Summary) Summary {
	return Summary{
		Lines:      s.Lines.add(o.Lines),
		Statements: s.Statements.add(o.Statements),
		Functions:  s.Functions.add(o.Functions),
		Branches:   s.Branches.add(o.Branches),
	}
}

// Get returns the totals of one category.
func (s Summary) Get(c Category) Totals {
	switch c {
	case CategoryLines:
		return s.Lines
	case CategoryStatements:
		return s.Statements
	case CategoryFunctions:
		return s.Functions
	case CategoryBranches:
		return s.Branches
	default:
		return Totals{}
	}
}

// LineCoverage maps each line that starts a statement to the highest hit
// count of the statements starting there.
func (fc *FileCoverage) LineCoverage() map[int]int {
	lines := make(map[int]int, len(fc.StatementMap))
	for id, r := range fc.StatementMap {
		count := fc.S[id]
		if prev, ok := lines[r.Start.Line]; !ok || prev < count {
			lines[r.Start.Line] = count
		}
	}
	return lines
}

// Summary projects the record onto per-category totals. Branch totals count
// individual arms.
func (fc *FileCoverage) Summary() Summary {
	var s Summary

	covered := 0
	lines := fc.LineCoverage()
	for _, n := range lines {
		if n > 0 {
			covered++
		}
	}
	s.Lines = newTotals(len(lines), covered)

	covered = 0
	for id := range fc.StatementMap {
		if fc.S[id] > 0 {
			covered++
		}
	}
	s.Statements = newTotals(len(fc.StatementMap), covered)

	covered = 0
	for id := range fc.FnMap {
		if fc.F[id] > 0 {
			covered++
		}
	}
	s.Functions = newTotals(len(fc.FnMap), covered)

	total := 0
	covered = 0
	for id, br := range fc.BranchMap {
		arms := fc.B[id]
		for i := range br.Locations {
			total++
			if i < len(arms) && arms[i] > 0 {
				covered++
			}
		}
	}
	s.Branches = newTotals(total, covered)

	return s
}

// FileSummaries projects every record in parallel.
func (m *CoverageMap) FileSummaries() map[string]Summary {
	snapshot := m.Snapshot()

	var (
		mu  sync.Mutex
		out = make(map[string]Summary, len(snapshot))
		g   errgroup.Group
	)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for path, fc := range snapshot {
		g.Go(func() error {
			s := fc.Summary()
			mu.Lock()
			out[path] = s
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// Summary returns the project-wide totals.
func (m *CoverageMap) Summary() Summary {
	total := EmptySummary()
	for _, s := range m.FileSummaries() {
		total = total.Add(s)
	}
	return total
}
