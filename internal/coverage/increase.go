package coverage

import (
	"fmt"
	"sort"
)

// FileIncrease lists the locations of one file that are covered by next but
// not by base.
type FileIncrease struct {
	Path       string
	Statements []string
	Functions  []string
	// Branches holds "id[arm]" entries.
	Branches []string
	Lines    []int
}

// Empty reports whether nothing new was covered.
func (f FileIncrease) Empty() bool {
	return len(f.Statements) == 0 && len(f.Functions) == 0 && len(f.Branches) == 0
}

// Increase reports what next covers that base does not. Files missing from
// base count as entirely uncovered there.
func Increase(base, next *CoverageMap) []FileIncrease {
	var out []FileIncrease
	for _, path := range next.Files() {
		nfc, ok := next.FileCoverageFor(path)
		if !ok {
			continue
		}
		bfc, ok := base.FileCoverageFor(path)
		if !ok {
			bfc = NewFileCoverage(path)
		}

		inc := FileIncrease{Path: path}
		for _, id := range sortedIDs(nfc.StatementMap) {
			if nfc.S[id] > 0 && bfc.S[id] == 0 {
				inc.Statements = append(inc.Statements, id)
			}
		}
		for _, id := range sortedIDs(nfc.FnMap) {
			if nfc.F[id] > 0 && bfc.F[id] == 0 {
				inc.Functions = append(inc.Functions, id)
			}
		}
		for _, id := range sortedIDs(nfc.BranchMap) {
			baseArms := bfc.B[id]
			for arm, n := range nfc.B[id] {
				if n > 0 && (arm >= len(baseArms) || baseArms[arm] == 0) {
					inc.Branches = append(inc.Branches, fmt.Sprintf("%s[%d]", id, arm))
				}
			}
		}

		baseLines := bfc.LineCoverage()
		for line, n := range nfc.LineCoverage() {
			if n > 0 && baseLines[line] == 0 {
				inc.Lines = append(inc.Lines, line)
			}
		}
		sort.Ints(inc.Lines)

		if !inc.Empty() {
			out = append(out, inc)
		}
	}
	return out
}
