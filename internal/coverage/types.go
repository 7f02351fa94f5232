package coverage

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
)

// Position is a line/column pair inside a source file. Lines are 1-based.
type Position struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// Range is a source span.
type Range struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// FunctionMeta describes a function location.
type FunctionMeta struct {
	Name string `json:"name"`
	Decl Range  `json:"decl"`
	Loc  Range  `json:"loc"`
	Line int    `json:"line"`
}

// BranchMeta describes a branch point and the location of each of its arms.
type BranchMeta struct {
	Loc       Range   `json:"loc"`
	Type      string  `json:"type"`
	Locations []Range `json:"locations"`
	Line      int     `json:"line"`
}

func (b BranchMeta) equal(o BranchMeta) bool {
	if b.Loc != o.Loc || b.Type != o.Type || b.Line != o.Line || len(b.Locations) != len(o.Locations) {
		return false
	}
	for i := range b.Locations {
		if b.Locations[i] != o.Locations[i] {
			return false
		}
	}
	return true
}

// FileCoverage is the coverage record of a single file: the static
// location maps produced by instrumentation plus hit counts per location id.
//
// A record read from a payload is a CoverageRecord; the same type holds the
// pointwise sum of several records once merged.
type FileCoverage struct {
	Path         string                  `json:"path"`
	StatementMap map[string]Range        `json:"statementMap"`
	FnMap        map[string]FunctionMeta `json:"fnMap"`
	BranchMap    map[string]BranchMeta   `json:"branchMap"`
	S            map[string]int          `json:"s"`
	F            map[string]int          `json:"f"`
	B            map[string][]int        `json:"b"`
}

// NewFileCoverage returns an empty record for path.
func NewFileCoverage(path string) *FileCoverage {
	return &FileCoverage{
		Path:         path,
		StatementMap: map[string]Range{},
		FnMap:        map[string]FunctionMeta{},
		BranchMap:    map[string]BranchMeta{},
		S:            map[string]int{},
		F:            map[string]int{},
		B:            map[string][]int{},
	}
}

// Clone returns a deep copy.
func (fc *FileCoverage) Clone() *FileCoverage {
	out := NewFileCoverage(fc.Path)
	for id, r := range fc.StatementMap {
		out.StatementMap[id] = r
	}
	for id, fn := range fc.FnMap {
		out.FnMap[id] = fn
	}
	for id, br := range fc.BranchMap {
		br.Locations = append([]Range(nil), br.Locations...)
		out.BranchMap[id] = br
	}
	for id, n := range fc.S {
		out.S[id] = n
	}
	for id, n := range fc.F {
		out.F[id] = n
	}
	for id, arms := range fc.B {
		out.B[id] = append([]int(nil), arms...)
	}
	return out
}

// Baseline returns a copy with the same locations and every count set to
// zero. Merging it adds the file without adding hits.
func (fc *FileCoverage) Baseline() *FileCoverage {
	out := fc.Clone()
	out.S = map[string]int{}
	out.F = map[string]int{}
	out.B = map[string][]int{}
	out.fill()
	return out
}

// Kind is the kind of an instrumented location.
type Kind int

const (
	KindStatement Kind = iota
	KindBranch
	KindFunction
)

func (k Kind) String() string {
	switch k {
	case KindStatement:
		return "statement"
	case KindBranch:
		return "branch"
	case KindFunction:
		return "function"
	default:
		return "unknown"
	}
}

// Location is one entry of a record's static location set. Arms is only
// set for branches.
type Location struct {
	Kind  Kind
	ID    string
	Range Range
	Arms  int
}

func (l Location) String() string {
	return fmt.Sprintf("%s %s at %d:%d", l.Kind, l.ID, l.Range.Start.Line, l.Range.Start.Column)
}

// Locations enumerates the static locations of the record, ordered by kind
// then numerically by id.
func (fc *FileCoverage) Locations() []Location {
	locs := make([]Location, 0, len(fc.StatementMap)+len(fc.FnMap)+len(fc.BranchMap))
	for _, id := range sortedIDs(fc.StatementMap) {
		locs = append(locs, Location{Kind: KindStatement, ID: id, Range: fc.StatementMap[id]})
	}
	for _, id := range sortedIDs(fc.BranchMap) {
		br := fc.BranchMap[id]
		locs = append(locs, Location{Kind: KindBranch, ID: id, Range: br.Loc, Arms: len(br.Locations)})
	}
	for _, id := range sortedIDs(fc.FnMap) {
		locs = append(locs, Location{Kind: KindFunction, ID: id, Range: fc.FnMap[id].Loc})
	}
	return locs
}

// ErrInvalidRecord is returned by Validate.
var ErrInvalidRecord = errors.New("invalid coverage record")

// Validate checks that hit maps only reference known location ids, that
// every branch has one count per arm and that no count is negative.
// Ids present in a location map but missing from the hit map count as zero.
func (fc *FileCoverage) Validate() error {
	invalid := func(format string, args ...interface{}) error {
		return fmt.Errorf("%w %s: %s", ErrInvalidRecord, fc.Path, fmt.Sprintf(format, args...))
	}

	for id, n := range fc.S {
		if _, ok := fc.StatementMap[id]; !ok {
			return invalid("statement %s has hits but no location", id)
		}
		if n < 0 {
			return invalid("statement %s has negative count %d", id, n)
		}
	}
	for id, n := range fc.F {
		if _, ok := fc.FnMap[id]; !ok {
			return invalid("function %s has hits but no location", id)
		}
		if n < 0 {
			return invalid("function %s has negative count %d", id, n)
		}
	}
	for id, arms := range fc.B {
		br, ok := fc.BranchMap[id]
		if !ok {
			return invalid("branch %s has hits but no location", id)
		}
		if len(arms) != len(br.Locations) {
			return invalid("branch %s has %d counts for %d arms", id, len(arms), len(br.Locations))
		}
		for _, n := range arms {
			if n < 0 {
				return invalid("branch %s has negative count %d", id, n)
			}
		}
	}
	return nil
}

// fill makes every location id explicit in the hit maps.
func (fc *FileCoverage) fill() {
	if fc.S == nil {
		fc.S = map[string]int{}
	}
	if fc.F == nil {
		fc.F = map[string]int{}
	}
	if fc.B == nil {
		fc.B = map[string][]int{}
	}
	for id := range fc.StatementMap {
		if _, ok := fc.S[id]; !ok {
			fc.S[id] = 0
		}
	}
	for id := range fc.FnMap {
		if _, ok := fc.F[id]; !ok {
			fc.F[id] = 0
		}
	}
	for id, br := range fc.BranchMap {
		if _, ok := fc.B[id]; !ok {
			fc.B[id] = make([]int, len(br.Locations))
		}
	}
}

// sortedIDs orders location ids numerically when they are numbers, the way
// instrumenters emit them, and lexically otherwise.
func sortedIDs[V any](m map[string]V) []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, aErr := strconv.Atoi(ids[i])
		b, bErr := strconv.Atoi(ids[j])
		if aErr == nil && bErr == nil {
			return a < b
		}
		if (aErr == nil) != (bErr == nil) {
			return aErr == nil
		}
		return ids[i] < ids[j]
	})
	return ids
}
