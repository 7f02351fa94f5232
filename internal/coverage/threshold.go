package coverage

import (
	"fmt"
	"strings"
)

// Category is one of the four summary categories.
type Category string

const (
	CategoryLines      Category = "lines"
	CategoryFunctions  Category = "functions"
	CategoryStatements Category = "statements"
	CategoryBranches   Category = "branches"
)

// Categories lists every category in report order.
var Categories = []Category{CategoryStatements, CategoryBranches, CategoryFunctions, CategoryLines}

// Thresholds holds the minimum coverage per category.
//
// A positive value is a minimum percentage, a negative value is the maximum
// number of uncovered items and zero disables the check.
type Thresholds struct {
	Functions  float64 `mapstructure:"functions" yaml:"functions"`
	Branches   float64 `mapstructure:"branches" yaml:"branches"`
	Lines      float64 `mapstructure:"lines" yaml:"lines"`
	Statements float64 `mapstructure:"statements" yaml:"statements"`
	PerFile    bool    `mapstructure:"per_file" yaml:"per_file"`
	AutoUpdate bool    `mapstructure:"auto_update" yaml:"auto_update"`
}

// Get returns the threshold of one category.
func (t Thresholds) Get(c Category) float64 {
	switch c {
	case CategoryLines:
		return t.Lines
	case CategoryFunctions:
		return t.Functions
	case CategoryStatements:
		return t.Statements
	case CategoryBranches:
		return t.Branches
	default:
		return 0
	}
}

func (t *Thresholds) set(c Category, v float64) {
	switch c {
	case CategoryLines:
		t.Lines = v
	case CategoryFunctions:
		t.Functions = v
	case CategoryStatements:
		t.Statements = v
	case CategoryBranches:
		t.Branches = v
	}
}

// Enabled reports whether any category is checked.
func (t Thresholds) Enabled() bool {
	for _, c := range Categories {
		if t.Get(c) != 0 {
			return true
		}
	}
	return false
}

// Violation is one category that did not meet its threshold.
type Violation struct {
	Category Category
	File     string // empty for the global summary
	Observed float64
	Required float64
	// Uncovered is set for count thresholds.
	Uncovered int
}

func (v Violation) scope() string {
	if v.File == "" {
		return "global threshold"
	}
	return "threshold for " + v.File
}

func (v Violation) String() string {
	if v.Required < 0 {
		return fmt.Sprintf("Uncovered %s (%d) exceed %s (%d)",
			v.Category, v.Uncovered, v.scope(), int(-v.Required))
	}
	return fmt.Sprintf("Coverage for %s (%.2f%%) does not meet %s (%.2f%%)",
		v.Category, v.Observed, v.scope(), v.Required)
}

// Check compares a summary against the thresholds. file names the summary
// in the violations and is empty for the global summary.
func (t Thresholds) Check(s Summary, file string) []Violation {
	var out []Violation
	for _, c := range Categories {
		required := t.Get(c)
		totals := s.Get(c)
		switch {
		case required > 0 && totals.Pct < required:
			out = append(out, Violation{Category: c, File: file, Observed: totals.Pct, Required: required})
		case required < 0 && float64(totals.Uncovered()) > -required:
			out = append(out, Violation{
				Category:  c,
				File:      file,
				Observed:  totals.Pct,
				Required:  required,
				Uncovered: totals.Uncovered(),
			})
		}
	}
	return out
}

// CheckMap checks the project summary and, with PerFile, every file.
func (t Thresholds) CheckMap(m *CoverageMap) []Violation {
	out := t.Check(m.Summary(), "")
	if !t.PerFile {
		return out
	}
	summaries := m.FileSummaries()
	for _, path := range m.Files() {
		out = append(out, t.Check(summaries[path], path)...)
	}
	return out
}

// Raise returns thresholds where every positive percentage lower than the
// observed coverage is raised to it. Count thresholds are left alone.
func (t Thresholds) Raise(s Summary) (Thresholds, bool) {
	out := t
	changed := false
	for _, c := range Categories {
		current := t.Get(c)
		observed := s.Get(c).Pct
		if current > 0 && observed > current {
			out.set(c, observed)
			changed = true
		}
	}
	return out, changed
}

// ThresholdError is returned when coverage is below the thresholds.
type ThresholdError struct {
	Violations []Violation
}

func (e *ThresholdError) Error() string {
	msgs := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		msgs[i] = "ERROR: " + v.String()
	}
	return strings.Join(msgs, "\n")
}
