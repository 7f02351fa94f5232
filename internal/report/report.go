package report

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/zjy-dev/covmerge/internal/collect"
	"github.com/zjy-dev/covmerge/internal/coverage"
)

// Output file names inside the reports directory.
const (
	FinalFileName    = "coverage-final.json"
	SummaryFileName  = "coverage-summary.json"
	MarkdownFileName = "coverage.md"
)

// Result is everything a reporter can render about one merge.
type Result struct {
	Map *coverage.CoverageMap
	// Root is trimmed from paths shown to people.
	Root         string
	Summary      coverage.Summary
	Files        map[string]coverage.Summary
	Environments []collect.EnvironmentResult
	Violations   []coverage.Violation
}

// NewResult projects cmap and checks it against th.
func NewResult(cmap *coverage.CoverageMap, root string, envs []collect.EnvironmentResult, th coverage.Thresholds) *Result {
	files := cmap.FileSummaries()
	total := coverage.EmptySummary()
	for _, s := range files {
		total = total.Add(s)
	}
	return &Result{
		Map:          cmap,
		Root:         root,
		Summary:      total,
		Files:        files,
		Environments: envs,
		Violations:   th.CheckMap(cmap),
	}
}

// Paths returns the covered file paths in order.
func (r *Result) Paths() []string {
	paths := make([]string, 0, len(r.Files))
	for p := range r.Files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Display shortens path relative to Root.
func (r *Result) Display(path string) string {
	if r.Root == "" {
		return path
	}
	rel, err := filepath.Rel(filepath.FromSlash(r.Root), filepath.FromSlash(path))
	if err != nil || strings.HasPrefix(rel, "..") {
		return path
	}
	return filepath.ToSlash(rel)
}

// Reporter defines the interface for writing merged coverage.
type Reporter interface {
	// Name is the configuration name of the reporter.
	Name() string
	// Write renders the result.
	Write(r *Result) error
}

// New returns the reporter registered under name. File reporters write into
// dir; the text reporter writes to out.
func New(name, dir string, out io.Writer) (Reporter, error) {
	switch name {
	case "json":
		return NewJSONReporter(dir), nil
	case "json-summary":
		return NewSummaryReporter(dir), nil
	case "markdown":
		return NewMarkdownReporter(dir), nil
	case "text":
		return NewTextReporter(out), nil
	default:
		return nil, fmt.Errorf("unknown reporter %q", name)
	}
}

// NewAll builds every reporter in names.
func NewAll(names []string, dir string, out io.Writer) ([]Reporter, error) {
	reporters := make([]Reporter, 0, len(names))
	for _, name := range names {
		r, err := New(name, dir, out)
		if err != nil {
			return nil, err
		}
		reporters = append(reporters, r)
	}
	return reporters, nil
}

func writeFile(dir, name string, data []byte) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// UncoveredLines formats the lines without hits as ranges, e.g. "3-5,9".
func UncoveredLines(fc *coverage.FileCoverage) string {
	var lines []int
	for line, n := range fc.LineCoverage() {
		if n == 0 {
			lines = append(lines, line)
		}
	}
	sort.Ints(lines)

	var parts []string
	for i := 0; i < len(lines); {
		j := i
		for j+1 < len(lines) && lines[j+1] == lines[j]+1 {
			j++
		}
		if i == j {
			parts = append(parts, strconv.Itoa(lines[i]))
		} else {
			parts = append(parts, strconv.Itoa(lines[i])+"-"+strconv.Itoa(lines[j]))
		}
		i = j + 1
	}
	return strings.Join(parts, ",")
}

// formatPct drops trailing zeros the way istanbul prints percentages.
func formatPct(p float64) string {
	return strconv.FormatFloat(p, 'f', -1, 64)
}
