package report

import (
	"encoding/json"
	"fmt"

	"github.com/zjy-dev/covmerge/internal/coverage"
)

// JSONReporter writes the merged map as coverage-final.json.
type JSONReporter struct {
	outputDir string
}

// NewJSONReporter creates a new JSONReporter.
func NewJSONReporter(outputDir string) *JSONReporter {
	return &JSONReporter{outputDir: outputDir}
}

func (r *JSONReporter) Name() string { return "json" }

func (r *JSONReporter) Write(res *Result) error {
	data, err := coverage.EncodeMap(res.Map)
	if err != nil {
		return err
	}
	return writeFile(r.outputDir, FinalFileName, data)
}

// SummaryReporter writes coverage-summary.json: the project totals under
// "total" followed by one entry per file.
type SummaryReporter struct {
	outputDir string
}

// NewSummaryReporter creates a new SummaryReporter.
func NewSummaryReporter(outputDir string) *SummaryReporter {
	return &SummaryReporter{outputDir: outputDir}
}

func (r *SummaryReporter) Name() string { return "json-summary" }

func (r *SummaryReporter) Write(res *Result) error {
	out := make(map[string]coverage.Summary, len(res.Files)+1)
	out["total"] = res.Summary
	for path, s := range res.Files {
		out[path] = s
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode summary: %w", err)
	}
	return writeFile(r.outputDir, SummaryFileName, data)
}
