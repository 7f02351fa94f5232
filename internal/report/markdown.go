package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/zjy-dev/covmerge/internal/coverage"
)

// MarkdownReporter implements the Reporter interface by saving the merge as coverage.md.
type MarkdownReporter struct {
	outputDir string
}

// NewMarkdownReporter creates a new MarkdownReporter.
func NewMarkdownReporter(outputDir string) *MarkdownReporter {
	return &MarkdownReporter{
		outputDir: outputDir,
	}
}

func (r *MarkdownReporter) Name() string { return "markdown" }

// Write saves the summary, environments, increases and violations to a markdown file.
func (r *MarkdownReporter) Write(res *Result) error {
	var sb strings.Builder

	sb.WriteString("# Coverage Report\n\n")

	sb.WriteString("## Summary\n\n")
	sb.WriteString("| Category | Covered | Total | % |\n")
	sb.WriteString("|----------|--------:|------:|--:|\n")
	for _, c := range coverage.Categories {
		t := res.Summary.Get(c)
		sb.WriteString(fmt.Sprintf("| %s | %d | %d | %s |\n", c, t.Covered, t.Total, formatPct(t.Pct)))
	}
	sb.WriteString("\n")

	if len(res.Environments) > 0 {
		sb.WriteString("## Environments\n\n")
		sb.WriteString("| Environment | Records | Skipped | Duration |\n")
		sb.WriteString("|-------------|--------:|--------:|---------:|\n")
		for _, env := range res.Environments {
			sb.WriteString(fmt.Sprintf("| %s | %d | %d | %s |\n",
				env.Name, env.Records, len(env.Skipped), env.Duration.Round(time.Millisecond)))
		}
		sb.WriteString("\n")

		for _, env := range res.Environments {
			if len(env.Increase) == 0 {
				continue
			}
			sb.WriteString(fmt.Sprintf("### Only covered by %s\n\n", env.Name))
			for _, inc := range env.Increase {
				sb.WriteString(fmt.Sprintf("- `%s`: %s\n", res.Display(inc.Path), describeIncrease(inc)))
			}
			sb.WriteString("\n")
		}
	}

	if len(res.Violations) > 0 {
		sb.WriteString("## Threshold Violations\n\n")
		for _, v := range res.Violations {
			sb.WriteString(fmt.Sprintf("- %s\n", v))
		}
		sb.WriteString("\n")
	}

	sb.WriteString("## Files\n\n")
	sb.WriteString("| File | % Stmts | % Branch | % Funcs | % Lines | Uncovered Lines |\n")
	sb.WriteString("|------|--------:|---------:|--------:|--------:|-----------------|\n")
	for _, path := range res.Paths() {
		s := res.Files[path]
		uncovered := ""
		if fc, ok := res.Map.FileCoverageFor(path); ok {
			uncovered = UncoveredLines(fc)
		}
		sb.WriteString(fmt.Sprintf("| `%s` | %s | %s | %s | %s | %s |\n",
			res.Display(path),
			formatPct(s.Statements.Pct),
			formatPct(s.Branches.Pct),
			formatPct(s.Functions.Pct),
			formatPct(s.Lines.Pct),
			uncovered))
	}

	return writeFile(r.outputDir, MarkdownFileName, []byte(sb.String()))
}

func describeIncrease(inc coverage.FileIncrease) string {
	var parts []string
	if n := len(inc.Statements); n > 0 {
		parts = append(parts, fmt.Sprintf("%d statements", n))
	}
	if n := len(inc.Branches); n > 0 {
		parts = append(parts, fmt.Sprintf("%d branches", n))
	}
	if n := len(inc.Functions); n > 0 {
		parts = append(parts, fmt.Sprintf("%d functions", n))
	}
	if len(inc.Lines) > 0 {
		lines := make([]string, len(inc.Lines))
		for i, l := range inc.Lines {
			lines[i] = fmt.Sprint(l)
		}
		parts = append(parts, "lines "+strings.Join(lines, ","))
	}
	return strings.Join(parts, ", ")
}
