package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/zjy-dev/covmerge/internal/coverage"
)

// Watermarks color percentages: below low is red, below high is yellow.
const (
	lowWatermark  = 50
	highWatermark = 80
)

// TextReporter prints a coverage table to a writer.
type TextReporter struct {
	out      io.Writer
	renderer *lipgloss.Renderer
}

// NewTextReporter creates a TextReporter. Colors are only emitted when out
// is a terminal.
func NewTextReporter(out io.Writer) *TextReporter {
	return &TextReporter{out: out, renderer: lipgloss.NewRenderer(out)}
}

func (r *TextReporter) Name() string { return "text" }

type textRow struct {
	name  string
	sum   coverage.Summary
	lines string
	total bool
}

func (r *TextReporter) Write(res *Result) error {
	rows := []textRow{{name: "All files", sum: res.Summary, total: true}}
	for _, path := range res.Paths() {
		row := textRow{name: res.Display(path), sum: res.Files[path]}
		if fc, ok := res.Map.FileCoverageFor(path); ok {
			row.lines = UncoveredLines(fc)
		}
		rows = append(rows, row)
	}

	headers := []string{"File", "% Stmts", "% Branch", "% Funcs", "% Lines", "Uncovered Line #s"}
	cells := make([][]string, len(rows))
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}
	for i, row := range rows {
		cells[i] = []string{
			row.name,
			formatPct(row.sum.Statements.Pct),
			formatPct(row.sum.Branches.Pct),
			formatPct(row.sum.Functions.Pct),
			formatPct(row.sum.Lines.Pct),
			row.lines,
		}
		if !row.total {
			cells[i][0] = " " + cells[i][0]
		}
		for j, c := range cells[i] {
			widths[j] = max(widths[j], lipgloss.Width(c))
		}
	}

	border := r.renderer.NewStyle().Faint(true)
	header := r.renderer.NewStyle().Bold(true)
	sep := border.Render(" | ")

	var sb strings.Builder
	divider := make([]string, len(widths))
	for i, w := range widths {
		divider[i] = strings.Repeat("-", w)
	}
	dividerLine := border.Render(strings.Join(divider, "-|-")) + "\n"

	sb.WriteString(dividerLine)
	sb.WriteString(r.renderRow(headers, widths, sep, func(int, string) lipgloss.Style { return header }))
	sb.WriteString(dividerLine)
	for i, row := range rows {
		sum := row.sum
		sb.WriteString(r.renderRow(cells[i], widths, sep, func(col int, _ string) lipgloss.Style {
			style := r.renderer.NewStyle()
			if row.total {
				style = style.Bold(true)
			}
			switch col {
			case 1:
				return r.colorFor(style, sum.Statements.Pct)
			case 2:
				return r.colorFor(style, sum.Branches.Pct)
			case 3:
				return r.colorFor(style, sum.Functions.Pct)
			case 4:
				return r.colorFor(style, sum.Lines.Pct)
			}
			return style
		}))
	}
	sb.WriteString(dividerLine)

	for _, v := range res.Violations {
		sb.WriteString(r.renderer.NewStyle().Foreground(lipgloss.Color("9")).Render("ERROR: "+v.String()) + "\n")
	}

	_, err := io.WriteString(r.out, sb.String())
	if err != nil {
		return fmt.Errorf("failed to write text report: %w", err)
	}
	return nil
}

func (r *TextReporter) renderRow(cells []string, widths []int, sep string, style func(int, string) lipgloss.Style) string {
	out := make([]string, len(cells))
	for i, c := range cells {
		s := style(i, c).Width(widths[i])
		if i > 0 && i < len(cells)-1 {
			s = s.Align(lipgloss.Right)
		}
		out[i] = s.Render(c)
	}
	return strings.Join(out, sep) + "\n"
}

func (r *TextReporter) colorFor(style lipgloss.Style, pct float64) lipgloss.Style {
	switch {
	case pct >= highWatermark:
		return style.Foreground(lipgloss.Color("10"))
	case pct >= lowWatermark:
		return style.Foreground(lipgloss.Color("11"))
	default:
		return style.Foreground(lipgloss.Color("9"))
	}
}
