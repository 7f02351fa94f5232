package app

import (
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/zjy-dev/covmerge/internal/collect"
	"github.com/zjy-dev/covmerge/internal/coverage"
	"github.com/zjy-dev/covmerge/internal/report"
)

// NewCheckCommand creates the "check" subcommand.
func NewCheckCommand(root *rootOptions) *cobra.Command {
	var perFile bool

	cmd := &cobra.Command{
		Use:   "check [coverage-final.json]",
		Short: "Check merged coverage against the thresholds.",
		Long: `Check an already merged coverage-final.json against the configured
thresholds and print the text summary. The file defaults to the one in
the reports directory.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := root.cfg
			path := filepath.Join(cfg.Coverage.ReportsDir, report.FinalFileName)
			if len(args) == 1 {
				path = args[0]
			}

			cmap, err := collect.LoadMerged(path)
			if err != nil {
				return err
			}
			cmap.Seal()

			th := cfg.Coverage.Thresholds
			if cmd.Flags().Changed("per-file") {
				th.PerFile = perFile
			}

			res := report.NewResult(cmap, cfg.Coverage.Root, nil, th)
			if err := report.NewTextReporter(root.out).Write(res); err != nil {
				return err
			}
			if len(res.Violations) > 0 {
				return &coverage.ThresholdError{Violations: res.Violations}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&perFile, "per-file", false, "Check every file against the thresholds (overrides coverage.thresholds.per_file)")

	return cmd
}
