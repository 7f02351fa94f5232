package app

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zjy-dev/covmerge/internal/collect"
	"github.com/zjy-dev/covmerge/internal/config"
	"github.com/zjy-dev/covmerge/internal/coverage"
	"github.com/zjy-dev/covmerge/internal/history"
	"github.com/zjy-dev/covmerge/internal/logger"
	"github.com/zjy-dev/covmerge/internal/metrics"
	"github.com/zjy-dev/covmerge/internal/report"
	"github.com/zjy-dev/covmerge/internal/state"
)

// mergeOptions are the flags of the merge command.
type mergeOptions struct {
	dir         string
	envs        []string
	wait        bool
	incremental bool
	outDir      string
}

// NewMergeCommand creates the "merge" subcommand.
func NewMergeCommand(root *rootOptions) *cobra.Command {
	var opts mergeOptions

	cmd := &cobra.Command{
		Use:   "merge [[env=]payload.json...]",
		Short: "Merge environment payloads into one coverage report.",
		Long: `Merge the coverage payloads of every environment into one report.

Payloads are taken from the arguments or discovered in the payload
directory: environment "web" is read from coverage-web.json or
web/coverage-final.json. An argument may name its environment explicitly
as env=path; otherwise it is derived from the file name.

The merged map is written by the configured reporters and checked
against the thresholds. Violations make the command exit non-zero.

Examples:
  # Merge every configured environment found in coverage/.tmp
  covmerge merge

  # Wait until the browser and node runs have written their payloads
  covmerge merge --env web --env ssr --wait

  # Add one more environment to an existing coverage-final.json
  covmerge merge --incremental edge=out/edge.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := root.cfg
			if !cmd.Flags().Changed("dir") {
				opts.dir = cfg.Coverage.PayloadDir
			}
			if !cmd.Flags().Changed("env") {
				opts.envs = cfg.EnvironmentNames()
			}
			if !cmd.Flags().Changed("out") {
				opts.outDir = cfg.Coverage.ReportsDir
			}

			payloads, err := resolvePayloads(cmd.Context(), args, opts)
			if err != nil {
				return err
			}
			return runMerge(cmd.Context(), root, opts, payloads)
		},
	}

	cmd.Flags().StringVar(&opts.dir, "dir", "", "Directory holding environment payloads (default: coverage.payload_dir)")
	cmd.Flags().StringSliceVar(&opts.envs, "env", nil, "Environments to merge (default: configured environments, or every payload found)")
	cmd.Flags().BoolVar(&opts.wait, "wait", false, "Wait until every environment has written its payload")
	cmd.Flags().BoolVar(&opts.incremental, "incremental", false, "Merge into the existing coverage-final.json and session")
	cmd.Flags().StringVarP(&opts.outDir, "out", "o", "", "Reports directory (default: coverage.reports_dir)")

	return cmd
}

// resolvePayloads turns arguments, or the payload directory, into payloads.
func resolvePayloads(ctx context.Context, args []string, opts mergeOptions) ([]collect.Payload, error) {
	if len(args) > 0 {
		payloads := make([]collect.Payload, 0, len(args))
		for _, arg := range args {
			payloads = append(payloads, payloadFromArg(arg))
		}
		return payloads, nil
	}

	if opts.wait {
		logger.Info("Waiting for %s in %s", strings.Join(opts.envs, ", "), opts.dir)
		return collect.Wait(ctx, opts.dir, opts.envs)
	}

	payloads, missing, err := collect.Discover(opts.dir, opts.envs)
	if err != nil {
		return nil, err
	}
	for _, env := range missing {
		flat, nested := collect.PayloadPaths(opts.dir, env)
		logger.Warn("No payload for environment %s (looked for %s and %s)", env, flat, nested)
	}
	if len(payloads) == 0 {
		return nil, fmt.Errorf("no coverage payloads found in %s", opts.dir)
	}
	return payloads, nil
}

// payloadFromArg parses "env=path" or derives env from the file name.
func payloadFromArg(arg string) collect.Payload {
	if env, path, ok := strings.Cut(arg, "="); ok && env != "" && !strings.ContainsAny(env, `/\`) {
		return collect.Payload{Environment: env, Path: path}
	}

	base := filepath.Base(arg)
	if base == "coverage-final.json" {
		return collect.Payload{Environment: filepath.Base(filepath.Dir(arg)), Path: arg}
	}
	env := strings.TrimSuffix(base, filepath.Ext(base))
	env = strings.TrimPrefix(env, "coverage-")
	return collect.Payload{Environment: env, Path: arg}
}

// runMerge collects payloads, writes reports and enforces thresholds.
func runMerge(ctx context.Context, root *rootOptions, opts mergeOptions, payloads []collect.Payload) error {
	cfg := root.cfg

	filter, err := cfg.Filter()
	if err != nil {
		return err
	}

	ledger := state.NewFileManager(opts.outDir)
	cmap := coverage.NewCoverageMap()
	if opts.incremental {
		if err := ledger.Load(); err != nil {
			return err
		}
		final := filepath.Join(opts.outDir, report.FinalFileName)
		previous, err := collect.LoadMerged(final)
		switch {
		case err == nil:
			cmap = previous
			logger.Info("Continuing from %s (%d files)", final, cmap.Len())
		case errors.Is(err, fs.ErrNotExist):
			logger.Info("No previous coverage at %s, starting a new session", final)
		default:
			return err
		}
	} else {
		ledger.Reset()
	}

	m := metrics.New()
	collector := collect.NewCollector(cmap, collect.Options{Filter: filter, Ledger: ledger, Metrics: m})
	if cfg.Coverage.Baseline != "" {
		if _, err := collector.MergeBaseline(cfg.Coverage.Baseline); err != nil {
			return err
		}
	}
	collected, err := collector.Collect(ctx, payloads)
	if err != nil {
		return err
	}
	if problems := collected.Problems(); problems != nil {
		logger.Warn("Some coverage entries were dropped: %v", problems)
	}

	cmap.Seal()
	// The merged map is the base of the next incremental merge whatever
	// reporters are configured.
	if err := collector.Commit(filepath.Join(opts.outDir, report.FinalFileName)); err != nil {
		return err
	}
	return finish(ctx, root, opts.outDir, cmap, collected.Environments, m)
}

// finish renders the merged map, records it and checks the thresholds.
func finish(ctx context.Context, root *rootOptions, outDir string, cmap *coverage.CoverageMap, envs []collect.EnvironmentResult, m *metrics.Metrics) error {
	cfg := root.cfg
	th := cfg.Coverage.Thresholds

	res := report.NewResult(cmap, cfg.Coverage.Root, envs, th)

	reporters, err := report.NewAll(cfg.Coverage.Reporters, outDir, root.out)
	if err != nil {
		return err
	}
	for _, r := range reporters {
		if err := r.Write(res); err != nil {
			return fmt.Errorf("reporter %s: %w", r.Name(), err)
		}
	}

	passed := len(res.Violations) == 0
	names := make([]string, len(envs))
	for i, env := range envs {
		names[i] = env.Name
	}
	if err := recordHistory(ctx, cfg, history.NewRun(names, len(res.Files), res.Summary, passed)); err != nil {
		logger.Warn("Failed to record history: %v", err)
	}

	for _, c := range coverage.Categories {
		m.CoveragePercent.WithLabelValues(string(c)).Set(res.Summary.Get(c).Pct)
	}
	m.ThresholdViolations.Add(float64(len(res.Violations)))
	if err := m.WriteTextfile(cfg.Metrics.Textfile); err != nil {
		logger.Warn("%v", err)
	}

	if !passed {
		return &coverage.ThresholdError{Violations: res.Violations}
	}

	if th.AutoUpdate {
		autoUpdate(cfg, th, res.Summary)
	}
	return nil
}

// autoUpdate raises the configured percentage thresholds to the observed coverage.
func autoUpdate(cfg *config.Config, th coverage.Thresholds, s coverage.Summary) {
	raised, changed := th.Raise(s)
	if !changed {
		return
	}
	if cfg.Path() == "" {
		logger.Warn("Thresholds could be raised but no config file was loaded")
		return
	}
	if err := config.UpdateThresholds(cfg.Path(), raised); err != nil {
		logger.Warn("Failed to update thresholds: %v", err)
		return
	}
	logger.Info("Raised thresholds in %s", cfg.Path())
}

func recordHistory(ctx context.Context, cfg *config.Config, run history.Run) error {
	if cfg.History.Database == "" {
		return nil
	}
	store, err := history.New(cfg.History.Database, nil)
	if err != nil {
		return err
	}
	defer store.Close()

	previous, err := store.Latest(ctx)
	hasPrevious := err == nil
	if err != nil && !errors.Is(err, history.ErrNoRuns) {
		return err
	}
	if _, err := store.Record(ctx, run); err != nil {
		return err
	}
	if hasPrevious {
		for _, c := range coverage.Categories {
			if delta := run.Pct(c) - previous.Pct(c); delta != 0 {
				logger.Info("%s coverage %+.2f%% since run %s", c, delta, previous.ID)
			}
		}
	}
	return nil
}
