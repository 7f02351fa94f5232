package app

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/zjy-dev/covmerge/internal/config"
	"github.com/zjy-dev/covmerge/internal/logger"
)

// rootOptions holds the persistent flags and the configuration they resolve to.
type rootOptions struct {
	configPath string
	logLevel   string
	logDir     string

	cfg *config.Config
	out io.Writer
}

// NewCovmergeCommand creates the root command for the covmerge tool.
func NewCovmergeCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "covmerge",
		Short: "Merge coverage collected from several test environments.",
		Long: `covmerge merges the istanbul coverage payloads written by the same test
suite running in several environments (browser, SSR, edge...) into one
report, then checks it against the configured thresholds.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.setup(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = logger.Close()
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Config file (default: configs/covmerge.yaml when present)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides log.level)")
	cmd.PersistentFlags().StringVar(&opts.logDir, "log-dir", "", "Also write the log to this directory (overrides log.dir)")

	cmd.AddCommand(NewMergeCommand(opts))
	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewCheckCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))

	return cmd
}

func (o *rootOptions) setup(cmd *cobra.Command) error {
	cfg, err := config.Resolve(o.configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cmd.Flags().Changed("log-level") {
		cfg.Log.Level = o.logLevel
	}
	if cmd.Flags().Changed("log-dir") {
		cfg.Log.Dir = o.logDir
	}

	logger.Init(cfg.Log.Level)
	logger.SetLevel(cfg.Log.Level)
	if cfg.Log.Dir != "" {
		if err := logger.InitWithFile(cfg.Log.Level, cfg.Log.Dir); err != nil {
			return err
		}
	}
	if p := cfg.Path(); p != "" {
		logger.Debug("Loaded config from %s", p)
	}

	o.cfg = cfg
	o.out = cmd.OutOrStdout()
	return nil
}
