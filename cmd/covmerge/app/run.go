package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/zjy-dev/covmerge/internal/collect"
	"github.com/zjy-dev/covmerge/internal/config"
	"github.com/zjy-dev/covmerge/internal/exec"
	"github.com/zjy-dev/covmerge/internal/logger"
)

// Environment variables passed to every environment command.
const (
	envNameVar    = "COVMERGE_ENVIRONMENT"
	envPayloadVar = "COVMERGE_PAYLOAD"
)

// NewRunCommand creates the "run" subcommand.
func NewRunCommand(root *rootOptions) *cobra.Command {
	var (
		envs   []string
		outDir string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run every environment's test command, then merge.",
		Long: `Run the configured command of each environment in parallel and merge
the payloads they write.

Each command runs with COVMERGE_ENVIRONMENT set to the environment name
and COVMERGE_PAYLOAD set to the file it is expected to write
(<payload_dir>/coverage-<env>.json). A command exiting non-zero is
reported but does not stop the merge; a missing payload does.

Examples:
  covmerge run
  covmerge run --env ssr`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := root.cfg
			if !cmd.Flags().Changed("out") {
				outDir = cfg.Coverage.ReportsDir
			}

			selected, err := selectEnvironments(cfg, envs)
			if err != nil {
				return err
			}

			payloads, err := runEnvironments(cmd.Context(), exec.NewCommandExecutor(), cfg.Coverage.PayloadDir, selected)
			if err != nil {
				return err
			}
			return runMerge(cmd.Context(), root, mergeOptions{outDir: outDir}, payloads)
		},
	}

	cmd.Flags().StringSliceVar(&envs, "env", nil, "Environments to run (default: all configured)")
	cmd.Flags().StringVarP(&outDir, "out", "o", "", "Reports directory (default: coverage.reports_dir)")

	return cmd
}

func selectEnvironments(cfg *config.Config, names []string) ([]config.EnvironmentConfig, error) {
	if len(cfg.Environments) == 0 {
		return nil, errors.New("no environments configured")
	}
	if len(names) == 0 {
		return cfg.Environments, nil
	}

	byName := make(map[string]config.EnvironmentConfig, len(cfg.Environments))
	for _, env := range cfg.Environments {
		byName[env.Name] = env
	}
	selected := make([]config.EnvironmentConfig, 0, len(names))
	for _, name := range names {
		env, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("unknown environment %q", name)
		}
		selected = append(selected, env)
	}
	return selected, nil
}

// runEnvironments runs each environment command and returns the payloads
// they wrote. Stale payloads are removed first.
func runEnvironments(ctx context.Context, executor exec.Executor, payloadDir string, envs []config.EnvironmentConfig) ([]collect.Payload, error) {
	if err := os.MkdirAll(payloadDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create payload directory %s: %w", payloadDir, err)
	}

	commands := make([]exec.Command, len(envs))
	for i, env := range envs {
		if env.Command == "" {
			return nil, fmt.Errorf("environment %s has no command", env.Name)
		}
		command, err := exec.ParseCommandLine(env.Command)
		if err != nil {
			return nil, fmt.Errorf("environment %s: %w", env.Name, err)
		}
		flat, nested := collect.PayloadPaths(payloadDir, env.Name)
		for _, stale := range []string{flat, nested} {
			if err := os.Remove(stale); err != nil && !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to remove stale payload %s: %w", stale, err)
			}
		}
		abs, err := filepath.Abs(flat)
		if err != nil {
			return nil, err
		}
		command.Dir = env.Dir
		command.Env = []string{envNameVar + "=" + env.Name, envPayloadVar + "=" + abs}
		commands[i] = command
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, env := range envs {
		g.Go(func() error {
			log := logger.Named(env.Name)
			runCtx := gctx
			if env.Timeout > 0 {
				var cancel context.CancelFunc
				runCtx, cancel = context.WithTimeout(gctx, time.Duration(env.Timeout)*time.Second)
				defer cancel()
			}

			log.Info("running %s", env.Command)
			result, err := executor.Run(runCtx, commands[i])
			if err != nil {
				return fmt.Errorf("environment %s: %w", env.Name, err)
			}
			if result.ExitCode != 0 {
				log.Warn("command exited with code %d after %s", result.ExitCode, result.Duration.Round(time.Millisecond))
				if result.Stderr != "" {
					log.Debug("stderr:\n%s", result.Stderr)
				}
			} else {
				log.Info("finished in %s", result.Duration.Round(time.Millisecond))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	names := make([]string, len(envs))
	for i, env := range envs {
		names[i] = env.Name
	}
	payloads, missing, err := collect.Discover(payloadDir, names)
	if err != nil {
		return nil, err
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("environments wrote no payload: %v", missing)
	}
	return payloads, nil
}
