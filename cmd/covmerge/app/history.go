package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/zjy-dev/covmerge/internal/history"
)

// NewHistoryCommand creates the "history" subcommand.
func NewHistoryCommand(root *rootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded merge runs.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := root.cfg
			if cfg.History.Database == "" {
				return errors.New("history.database is not configured")
			}

			store, err := history.New(cfg.History.Database, nil)
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Fprintln(root.out, "No runs recorded.")
				return nil
			}

			r := lipgloss.NewRenderer(root.out)
			header := r.NewStyle().Bold(true)
			pass := r.NewStyle().Foreground(lipgloss.Color("10"))
			fail := r.NewStyle().Foreground(lipgloss.Color("9"))

			fmt.Fprintln(root.out, header.Render(fmt.Sprintf("%-26s  %-20s  %8s  %8s  %8s  %8s  %-6s  %s",
				"ID", "Time", "Stmts", "Branch", "Funcs", "Lines", "Status", "Environments")))
			for _, run := range runs {
				status := pass.Render("pass  ")
				if !run.Passed {
					status = fail.Render("fail  ")
				}
				fmt.Fprintf(root.out, "%-26s  %-20s  %8.2f  %8.2f  %8.2f  %8.2f  %s  %s\n",
					run.ID,
					run.CreatedAt.Local().Format(time.DateTime),
					run.Statements, run.Branches, run.Functions, run.Lines,
					status,
					strings.Join(run.Environments, ","))
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Number of runs to show (0 for all)")

	return cmd
}
