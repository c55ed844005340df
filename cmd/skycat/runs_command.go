package main

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"skycat/internal/runlog"
)

const timeRound = time.Millisecond

func newRunsCommand(ctx *commandContext) *cobra.Command {
	var (
		limit      int
		showCounts bool
	)

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded selection runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			ledger, err := runlog.Open(cmd.Context(), cfg.Paths.RunLedger)
			if err != nil {
				return err
			}
			defer ledger.Close()

			runs, err := ledger.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintln(out, "No runs recorded.")
				return nil
			}

			rows := make([][]string, 0, len(runs))
			for _, run := range runs {
				duration := ""
				if !run.FinishedAt.IsZero() {
					duration = run.Duration().Round(timeRound).String()
				}
				rows = append(rows, []string{
					run.ID,
					run.Survey,
					run.Status,
					formatCount(run.Rows),
					run.StartedAt.Local().Format("2006-01-02 15:04:05"),
					duration,
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Run", "Survey", "Status", "Rows", "Started", "Duration"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignRight}))

			if !showCounts {
				return nil
			}
			for _, run := range runs {
				counts, err := ledger.Counts(cmd.Context(), run.ID)
				if err != nil {
					return err
				}
				if len(counts) == 0 {
					continue
				}
				classes := make([]string, 0, len(counts))
				for class := range counts {
					classes = append(classes, class)
				}
				sort.Strings(classes)
				countRows := make([][]string, 0, len(classes))
				for _, class := range classes {
					countRows = append(countRows, []string{class, formatCount(counts[class])})
				}
				fmt.Fprintf(out, "\nRun %s:\n", run.ID)
				fmt.Fprintln(out, renderTable(
					[]string{"Class", "Selected"},
					countRows,
					[]columnAlignment{alignLeft, alignRight}))
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum runs to list")
	cmd.Flags().BoolVar(&showCounts, "counts", false, "Show per-class counts for each run")
	return cmd
}
