package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"skycat/internal/config"
	"skycat/internal/pipeline"
)

func newSelectCommand(ctx *commandContext) *cobra.Command {
	var (
		resolveFlag  bool
		darkBright   bool
		sky          bool
		supplemental bool
	)

	cmd := &cobra.Command{
		Use:   "select SOURCE_DIR DEST_DIR",
		Short: "Run target selection over brick files into a sharded catalog",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			reg, err := ctx.ensureRegistry()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}

			srcDir, err := config.ExpandPath(args[0])
			if err != nil {
				return err
			}
			destDir, err := config.ExpandPath(args[1])
			if err != nil {
				return err
			}

			res, err := pipeline.RunSelection(cmd.Context(), cfg, reg, logger, srcDir, destDir, pipeline.Options{
				Resolve:      resolveFlag,
				DarkBright:   darkBright,
				Sky:          sky,
				Supplemental: supplemental,
				Deps:         map[string]string{"skycat": version},
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Run %s: %s rows into %d shards (%s)\n",
				res.RunID, formatCount(int64(res.Rows)), len(res.Files), res.Duration.Round(timeRound))

			classes := make([]string, 0, len(res.Counts))
			for class := range res.Counts {
				classes = append(classes, class)
			}
			sort.Strings(classes)
			rows := make([][]string, 0, len(classes))
			for _, class := range classes {
				rows = append(rows, []string{class, formatCount(res.Counts[class])})
			}
			if len(rows) > 0 {
				fmt.Fprintln(out, renderTable(
					[]string{"Class", "Selected"},
					rows,
					[]columnAlignment{alignLeft, alignRight}))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&resolveFlag, "resolve", true, "Trim imaging-overlap duplicates")
	cmd.Flags().BoolVar(&darkBright, "dark-bright", false, "Split initial scheduling columns by observing regime")
	cmd.Flags().BoolVar(&sky, "sky", false, "Treat inputs as blank sky positions")
	cmd.Flags().BoolVar(&supplemental, "supplemental", false, "Write a supplemental catalog")
	return cmd
}
