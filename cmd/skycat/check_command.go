package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"skycat/internal/catalog"
	"skycat/internal/config"
)

func newCheckCommand(ctx *commandContext) *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "check CATALOG_DIR",
		Short: "Validate a sharded catalog directory and show its layout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := config.ExpandPath(args[0])
			if err != nil {
				return err
			}
			man, err := catalog.CheckHPTargetDir(dir)
			if err != nil {
				return err
			}

			shards := make(map[string][]int64)
			for pix, path := range man.Shards {
				shards[path] = append(shards[path], pix)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Catalog %s: nside %d, %d pixels across %d shards\n",
				dir, man.NSide, len(man.Shards), len(shards))

			if !verbose {
				return nil
			}
			paths := make([]string, 0, len(shards))
			for path := range shards {
				paths = append(paths, path)
			}
			sort.Strings(paths)
			rows := make([][]string, 0, len(paths))
			for _, path := range paths {
				pixels := shards[path]
				sort.Slice(pixels, func(i, j int) bool { return pixels[i] < pixels[j] })
				rows = append(rows, []string{path, fmt.Sprint(pixels)})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Shard", "Pixels"},
				rows,
				[]columnAlignment{alignLeft, alignLeft}))
			return nil
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "List every shard and its pixels")
	return cmd
}
