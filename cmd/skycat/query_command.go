package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"skycat/internal/catalog"
	"skycat/internal/config"
	"skycat/internal/healpix"
	"skycat/internal/targets"
)

func newQueryCommand(ctx *commandContext) *cobra.Command {
	var (
		boxFlag    string
		capFlag    string
		pixelsFlag string
		nsideFlag  int64
		limit      int
	)

	cmd := &cobra.Command{
		Use:   "query CATALOG_DIR",
		Short: "Read targets from a catalog by pixel, box or cap",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			dir, err := config.ExpandPath(args[0])
			if err != nil {
				return err
			}
			man, err := catalog.CheckHPTargetDir(dir)
			if err != nil {
				return err
			}

			var rows []targets.Target
			switch {
			case boxFlag != "":
				box, err := parseBox(boxFlag)
				if err != nil {
					return err
				}
				rows, err = catalog.ReadTargetsInBox(man, box, logger)
				if err != nil {
					return err
				}
			case capFlag != "":
				cp, err := parseCap(capFlag)
				if err != nil {
					return err
				}
				rows, err = catalog.ReadTargetsInCap(man, cp, logger)
				if err != nil {
					return err
				}
			case pixelsFlag != "":
				pixels, err := parseInt64List(pixelsFlag)
				if err != nil {
					return fmt.Errorf("parse --pixels: %w", err)
				}
				nside := nsideFlag
				if nside == 0 {
					nside = man.NSide
				}
				rows, err = catalog.ReadTargetsInHP(man, nside, pixels, logger)
				if err != nil {
					return err
				}
			default:
				return fmt.Errorf("one of --box, --cap or --pixels is required")
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s targets\n", formatCount(int64(len(rows))))

			if limit <= 0 || len(rows) == 0 {
				return nil
			}
			if limit > len(rows) {
				limit = len(rows)
			}
			printed := make([][]string, 0, limit)
			for _, r := range rows[:limit] {
				printed = append(printed, []string{
					strconv.FormatInt(r.TargetID, 10),
					strconv.FormatFloat(r.RA, 'f', 6, 64),
					strconv.FormatFloat(r.Dec, 'f', 6, 64),
					strconv.FormatInt(r.PriorityInit, 10),
					strconv.FormatInt(r.HPXPixel, 10),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"TARGETID", "RA", "Dec", "Priority", "Pixel"},
				printed,
				[]columnAlignment{alignRight, alignRight, alignRight, alignRight, alignRight}))
			return nil
		},
	}

	cmd.Flags().StringVar(&boxFlag, "box", "", "RA/Dec box as ramin,ramax,decmin,decmax (degrees)")
	cmd.Flags().StringVar(&capFlag, "cap", "", "Cap as ra,dec,radius (degrees)")
	cmd.Flags().StringVar(&pixelsFlag, "pixels", "", "Comma-separated HEALPixel list")
	cmd.Flags().Int64Var(&nsideFlag, "nside", 0, "nside of --pixels (defaults to the catalog nside)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Print up to this many rows")
	return cmd
}

func parseBox(s string) (healpix.Box, error) {
	vals, err := parseFloatList(s, 4)
	if err != nil {
		return healpix.Box{}, fmt.Errorf("parse --box: %w", err)
	}
	return healpix.Box{RAMin: vals[0], RAMax: vals[1], DecMin: vals[2], DecMax: vals[3]}, nil
}

func parseCap(s string) (healpix.Cap, error) {
	vals, err := parseFloatList(s, 3)
	if err != nil {
		return healpix.Cap{}, fmt.Errorf("parse --cap: %w", err)
	}
	return healpix.Cap{RA: vals[0], Dec: vals[1], Radius: vals[2]}, nil
}

func parseFloatList(s string, want int) ([]float64, error) {
	parts := strings.Split(s, ",")
	if len(parts) != want {
		return nil, fmt.Errorf("expected %d comma-separated values, got %d", want, len(parts))
	}
	out := make([]float64, want)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func parseInt64List(s string) ([]int64, error) {
	parts := strings.Split(s, ",")
	out := make([]int64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		v, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no pixels given")
	}
	return out, nil
}
