// Package pipeline orchestrates a full selection run: discover brick
// files, finalize each batch, resolve imaging overlaps, shard the
// result over HEALPixels and record the run in the ledger.
package pipeline

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"skycat/internal/bitmask"
	"skycat/internal/catalog"
	"skycat/internal/config"
	"skycat/internal/finalize"
	"skycat/internal/logging"
	"skycat/internal/resolve"
	"skycat/internal/runlog"
	"skycat/internal/targets"
)

// Options controls one selection run.
type Options struct {
	// Resolve trims imaging-overlap duplicates after finalization.
	Resolve bool
	// DarkBright splits the initial scheduling columns by observing
	// regime and additionally writes dark/ and bright/ catalogs.
	DarkBright bool
	// Sky marks the inputs as blank sky positions.
	Sky bool
	// Supplemental selects the supplemental sub-priority stream.
	Supplemental bool
	// Deps is recorded in every shard header.
	Deps map[string]string
}

// Result summarizes a finished run.
type Result struct {
	RunID    string
	Survey   targets.Survey
	Rows     int
	Files    []string
	Counts   map[string]int64
	Duration time.Duration
}

// DiscoverBricks walks a source tree and lists the per-brick input
// files in deterministic order. Two bricks with the same file name in
// different subdirectories would produce ambiguous provenance, so
// duplicate basenames are an error.
func DiscoverBricks(dir string) ([]string, error) {
	var paths []string
	seen := make(map[string]string)
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		name := d.Name()
		if !strings.HasSuffix(name, ".dat") && !strings.HasSuffix(name, ".dat.zst") {
			return nil
		}
		if prev, ok := seen[name]; ok {
			return fmt.Errorf("duplicate brick file name %s (%s and %s)", name, prev, path)
		}
		seen[name] = path
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no brick files in %s", dir)
	}
	sort.Strings(paths)
	return paths, nil
}

// RunSelection executes a selection run from srcDir into destDir.
// The destination is locked for the duration of the run, so only one
// producer writes a catalog tree at a time.
func RunSelection(ctx context.Context, cfg *config.Config, reg *bitmask.Registry, logger *slog.Logger, srcDir, destDir string, opts Options) (*Result, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	log := logging.NewComponentLogger(logger, "pipeline")

	bricks, err := DiscoverBricks(srcDir)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, fmt.Errorf("create destination: %w", err)
	}
	lock := flock.New(filepath.Join(destDir, ".skycat.lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock destination: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("destination %s is locked by another run", destDir)
	}
	defer func() { _ = lock.Unlock() }()

	ledger, err := runlog.Open(ctx, cfg.Paths.RunLedger)
	if err != nil {
		return nil, err
	}
	defer ledger.Close()

	var survey targets.Survey
	var all []targets.Target
	for i, path := range bricks {
		h, rows, err := catalog.ReadFile(path)
		if err != nil {
			return nil, err
		}
		s, err := targets.ParseSurvey(h.Survey)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		if i == 0 {
			survey = s
		} else if s != survey {
			return nil, fmt.Errorf("%s: survey %s differs from batch survey %s", path, s, survey)
		}

		done, err := finalizeBrick(rows, survey, reg, opts)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		log.Debug("finalized brick",
			logging.String("brick", filepath.Base(path)),
			logging.Int(logging.FieldRows, len(done)))
		all = append(all, done...)
	}

	run, err := ledger.Begin(ctx, survey.String(), srcDir, destDir)
	if err != nil {
		return nil, err
	}
	log = log.With(logging.String(logging.FieldRunID, run.ID), logging.String(logging.FieldSurvey, survey.String()))
	log.Info("selection run started",
		logging.Int("bricks", len(bricks)),
		logging.Int(logging.FieldRows, len(all)))

	res, err := produce(all, survey, reg, cfg, destDir, log, opts)
	counts := map[string]int64{}
	rows := 0
	if res != nil {
		counts, rows = res.Counts, res.Rows
	}
	if ferr := ledger.Finish(ctx, run, int64(rows), counts, err); ferr != nil {
		log.Error("recording run failed", logging.Error(ferr))
	}
	if err != nil {
		return nil, err
	}
	res.RunID = run.ID
	res.Duration = run.Duration()
	log.Info("selection run finished",
		logging.Int(logging.FieldRows, res.Rows),
		logging.Duration("duration", res.Duration))
	return res, nil
}

func produce(all []targets.Target, survey targets.Survey, reg *bitmask.Registry, cfg *config.Config, destDir string, log *slog.Logger, opts Options) (*Result, error) {
	if opts.Resolve {
		before := len(all)
		resolved, err := resolve.Resolve(all)
		if err != nil {
			return nil, err
		}
		all = resolved
		log.Info("resolved imaging overlaps",
			logging.Int("dropped", before-len(all)),
			logging.Int(logging.FieldRows, len(all)))
	}

	counts, err := classCounts(all, survey, reg)
	if err != nil {
		return nil, err
	}

	wopts := catalog.WriteOptions{
		NSide:        cfg.Store.NSide,
		Survey:       survey,
		DarkBright:   opts.DarkBright,
		Resolved:     opts.Resolve,
		Supplemental: opts.Supplemental,
		Compress:     cfg.Store.Compress,
		ChunkRows:    cfg.Store.ChunkRows,
		Deps:         opts.Deps,
		Logger:       log,
	}
	wres, err := catalog.WriteTargets(destDir, all, wopts)
	if err != nil {
		return nil, err
	}
	files := wres.Files

	if opts.DarkBright {
		for _, obscon := range []string{"DARK", "BRIGHT"} {
			ores, err := catalog.WriteTargetsObscon(destDir, all, obscon, reg, wopts)
			if err != nil {
				return nil, err
			}
			files = append(files, ores.Files...)
		}
	}

	return &Result{Survey: survey, Rows: wres.Rows, Files: files, Counts: counts}, nil
}

func finalizeBrick(rows []targets.Target, survey targets.Survey, reg *bitmask.Registry, opts Options) ([]targets.Target, error) {
	n := len(rows)
	desi := make([]uint64, n)
	bgs := make([]uint64, n)
	mws := make([]uint64, n)
	for i := range rows {
		if survey.Kind == targets.SurveyCmx {
			desi[i] = rows[i].CmxTarget
		} else {
			desi[i] = rows[i].DesiTarget
			bgs[i] = rows[i].BGSTarget
			mws[i] = rows[i].MWSTarget
		}
	}
	return finalize.Finalize(rows, desi, bgs, mws, reg, finalize.Options{
		Survey:     survey,
		Sky:        opts.Sky,
		DarkBright: opts.DarkBright,
	})
}

// classCounts tallies how many selected rows carry each named bit.
func classCounts(tgts []targets.Target, survey targets.Survey, reg *bitmask.Registry) (map[string]int64, error) {
	masks, err := survey.Masks(reg)
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64)
	for i := range tgts {
		words := survey.Words(&tgts[i])
		for mi, m := range masks {
			for _, b := range m.Bits() {
				if words[mi]&b.Value() != 0 {
					out[b.Name]++
				}
			}
		}
	}
	return out, nil
}
