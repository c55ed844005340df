package catalog

import (
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/zstd"

	"skycat/internal/bitmask"
	"skycat/internal/healpix"
	"skycat/internal/logging"
	"skycat/internal/targets"
)

// Sub-priority streams are seeded with fixed values so a rerun over
// the same input produces bit-identical catalogs.
const (
	subPrioritySeed     = 616
	subPrioritySeedSupp = 626
)

const defaultChunkRows = 50000

// WriteOptions controls catalog writing.
type WriteOptions struct {
	NSide      int64
	Survey     targets.Survey
	DarkBright bool
	Resolved   bool
	Maskbits   bool
	// Supplemental marks a supplemental catalog; it selects the
	// alternate sub-priority seed.
	Supplemental bool
	Compress     bool
	// ChunkRows bounds the rows encoded per append; each chunk
	// becomes one compression frame.
	ChunkRows int
	// Deps records upstream dependency versions in every header.
	Deps   map[string]string
	Logger *slog.Logger
}

func (o *WriteOptions) normalize() error {
	if err := healpix.CheckNSide(o.NSide); err != nil {
		return err
	}
	if o.ChunkRows <= 0 {
		o.ChunkRows = defaultChunkRows
	}
	if o.Logger == nil {
		o.Logger = logging.NewNop()
	}
	return nil
}

// WriteResult reports what a write produced.
type WriteResult struct {
	Files []string
	Rows  int
}

// WriteTargets shards a batch over HEALPixels at opts.NSide and
// writes one file per occupied pixel under dir. Sub-priorities are
// assigned here, in input order, from the fixed seed.
func WriteTargets(dir string, tgts []targets.Target, opts WriteOptions) (*WriteResult, error) {
	if err := opts.normalize(); err != nil {
		return nil, err
	}
	rows := prepare(tgts, opts)

	byPixel := make(map[int64][]targets.Target)
	for _, t := range rows {
		byPixel[t.HPXPixel] = append(byPixel[t.HPXPixel], t)
	}
	pixels := make([]int64, 0, len(byPixel))
	for pix := range byPixel {
		pixels = append(pixels, pix)
	}
	sort.Slice(pixels, func(i, j int) bool { return pixels[i] < pixels[j] })

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create catalog directory: %w", err)
	}

	res := &WriteResult{}
	for _, pix := range pixels {
		path := filepath.Join(dir, shardName(pix, opts.Compress))
		if err := writeShard(path, []int64{pix}, byPixel[pix], opts); err != nil {
			return nil, err
		}
		opts.Logger.Info("wrote shard",
			logging.String(logging.FieldShard, path),
			logging.Int64(logging.FieldPixel, pix),
			logging.Int(logging.FieldRows, len(byPixel[pix])))
		res.Files = append(res.Files, path)
		res.Rows += len(byPixel[pix])
	}
	return res, nil
}

// WriteFile writes a whole batch into a single unsharded catalog
// file. The header records every occupied pixel unless the list is
// too long to be worth carrying.
func WriteFile(path string, tgts []targets.Target, opts WriteOptions) (*WriteResult, error) {
	if err := opts.normalize(); err != nil {
		return nil, err
	}
	rows := prepare(tgts, opts)

	seen := make(map[int64]struct{})
	var pixels []int64
	for _, t := range rows {
		if _, ok := seen[t.HPXPixel]; !ok {
			seen[t.HPXPixel] = struct{}{}
			pixels = append(pixels, t.HPXPixel)
		}
	}
	sort.Slice(pixels, func(i, j int) bool { return pixels[i] < pixels[j] })
	if len(pixels) > maxHeaderPixels {
		opts.Logger.Warn("pixel list too long for shard header, omitting",
			logging.Int("pixels", len(pixels)),
			logging.Int("limit", maxHeaderPixels))
		pixels = nil
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create catalog directory: %w", err)
		}
	}
	if err := writeShard(path, pixels, rows, opts); err != nil {
		return nil, err
	}
	return &WriteResult{Files: []string{path}, Rows: len(rows)}, nil
}

// WriteTargetsObscon writes the subset of a finalized dark/bright
// split catalog scheduled under one observing regime. The split
// initial scheduling columns collapse back to the plain pair and the
// output lands in a per-regime subdirectory.
func WriteTargetsObscon(dir string, tgts []targets.Target, obscon string, reg *bitmask.Registry, opts WriteOptions) (*WriteResult, error) {
	// The dark catalog admits everything schedulable in dark time,
	// which includes the gray regime; the split init columns are
	// computed under the same mask.
	filter := obscon
	if obscon == "DARK" {
		filter = "DARK|GRAY"
	}
	mask, err := reg.ObsCon.Mask(filter)
	if err != nil {
		return nil, err
	}

	kept := make([]targets.Target, 0, len(tgts))
	for _, t := range tgts {
		if t.ObsConditions&mask == 0 {
			continue
		}
		switch obscon {
		case "BRIGHT":
			t.PriorityInit, t.NumObsInit = t.PriorityInitBright, t.NumObsInitBright
		default:
			t.PriorityInit, t.NumObsInit = t.PriorityInitDark, t.NumObsInitDark
		}
		kept = append(kept, t)
	}

	opts.DarkBright = false
	sub := filepath.Join(dir, strings.ToLower(obscon))
	res, err := writeObscon(sub, kept, obscon, opts)
	if err != nil {
		return nil, err
	}
	return res, nil
}

func writeObscon(dir string, tgts []targets.Target, obscon string, opts WriteOptions) (*WriteResult, error) {
	if err := opts.normalize(); err != nil {
		return nil, err
	}
	rows := prepare(tgts, opts)

	byPixel := make(map[int64][]targets.Target)
	for _, t := range rows {
		byPixel[t.HPXPixel] = append(byPixel[t.HPXPixel], t)
	}
	pixels := make([]int64, 0, len(byPixel))
	for pix := range byPixel {
		pixels = append(pixels, pix)
	}
	sort.Slice(pixels, func(i, j int) bool { return pixels[i] < pixels[j] })

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create catalog directory: %w", err)
	}
	res := &WriteResult{}
	for _, pix := range pixels {
		path := filepath.Join(dir, shardName(pix, opts.Compress))
		if err := writeShardObscon(path, []int64{pix}, byPixel[pix], obscon, opts); err != nil {
			return nil, err
		}
		res.Files = append(res.Files, path)
		res.Rows += len(byPixel[pix])
	}
	return res, nil
}

// prepare assigns sub-priorities and pixel indices without mutating
// the caller's slice.
func prepare(tgts []targets.Target, opts WriteOptions) []targets.Target {
	seed := int64(subPrioritySeed)
	if opts.Supplemental {
		seed = subPrioritySeedSupp
	}
	rng := rand.New(rand.NewSource(seed))

	rows := make([]targets.Target, len(tgts))
	copy(rows, tgts)
	for i := range rows {
		rows[i].SubPriority = rng.Float64()
		rows[i].HPXPixel = healpix.RADecToPix(opts.NSide, rows[i].RA, rows[i].Dec)
	}
	return rows
}

func shardName(pixel int64, compressed bool) string {
	name := fmt.Sprintf("targets-hp-%d.dat", pixel)
	if compressed {
		name += ".zst"
	}
	return name
}

func writeShard(path string, pixels []int64, rows []targets.Target, opts WriteOptions) error {
	return writeShardObscon(path, pixels, rows, "", opts)
}

func writeShardObscon(path string, pixels []int64, rows []targets.Target, obscon string, opts WriteOptions) error {
	sch := newSchema(opts.Survey, opts.DarkBright)
	h := &Header{
		NSide:        opts.NSide,
		Nested:       true,
		Pixels:       pixels,
		Survey:       opts.Survey.String(),
		Resolved:     opts.Resolved,
		Maskbits:     opts.Maskbits,
		Supplemental: opts.Supplemental,
		DarkBright:   opts.DarkBright,
		Obscon:       obscon,
		Compressed:   opts.Compress,
		Columns:      sch.columnNames(),
		Deps:         opts.Deps,
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create shard: %w", err)
	}
	defer f.Close()

	if err := writeHeader(f, h); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	var enc *zstd.Encoder
	if opts.Compress {
		enc, err = zstd.NewWriter(nil)
		if err != nil {
			return fmt.Errorf("init zstd: %w", err)
		}
		defer enc.Close()
	}

	chunk := make([]byte, 0, opts.ChunkRows*sch.rowSize)
	flush := func() error {
		if len(chunk) == 0 {
			return nil
		}
		out := chunk
		if enc != nil {
			out = enc.EncodeAll(chunk, nil)
		}
		if _, err := f.Write(out); err != nil {
			return fmt.Errorf("append shard chunk: %w", err)
		}
		chunk = chunk[:0]
		return nil
	}

	buf := make([]byte, sch.rowSize)
	for i := range rows {
		sch.encode(&rows[i], buf)
		chunk = append(chunk, buf...)
		if len(chunk) >= opts.ChunkRows*sch.rowSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := flush(); err != nil {
		return err
	}
	return f.Close()
}
