package catalog

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/klauspost/compress/zstd"

	"skycat/internal/healpix"
	"skycat/internal/logging"
	"skycat/internal/targets"
)

// Covering queries never enumerate pixels finer than this; the exact
// geometric trim removes whatever the coarser covering over-selects.
const maxCoveringNSide = 256

// ReadFile reads one shard (or a single-file catalog) in full.
func ReadFile(path string) (*Header, []targets.Target, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	h, err := readHeader(f)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	sch, err := schemaFromHeader(h)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}

	payload, err := io.ReadAll(f)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: read rows: %w", path, err)
	}
	if h.Compressed {
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, nil, fmt.Errorf("init zstd: %w", err)
		}
		defer dec.Close()
		payload, err = dec.DecodeAll(payload, nil)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: decompress rows: %w", path, err)
		}
	}
	if len(payload)%sch.rowSize != 0 {
		return nil, nil, fmt.Errorf("%s: payload is %d bytes, not a multiple of the %d byte row",
			path, len(payload), sch.rowSize)
	}

	rows := make([]targets.Target, 0, len(payload)/sch.rowSize)
	for off := 0; off < len(payload); off += sch.rowSize {
		rows = append(rows, sch.decode(payload[off:off+sch.rowSize]))
	}
	return h, rows, nil
}

// Manifest indexes a sharded catalog directory: which shard owns each
// HEALPixel, at a single common nside. It is built once and passed to
// the query functions.
type Manifest struct {
	NSide  int64
	Shards map[int64]string
}

// CheckHPTargetDir scans a catalog directory, validates its shard
// headers and builds the pixel-to-shard manifest. A directory is
// valid when every shard shares one nside, every pixel is owned by
// exactly one shard and all pixels are legal at that nside.
func CheckHPTargetDir(dir string) (*Manifest, error) {
	entries, err := filepath.Glob(filepath.Join(dir, "targets-hp-*.dat*"))
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("no catalog shards in %s", dir)
	}
	sort.Strings(entries)

	man := &Manifest{Shards: make(map[int64]string)}
	for _, path := range entries {
		h, err := ReadHeader(path)
		if err != nil {
			return nil, err
		}
		if !h.Nested {
			return nil, fmt.Errorf("%s: shard is not in the nested scheme", path)
		}
		if man.NSide == 0 {
			man.NSide = h.NSide
		} else if h.NSide != man.NSide {
			return nil, fmt.Errorf("%s: shard nside %d differs from directory nside %d",
				path, h.NSide, man.NSide)
		}
		if len(h.Pixels) == 0 {
			return nil, fmt.Errorf("%s: shard header carries no pixel list", path)
		}
		for _, pix := range h.Pixels {
			if pix < 0 || pix >= healpix.NPix(h.NSide) {
				return nil, fmt.Errorf("%s: pixel %d is not valid at nside %d", path, pix, h.NSide)
			}
			if prev, ok := man.Shards[pix]; ok {
				return nil, fmt.Errorf("pixel %d owned by both %s and %s", pix, prev, path)
			}
			man.Shards[pix] = path
		}
	}
	return man, nil
}

// ReadTargetsInHP reads every target inside the given HEALPixels at
// queryNSide. Pixels that fall outside the catalog's coverage are
// logged and skipped.
func ReadTargetsInHP(man *Manifest, queryNSide int64, pixels []int64, logger *slog.Logger) ([]targets.Target, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	storePix, err := healpix.ChangeNSide(queryNSide, man.NSide, pixels)
	if err != nil {
		return nil, err
	}

	want := make(map[int64]struct{}, len(pixels))
	for _, pix := range pixels {
		want[pix] = struct{}{}
	}

	rows, err := readShardsFor(man, storePix, logger)
	if err != nil {
		return nil, err
	}

	out := rows[:0]
	for _, t := range rows {
		if _, ok := want[healpix.RADecToPix(queryNSide, t.RA, t.Dec)]; ok {
			out = append(out, t)
		}
	}
	return out, nil
}

// ReadTargetsInBox reads every target inside an RA/Dec box.
func ReadTargetsInBox(man *Manifest, box healpix.Box, logger *slog.Logger) ([]targets.Target, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	nside := man.NSide
	if nside > maxCoveringNSide {
		nside = maxCoveringNSide
	}
	covering, err := healpix.PixInBox(nside, box)
	if err != nil {
		return nil, err
	}
	storePix, err := healpix.ChangeNSide(nside, man.NSide, covering)
	if err != nil {
		return nil, err
	}

	rows, err := readShardsFor(man, storePix, logger)
	if err != nil {
		return nil, err
	}
	out := rows[:0]
	for _, t := range rows {
		if box.Contains(t.RA, t.Dec) {
			out = append(out, t)
		}
	}
	return out, nil
}

// ReadTargetsInCap reads every target inside a spherical cap.
func ReadTargetsInCap(man *Manifest, cap healpix.Cap, logger *slog.Logger) ([]targets.Target, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	nside := man.NSide
	if nside > maxCoveringNSide {
		nside = maxCoveringNSide
	}
	covering, err := healpix.PixInCap(nside, cap)
	if err != nil {
		return nil, err
	}
	storePix, err := healpix.ChangeNSide(nside, man.NSide, covering)
	if err != nil {
		return nil, err
	}

	rows, err := readShardsFor(man, storePix, logger)
	if err != nil {
		return nil, err
	}
	out := rows[:0]
	for _, t := range rows {
		if cap.Contains(t.RA, t.Dec) {
			out = append(out, t)
		}
	}
	return out, nil
}

// readShardsFor reads each shard owning any of the store-nside pixels
// exactly once. Uncovered pixels are logged, not fatal.
func readShardsFor(man *Manifest, storePix []int64, logger *slog.Logger) ([]targets.Target, error) {
	var missing int
	shards := make(map[string]struct{})
	var order []string
	for _, pix := range storePix {
		path, ok := man.Shards[pix]
		if !ok {
			missing++
			continue
		}
		if _, seen := shards[path]; !seen {
			shards[path] = struct{}{}
			order = append(order, path)
		}
	}
	if missing > 0 {
		logger.Info("query touches pixels outside catalog coverage",
			logging.Int("uncovered_pixels", missing),
			logging.Int64(logging.FieldNSide, man.NSide))
	}
	if len(order) == 0 {
		logger.Info("query matched no catalog shards")
		return nil, nil
	}
	sort.Strings(order)

	var rows []targets.Target
	for _, path := range order {
		_, shardRows, err := ReadFile(path)
		if err != nil {
			return nil, err
		}
		rows = append(rows, shardRows...)
	}
	return rows, nil
}
