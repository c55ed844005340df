package catalog

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"skycat/internal/bitmask"
	"skycat/internal/healpix"
	"skycat/internal/targets"
)

func mainSurvey() targets.Survey {
	return targets.Survey{Kind: targets.SurveyMain}
}

func sampleTargets() []targets.Target {
	return []targets.Target{
		{TargetID: 101, RA: 10, Dec: 10, Release: 8000, BrickID: 1, ObjID: 1,
			BrickName: "0100p100", MorphType: "PSF", PhotSys: 'S',
			DesiTarget: 4, PriorityInit: 3400, NumObsInit: 4, ObsConditions: 1, NumObs: 0},
		{TargetID: 102, RA: 11, Dec: 10, Release: 8000, BrickID: 1, ObjID: 2,
			BrickName: "0110p100", MorphType: "REX", PhotSys: 'S',
			DesiTarget: 2, PriorityInit: 3000, NumObsInit: 1, ObsConditions: 3},
		{TargetID: 103, RA: 185, Dec: 42, Release: 8001, BrickID: 2, ObjID: 1,
			BrickName: "1850p420", MorphType: "DEV", PhotSys: 'N',
			BGSTarget: 2, PriorityInit: 2100, NumObsInit: 1, ObsConditions: 4},
	}
}

func writeSample(t *testing.T, dir string, opts WriteOptions) *WriteResult {
	t.Helper()
	res, err := WriteTargets(dir, sampleTargets(), opts)
	if err != nil {
		t.Fatalf("WriteTargets: %v", err)
	}
	return res
}

func TestWriteReadRoundTrip(t *testing.T) {
	for _, compress := range []bool{false, true} {
		name := "raw"
		if compress {
			name = "zstd"
		}
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			res := writeSample(t, dir, WriteOptions{
				NSide: 2, Survey: mainSurvey(), Resolved: true, Compress: compress,
			})
			if res.Rows != 3 {
				t.Fatalf("wrote %d rows, want 3", res.Rows)
			}

			var rows []targets.Target
			for _, path := range res.Files {
				h, shardRows, err := ReadFile(path)
				if err != nil {
					t.Fatalf("ReadFile(%s): %v", path, err)
				}
				if h.NSide != 2 || !h.Nested || !h.Resolved || h.Compressed != compress {
					t.Fatalf("header = %+v", h)
				}
				rows = append(rows, shardRows...)
			}
			if len(rows) != 3 {
				t.Fatalf("read %d rows, want 3", len(rows))
			}

			byID := map[int64]targets.Target{}
			for _, r := range rows {
				byID[r.TargetID] = r
			}
			orig := sampleTargets()[0]
			got, ok := byID[orig.TargetID]
			if !ok {
				t.Fatalf("row %d missing", orig.TargetID)
			}
			if got.RA != orig.RA || got.Dec != orig.Dec || got.BrickName != orig.BrickName ||
				got.MorphType != orig.MorphType || got.PhotSys != orig.PhotSys ||
				got.DesiTarget != orig.DesiTarget || got.PriorityInit != orig.PriorityInit {
				t.Fatalf("round trip mismatch: %+v vs %+v", got, orig)
			}
			if got.SubPriority <= 0 || got.SubPriority >= 1 {
				t.Fatalf("SUBPRIORITY %v not in (0, 1)", got.SubPriority)
			}
			wantPix := healpix.RADecToPix(2, orig.RA, orig.Dec)
			if got.HPXPixel != wantPix {
				t.Fatalf("HPXPIXEL = %d, want %d", got.HPXPixel, wantPix)
			}
		})
	}
}

func TestSubPriorityDeterministic(t *testing.T) {
	dirA, dirB, dirC := t.TempDir(), t.TempDir(), t.TempDir()
	writeSample(t, dirA, WriteOptions{NSide: 2, Survey: mainSurvey()})
	writeSample(t, dirB, WriteOptions{NSide: 2, Survey: mainSurvey()})
	writeSample(t, dirC, WriteOptions{NSide: 2, Survey: mainSurvey(), Supplemental: true})

	read := func(dir string) map[int64]float64 {
		man, err := CheckHPTargetDir(dir)
		if err != nil {
			t.Fatalf("CheckHPTargetDir: %v", err)
		}
		out := map[int64]float64{}
		for _, path := range man.Shards {
			_, rows, err := ReadFile(path)
			if err != nil {
				t.Fatal(err)
			}
			for _, r := range rows {
				out[r.TargetID] = r.SubPriority
			}
		}
		return out
	}

	a, b, c := read(dirA), read(dirB), read(dirC)
	for id, v := range a {
		if b[id] != v {
			t.Fatalf("rerun changed SUBPRIORITY of %d: %v vs %v", id, v, b[id])
		}
	}
	same := true
	for id, v := range a {
		if c[id] != v {
			same = false
		}
	}
	if same {
		t.Fatal("supplemental seed produced the standard stream")
	}
}

func TestChunkedWriteConcatenates(t *testing.T) {
	dir := t.TempDir()
	res := writeSample(t, dir, WriteOptions{
		NSide: 1, Survey: mainSurvey(), Compress: true, ChunkRows: 1,
	})
	var total int
	for _, path := range res.Files {
		_, rows, err := ReadFile(path)
		if err != nil {
			t.Fatalf("ReadFile: %v", err)
		}
		total += len(rows)
	}
	if total != 3 {
		t.Fatalf("read %d rows across chunked shards, want 3", total)
	}
}

func TestReadHeaderOnly(t *testing.T) {
	dir := t.TempDir()
	res := writeSample(t, dir, WriteOptions{NSide: 2, Survey: mainSurvey(), Maskbits: true})
	h, err := ReadHeader(res.Files[0])
	if err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}
	if !h.Maskbits || h.Survey != "main" || len(h.Pixels) != 1 {
		t.Fatalf("header = %+v", h)
	}
}

func TestCheckHPTargetDir(t *testing.T) {
	dir := t.TempDir()
	writeSample(t, dir, WriteOptions{NSide: 2, Survey: mainSurvey()})

	man, err := CheckHPTargetDir(dir)
	if err != nil {
		t.Fatalf("CheckHPTargetDir: %v", err)
	}
	if man.NSide != 2 {
		t.Fatalf("manifest nside = %d", man.NSide)
	}
	for _, tg := range sampleTargets() {
		pix := healpix.RADecToPix(2, tg.RA, tg.Dec)
		if _, ok := man.Shards[pix]; !ok {
			t.Errorf("pixel %d has no shard", pix)
		}
	}
}

func TestCheckHPTargetDirRejectsMixedNSide(t *testing.T) {
	dir := t.TempDir()
	onlyFirst := sampleTargets()[:1]
	if _, err := WriteTargets(dir, onlyFirst, WriteOptions{NSide: 2, Survey: mainSurvey()}); err != nil {
		t.Fatal(err)
	}
	// Compression gives the second write a distinct file suffix, so
	// both shards survive in the same directory.
	if _, err := WriteTargets(dir, sampleTargets()[2:], WriteOptions{NSide: 4, Survey: mainSurvey(), Compress: true}); err != nil {
		t.Fatal(err)
	}
	if _, err := CheckHPTargetDir(dir); err == nil || !strings.Contains(err.Error(), "nside") {
		t.Fatalf("expected mixed-nside error, got %v", err)
	}
}

func TestCheckHPTargetDirRejectsDuplicatePixel(t *testing.T) {
	dir := t.TempDir()
	res := writeSample(t, dir, WriteOptions{NSide: 2, Survey: mainSurvey()})

	// Copy one shard under another matching name.
	src := res.Files[0]
	body, err := os.ReadFile(src)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "targets-hp-999.dat"), body, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := CheckHPTargetDir(dir); err == nil || !strings.Contains(err.Error(), "owned by both") {
		t.Fatalf("expected duplicate-pixel error, got %v", err)
	}
}

func TestCheckHPTargetDirEmpty(t *testing.T) {
	if _, err := CheckHPTargetDir(t.TempDir()); err == nil {
		t.Fatal("empty directory must fail")
	}
}

func TestReadTargetsInHP(t *testing.T) {
	dir := t.TempDir()
	writeSample(t, dir, WriteOptions{NSide: 2, Survey: mainSurvey()})
	man, err := CheckHPTargetDir(dir)
	if err != nil {
		t.Fatal(err)
	}

	// Query at a finer nside than the store.
	pix := healpix.RADecToPix(8, 10, 10)
	rows, err := ReadTargetsInHP(man, 8, []int64{pix}, nil)
	if err != nil {
		t.Fatalf("ReadTargetsInHP: %v", err)
	}
	for _, r := range rows {
		if healpix.RADecToPix(8, r.RA, r.Dec) != pix {
			t.Fatalf("row %d outside queried pixel", r.TargetID)
		}
	}
	if len(rows) == 0 {
		t.Fatal("expected at least the target at RA 10 Dec 10")
	}
}

func TestReadTargetsInHPUncoveredIsEmpty(t *testing.T) {
	dir := t.TempDir()
	if _, err := WriteTargets(dir, sampleTargets()[:1], WriteOptions{NSide: 2, Survey: mainSurvey()}); err != nil {
		t.Fatal(err)
	}
	man, err := CheckHPTargetDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	// A pixel on the far side of the sky has no shard.
	far := healpix.RADecToPix(2, 300, -60)
	rows, err := ReadTargetsInHP(man, 2, []int64{far}, nil)
	if err != nil {
		t.Fatalf("uncovered query must not fail: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("uncovered query returned %d rows", len(rows))
	}
}

func TestReadTargetsInBox(t *testing.T) {
	dir := t.TempDir()
	writeSample(t, dir, WriteOptions{NSide: 2, Survey: mainSurvey()})
	man, err := CheckHPTargetDir(dir)
	if err != nil {
		t.Fatal(err)
	}

	box := healpix.Box{RAMin: 9, RAMax: 12, DecMin: 9, DecMax: 11}
	rows, err := ReadTargetsInBox(man, box, nil)
	if err != nil {
		t.Fatalf("ReadTargetsInBox: %v", err)
	}
	ids := map[int64]bool{}
	for _, r := range rows {
		ids[r.TargetID] = true
		if !box.Contains(r.RA, r.Dec) {
			t.Fatalf("row %d outside box", r.TargetID)
		}
	}
	if !ids[101] || !ids[102] || ids[103] {
		t.Fatalf("box selected %v, want 101 and 102 only", ids)
	}
}

func TestReadTargetsInCap(t *testing.T) {
	dir := t.TempDir()
	writeSample(t, dir, WriteOptions{NSide: 2, Survey: mainSurvey()})
	man, err := CheckHPTargetDir(dir)
	if err != nil {
		t.Fatal(err)
	}

	c := healpix.Cap{RA: 185, Dec: 42, Radius: 2}
	rows, err := ReadTargetsInCap(man, c, nil)
	if err != nil {
		t.Fatalf("ReadTargetsInCap: %v", err)
	}
	if len(rows) != 1 || rows[0].TargetID != 103 {
		t.Fatalf("cap selected %v, want only 103", rows)
	}
}

func TestWriteTargetsObscon(t *testing.T) {
	reg, err := bitmask.Load()
	if err != nil {
		t.Fatal(err)
	}
	dark, err := reg.ObsCon.Mask("DARK")
	if err != nil {
		t.Fatal(err)
	}
	bright, err := reg.ObsCon.Mask("BRIGHT")
	if err != nil {
		t.Fatal(err)
	}
	gray, err := reg.ObsCon.Mask("GRAY")
	if err != nil {
		t.Fatal(err)
	}

	tgts := []targets.Target{
		{TargetID: 1, RA: 10, Dec: 10, ObsConditions: dark,
			PriorityInitDark: 3400, NumObsInitDark: 4},
		{TargetID: 2, RA: 10.5, Dec: 10, ObsConditions: bright,
			PriorityInitBright: 2100, NumObsInitBright: 1},
		{TargetID: 3, RA: 11, Dec: 10, ObsConditions: gray,
			PriorityInitDark: 3000, NumObsInitDark: 1},
	}

	dir := t.TempDir()
	opts := WriteOptions{NSide: 2, Survey: mainSurvey(), DarkBright: true}
	res, err := WriteTargetsObscon(dir, tgts, "DARK", reg, opts)
	if err != nil {
		t.Fatalf("WriteTargetsObscon: %v", err)
	}
	// Gray-time rows belong in the dark catalog too; the dark init
	// columns were computed under DARK|GRAY.
	if res.Rows != 2 {
		t.Fatalf("dark write kept %d rows, want 2", res.Rows)
	}
	if !strings.Contains(res.Files[0], string(filepath.Separator)+"dark"+string(filepath.Separator)) {
		t.Fatalf("dark shard written to %s", res.Files[0])
	}

	h, rows, err := ReadFile(res.Files[0])
	if err != nil {
		t.Fatal(err)
	}
	if h.Obscon != "DARK" || h.DarkBright {
		t.Fatalf("header = %+v", h)
	}
	if rows[0].TargetID != 1 || rows[0].PriorityInit != 3400 || rows[0].NumObsInit != 4 {
		t.Fatalf("dark row = %+v", rows[0])
	}
	for _, f := range res.Files[1:] {
		_, more, err := ReadFile(f)
		if err != nil {
			t.Fatal(err)
		}
		rows = append(rows, more...)
	}
	var grayRow *targets.Target
	for i := range rows {
		if rows[i].TargetID == 3 {
			grayRow = &rows[i]
		}
	}
	if grayRow == nil {
		t.Fatal("gray-time target missing from the dark catalog")
	}
	if grayRow.PriorityInit != 3000 || grayRow.NumObsInit != 1 {
		t.Fatalf("gray row = %+v", grayRow)
	}
}

func TestPixWeightRoundTripAndResample(t *testing.T) {
	w, err := NewPixWeight(2)
	if err != nil {
		t.Fatal(err)
	}
	for i := range w.Values {
		w.Values[i] = float64(i)
	}

	path := filepath.Join(t.TempDir(), "pixweight.dat")
	if err := WritePixWeight(path, w); err != nil {
		t.Fatalf("WritePixWeight: %v", err)
	}
	got, err := LoadPixWeight(path)
	if err != nil {
		t.Fatalf("LoadPixWeight: %v", err)
	}
	if got.NSide != 2 || len(got.Values) != len(w.Values) {
		t.Fatalf("loaded map nside %d with %d values", got.NSide, len(got.Values))
	}
	for i := range w.Values {
		if got.Values[i] != w.Values[i] {
			t.Fatalf("value %d = %v, want %v", i, got.Values[i], w.Values[i])
		}
	}

	// Degrade: each parent is the mean of its four children.
	down, err := got.Resample(1, nil)
	if err != nil {
		t.Fatal(err)
	}
	want := (0.0 + 1 + 2 + 3) / 4
	if math.Abs(down.Values[0]-want) > 1e-12 {
		t.Fatalf("degraded pixel 0 = %v, want %v", down.Values[0], want)
	}

	// Upgrade: children replicate the parent.
	up, err := got.Resample(4, nil)
	if err != nil {
		t.Fatal(err)
	}
	if up.Values[0] != got.Values[0] || up.Values[3] != got.Values[0] || up.Values[4] != got.Values[1] {
		t.Fatalf("upgraded values = %v...", up.Values[:5])
	}
}
