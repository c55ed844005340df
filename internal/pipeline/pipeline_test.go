package pipeline

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"skycat/internal/bitmask"
	"skycat/internal/catalog"
	"skycat/internal/config"
	"skycat/internal/runlog"
	"skycat/internal/targets"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(dir, "catalogs")
	cfg.Paths.RunLedger = filepath.Join(dir, "runs.db")
	cfg.Store.NSide = 2
	cfg.Store.Compress = false
	return &cfg
}

func writeBrick(t *testing.T, dir, name string, rows []targets.Target) {
	t.Helper()
	_, err := catalog.WriteFile(filepath.Join(dir, name), rows, catalog.WriteOptions{
		NSide:  2,
		Survey: targets.Survey{Kind: targets.SurveyMain},
	})
	if err != nil {
		t.Fatalf("write brick: %v", err)
	}
}

func brickRows(t *testing.T, reg *bitmask.Registry) []targets.Target {
	t.Helper()
	desi := reg.Main.Desi
	elg := desi.Value("ELG")
	qso := desi.Value("QSO")
	return []targets.Target{
		{ObjID: 1, BrickID: 100, Release: 8000, BrickName: "0100p100",
			RA: 10, Dec: 10, PhotSys: 'S', DesiTarget: elg},
		{ObjID: 2, BrickID: 100, Release: 8000, BrickName: "0100p100",
			RA: 10.2, Dec: 10.1, PhotSys: 'S', DesiTarget: elg | qso},
	}
}

func TestRunSelection(t *testing.T) {
	ctx := context.Background()
	reg, err := bitmask.Load()
	if err != nil {
		t.Fatal(err)
	}
	cfg := testConfig(t)

	src := t.TempDir()
	writeBrick(t, src, "brick-0100p100.dat", brickRows(t, reg))

	dest := t.TempDir()
	res, err := RunSelection(ctx, cfg, reg, nil, src, dest, Options{Resolve: true})
	if err != nil {
		t.Fatalf("RunSelection: %v", err)
	}
	if res.Rows != 2 {
		t.Fatalf("selected %d rows, want 2", res.Rows)
	}
	if res.Counts["ELG"] != 2 || res.Counts["QSO"] != 1 {
		t.Fatalf("counts = %v", res.Counts)
	}
	if res.RunID == "" {
		t.Fatal("run id missing")
	}

	// The destination is a valid sharded catalog.
	man, err := catalog.CheckHPTargetDir(dest)
	if err != nil {
		t.Fatalf("CheckHPTargetDir: %v", err)
	}
	if man.NSide != 2 {
		t.Fatalf("catalog nside = %d", man.NSide)
	}

	// Finalization assigned identifiers and scheduling columns.
	var total int
	for _, path := range man.Shards {
		_, rows, err := catalog.ReadFile(path)
		if err != nil {
			t.Fatal(err)
		}
		for _, r := range rows {
			if r.TargetID == 0 {
				t.Fatal("row without TARGETID")
			}
			if r.PriorityInit == 0 {
				t.Fatalf("row %d has no initial priority", r.TargetID)
			}
		}
		total += len(rows)
	}
	if total != 2 {
		t.Fatalf("catalog holds %d rows, want 2", total)
	}

	// The ledger recorded the run.
	ledger, err := runlog.Open(ctx, cfg.Paths.RunLedger)
	if err != nil {
		t.Fatal(err)
	}
	defer ledger.Close()
	runs, err := ledger.List(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 || runs[0].Status != runlog.StatusCompleted || runs[0].Rows != 2 {
		t.Fatalf("ledger runs = %+v", runs)
	}
}

func TestRunSelectionDarkBright(t *testing.T) {
	ctx := context.Background()
	reg, err := bitmask.Load()
	if err != nil {
		t.Fatal(err)
	}
	cfg := testConfig(t)

	src := t.TempDir()
	rows := brickRows(t, reg)
	rows = append(rows, targets.Target{
		ObjID: 3, BrickID: 100, Release: 8000, BrickName: "0100p100",
		RA: 10.4, Dec: 10.2, PhotSys: 'S',
		BGSTarget: reg.Main.BGS.Value("BGS_BRIGHT"),
	})
	writeBrick(t, src, "brick.dat", rows)

	dest := t.TempDir()
	res, err := RunSelection(ctx, cfg, reg, nil, src, dest, Options{DarkBright: true})
	if err != nil {
		t.Fatalf("RunSelection: %v", err)
	}

	var haveDark, haveBright bool
	for _, f := range res.Files {
		switch filepath.Base(filepath.Dir(f)) {
		case "dark":
			haveDark = true
		case "bright":
			haveBright = true
		}
	}
	if !haveDark || !haveBright {
		t.Fatalf("expected dark/ and bright/ outputs in %v", res.Files)
	}
}

func TestRunSelectionRejectsMistaggedBrick(t *testing.T) {
	ctx := context.Background()
	reg, err := bitmask.Load()
	if err != nil {
		t.Fatal(err)
	}
	cfg := testConfig(t)

	src := t.TempDir()
	writeBrick(t, src, "brick.dat", brickRows(t, reg))

	// Swap the header's survey tag for one the classification
	// columns contradict, byte for byte so the framing keeps its
	// length.
	path := filepath.Join(src, "brick.dat")
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	patched := bytes.Replace(raw, []byte(`'main'`), []byte(`'cmx' `), 1)
	if bytes.Equal(patched, raw) {
		t.Fatal("survey tag not found in header")
	}
	if err := os.WriteFile(path, patched, 0o644); err != nil {
		t.Fatal(err)
	}

	_, err = RunSelection(ctx, cfg, reg, nil, src, t.TempDir(), Options{})
	if err == nil || !strings.Contains(err.Error(), "columns are for") {
		t.Fatalf("expected survey tag mismatch to fail, got %v", err)
	}
}

func TestRunSelectionEmptySource(t *testing.T) {
	reg, err := bitmask.Load()
	if err != nil {
		t.Fatal(err)
	}
	cfg := testConfig(t)
	_, err = RunSelection(context.Background(), cfg, reg, nil, t.TempDir(), t.TempDir(), Options{})
	if err == nil {
		t.Fatal("empty source must fail")
	}
}

func TestDiscoverBricksOrder(t *testing.T) {
	reg, err := bitmask.Load()
	if err != nil {
		t.Fatal(err)
	}
	dir := t.TempDir()
	writeBrick(t, dir, "b.dat", brickRows(t, reg)[:1])
	writeBrick(t, dir, "a.dat", brickRows(t, reg)[1:])

	paths, err := DiscoverBricks(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(paths) != 2 || filepath.Base(paths[0]) != "a.dat" {
		t.Fatalf("paths = %v", paths)
	}
}

func TestDiscoverBricksWalksSubdirsAndRejectsDuplicates(t *testing.T) {
	reg, err := bitmask.Load()
	if err != nil {
		t.Fatal(err)
	}
	dir := t.TempDir()
	rows := brickRows(t, reg)
	writeBrick(t, dir, "a.dat", rows[:1])
	sub := filepath.Join(dir, "north")
	writeBrick(t, sub, "b.dat", rows[1:])

	paths, err := DiscoverBricks(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(paths) != 2 {
		t.Fatalf("paths = %v", paths)
	}

	writeBrick(t, sub, "a.dat", rows[:1])
	if _, err := DiscoverBricks(dir); err == nil {
		t.Fatal("expected duplicate brick name to fail")
	}
}
