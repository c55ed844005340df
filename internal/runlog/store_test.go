package runlog

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func openStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "runs.db")
	store, err := Open(context.Background(), path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store, path
}

func TestBeginFinishList(t *testing.T) {
	ctx := context.Background()
	store, _ := openStore(t)

	run, err := store.Begin(ctx, "main", "/in", "/out")
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if run.ID == "" || run.Status != StatusRunning {
		t.Fatalf("run = %+v", run)
	}

	counts := map[string]int64{"ELG": 120, "QSO": 17}
	if err := store.Finish(ctx, run, 137, counts, nil); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	runs, err := store.List(ctx, 10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("listed %d runs, want 1", len(runs))
	}
	got := runs[0]
	if got.ID != run.ID || got.Status != StatusCompleted || got.Rows != 137 {
		t.Fatalf("listed run = %+v", got)
	}
	if got.Duration() <= 0 {
		t.Fatal("finished run must have positive duration")
	}

	gotCounts, err := store.Counts(ctx, run.ID)
	if err != nil {
		t.Fatalf("Counts: %v", err)
	}
	if gotCounts["ELG"] != 120 || gotCounts["QSO"] != 17 {
		t.Fatalf("counts = %v", gotCounts)
	}
}

func TestFinishFailedRun(t *testing.T) {
	ctx := context.Background()
	store, _ := openStore(t)

	run, err := store.Begin(ctx, "sv1", "/in", "/out")
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Finish(ctx, run, 0, nil, errors.New("resolver: unknown release number 42")); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	runs, err := store.List(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if runs[0].Status != StatusFailed || runs[0].Error == "" {
		t.Fatalf("run = %+v", runs[0])
	}
}

func TestReopenExistingLedger(t *testing.T) {
	ctx := context.Background()
	store, path := openStore(t)

	if _, err := store.Begin(ctx, "main", "/in", "/out"); err != nil {
		t.Fatal(err)
	}
	if err := store.Close(); err != nil {
		t.Fatal(err)
	}

	again, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer again.Close()

	runs, err := again.List(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 {
		t.Fatalf("listed %d runs after reopen, want 1", len(runs))
	}
}

func TestSchemaMismatch(t *testing.T) {
	ctx := context.Background()
	store, path := openStore(t)
	if _, err := store.db.ExecContext(ctx, "UPDATE schema_version SET version = 99"); err != nil {
		t.Fatal(err)
	}
	if err := store.Close(); err != nil {
		t.Fatal(err)
	}

	if _, err := Open(ctx, path); !errors.Is(err, ErrSchemaMismatch) {
		t.Fatalf("expected ErrSchemaMismatch, got %v", err)
	}
}
