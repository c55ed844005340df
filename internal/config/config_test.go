package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultValidates(t *testing.T) {
	cfg := Default()
	if err := cfg.normalize(); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	cfg, resolved, exists, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if exists {
		t.Fatal("missing file reported as found")
	}
	if resolved != path {
		t.Fatalf("resolved = %s, want %s", resolved, path)
	}
	if cfg.Store.NSide != defaultNSide {
		t.Fatalf("nside = %d, want default %d", cfg.Store.NSide, defaultNSide)
	}
}

func TestLoadOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	body := `
[paths]
data_dir = "` + dir + `/catalogs"

[store]
nside = 16
chunk_rows = 1000
compress = false

[logging]
format = "json"
level = "debug"
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, _, exists, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !exists {
		t.Fatal("file not found")
	}
	if cfg.Store.NSide != 16 || cfg.Store.ChunkRows != 1000 || cfg.Store.Compress {
		t.Fatalf("store = %+v", cfg.Store)
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Level != "debug" {
		t.Fatalf("logging = %+v", cfg.Logging)
	}
	if cfg.Paths.DataDir != filepath.Join(dir, "catalogs") {
		t.Fatalf("data_dir = %s", cfg.Paths.DataDir)
	}
}

func TestValidateRejectsBadNSide(t *testing.T) {
	for _, nside := range []int64{0, 3, -8} {
		cfg := Default()
		cfg.Store.NSide = nside
		if err := cfg.Validate(); err == nil {
			t.Errorf("nside %d accepted", nside)
		}
	}
}

func TestValidateRejectsBadLogging(t *testing.T) {
	cfg := Default()
	cfg.Logging.Format = "xml"
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "logging.format") {
		t.Fatalf("expected logging.format error, got %v", err)
	}
}

func TestCreateSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	body, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(body), "[store]") {
		t.Fatal("sample config missing store section")
	}
}

func TestExpandPathHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	got, err := ExpandPath("~/x")
	if err != nil {
		t.Fatal(err)
	}
	if got != filepath.Join(home, "x") {
		t.Fatalf("ExpandPath = %s", got)
	}
}
