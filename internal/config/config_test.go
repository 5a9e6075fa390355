package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := []byte("app:\n  name: pairflow-test\nfeed:\n  provider: stub\n  symbols: [BTCUSDT]\n")
	if err := os.WriteFile(path, body, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.App.Name != "pairflow-test" {
		t.Fatalf("unexpected app name %q", cfg.App.Name)
	}
	if cfg.Feed.Provider != "stub" {
		t.Fatalf("unexpected provider %q", cfg.Feed.Provider)
	}
	if cfg.Buffer.Capacity != 10000 {
		t.Fatalf("expected default buffer capacity, got %d", cfg.Buffer.Capacity)
	}
	if cfg.Feed.BackoffSecs != 2 {
		t.Fatalf("expected default backoff, got %d", cfg.Feed.BackoffSecs)
	}
	if cfg.Resample.Schedule != "@every 1s" {
		t.Fatalf("expected default schedule, got %q", cfg.Resample.Schedule)
	}
	if cfg.Analytics.Window != 20 {
		t.Fatalf("expected default window, got %d", cfg.Analytics.Window)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestTimeframeRegistryOrdered(t *testing.T) {
	cfg := Default()
	tfs := cfg.TimeframeRegistry()
	if len(tfs) != 3 {
		t.Fatalf("expected 3 timeframes, got %d", len(tfs))
	}
	for i := 1; i < len(tfs); i++ {
		if tfs[i].Seconds <= tfs[i-1].Seconds {
			t.Fatalf("registry not ordered by width: %+v", tfs)
		}
	}
	if _, ok := tfs.Lookup("1m"); !ok {
		t.Fatal("expected 1m in registry")
	}
	if _, ok := tfs.Lookup("7h"); ok {
		t.Fatal("did not expect 7h in registry")
	}
}
