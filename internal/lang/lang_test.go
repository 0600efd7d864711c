package lang

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadOverlaysDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lang.yaml")
	if err := os.WriteFile(path, []byte("from: von\nsent: Gesendet.\n"), 0o600); err != nil {
		t.Fatalf("write pack: %v", err)
	}
	pack, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if pack.From != "von" || pack.Sent != "Gesendet." {
		t.Fatalf("overrides not applied: %+v", pack)
	}
	if pack.Blocked != Default().Blocked {
		t.Fatalf("defaults not preserved: %q", pack.Blocked)
	}
}

func TestLoadEmptyPathYieldsDefaults(t *testing.T) {
	pack, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if pack.From != "from" {
		t.Fatalf("default From mismatch: %q", pack.From)
	}
}

func TestLoadMissingFileFails(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatalf("Load() expected error for missing file")
	}
}
