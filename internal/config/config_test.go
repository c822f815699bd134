package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	p := filepath.Join(dir, "config.yml")
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return p
}

func TestLoadMinimal(t *testing.T) {
	p := writeConfig(t, `
version: 1
general:
  data_root: /tmp/invoicefetch
  download_root: /tmp/invoices
`)
	c, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.RetryLimitOrDefault() != 3 {
		t.Fatalf("expected default retry limit 3, got %d", c.RetryLimitOrDefault())
	}
	if c.DelayOrDefaultMS() != 2000 {
		t.Fatalf("expected default delay 2000, got %d", c.DelayOrDefaultMS())
	}
	if c.ChunkSizeOrDefault() != 50 {
		t.Fatalf("expected default chunk size 50, got %d", c.ChunkSizeOrDefault())
	}
}

func TestLoadRejectsBadVersion(t *testing.T) {
	p := writeConfig(t, `
version: 2
general:
  data_root: /tmp/a
  download_root: /tmp/b
`)
	if _, err := Load(p); err == nil {
		t.Fatal("expected error for unsupported version")
	}
}

func TestValidateRejectsBadBackend(t *testing.T) {
	p := writeConfig(t, `
version: 1
general:
  data_root: /tmp/a
  download_root: /tmp/b
history:
  backend: leveldb
`)
	if _, err := Load(p); err == nil {
		t.Fatal("expected error for invalid history backend")
	}
}

func TestEnvExpansion(t *testing.T) {
	t.Setenv("INVOICEFETCH_TEST_ROOT", "/tmp/from-env")
	p := writeConfig(t, `
version: 1
general:
  data_root: ${INVOICEFETCH_TEST_ROOT}
  download_root: /tmp/b
`)
	c, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.General.DataRoot != "/tmp/from-env" {
		t.Fatalf("env not expanded: %s", c.General.DataRoot)
	}
}
