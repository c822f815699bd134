// Package testutil provides shared helpers for package tests.
package testutil

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"invoicefetch/internal/config"
	"invoicefetch/internal/logging"
	"invoicefetch/internal/status"
)

// QuietLogger returns a logger that discards everything below error and
// writes the rest nowhere visible.
func QuietLogger() *logging.Logger {
	return logging.NewWriter("error", false, io.Discard)
}

// TestConfig returns a minimal valid config rooted in temp directories.
func TestConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Version: 1,
		General: config.General{
			DataRoot:     t.TempDir(),
			DownloadRoot: t.TempDir(),
		},
	}
}

// TestSQLiteKV opens a sqlite history store in a temp directory, closed on
// test cleanup.
func TestSQLiteKV(t *testing.T) *status.SQLiteKV {
	t.Helper()
	kv, err := status.OpenSQLiteKV(t.TempDir())
	if err != nil {
		t.Fatalf("open test sqlite kv: %v", err)
	}
	t.Cleanup(func() {
		if err := kv.Close(); err != nil {
			t.Errorf("close test sqlite kv: %v", err)
		}
	})
	return kv
}

// WritePage writes an HTML fixture page and returns its path.
func WritePage(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "page.html")
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write fixture page: %v", err)
	}
	return p
}
