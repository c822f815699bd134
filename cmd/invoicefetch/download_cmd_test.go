package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"invoicefetch/internal/filter"
	"invoicefetch/internal/row"
	"invoicefetch/internal/status"
	"invoicefetch/internal/testutil"
)

func TestParseIDList(t *testing.T) {
	got := parseIDList(" GB-AEU-2025-0001, ,GB-AEU-2025-0002 ")
	if len(got) != 2 || got[0] != "GB-AEU-2025-0001" || got[1] != "GB-AEU-2025-0002" {
		t.Fatalf("parsed: %v", got)
	}
	if parseIDList("  ") != nil {
		t.Fatal("blank input should parse to nil")
	}
}

func testCache(ids ...string) *row.Cache {
	raws := make([]row.RawRow, len(ids))
	for i, id := range ids {
		raws[i] = row.RawRow{Cells: []string{id, "Amazon.de"}}
	}
	return row.NewCache(raws)
}

func TestBuildSelectionSkipsDownloaded(t *testing.T) {
	store := status.Open(nil, 3, testutil.QuietLogger())
	store.RecordSuccess("GB-AEU-2025-0001")
	cache := testCache("GB-AEU-2025-0001", "GB-AEU-2025-0002")

	sel := buildSelection(cache, store, filter.Spec{}, nil, false)
	if len(sel) != 1 || sel[0].InvoiceID != "GB-AEU-2025-0002" {
		t.Fatalf("selection: %+v", sel)
	}

	sel = buildSelection(cache, store, filter.Spec{}, nil, true)
	if len(sel) != 2 {
		t.Fatalf("forced selection: %d items", len(sel))
	}
}

func TestBuildSelectionExplicitIDsKeepRowOrder(t *testing.T) {
	store := status.Open(nil, 3, testutil.QuietLogger())
	cache := testCache("GB-AEU-2025-0001", "GB-AEU-2025-0002", "GB-AEU-2025-0003")

	sel := buildSelection(cache, store, filter.Spec{},
		[]string{"GB-AEU-2025-0003", "GB-AEU-2025-0001"}, false)
	if len(sel) != 2 || sel[0].InvoiceID != "GB-AEU-2025-0001" || sel[1].InvoiceID != "GB-AEU-2025-0003" {
		t.Fatalf("selection: %+v", sel)
	}
}

func TestDownloadDryRun(t *testing.T) {
	dir := t.TempDir()
	page := testutil.WritePage(t, `<table>
<tr><td>GB-AEU-2025-0001</td><td>Amazon.de</td>
<td><button data-document-id="D1">Download</button></td></tr>
</table>`)
	cfgPath := filepath.Join(dir, "config.yml")
	cfgBody := fmt.Sprintf(`
version: 1
general:
  data_root: %s
  download_root: %s
  page_path: %s
`, dir, dir, page)
	if err := os.WriteFile(cfgPath, []byte(cfgBody), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	err := handleDownload(context.Background(),
		[]string{"--config", cfgPath, "--dry-run", "--log-level", "error"})
	if err != nil {
		t.Fatalf("dry run: %v", err)
	}
	// Dry run must not touch history.
	if _, statErr := os.Stat(filepath.Join(dir, "history.json")); !os.IsNotExist(statErr) {
		t.Fatal("dry run wrote history")
	}
}
