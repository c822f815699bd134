package tui

import (
	"context"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"invoicefetch/internal/orchestrator"
	"invoicefetch/internal/row"
	"invoicefetch/internal/status"
	"invoicefetch/internal/testutil"
)

func setupTestModel(t *testing.T, raws []row.RawRow) *Model {
	t.Helper()
	cfg := testutil.TestConfig(t)
	log := testutil.QuietLogger()
	cache := row.NewCache(raws)
	store := status.Open(nil, 3, log)
	runner := orchestrator.New(nopRetriever{}, store, 0, log, nil)
	m := New(cfg, log, cache, store, runner)
	m.w, m.h = 120, 40
	// Simulate finished chunked init.
	updated, _ := m.Update(initDoneMsg{})
	return updated.(*Model)
}

type nopRetriever struct{}

func (nopRetriever) Retrieve(_ context.Context, rec *row.Record) (string, error) {
	return rec.FileName(), nil
}

func testRows() []row.RawRow {
	return []row.RawRow{
		{Cells: []string{"GB-AEU-2025-0001", "Amazon.de", "Tue Jan 7, 2025"}},
		{Cells: []string{"GB-AEU-2025-0002", "Amazon.pl", "Mon May 5, 2025"}},
	}
}

func key(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestFilterDebounceIgnoresStaleSeq(t *testing.T) {
	m := setupTestModel(t, testRows())
	m.filtering = true
	m.input.Focus()
	m.input.SetValue("de")
	m.seq = 5

	// A stale timer firing must not apply the filter.
	updated, _ := m.Update(debounceMsg{seq: 3})
	m = updated.(*Model)
	if m.spec.Marketplace != "" {
		t.Fatalf("stale debounce applied filter: %q", m.spec.Marketplace)
	}

	updated, _ = m.Update(debounceMsg{seq: 5})
	m = updated.(*Model)
	if m.spec.Marketplace != "de" {
		t.Fatalf("current debounce did not apply filter: %q", m.spec.Marketplace)
	}
	if len(m.view) != 1 {
		t.Fatalf("view: %d rows", len(m.view))
	}
}

func TestSelectionToggle(t *testing.T) {
	m := setupTestModel(t, testRows())
	if len(m.view) != 2 {
		t.Fatalf("initial view: %d", len(m.view))
	}
	updated, _ := m.Update(tea.KeyMsg{Type: tea.KeySpace})
	m = updated.(*Model)
	if !m.view[0].Selected {
		t.Fatal("space did not mark row")
	}
	updated, _ = m.Update(key("x"))
	m = updated.(*Model)
	if m.view[0].Selected {
		t.Fatal("x did not clear selection")
	}
	updated, _ = m.Update(key("a"))
	m = updated.(*Model)
	if !m.view[0].Selected || !m.view[1].Selected {
		t.Fatal("a did not select all")
	}
}

func TestStatusFilterCycles(t *testing.T) {
	m := setupTestModel(t, testRows())
	states := []status.State{status.Pending, status.Downloaded, status.Failed, ""}
	for _, want := range states {
		updated, _ := m.Update(key("s"))
		m = updated.(*Model)
		if m.spec.Status != want {
			t.Fatalf("status filter: got %q want %q", m.spec.Status, want)
		}
	}
}

func TestRunDoneRefreshesView(t *testing.T) {
	m := setupTestModel(t, testRows())
	m.running = true
	sum := orchestrator.Summary{Total: 2, Succeeded: 2, State: orchestrator.Completed}
	updated, _ := m.Update(runDoneMsg{sum: sum})
	m = updated.(*Model)
	if m.running {
		t.Fatal("run flag not cleared")
	}
	if m.lastSummary == nil || m.lastSummary.Succeeded != 2 {
		t.Fatalf("summary: %+v", m.lastSummary)
	}
	if m.engine.Size() == 0 {
		// applyFilter after invalidation must have repopulated the cache
		t.Fatal("expected view recomputation after run")
	}
}

func TestViewRendersWithoutPanic(t *testing.T) {
	m := setupTestModel(t, testRows())
	if out := m.View(); out == "" {
		t.Fatal("empty view")
	}
	m.Update(key("j"))
	if out := m.View(); out == "" {
		t.Fatal("empty view after navigation")
	}
}
