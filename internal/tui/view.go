package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"invoicefetch/internal/status"
)

type Theme struct {
	title       lipgloss.Style
	label       lipgloss.Style
	row         lipgloss.Style
	rowSelected lipgloss.Style
	head        lipgloss.Style
	footer      lipgloss.Style
	ok          lipgloss.Style
	bad         lipgloss.Style
	pending     lipgloss.Style
}

func defaultTheme() Theme {
	return Theme{
		title:       lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("81")),
		label:       lipgloss.NewStyle().Faint(true),
		row:         lipgloss.NewStyle(),
		rowSelected: lipgloss.NewStyle().Bold(true),
		head:        lipgloss.NewStyle().Foreground(lipgloss.Color("213")).Bold(true),
		footer:      lipgloss.NewStyle().Faint(true),
		ok:          lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		bad:         lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		pending:     lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
	}
}

func (m *Model) View() string {
	var sb strings.Builder
	sb.WriteString(m.th.title.Render("invoicefetch") + "\n")

	if !m.initialized {
		m.initMu.Lock()
		done, total := m.initDone, m.initTotal
		m.initMu.Unlock()
		sb.WriteString(fmt.Sprintf("parsing rows… %d/%d\n", done, total))
		return sb.String()
	}

	sb.WriteString(m.renderFilterLine() + "\n")
	sb.WriteString(m.renderTable())
	sb.WriteString(m.renderStatusLine() + "\n")
	sb.WriteString(m.th.footer.Render("/ filter • s status • f fuzzy • space mark • a all • x none • d download • r force • c cancel • R reset history • q quit"))
	return sb.String()
}

func (m *Model) renderFilterLine() string {
	var parts []string
	if m.filtering {
		parts = append(parts, "filter: "+m.input.View())
	} else if v := m.input.Value(); v != "" {
		parts = append(parts, fmt.Sprintf("filter: %q", v))
	} else {
		parts = append(parts, m.th.label.Render("filter: (none, press /)"))
	}
	if m.spec.Status != "" {
		parts = append(parts, "status: "+string(m.spec.Status))
	}
	if m.fuzzy {
		parts = append(parts, "fuzzy")
	}
	parts = append(parts, fmt.Sprintf("%d/%d rows", len(m.view), m.cache.Len()))
	return strings.Join(parts, m.th.label.Render("  •  "))
}

func (m *Model) renderTable() string {
	var sb strings.Builder
	sb.WriteString(m.th.head.Render(fmt.Sprintf("  %-1s %-20s %-12s %-12s %-10s %-10s", " ", "INVOICE", "START", "END", "MARKET", "STATUS")) + "\n")

	height := m.h - 7
	if height < 5 {
		height = 5
	}
	start := 0
	if m.cursor >= height {
		start = m.cursor - height + 1
	}
	end := start + height
	if end > len(m.view) {
		end = len(m.view)
	}
	for i := start; i < end; i++ {
		r := m.view[i]
		style := m.th.row
		cursor := "  "
		if i == m.cursor {
			style = m.th.rowSelected
			cursor = "▶ "
		}
		mark := " "
		if r.Selected {
			mark = "✓"
		}
		id := r.InvoiceID
		if id == "" {
			id = m.th.label.Render("(unmatched)")
		}
		line := fmt.Sprintf("%s%s %-20s %-12s %-12s %-10s %s",
			cursor, mark, id, orDash(r.StartDate), orDash(r.EndDate), r.Marketplace,
			m.renderBadge(m.store.Derive(r.InvoiceID)))
		sb.WriteString(style.Render(line) + "\n")
	}
	if len(m.view) == 0 {
		sb.WriteString(m.th.label.Render("  (no rows match the current filter)") + "\n")
	}
	return sb.String()
}

func (m *Model) renderBadge(s status.State) string {
	switch s {
	case status.Downloaded:
		return m.th.ok.Render("● downloaded")
	case status.Failed:
		return m.th.bad.Render("● failed")
	default:
		return m.th.pending.Render("○ pending")
	}
}

func (m *Model) renderStatusLine() string {
	if m.err != nil {
		return m.th.bad.Render("error: " + m.err.Error())
	}
	if m.running {
		i, n, id := m.progress.get()
		return m.th.pending.Render(fmt.Sprintf("downloading %d/%d %s", i+1, n, id))
	}
	if m.notice != "" {
		return m.th.label.Render(m.notice)
	}
	if m.lastSummary != nil {
		s := m.lastSummary
		took := humanizeDuration(s.Duration)
		return fmt.Sprintf("last run %s: %s, %s, %d skipped (%s)",
			s.State,
			m.th.ok.Render(fmt.Sprintf("%d ok", s.Succeeded)),
			m.th.bad.Render(fmt.Sprintf("%d failed", s.Failed)),
			s.Skipped, took)
	}
	return ""
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func humanizeDuration(d time.Duration) string {
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	return strings.TrimSpace(humanize.RelTime(time.Now().Add(-d), time.Now(), "", ""))
}
