// Package tui is the interactive dashboard: filter, select, download.
package tui

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/lithammer/fuzzysearch/fuzzy"

	"invoicefetch/internal/config"
	"invoicefetch/internal/filter"
	"invoicefetch/internal/logging"
	"invoicefetch/internal/orchestrator"
	"invoicefetch/internal/row"
	"invoicefetch/internal/status"
)

type tickMsg time.Time

// debounceMsg fires after the filter quiet period; stale sequence numbers
// are ignored so only the last keystroke's timer applies the filter.
type debounceMsg struct{ seq int }

type initDoneMsg struct{ err error }

type runDoneMsg struct {
	sum orchestrator.Summary
	err error
}

// runProgress is shared with the download goroutine; the tick repaints it.
type runProgress struct {
	mu    sync.Mutex
	index int
	total int
	id    string
}

func (p *runProgress) set(i, n int, id string) {
	p.mu.Lock()
	p.index, p.total, p.id = i, n, id
	p.mu.Unlock()
}

func (p *runProgress) get() (int, int, string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.index, p.total, p.id
}

type Model struct {
	cfg    *config.Config
	log    *logging.Logger
	cache  *row.Cache
	engine *filter.Engine
	store  *status.Store
	runner *orchestrator.Runner
	th     Theme

	w, h int

	// filtered view
	view   []*row.Record
	spec   filter.Spec
	cursor int

	// filter input
	input     textinput.Model
	filtering bool
	fuzzy     bool
	seq       int
	debounce  time.Duration

	// init
	initialized bool
	initMu      sync.Mutex
	initDone    int
	initTotal   int

	// download run
	running     bool
	progress    runProgress
	lastSummary *orchestrator.Summary
	notice      string

	err error
}

func New(cfg *config.Config, log *logging.Logger, cache *row.Cache, store *status.Store, runner *orchestrator.Runner) *Model {
	in := textinput.New()
	in.Placeholder = "marketplace or any cell text"
	in.CharLimit = 64
	in.Width = 32
	return &Model{
		cfg:      cfg,
		log:      log,
		cache:    cache,
		engine:   filter.NewEngine(),
		store:    store,
		runner:   runner,
		th:       defaultTheme(),
		input:    in,
		fuzzy:    cfg.UI.Fuzzy,
		debounce: time.Duration(cfg.DebounceOrDefaultMS()) * time.Millisecond,
	}
}

func (m *Model) refreshHz() int {
	hz := m.cfg.UI.RefreshHz
	if hz <= 0 {
		hz = 4
	}
	if hz > 10 {
		hz = 10
	}
	return hz
}

func (m *Model) tick() tea.Cmd {
	return tea.Tick(time.Second/time.Duration(m.refreshHz()), func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.initCmd(), m.tick())
}

// initCmd parses the table in chunks off the update loop; the tick renders
// the running count.
func (m *Model) initCmd() tea.Cmd {
	return func() tea.Msg {
		err := m.cache.Init(context.Background(), m.cfg.ChunkSizeOrDefault(), func(done, total int) {
			m.initMu.Lock()
			m.initDone, m.initTotal = done, total
			m.initMu.Unlock()
		})
		return initDoneMsg{err: err}
	}
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.w, m.h = msg.Width, msg.Height
		return m, nil
	case initDoneMsg:
		m.initialized = true
		m.err = msg.err
		m.applyFilter()
		return m, nil
	case tickMsg:
		return m, m.tick()
	case debounceMsg:
		if msg.seq == m.seq {
			m.spec.Marketplace = m.input.Value()
			m.applyFilter()
		}
		return m, nil
	case runDoneMsg:
		m.running = false
		if msg.err != nil {
			m.err = msg.err
		} else {
			s := msg.sum
			m.lastSummary = &s
		}
		// Derived statuses changed; memoized results are stale.
		m.engine.Invalidate()
		m.applyFilter()
		return m, nil
	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	// The cache is still being filled by initCmd's goroutine; only allow
	// quitting until it is done.
	if !m.initialized {
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}
		return m, nil
	}
	if m.filtering {
		switch msg.String() {
		case "enter":
			m.filtering = false
			m.input.Blur()
			m.seq++
			m.spec.Marketplace = m.input.Value()
			m.applyFilter()
			return m, nil
		case "esc":
			m.filtering = false
			m.input.Blur()
			m.input.SetValue("")
			m.seq++
			m.spec.Marketplace = ""
			m.applyFilter()
			return m, nil
		default:
			var cmd tea.Cmd
			m.input, cmd = m.input.Update(msg)
			m.seq++
			seq := m.seq
			deb := tea.Tick(m.debounce, func(time.Time) tea.Msg { return debounceMsg{seq: seq} })
			return m, tea.Batch(cmd, deb)
		}
	}

	switch msg.String() {
	case "q", "ctrl+c":
		if m.running {
			m.runner.Cancel()
		}
		return m, tea.Quit
	case "/":
		m.filtering = true
		m.input.Focus()
		return m, textinput.Blink
	case "j", "down":
		if m.cursor < len(m.view)-1 {
			m.cursor++
		}
	case "k", "up":
		if m.cursor > 0 {
			m.cursor--
		}
	case "g":
		m.cursor = 0
	case "G":
		if len(m.view) > 0 {
			m.cursor = len(m.view) - 1
		}
	case " ":
		if m.cursor >= 0 && m.cursor < len(m.view) {
			m.view[m.cursor].Selected = !m.view[m.cursor].Selected
		}
	case "a":
		for _, r := range m.view {
			r.Selected = true
		}
	case "x":
		for _, r := range m.view {
			r.Selected = false
		}
	case "s":
		m.spec.Status = nextStatusFilter(m.spec.Status)
		m.applyFilter()
	case "f":
		m.fuzzy = !m.fuzzy
		m.applyFilter()
	case "d":
		return m, m.startRun(false)
	case "r":
		// manual override: re-attempt selected items regardless of state
		return m, m.startRun(true)
	case "c":
		if m.running {
			m.runner.Cancel()
			m.notice = "cancelling after current item"
		}
	case "R":
		if err := m.store.Clear(); err != nil {
			m.err = err
		} else {
			m.notice = "download history cleared"
		}
		m.engine.Invalidate()
		m.applyFilter()
	}
	return m, nil
}

// nextStatusFilter cycles any -> pending -> downloaded -> failed -> any.
func nextStatusFilter(s status.State) status.State {
	switch s {
	case "":
		return status.Pending
	case status.Pending:
		return status.Downloaded
	case status.Downloaded:
		return status.Failed
	default:
		return ""
	}
}

// applyFilter recomputes the visible view. Substring mode goes through the
// memoizing engine; fuzzy mode matches per keystroke and is not memoized.
func (m *Model) applyFilter() {
	all := m.cache.All()
	if m.fuzzy && m.spec.Marketplace != "" {
		rest := m.spec
		rest.Marketplace = ""
		out := make([]*row.Record, 0, len(all))
		for _, r := range all {
			if fuzzy.MatchFold(m.spec.Marketplace, r.SearchText) && filter.Matches(rest, r, m.store.Derive) {
				out = append(out, r)
			}
		}
		m.view = out
	} else {
		m.view = m.engine.Apply(m.spec, all, m.store.Derive)
	}
	if m.cursor >= len(m.view) {
		m.cursor = 0
	}
}

// selection returns the records queued for a run: the explicitly marked
// ones, or everything actionable in the current view when nothing is
// marked.
func (m *Model) selection(force bool) []*row.Record {
	var out []*row.Record
	for _, r := range m.view {
		if r.Selected {
			out = append(out, r)
		}
	}
	if len(out) > 0 {
		return out
	}
	for _, r := range m.view {
		if orchestrator.Selectable(m.store, r, force) {
			out = append(out, r)
		}
	}
	return out
}

func (m *Model) startRun(force bool) tea.Cmd {
	if m.running {
		m.notice = "a run is already in progress"
		return nil
	}
	sel := m.selection(force)
	if len(sel) == 0 {
		m.notice = "nothing to download"
		return nil
	}
	m.running = true
	m.notice = ""
	m.progress.set(0, len(sel), "")
	return func() tea.Msg {
		sum, err := m.runner.Run(context.Background(), sel, m.progress.set)
		return runDoneMsg{sum: sum, err: err}
	}
}
