package main

import (
	"context"
	"errors"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"invoicefetch/internal/htmltable"
	"invoicefetch/internal/metrics"
	"invoicefetch/internal/orchestrator"
	"invoicefetch/internal/retriever"
	"invoicefetch/internal/row"
	"invoicefetch/internal/tui"
)

func handleTUI(ctx context.Context, args []string) error {
	fl := newCommonFlags("tui")
	if err := fl.fs.Parse(args); err != nil {
		return err
	}
	cfg, log, err := fl.load()
	if err != nil {
		return err
	}
	if cfg.General.PagePath == "" {
		return errors.New("general.page_path is required for the tui")
	}
	// The TUI runs chunked init itself so it can show parsing progress.
	raws, err := htmltable.Load(cfg.General.PagePath)
	if err != nil {
		return err
	}
	cache := row.NewCache(raws)
	store, closeStore, err := openHistory(cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	delay := time.Duration(cfg.DelayOrDefaultMS()) * time.Millisecond
	runner := orchestrator.New(retriever.New(cfg, log), store, delay, log, metrics.New(cfg))

	m := tui.New(cfg, log, cache, store, runner)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err = p.Run()
	return err
}
