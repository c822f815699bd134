package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"invoicefetch/internal/filter"
	"invoicefetch/internal/metrics"
	"invoicefetch/internal/orchestrator"
	"invoicefetch/internal/retriever"
	"invoicefetch/internal/row"
	"invoicefetch/internal/status"
)

func handleDownload(ctx context.Context, args []string) error {
	fl := newCommonFlags("download")
	ff := newFilterFlags(fl.fs)
	ids := fl.fs.String("ids", "", "comma-separated invoice ids to download (overrides filters)")
	all := fl.fs.Bool("all", false, "include rows already downloaded or failed terminally")
	force := fl.fs.Bool("force", false, "alias for --all: manual re-attempt override")
	dryRun := fl.fs.Bool("dry-run", false, "print the selection without downloading")
	delayMS := fl.fs.Int("delay-ms", 0, "override the configured inter-item delay")
	if err := fl.fs.Parse(args); err != nil {
		return err
	}
	cfg, log, err := fl.load()
	if err != nil {
		return err
	}
	spec, err := ff.spec()
	if err != nil {
		return err
	}
	cache, err := loadRows(ctx, cfg, log)
	if err != nil {
		return err
	}
	store, closeStore, err := openHistory(cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	override := *all || *force
	selection := buildSelection(cache, store, spec, parseIDList(*ids), override)
	if len(selection) == 0 {
		fmt.Println("nothing to download")
		return nil
	}

	if *dryRun || cfg.General.DryRun {
		fmt.Printf("would download %d document(s):\n", len(selection))
		for _, r := range selection {
			fmt.Printf("  %-22s %-10s -> %s\n", r.InvoiceID, r.Marketplace, r.FileName())
		}
		return nil
	}

	delay := time.Duration(cfg.DelayOrDefaultMS()) * time.Millisecond
	if *delayMS > 0 {
		delay = time.Duration(*delayMS) * time.Millisecond
	}
	runner := orchestrator.New(retriever.New(cfg, log), store, delay, log, metrics.New(cfg))

	sum, err := runner.Run(ctx, selection, func(i, n int, id string) {
		fmt.Printf("[%d/%d] %s\n", i+1, n, id)
	})
	if err != nil {
		return err
	}
	fmt.Printf("run %s: %d ok, %d failed, %d skipped in %s\n",
		sum.State, sum.Succeeded, sum.Failed, sum.Skipped, sum.Duration.Round(time.Millisecond))
	if sum.Failed > 0 {
		return fmt.Errorf("%d item(s) failed; see `invoicefetch status`", sum.Failed)
	}
	return nil
}

// parseIDList splits a comma-separated id list, dropping empties.
func parseIDList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// buildSelection resolves what to download, in original row order: an
// explicit id list when given, otherwise every filtered row that is still
// actionable (pending, or anything with the manual override).
func buildSelection(cache *row.Cache, store *status.Store, spec filter.Spec, ids []string, force bool) []*row.Record {
	engine := filter.NewEngine()
	view := engine.Apply(spec, cache.All(), store.Derive)

	if len(ids) > 0 {
		want := make(map[string]bool, len(ids))
		for _, id := range ids {
			want[id] = true
		}
		var out []*row.Record
		for _, r := range view {
			if want[r.InvoiceID] {
				out = append(out, r)
			}
		}
		return out
	}

	var out []*row.Record
	for _, r := range view {
		if orchestrator.Selectable(store, r, force) {
			out = append(out, r)
		}
	}
	return out
}
