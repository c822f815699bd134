package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"invoicefetch/internal/config"
	"invoicefetch/internal/filter"
	"invoicefetch/internal/htmltable"
	"invoicefetch/internal/logging"
	"invoicefetch/internal/row"
	"invoicefetch/internal/status"
)

// commonFlags bundles the per-command config/logging flags the way every
// subcommand expects them.
type commonFlags struct {
	fs       *flag.FlagSet
	cfgPath  *string
	logLevel *string
	jsonOut  *bool
}

func newCommonFlags(name string) *commonFlags {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	return &commonFlags{
		fs:       fs,
		cfgPath:  fs.String("config", "", "Path to YAML config file"),
		logLevel: fs.String("log-level", "info", "log level"),
		jsonOut:  fs.Bool("json", false, "json logs"),
	}
}

func (c *commonFlags) load() (*config.Config, *logging.Logger, error) {
	cfg, err := loadConfig(*c.cfgPath)
	if err != nil {
		return nil, nil, err
	}
	level := *c.logLevel
	if level == "" {
		level = cfg.Logging.Level
	}
	return cfg, logging.New(level, *c.jsonOut), nil
}

// filterFlags are the record filter criteria shared by list and download.
type filterFlags struct {
	marketplace *string
	from        *string
	to          *string
	statusStr   *string
}

func newFilterFlags(fs *flag.FlagSet) *filterFlags {
	return &filterFlags{
		marketplace: fs.String("marketplace", "", "substring match against row text (e.g. 'de')"),
		from:        fs.String("from", "", "ISO date lower bound (matched against end date)"),
		to:          fs.String("to", "", "ISO date upper bound (matched against start date)"),
		statusStr:   fs.String("status", "", "derived status filter: pending|downloaded|failed"),
	}
}

func (f *filterFlags) spec() (filter.Spec, error) {
	spec := filter.Spec{
		Marketplace: *f.marketplace,
		DateFrom:    *f.from,
		DateTo:      *f.to,
	}
	for _, d := range []string{spec.DateFrom, spec.DateTo} {
		if d == "" {
			continue
		}
		if _, err := time.Parse("2006-01-02", d); err != nil {
			return spec, fmt.Errorf("invalid date %q (want YYYY-MM-DD)", d)
		}
	}
	switch status.State(*f.statusStr) {
	case "", status.Pending, status.Downloaded, status.Failed:
		spec.Status = status.State(*f.statusStr)
	default:
		return spec, fmt.Errorf("invalid status %q", *f.statusStr)
	}
	return spec, nil
}

// loadRows parses the saved page and fills the row cache in chunks.
func loadRows(ctx context.Context, cfg *config.Config, log *logging.Logger) (*row.Cache, error) {
	if cfg.General.PagePath == "" {
		return nil, fmt.Errorf("general.page_path is required for this command")
	}
	raws, err := htmltable.Load(cfg.General.PagePath)
	if err != nil {
		return nil, err
	}
	cache := row.NewCache(raws)
	err = cache.Init(ctx, cfg.ChunkSizeOrDefault(), func(done, total int) {
		log.Debugf("parsed %d/%d rows", done, total)
	})
	if err != nil {
		return nil, err
	}
	log.Infof("loaded %d rows from %s", cache.Len(), cfg.General.PagePath)
	return cache, nil
}

type listedRecord struct {
	InvoiceID   string `json:"invoice_id"`
	StartDate   string `json:"start_date,omitempty"`
	EndDate     string `json:"end_date,omitempty"`
	Marketplace string `json:"marketplace"`
	Status      string `json:"status"`
}

func handleList(ctx context.Context, args []string) error {
	fl := newCommonFlags("list")
	ff := newFilterFlags(fl.fs)
	asJSON := fl.fs.Bool("output-json", false, "print records as JSON")
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

	engine := filter.NewEngine()
	view := engine.Apply(spec, cache.All(), store.Derive)

	if *asJSON {
		out := make([]listedRecord, 0, len(view))
		for _, r := range view {
			out = append(out, listedRecord{
				InvoiceID:   r.InvoiceID,
				StartDate:   r.StartDate,
				EndDate:     r.EndDate,
				Marketplace: r.Marketplace,
				Status:      string(store.Derive(r.InvoiceID)),
			})
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	fmt.Printf("%-22s %-12s %-12s %-10s %s\n", "INVOICE", "START", "END", "MARKET", "STATUS")
	for _, r := range view {
		id := r.InvoiceID
		if id == "" {
			id = "(unmatched)"
		}
		fmt.Printf("%-22s %-12s %-12s %-10s %s\n",
			id, dash(r.StartDate), dash(r.EndDate), r.Marketplace, store.Derive(r.InvoiceID))
	}
	fmt.Printf("%d of %d rows\n", len(view), cache.Len())
	return nil
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func timeFromUnix(ts int64) time.Time { return time.Unix(ts, 0) }
