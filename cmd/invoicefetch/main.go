package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"

	"invoicefetch/internal/config"
	"invoicefetch/internal/logging"
	"invoicefetch/internal/status"
)

var version = "dev"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		usage()
		return errors.New("no command provided")
	}
	cmd := args[0]
	switch cmd {
	case "config":
		return handleConfig(ctx, args[1:])
	case "list":
		return handleList(ctx, args[1:])
	case "status":
		return handleStatus(ctx, args[1:])
	case "download":
		return handleDownload(ctx, args[1:])
	case "tui":
		return handleTUI(ctx, args[1:])
	case "clear-history":
		return handleClearHistory(ctx, args[1:])
	case "version":
		fmt.Println(version)
		return nil
	case "help", "-h", "--help":
		usage()
		return nil
	default:
		usage()
		return fmt.Errorf("unknown command: %s", cmd)
	}
}

func usage() {
	fmt.Println(strings.TrimSpace(`invoicefetch - bulk tax-invoice downloader for a saved vendor invoice page

Usage:
  invoicefetch <command> [flags]

Commands:
  config validate   Validate a YAML config file
  config print      Print the loaded config as JSON-ish YAML
  list              Parse the saved page and list invoice rows (with filters)
  status            Show download history summary
  download          Download selected invoice documents sequentially
  tui               Open the interactive dashboard
  clear-history     Reset all download history
  version           Print version
  help              Show this help

Flags:
  --config PATH     Path to YAML config file (or INVOICEFETCH_CONFIG env var;
                    default: ~/.config/invoicefetch/config.yml)
  --log-level L     Log level: debug|info|warn|error (per command)
  --json            JSON log output (per command)
`))
}

func defaultConfigPath() string {
	if env := os.Getenv("INVOICEFETCH_CONFIG"); env != "" {
		return env
	}
	if h, err := os.UserHomeDir(); err == nil && h != "" {
		return filepath.Join(h, ".config", "invoicefetch", "config.yml")
	}
	return ""
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		path = defaultConfigPath()
	}
	if path == "" {
		return nil, errors.New("no config path; pass --config or set INVOICEFETCH_CONFIG")
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("config file not found: %s", path)
	}
	return config.Load(path)
}

// openHistory builds the status store on the configured backend. The
// returned closer is a no-op for the JSON backend.
func openHistory(cfg *config.Config, log *logging.Logger) (*status.Store, func(), error) {
	switch strings.ToLower(cfg.History.Backend) {
	case "sqlite":
		kv, err := status.OpenSQLiteKV(cfg.General.DataRoot)
		if err != nil {
			return nil, nil, err
		}
		return status.Open(kv, cfg.RetryLimitOrDefault(), log), func() { _ = kv.Close() }, nil
	default:
		kv := status.NewJSONFileKV(cfg.General.DataRoot)
		return status.Open(kv, cfg.RetryLimitOrDefault(), log), func() {}, nil
	}
}

func handleConfig(_ context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("config requires a subcommand: validate|print")
	}
	sub := args[0]
	cfgPath := ""
	if len(args) > 2 && args[1] == "--config" {
		cfgPath = args[2]
	}
	c, err := loadConfig(cfgPath)
	if err != nil {
		return err
	}
	switch sub {
	case "validate":
		fmt.Println("config OK")
		return nil
	case "print":
		b, err := yaml.Marshal(c)
		if err != nil {
			return err
		}
		fmt.Print(string(b))
		return nil
	default:
		return fmt.Errorf("unknown config subcommand: %s", sub)
	}
}

func handleStatus(_ context.Context, args []string) error {
	fl := newCommonFlags("status")
	if err := fl.fs.Parse(args); err != nil {
		return err
	}
	cfg, log, err := fl.load()
	if err != nil {
		return err
	}
	store, closeStore, err := openHistory(cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	entries := store.Entries()
	var downloaded, failed, pending int
	for _, e := range entries {
		switch store.Derive(e.InvoiceID) {
		case status.Downloaded:
			downloaded++
		case status.Failed:
			failed++
		default:
			pending++
		}
	}
	fmt.Printf("history: %d entries (%d downloaded, %d failed, %d pending retry)\n",
		len(entries), downloaded, failed, pending)
	for _, e := range entries {
		line := fmt.Sprintf("  %-20s %-10s attempts=%d %s",
			e.InvoiceID, e.State, e.Attempts, humanize.Time(timeFromUnix(e.Timestamp)))
		if e.LastError != "" {
			line += "  (" + e.LastError + ")"
		}
		fmt.Println(line)
	}
	return nil
}

func handleClearHistory(_ context.Context, args []string) error {
	fl := newCommonFlags("clear-history")
	if err := fl.fs.Parse(args); err != nil {
		return err
	}
	cfg, log, err := fl.load()
	if err != nil {
		return err
	}
	store, closeStore, err := openHistory(cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()
	if err := store.Clear(); err != nil {
		return err
	}
	fmt.Println("download history cleared")
	return nil
}
