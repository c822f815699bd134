package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"invoicefetch/internal/config"
)

// Manager accumulates batch counters and writes them in Prometheus
// textfile format. A nil Manager is a no-op.
type Manager struct {
	path string
	mu   sync.Mutex
	// counters
	itemsSucceeded int64
	itemsFailed    int64
	lastBatchSec   float64
}

func New(cfg *config.Config) *Manager {
	if cfg == nil || !cfg.Metrics.PrometheusTextfile.Enabled || cfg.Metrics.PrometheusTextfile.Path == "" {
		return nil
	}
	p := cfg.Metrics.PrometheusTextfile.Path
	_ = os.MkdirAll(filepath.Dir(p), 0o755)
	return &Manager{path: p}
}

func (m *Manager) AddSucceeded(n int64) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.itemsSucceeded += n
	m.mu.Unlock()
}

func (m *Manager) AddFailed(n int64) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.itemsFailed += n
	m.mu.Unlock()
}

func (m *Manager) ObserveBatchSeconds(sec float64) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.lastBatchSec = sec
	m.mu.Unlock()
}

func (m *Manager) Write() error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	f, err := os.CreateTemp(filepath.Dir(m.path), ".metrics.tmp.*")
	if err != nil {
		return err
	}
	defer os.Remove(f.Name())

	fmt.Fprintf(f, "# HELP invoicefetch_items_succeeded_total Total invoice documents downloaded.\n")
	fmt.Fprintf(f, "# TYPE invoicefetch_items_succeeded_total counter\n")
	fmt.Fprintf(f, "invoicefetch_items_succeeded_total %d\n", m.itemsSucceeded)

	fmt.Fprintf(f, "# HELP invoicefetch_items_failed_total Total failed download attempts.\n")
	fmt.Fprintf(f, "# TYPE invoicefetch_items_failed_total counter\n")
	fmt.Fprintf(f, "invoicefetch_items_failed_total %d\n", m.itemsFailed)

	fmt.Fprintf(f, "# HELP invoicefetch_last_batch_seconds Duration of the last batch run in seconds.\n")
	fmt.Fprintf(f, "# TYPE invoicefetch_last_batch_seconds gauge\n")
	fmt.Fprintf(f, "invoicefetch_last_batch_seconds %.6f\n", m.lastBatchSec)

	fmt.Fprintf(f, "# HELP invoicefetch_metrics_timestamp_seconds UNIX timestamp when this file was written.\n")
	fmt.Fprintf(f, "# TYPE invoicefetch_metrics_timestamp_seconds gauge\n")
	fmt.Fprintf(f, "invoicefetch_metrics_timestamp_seconds %d\n", time.Now().Unix())

	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(f.Name(), m.path)
}
