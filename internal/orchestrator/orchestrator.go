// Package orchestrator drives one sequential download batch. Items are
// processed strictly one at a time with a fixed pause between them; the
// pacing is deliberate, the upstream endpoint rate-limits bursts.
package orchestrator

import (
	"context"
	"errors"
	"sync"
	"time"

	"invoicefetch/internal/logging"
	"invoicefetch/internal/metrics"
	"invoicefetch/internal/row"
	"invoicefetch/internal/status"
)

// ErrAlreadyRunning is returned when Run is called while a batch is active.
var ErrAlreadyRunning = errors.New("a download run is already in progress")

// RunState is the batch lifecycle: Idle -> Running -> Completed|Cancelled.
type RunState int

const (
	Idle RunState = iota
	Running
	Completed
	Cancelled
)

func (s RunState) String() string {
	switch s {
	case Running:
		return "running"
	case Completed:
		return "completed"
	case Cancelled:
		return "cancelled"
	default:
		return "idle"
	}
}

// Retriever is the external retrieval step for one record.
type Retriever interface {
	Retrieve(ctx context.Context, rec *row.Record) (string, error)
}

// ProgressFunc receives position updates before each item starts.
type ProgressFunc func(index, total int, invoiceID string)

// Summary reports the outcome of one run.
type Summary struct {
	Total     int
	Succeeded int
	Failed    int
	Skipped   int // items never started due to cancellation
	State     RunState
	Duration  time.Duration
}

type Runner struct {
	retr    Retriever
	store   *status.Store
	delay   time.Duration
	log     *logging.Logger
	metrics *metrics.Manager // may be nil

	mu        sync.Mutex
	state     RunState
	cancelRun context.CancelFunc
}

func New(retr Retriever, store *status.Store, delay time.Duration, log *logging.Logger, m *metrics.Manager) *Runner {
	return &Runner{retr: retr, store: store, delay: delay, log: log, metrics: m}
}

func (r *Runner) State() RunState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Cancel requests a cooperative stop. The in-flight item is aborted through
// its context; items not yet started are skipped and keep their prior
// status. Takes effect at the next loop boundary.
func (r *Runner) Cancel() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == Running && r.cancelRun != nil {
		r.cancelRun()
	}
}

// Run processes the selection in order, one item at a time. Every started
// item receives exactly one terminal status update (success or failure) per
// run. Only one run may be active; reentrant starts fail with
// ErrAlreadyRunning. Cancellation is a normal terminal transition, not an
// error.
func (r *Runner) Run(ctx context.Context, selection []*row.Record, progress ProgressFunc) (Summary, error) {
	r.mu.Lock()
	if r.state == Running {
		r.mu.Unlock()
		return Summary{}, ErrAlreadyRunning
	}
	runCtx, cancel := context.WithCancel(ctx)
	r.state = Running
	r.cancelRun = cancel
	r.mu.Unlock()
	defer cancel()

	start := time.Now()
	sum := Summary{Total: len(selection)}
	cancelled := false

	for i, rec := range selection {
		if runCtx.Err() != nil {
			sum.Skipped = len(selection) - i
			cancelled = true
			break
		}
		if progress != nil {
			progress(i, len(selection), rec.InvoiceID)
		}
		dest, err := r.retr.Retrieve(runCtx, rec)
		if err != nil {
			r.log.Warnf("item %d/%d %s failed: %v", i+1, len(selection), rec.InvoiceID, err)
			r.store.RecordFailure(rec.InvoiceID, err.Error())
			sum.Failed++
		} else {
			r.log.Infof("item %d/%d %s -> %s", i+1, len(selection), rec.InvoiceID, dest)
			r.store.RecordSuccess(rec.InvoiceID)
			sum.Succeeded++
		}
		if i < len(selection)-1 {
			r.pause(runCtx)
		}
	}

	sum.Duration = time.Since(start)
	final := Completed
	if cancelled {
		final = Cancelled
	}
	sum.State = final

	r.mu.Lock()
	r.state = final
	r.cancelRun = nil
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.AddSucceeded(int64(sum.Succeeded))
		r.metrics.AddFailed(int64(sum.Failed))
		r.metrics.ObserveBatchSeconds(sum.Duration.Seconds())
		if err := r.metrics.Write(); err != nil {
			r.log.Warnf("metrics write failed: %v", err)
		}
	}
	r.log.Infof("run %s: %d ok, %d failed, %d skipped", final, sum.Succeeded, sum.Failed, sum.Skipped)
	return sum, nil
}

// pause waits the fixed inter-item delay, returning early on cancellation.
func (r *Runner) pause(ctx context.Context) {
	if r.delay <= 0 {
		return
	}
	t := time.NewTimer(r.delay)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

// Selectable reports whether rec belongs in a default batch selection:
// derived status pending or failed-but-forced.
func Selectable(st *status.Store, rec *row.Record, force bool) bool {
	switch st.Derive(rec.InvoiceID) {
	case status.Downloaded:
		return force
	case status.Failed:
		return force
	default:
		return true
	}
}
