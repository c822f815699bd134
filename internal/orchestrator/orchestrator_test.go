package orchestrator

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"invoicefetch/internal/logging"
	"invoicefetch/internal/row"
	"invoicefetch/internal/status"
)

func quietLog() *logging.Logger { return logging.NewWriter("error", false, io.Discard) }

func testStore() *status.Store { return status.Open(nil, 3, quietLog()) }

func records(ids ...string) []*row.Record {
	out := make([]*row.Record, len(ids))
	for i, id := range ids {
		out[i] = &row.Record{Index: i, InvoiceID: id}
	}
	return out
}

// fakeRetriever scripts per-id outcomes and can block until released.
type fakeRetriever struct {
	mu    sync.Mutex
	fail  map[string]error
	block chan struct{} // when non-nil, Retrieve waits for it per call
	calls []string
}

func (f *fakeRetriever) Retrieve(ctx context.Context, rec *row.Record) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, rec.InvoiceID)
	block := f.block
	err := f.fail[rec.InvoiceID]
	f.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if err != nil {
		return "", err
	}
	return rec.InvoiceID + ".pdf", nil
}

func (f *fakeRetriever) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func TestRunAllSucceed(t *testing.T) {
	st := testStore()
	r := New(&fakeRetriever{}, st, 0, quietLog(), nil)
	sum, err := r.Run(context.Background(), records("A-AA-2025-0001", "A-AA-2025-0002"), nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if sum.State != Completed || sum.Succeeded != 2 || sum.Failed != 0 {
		t.Fatalf("summary: %+v", sum)
	}
	if st.Derive("A-AA-2025-0001") != status.Downloaded {
		t.Fatal("status not recorded")
	}
}

func TestRunFailureDoesNotStopBatch(t *testing.T) {
	st := testStore()
	fr := &fakeRetriever{fail: map[string]error{"A-AA-2025-0002": errors.New("network error: refused")}}
	r := New(fr, st, 0, quietLog(), nil)
	sum, err := r.Run(context.Background(), records("A-AA-2025-0001", "A-AA-2025-0002", "A-AA-2025-0003"), nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if sum.Succeeded != 2 || sum.Failed != 1 || sum.State != Completed {
		t.Fatalf("summary: %+v", sum)
	}
	e, ok := st.Get("A-AA-2025-0002")
	if !ok || e.Attempts != 1 || e.State != status.Failed {
		t.Fatalf("failed entry: %+v", e)
	}
}

func TestRunSequentialOrder(t *testing.T) {
	fr := &fakeRetriever{}
	r := New(fr, testStore(), 0, quietLog(), nil)
	ids := []string{"A-AA-2025-0003", "A-AA-2025-0001", "A-AA-2025-0002"}
	if _, err := r.Run(context.Background(), records(ids...), nil); err != nil {
		t.Fatalf("run: %v", err)
	}
	for i, id := range ids {
		if fr.calls[i] != id {
			t.Fatalf("call order: %v", fr.calls)
		}
	}
}

func TestRunReentrantStartRejected(t *testing.T) {
	block := make(chan struct{})
	fr := &fakeRetriever{block: block}
	r := New(fr, testStore(), 0, quietLog(), nil)

	done := make(chan Summary, 1)
	go func() {
		sum, _ := r.Run(context.Background(), records("A-AA-2025-0001"), nil)
		done <- sum
	}()
	// Wait for the run to reach the retriever.
	for fr.callCount() == 0 {
		time.Sleep(time.Millisecond)
	}
	if _, err := r.Run(context.Background(), records("A-AA-2025-0002"), nil); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}
	close(block)
	sum := <-done
	if sum.State != Completed {
		t.Fatalf("first run summary: %+v", sum)
	}
}

func TestCancelSkipsRemainingItems(t *testing.T) {
	st := testStore()
	block := make(chan struct{}, 3)
	fr := &fakeRetriever{block: block}
	r := New(fr, st, 0, quietLog(), nil)

	done := make(chan Summary, 1)
	go func() {
		sum, _ := r.Run(context.Background(), records("A-AA-2025-0001", "A-AA-2025-0002", "A-AA-2025-0003"), nil)
		done <- sum
	}()
	block <- struct{}{} // let item 1 finish
	for fr.callCount() == 0 {
		time.Sleep(time.Millisecond)
	}
	// Item 1 is done (or about to be); cancel before item 2 can be released.
	for st.Derive("A-AA-2025-0001") != status.Downloaded {
		time.Sleep(time.Millisecond)
	}
	r.Cancel()
	sum := <-done
	if sum.State != Cancelled {
		t.Fatalf("state: %s", sum.State)
	}
	if sum.Succeeded != 1 {
		t.Fatalf("summary: %+v", sum)
	}
	// Skipped items keep their prior (pending) status.
	if st.Derive("A-AA-2025-0003") != status.Pending {
		t.Fatalf("skipped item status: %s", st.Derive("A-AA-2025-0003"))
	}
	if _, ok := st.Get("A-AA-2025-0003"); ok {
		t.Fatal("skipped item must have no history entry")
	}
}

func TestProgressSink(t *testing.T) {
	r := New(&fakeRetriever{}, testStore(), 0, quietLog(), nil)
	type call struct {
		i, n int
		id   string
	}
	var calls []call
	_, err := r.Run(context.Background(), records("A-AA-2025-0001", "A-AA-2025-0002"), func(i, n int, id string) {
		calls = append(calls, call{i, n, id})
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(calls) != 2 || calls[0] != (call{0, 2, "A-AA-2025-0001"}) || calls[1] != (call{1, 2, "A-AA-2025-0002"}) {
		t.Fatalf("calls: %+v", calls)
	}
}

func TestDelayBetweenItemsNotAfterLast(t *testing.T) {
	r := New(&fakeRetriever{}, testStore(), 80*time.Millisecond, quietLog(), nil)
	start := time.Now()
	sum, err := r.Run(context.Background(), records("A-AA-2025-0001", "A-AA-2025-0002"), nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	elapsed := time.Since(start)
	if elapsed < 80*time.Millisecond {
		t.Fatalf("expected one inter-item delay, elapsed %v", elapsed)
	}
	if elapsed > 200*time.Millisecond {
		t.Fatalf("delay should not apply after the last item, elapsed %v", elapsed)
	}
	if sum.State != Completed {
		t.Fatalf("state: %s", sum.State)
	}
}

func TestRunnerReusableAfterCompletion(t *testing.T) {
	r := New(&fakeRetriever{}, testStore(), 0, quietLog(), nil)
	if _, err := r.Run(context.Background(), records("A-AA-2025-0001"), nil); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if _, err := r.Run(context.Background(), records("A-AA-2025-0002"), nil); err != nil {
		t.Fatalf("second run: %v", err)
	}
}
