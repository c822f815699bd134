package status

import (
	"errors"
	"io"
	"testing"

	"invoicefetch/internal/logging"
)

func quietLog() *logging.Logger {
	return logging.NewWriter("error", false, io.Discard)
}

func TestDeriveDefaultsPending(t *testing.T) {
	s := Open(nil, 3, quietLog())
	if got := s.Derive("GB-AEU-2025-0001"); got != Pending {
		t.Fatalf("derive: %s", got)
	}
	if got := s.Derive(""); got != Pending {
		t.Fatalf("empty id derive: %s", got)
	}
}

func TestSuccessIsSticky(t *testing.T) {
	s := Open(nil, 2, quietLog())
	id := "GB-AEU-2025-0001"
	s.RecordSuccess(id)
	s.RecordFailure(id, "network error")
	s.RecordFailure(id, "network error")
	s.RecordFailure(id, "network error")
	if got := s.Derive(id); got != Downloaded {
		t.Fatalf("expected downloaded after sticky success, got %s", got)
	}
	e, ok := s.Get(id)
	if !ok || e.Attempts != 4 {
		t.Fatalf("attempts: %+v", e)
	}
}

func TestRetryCeiling(t *testing.T) {
	s := Open(nil, 3, quietLog())
	id := "GB-AEU-2025-0002"
	s.RecordFailure(id, "timeout")
	s.RecordFailure(id, "timeout")
	if got := s.Derive(id); got != Pending {
		t.Fatalf("below ceiling should stay pending, got %s", got)
	}
	s.RecordFailure(id, "timeout")
	if got := s.Derive(id); got != Failed {
		t.Fatalf("at ceiling should be failed, got %s", got)
	}
	if s.Retryable(id) {
		t.Fatal("failed id should not be retryable")
	}
}

func TestEmptyIDNeverRecorded(t *testing.T) {
	s := Open(nil, 3, quietLog())
	s.RecordFailure("", "boom")
	s.RecordSuccess("")
	if len(s.Entries()) != 0 {
		t.Fatalf("entries: %+v", s.Entries())
	}
}

func TestClearDropsEverything(t *testing.T) {
	kv := NewJSONFileKV(t.TempDir())
	s := Open(kv, 3, quietLog())
	s.RecordSuccess("GB-AEU-2025-0001")
	s.RecordFailure("GB-AEU-2025-0002", "x")
	if err := s.Clear(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if got := s.Derive("GB-AEU-2025-0001"); got != Pending {
		t.Fatalf("after clear: %s", got)
	}
	if snap, err := kv.Load(); err != nil || snap != nil {
		t.Fatalf("persisted state should be gone: %+v err=%v", snap, err)
	}
}

func TestJSONKVRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s := Open(NewJSONFileKV(dir), 3, quietLog())
	s.RecordSuccess("GB-AEU-2025-0001")
	s.RecordFailure("GB-AEU-2025-0002", "net down")

	reloaded := Open(NewJSONFileKV(dir), 3, quietLog())
	if got := reloaded.Derive("GB-AEU-2025-0001"); got != Downloaded {
		t.Fatalf("reloaded derive: %s", got)
	}
	e, ok := reloaded.Get("GB-AEU-2025-0002")
	if !ok || e.LastError != "net down" || e.Attempts != 1 {
		t.Fatalf("reloaded entry: %+v", e)
	}
}

func TestSQLiteKVRoundTrip(t *testing.T) {
	dir := t.TempDir()
	kv, err := OpenSQLiteKV(dir)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer kv.Close()
	s := Open(kv, 3, quietLog())
	s.RecordSuccess("GB-AEU-2025-0001")
	s.RecordFailure("GB-AEU-2025-0003", "429")

	kv2, err := OpenSQLiteKV(dir)
	if err != nil {
		t.Fatalf("reopen sqlite: %v", err)
	}
	defer kv2.Close()
	reloaded := Open(kv2, 3, quietLog())
	if got := reloaded.Derive("GB-AEU-2025-0001"); got != Downloaded {
		t.Fatalf("reloaded derive: %s", got)
	}
	e, ok := reloaded.Get("GB-AEU-2025-0003")
	if !ok || e.State != Failed || e.LastError != "429" {
		t.Fatalf("reloaded entry: %+v", e)
	}
}

type failingKV struct{}

func (failingKV) Load() (*Snapshot, error) { return nil, errors.New("load broken") }
func (failingKV) Save(Snapshot) error      { return errors.New("save broken") }
func (failingKV) Clear() error             { return errors.New("clear broken") }

func TestPersistenceFailureIsNonFatal(t *testing.T) {
	s := Open(failingKV{}, 3, quietLog())
	s.RecordSuccess("GB-AEU-2025-0001")
	if got := s.Derive("GB-AEU-2025-0001"); got != Downloaded {
		t.Fatalf("in-memory state must survive save failure, got %s", got)
	}
}
