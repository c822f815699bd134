// Package status tracks per-invoice download history: attempt counts, the
// last error, and a separate ever-downloaded set. Success is sticky — once
// an invoice id lands in the downloaded set, later failures never downgrade
// its derived state.
package status

import (
	"sync"
	"time"

	"invoicefetch/internal/logging"
)

// State is the derived lifecycle state of one invoice.
type State string

const (
	Pending    State = "pending"
	Downloaded State = "downloaded"
	Failed     State = "failed"
)

// Entry is the persisted history record for one invoice id.
type Entry struct {
	InvoiceID string `json:"invoice_id"`
	State     State  `json:"state"`
	Timestamp int64  `json:"timestamp"`
	Attempts  int    `json:"attempts"`
	LastError string `json:"last_error,omitempty"`
}

// Snapshot is the serialized form handed to the persistence collaborator.
type Snapshot struct {
	Downloaded []string         `json:"downloaded"`
	Entries    map[string]Entry `json:"entries"`
}

// KV is the external key-value persistence collaborator. Implementations
// must make Save atomic; Load is called once at open.
type KV interface {
	Load() (*Snapshot, error)
	Save(Snapshot) error
	Clear() error
}

type Store struct {
	mu         sync.Mutex
	retryLimit int
	kv         KV
	log        *logging.Logger
	downloaded map[string]struct{}
	entries    map[string]Entry
	now        func() time.Time
}

// Open builds a store backed by kv, loading persisted history once. A load
// failure is not fatal: the store starts empty and only cross-run history
// is lost.
func Open(kv KV, retryLimit int, log *logging.Logger) *Store {
	s := &Store{
		retryLimit: retryLimit,
		kv:         kv,
		log:        log,
		downloaded: map[string]struct{}{},
		entries:    map[string]Entry{},
		now:        time.Now,
	}
	if kv == nil {
		return s
	}
	snap, err := kv.Load()
	if err != nil {
		log.Warnf("history load failed, starting empty: %v", err)
		return s
	}
	if snap != nil {
		for _, id := range snap.Downloaded {
			s.downloaded[id] = struct{}{}
		}
		for id, e := range snap.Entries {
			s.entries[id] = e
		}
	}
	return s
}

// RecordSuccess marks id downloaded and bumps its attempt count. Empty ids
// (unmatched rows) are never recorded so they cannot collide on the "" key.
func (s *Store) RecordSuccess(id string) {
	if id == "" {
		return
	}
	s.mu.Lock()
	e := s.entries[id]
	e.InvoiceID = id
	e.State = Downloaded
	e.Timestamp = s.now().Unix()
	e.Attempts++
	e.LastError = ""
	s.entries[id] = e
	s.downloaded[id] = struct{}{}
	s.mu.Unlock()
	s.persist()
}

// RecordFailure bumps the attempt count and stores the error message.
func (s *Store) RecordFailure(id, errMsg string) {
	if id == "" {
		return
	}
	s.mu.Lock()
	e := s.entries[id]
	e.InvoiceID = id
	e.State = Failed
	e.Timestamp = s.now().Unix()
	e.Attempts++
	e.LastError = errMsg
	s.entries[id] = e
	s.mu.Unlock()
	s.persist()
}

// Derive reports the current state of id: downloaded once ever downloaded,
// failed once the attempt count reaches the retry limit, pending otherwise.
func (s *Store) Derive(id string) State {
	if id == "" {
		return Pending
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.downloaded[id]; ok {
		return Downloaded
	}
	if e, ok := s.entries[id]; ok && s.retryLimit > 0 && e.Attempts >= s.retryLimit {
		return Failed
	}
	return Pending
}

// Get returns the raw history entry for id, if any.
func (s *Store) Get(id string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	return e, ok
}

// Retryable reports whether a failed id may still be retried automatically.
// A manual run with force=true bypasses this.
func (s *Store) Retryable(id string) bool {
	return s.Derive(id) != Failed
}

// Entries returns a copy of all history entries.
func (s *Store) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	return out
}

// Clear atomically drops the downloaded set, the attempts map, and the
// persisted history.
func (s *Store) Clear() error {
	s.mu.Lock()
	s.downloaded = map[string]struct{}{}
	s.entries = map[string]Entry{}
	s.mu.Unlock()
	if s.kv == nil {
		return nil
	}
	return s.kv.Clear()
}

// persist writes the current snapshot through the collaborator. Failures
// are logged and swallowed; in-memory state stays authoritative for the
// session.
func (s *Store) persist() {
	if s.kv == nil {
		return
	}
	s.mu.Lock()
	snap := Snapshot{
		Downloaded: make([]string, 0, len(s.downloaded)),
		Entries:    make(map[string]Entry, len(s.entries)),
	}
	for id := range s.downloaded {
		snap.Downloaded = append(snap.Downloaded, id)
	}
	for id, e := range s.entries {
		snap.Entries[id] = e
	}
	s.mu.Unlock()
	if err := s.kv.Save(snap); err != nil {
		s.log.Warnf("history save failed: %v", err)
	}
}
