// Package filter applies compound record predicates with memoized results.
package filter

import (
	"fmt"
	"strings"

	"invoicefetch/internal/row"
	"invoicefetch/internal/status"
)

// maxCached bounds the memo cache; the oldest inserted result is evicted
// when exceeded.
const maxCached = 50

// Spec is an immutable snapshot of the active filter criteria. The zero
// value matches everything.
type Spec struct {
	// Marketplace is matched case-insensitively as a substring of the
	// record's full search text, not just its marketplace field, so it can
	// hit any visible cell content.
	Marketplace string
	DateFrom    string // ISO YYYY-MM-DD, empty = no lower bound
	DateTo      string
	Status      status.State // empty = any
}

// Key serializes the spec deterministically for use as a cache key.
func (s Spec) Key() string {
	return fmt.Sprintf("m=%s|from=%s|to=%s|status=%s",
		strings.ToLower(s.Marketplace), s.DateFrom, s.DateTo, s.Status)
}

func (s Spec) IsZero() bool {
	return s.Marketplace == "" && s.DateFrom == "" && s.DateTo == "" && s.Status == ""
}

// Engine memoizes filter results per spec key. Not safe for concurrent use;
// the single control goroutine owns it.
type Engine struct {
	cache map[string][]*row.Record
	order []string
}

func NewEngine() *Engine {
	return &Engine{cache: make(map[string][]*row.Record)}
}

// Apply filters records in original order, all conditions AND-combined.
// Repeated application of an identical spec returns the cached slice itself;
// callers must not mutate it.
func (e *Engine) Apply(spec Spec, records []*row.Record, derive func(string) status.State) []*row.Record {
	key := spec.Key()
	if hit, ok := e.cache[key]; ok {
		return hit
	}
	out := make([]*row.Record, 0, len(records))
	for _, rec := range records {
		if Matches(spec, rec, derive) {
			out = append(out, rec)
		}
	}
	e.put(key, out)
	return out
}

// Matches evaluates the compound predicate for one record.
func Matches(spec Spec, rec *row.Record, derive func(string) status.State) bool {
	if spec.Marketplace != "" &&
		!strings.Contains(rec.SearchText, strings.ToLower(spec.Marketplace)) {
		return false
	}
	// Date bounds are lenient: a record with no date is never excluded by a
	// date filter. ISO strings order lexicographically.
	if spec.DateFrom != "" && rec.EndDate != "" && rec.EndDate < spec.DateFrom {
		return false
	}
	if spec.DateTo != "" && rec.StartDate != "" && rec.StartDate > spec.DateTo {
		return false
	}
	if spec.Status != "" && derive != nil && derive(rec.InvoiceID) != spec.Status {
		return false
	}
	return true
}

// Invalidate drops all memoized results. Callers invoke it when derived
// statuses change (e.g. after a download run), since cached results bake in
// the status lookup at apply time.
func (e *Engine) Invalidate() {
	e.cache = make(map[string][]*row.Record)
	e.order = e.order[:0]
}

func (e *Engine) Size() int { return len(e.cache) }

func (e *Engine) put(key string, recs []*row.Record) {
	if _, ok := e.cache[key]; !ok {
		e.order = append(e.order, key)
	}
	e.cache[key] = recs
	for len(e.order) > maxCached {
		oldest := e.order[0]
		e.order = e.order[1:]
		delete(e.cache, oldest)
	}
}
