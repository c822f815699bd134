package row

import "context"

// Cache holds the parsed records for one page session. Records are parsed
// lazily and memoized; the raw rows never change after construction, so
// there is no invalidation or eviction.
type Cache struct {
	raw    []RawRow
	recs   []*Record
	parsed []bool
}

func NewCache(raw []RawRow) *Cache {
	return &Cache{
		raw:    raw,
		recs:   make([]*Record, len(raw)),
		parsed: make([]bool, len(raw)),
	}
}

func (c *Cache) Len() int { return len(c.raw) }

// Get parses row i on first access and returns the cached record after.
// Out-of-range indexes return a zero record.
func (c *Cache) Get(i int) *Record {
	if i < 0 || i >= len(c.raw) {
		return &Record{Index: i, Marketplace: "unknown", DocumentRef: map[string]string{}}
	}
	if !c.parsed[i] {
		rec := Parse(i, c.raw[i])
		c.recs[i] = &rec
		c.parsed[i] = true
	}
	return c.recs[i]
}

// All returns every record in original row order, parsing any not yet seen.
func (c *Cache) All() []*Record {
	out := make([]*Record, len(c.raw))
	for i := range c.raw {
		out[i] = c.Get(i)
	}
	return out
}

// Init parses all rows in batches of chunkSize, invoking progress after
// each batch and checking ctx between batches so a large table never
// monopolizes the caller. Already-parsed rows are skipped.
func (c *Cache) Init(ctx context.Context, chunkSize int, progress func(done, total int)) error {
	if chunkSize <= 0 {
		chunkSize = 50
	}
	total := len(c.raw)
	for start := 0; start < total; start += chunkSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := start + chunkSize
		if end > total {
			end = total
		}
		for i := start; i < end; i++ {
			c.Get(i)
		}
		if progress != nil {
			progress(end, total)
		}
	}
	return nil
}
