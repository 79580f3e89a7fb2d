package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"querydeck/internal/sqlexpr"
)

// DefaultMaxTimeTTL bounds how stale a cached max-time answer may be.
const DefaultMaxTimeTTL = 60 * time.Second

// Queryer is the subset of Engine the cache needs.
type Queryer interface {
	Query(ctx context.Context, sqlQuery string) (*Result, error)
}

type maxTimeEntry struct {
	value   time.Time
	fetched time.Time
}

// MaxTimeCache answers "what is the latest timestamp in this source"
// with a short TTL so repeated explorations of the same source do not
// rescan it. Entries are keyed by source text and column name.
type MaxTimeCache struct {
	queryer Queryer
	ttl     time.Duration
	now     func() time.Time

	mu      sync.Mutex
	entries map[string]maxTimeEntry
}

// NewMaxTimeCache creates a cache over the given queryer. A non-positive
// ttl falls back to DefaultMaxTimeTTL.
func NewMaxTimeCache(q Queryer, ttl time.Duration) *MaxTimeCache {
	if ttl <= 0 {
		ttl = DefaultMaxTimeTTL
	}
	return &MaxTimeCache{
		queryer: q,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]maxTimeEntry),
	}
}

// MaxTime returns the maximum value of the time column over the source
// query, serving from cache within the TTL.
func (c *MaxTimeCache) MaxTime(ctx context.Context, sourceSQL, timeColumn string) (time.Time, error) {
	key := sourceSQL + "\x00" + timeColumn

	c.mu.Lock()
	entry, ok := c.entries[key]
	c.mu.Unlock()
	if ok && c.now().Sub(entry.fetched) < c.ttl {
		return entry.value, nil
	}

	query := fmt.Sprintf("SELECT MAX(%s) FROM (%s) AS src",
		sqlexpr.QuoteIdentifier(timeColumn), sourceSQL)
	res, err := c.queryer.Query(ctx, query)
	if err != nil {
		return time.Time{}, fmt.Errorf("max time query: %w", err)
	}
	if res.RowCount == 0 || len(res.Rows[0]) == 0 {
		return time.Time{}, fmt.Errorf("max time query returned no rows")
	}
	value, err := coerceTime(res.Rows[0][0])
	if err != nil {
		return time.Time{}, fmt.Errorf("max of column %q: %w", timeColumn, err)
	}

	c.mu.Lock()
	c.entries[key] = maxTimeEntry{value: value, fetched: c.now()}
	c.mu.Unlock()
	return value, nil
}

// Invalidate drops every cached entry.
func (c *MaxTimeCache) Invalidate() {
	c.mu.Lock()
	c.entries = make(map[string]maxTimeEntry)
	c.mu.Unlock()
}

func coerceTime(v interface{}) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t, nil
	case string:
		for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05.999999999", "2006-01-02"} {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed, nil
			}
		}
		return time.Time{}, fmt.Errorf("unparseable time %q", t)
	case nil:
		return time.Time{}, fmt.Errorf("column is empty")
	default:
		return time.Time{}, fmt.Errorf("unexpected type %T", v)
	}
}
