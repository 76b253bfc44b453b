// Package cache holds the time-boxed, size-bounded URL → Decision cache.
//
// Eviction approximates LRU by write time, not read time: Cleanup keeps the
// most recently written entries. Callers rely on this ordering.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/neoromantics/focus/internal/decision"
	"github.com/neoromantics/focus/internal/store"
)

const (
	DefaultTTL         = time.Hour
	DefaultMaxEntries  = 100
	DefaultTrimmedSize = 50
)

// Persister stores the whole cache section.
type Persister interface {
	LoadCache() ([]store.CacheRecord, error)
	ReplaceCache(entries []store.CacheRecord) error
}

// Options configures a Cache. Zero values fall back to the defaults.
type Options struct {
	TTL         time.Duration
	MaxEntries  int
	TrimmedSize int
	Now         func() time.Time
}

type entry struct {
	decision  decision.Decision
	writtenAt time.Time
}

// Cache maps raw URLs to previously computed decisions.
type Cache struct {
	mu      sync.Mutex
	entries map[string]entry

	ttl         time.Duration
	maxEntries  int
	trimmedSize int
	now         func() time.Time

	persister Persister
	// version numbers snapshots so an older asynchronous write never
	// lands after a newer one.
	version   uint64
	persistMu sync.Mutex
	persisted uint64
}

// New creates an empty Cache. persister may be nil for a memory-only cache.
func New(persister Persister, opts Options) *Cache {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = DefaultMaxEntries
	}
	if opts.TrimmedSize <= 0 || opts.TrimmedSize > opts.MaxEntries {
		opts.TrimmedSize = min(DefaultTrimmedSize, opts.MaxEntries)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Cache{
		entries:     make(map[string]entry),
		ttl:         opts.TTL,
		maxEntries:  opts.MaxEntries,
		trimmedSize: opts.TrimmedSize,
		now:         opts.Now,
		persister:   persister,
	}
}

// TTL returns the configured entry lifetime.
func (c *Cache) TTL() time.Duration {
	return c.ttl
}

// Load replaces the in-memory entries with the persisted ones.
func (c *Cache) Load(_ context.Context) error {
	if c.persister == nil {
		return nil
	}
	records, err := c.persister.LoadCache()
	if err != nil {
		return fmt.Errorf("loading cache: %w", err)
	}

	loaded := make(map[string]entry, len(records))
	for _, r := range records {
		var d decision.Decision
		if err := json.Unmarshal([]byte(r.Decision), &d); err != nil {
			slog.Warn("dropping unreadable cache entry", "url", r.URL, "error", err)
			continue
		}
		loaded[r.URL] = entry{decision: d, writtenAt: r.WrittenAt}
	}

	c.mu.Lock()
	c.entries = loaded
	c.mu.Unlock()
	return nil
}

// Get returns the cached decision for url if it is younger than the TTL.
// An expired entry is evicted on read.
func (c *Cache) Get(url string) (decision.Decision, bool) {
	c.mu.Lock()
	e, ok := c.entries[url]
	if !ok {
		c.mu.Unlock()
		return decision.Decision{}, false
	}
	if c.now().Sub(e.writtenAt) < c.ttl {
		c.mu.Unlock()
		return e.decision, true
	}
	delete(c.entries, url)
	snapshot, seq := c.snapshotLocked()
	c.mu.Unlock()

	c.persistAsync(snapshot, seq)
	return decision.Decision{}, false
}

// Set stores d under url with a fresh write time, replacing any prior entry.
func (c *Cache) Set(url string, d decision.Decision) {
	c.mu.Lock()
	c.entries[url] = entry{decision: d, writtenAt: c.now()}
	snapshot, seq := c.snapshotLocked()
	c.mu.Unlock()

	c.persistAsync(snapshot, seq)
}

// Clear empties the cache.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]entry)
	snapshot, seq := c.snapshotLocked()
	c.mu.Unlock()

	c.persistAsync(snapshot, seq)
}

// Cleanup removes expired entries, then trims to the most recently written
// TrimmedSize entries when more than MaxEntries remain.
func (c *Cache) Cleanup() {
	c.mu.Lock()
	if len(c.entries) == 0 {
		c.mu.Unlock()
		return
	}

	now := c.now()
	changed := false
	for url, e := range c.entries {
		if now.Sub(e.writtenAt) >= c.ttl {
			delete(c.entries, url)
			changed = true
		}
	}

	if len(c.entries) > c.maxEntries {
		type keyed struct {
			url string
			e   entry
		}
		all := make([]keyed, 0, len(c.entries))
		for url, e := range c.entries {
			all = append(all, keyed{url, e})
		}
		sort.Slice(all, func(i, j int) bool {
			return all[i].e.writtenAt.After(all[j].e.writtenAt)
		})
		trimmed := make(map[string]entry, c.trimmedSize)
		for _, k := range all[:c.trimmedSize] {
			trimmed[k.url] = k.e
		}
		c.entries = trimmed
		changed = true
	}

	size := len(c.entries)
	var snapshot []store.CacheRecord
	var seq uint64
	if changed {
		snapshot, seq = c.snapshotLocked()
	}
	c.mu.Unlock()

	if changed {
		slog.Info("cache cleaned", "size", size)
		c.persistAsync(snapshot, seq)
	}
}

// Len returns the number of entries, expired or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// URLs returns the cached keys in no particular order.
func (c *Cache) URLs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	urls := make([]string, 0, len(c.entries))
	for url := range c.entries {
		urls = append(urls, url)
	}
	return urls
}

// Flush writes the current entries. Asynchronous writes of older snapshots
// still in flight become no-ops once it succeeds.
func (c *Cache) Flush(_ context.Context) error {
	if c.persister == nil {
		return nil
	}
	c.mu.Lock()
	snapshot, seq := c.snapshotLocked()
	c.mu.Unlock()

	if err := c.write(snapshot, seq); err != nil {
		return fmt.Errorf("flushing cache: %w", err)
	}
	return nil
}

// persistAsync writes snapshot without blocking the caller. Failures are
// logged; the in-memory copy stays authoritative.
func (c *Cache) persistAsync(snapshot []store.CacheRecord, seq uint64) {
	if c.persister == nil {
		return
	}
	go func() {
		if err := c.write(snapshot, seq); err != nil {
			slog.Warn("persisting cache failed", "error", err)
		}
	}()
}

func (c *Cache) write(snapshot []store.CacheRecord, seq uint64) error {
	c.persistMu.Lock()
	defer c.persistMu.Unlock()
	if seq <= c.persisted {
		return nil
	}
	if err := c.persister.ReplaceCache(snapshot); err != nil {
		return err
	}
	c.persisted = seq
	return nil
}

func (c *Cache) snapshotLocked() ([]store.CacheRecord, uint64) {
	c.version++
	return c.recordsLocked(), c.version
}

func (c *Cache) recordsLocked() []store.CacheRecord {
	records := make([]store.CacheRecord, 0, len(c.entries))
	for url, e := range c.entries {
		data, err := json.Marshal(e.decision)
		if err != nil {
			continue
		}
		records = append(records, store.CacheRecord{URL: url, Decision: string(data), WrittenAt: e.writtenAt})
	}
	return records
}
