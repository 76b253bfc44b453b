// Package stats keeps the named usage counters.
package stats

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Key names a counter.
type Key string

const (
	PagesAnalyzed   Key = "pagesAnalyzed"
	WarningsShown   Key = "warningsShown"
	TimesWentBack   Key = "timesWentBack"
	TimesContinued  Key = "timesContinued"
	AIAnalysisCount Key = "aiAnalysisCount"
)

// Keys lists every known counter.
var Keys = []Key{PagesAnalyzed, WarningsShown, TimesWentBack, TimesContinued, AIAnalysisCount}

// Persister stores the counters section.
type Persister interface {
	LoadStats() (map[string]int64, error)
	SaveStats(values map[string]int64) error
}

// Counters is a set of monotonically increasing counters held in memory and
// flushed on demand.
type Counters struct {
	mu        sync.Mutex
	values    map[Key]int64
	persister Persister
	events    *prometheus.CounterVec
}

// New creates zeroed counters. reg may be nil to skip metric export.
func New(persister Persister, reg prometheus.Registerer) *Counters {
	c := &Counters{
		values:    zero(),
		persister: persister,
	}
	if reg != nil {
		c.events = promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "focus",
			Name:      "events_total",
			Help:      "Usage events counted since process start",
		}, []string{"counter"})
	}
	return c
}

func zero() map[Key]int64 {
	m := make(map[Key]int64, len(Keys))
	for _, k := range Keys {
		m[k] = 0
	}
	return m
}

func known(key Key) bool {
	for _, k := range Keys {
		if k == key {
			return true
		}
	}
	return false
}

// Increment adds one to key. Unknown keys are ignored.
func (c *Counters) Increment(key Key) {
	if !known(key) {
		return
	}
	c.mu.Lock()
	c.values[key]++
	c.mu.Unlock()

	if c.events != nil {
		c.events.WithLabelValues(string(key)).Inc()
	}
}

// Get returns the current value of key.
func (c *Counters) Get(key Key) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.values[key]
}

// All returns a copy of every counter keyed by name.
func (c *Counters) All() map[string]int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]int64, len(c.values))
	for k, v := range c.values {
		out[string(k)] = v
	}
	return out
}

// Reset zeroes every counter and persists the result.
func (c *Counters) Reset(ctx context.Context) error {
	c.mu.Lock()
	c.values = zero()
	c.mu.Unlock()
	return c.PersistAll(ctx)
}

// Load replaces the in-memory values with the persisted ones. Unknown names
// and negative values are ignored.
func (c *Counters) Load(_ context.Context) error {
	if c.persister == nil {
		return nil
	}
	stored, err := c.persister.LoadStats()
	if err != nil {
		return fmt.Errorf("loading stats: %w", err)
	}

	values := zero()
	for name, v := range stored {
		if known(Key(name)) && v > 0 {
			values[Key(name)] = v
		}
	}

	c.mu.Lock()
	c.values = values
	c.mu.Unlock()
	return nil
}

// PersistAll writes every counter.
func (c *Counters) PersistAll(_ context.Context) error {
	if c.persister == nil {
		return nil
	}
	if err := c.persister.SaveStats(c.All()); err != nil {
		return fmt.Errorf("persisting stats: %w", err)
	}
	return nil
}
