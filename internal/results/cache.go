// Package results keeps each requester's latest transcription so follow-up
// commands (summaries, raw text export) don't redo the work.
package results

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Entry is the cached outcome of one completed transcription.
type Entry struct {
	Raw           string
	Formatted     string
	RawPath       string
	FormattedPath string
	CreatedAt     time.Time
}

// Store is the per-requester result state. The pipeline writes entries; the
// delivery surfaces read them and attach lazily computed summaries.
type Store interface {
	Put(requester int64, e Entry)
	Get(requester int64) (Entry, bool)
	PutSummary(requester int64, kind, text string)
	GetSummary(requester int64, kind string) (string, bool)
	Len() int
}

type item struct {
	entry      Entry
	summaries  map[string]string
	lastAccess time.Time
}

// Cache is an in-memory Store with TTL expiry and LRU capacity eviction.
type Cache struct {
	mu       sync.Mutex
	items    map[int64]*item
	ttl      time.Duration
	capacity int
	log      zerolog.Logger
}

// NewCache creates a result cache. capacity <= 0 means unbounded.
func NewCache(ttl time.Duration, capacity int, log zerolog.Logger) *Cache {
	return &Cache{
		items:    make(map[int64]*item),
		ttl:      ttl,
		capacity: capacity,
		log:      log.With().Str("component", "results").Logger(),
	}
}

// Put replaces the requester's entry. Any summaries of the previous
// transcript are dropped with it.
func (c *Cache) Put(requester int64, e Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items[requester] = &item{
		entry:      e,
		summaries:  make(map[string]string),
		lastAccess: time.Now(),
	}
	c.evictLocked()
}

// Get returns the requester's entry if it has not expired.
func (c *Cache) Get(requester int64) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	it, ok := c.aliveLocked(requester)
	if !ok {
		return Entry{}, false
	}
	it.lastAccess = time.Now()
	return it.entry, true
}

// PutSummary attaches a computed summary to the current entry. A no-op if
// the entry is gone.
func (c *Cache) PutSummary(requester int64, kind, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if it, ok := c.aliveLocked(requester); ok {
		it.summaries[kind] = text
		it.lastAccess = time.Now()
	}
}

// GetSummary returns a previously computed summary of the current entry.
func (c *Cache) GetSummary(requester int64, kind string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	it, ok := c.aliveLocked(requester)
	if !ok {
		return "", false
	}
	text, ok := it.summaries[kind]
	if ok {
		it.lastAccess = time.Now()
	}
	return text, ok
}

// Len returns the number of live entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for requester := range c.items {
		if _, ok := c.aliveLocked(requester); ok {
			n++
		}
	}
	return n
}

// aliveLocked fetches an item, expiring it if past the TTL.
func (c *Cache) aliveLocked(requester int64) (*item, bool) {
	it, ok := c.items[requester]
	if !ok {
		return nil, false
	}
	if c.ttl > 0 && time.Since(it.entry.CreatedAt) > c.ttl {
		delete(c.items, requester)
		return nil, false
	}
	return it, true
}

// evictLocked drops least-recently-used entries while over capacity.
func (c *Cache) evictLocked() {
	if c.capacity <= 0 {
		return
	}
	for len(c.items) > c.capacity {
		var oldest int64
		var oldestAt time.Time
		first := true
		for requester, it := range c.items {
			if first || it.lastAccess.Before(oldestAt) {
				oldest = requester
				oldestAt = it.lastAccess
				first = false
			}
		}
		delete(c.items, oldest)
		c.log.Debug().Int64("requester", oldest).Msg("evicted result entry over capacity")
	}
}
