// Package cache implements the TTL-bearing record cache: a keyed multimap
// from lowercase record name to the bag of records seen under that name.
// The cache never expires entries itself; that is the reaper's job (see
// internal/engine).
package cache

import (
	"strings"
	"sync"

	"github.com/linklocal/mdns/internal/wire"
)

// Cache is a keyed multimap of *wire.Record, safe for concurrent use.
type Cache struct {
	mu      sync.Mutex
	buckets map[string][]*wire.Record
}

// New returns an empty cache.
func New() *Cache {
	return &Cache{buckets: make(map[string][]*wire.Record)}
}

// Add inserts rec. If an equal record (per wire.Record.Equal) already
// occupies the bucket, its TTL and Created are reset from rec instead of
// adding a duplicate, and Add returns the existing record with added=false.
// Otherwise rec is appended and returned with added=true.
func (c *Cache) Add(rec *wire.Record) (stored *wire.Record, added bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := rec.Key()
	bucket := c.buckets[key]
	for _, existing := range bucket {
		if existing.Equal(rec) {
			existing.TTL = rec.TTL
			existing.Created = rec.Created
			return existing, false
		}
	}

	c.buckets[key] = append(bucket, rec)
	return rec, true
}

// Remove deletes the entry equal to rec from its bucket, if present. It is
// a no-op if no equal entry exists.
func (c *Cache) Remove(rec *wire.Record) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := rec.Key()
	bucket := c.buckets[key]
	for i, existing := range bucket {
		if existing.Equal(rec) {
			c.buckets[key] = append(bucket[:i:i], bucket[i+1:]...)
			if len(c.buckets[key]) == 0 {
				delete(c.buckets, key)
			}
			return
		}
	}
}

// Get returns the cached record equal to rec, or nil if none exists.
func (c *Cache) Get(rec *wire.Record) *wire.Record {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, existing := range c.buckets[rec.Key()] {
		if existing.Equal(rec) {
			return existing
		}
	}
	return nil
}

// GetByDetails returns the first cached record under name whose payload
// type and class match, or nil.
func (c *Cache) GetByDetails(name string, rrType, class uint16) *wire.Record {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := strings.ToLower(name)
	for _, existing := range c.buckets[key] {
		if existing.Data.Type() == rrType && existing.Class == class {
			return existing
		}
	}
	return nil
}

// EntriesWithName returns a snapshot of the bucket for the given name
// (compared case-insensitively). The returned slice is safe to range over
// without holding the cache lock.
func (c *Cache) EntriesWithName(name string) []*wire.Record {
	c.mu.Lock()
	defer c.mu.Unlock()

	bucket := c.buckets[strings.ToLower(name)]
	out := make([]*wire.Record, len(bucket))
	copy(out, bucket)
	return out
}

// Entries returns a snapshot of every record in the cache, across all
// buckets.
func (c *Cache) Entries() []*wire.Record {
	c.mu.Lock()
	defer c.mu.Unlock()

	var all []*wire.Record
	for _, bucket := range c.buckets {
		all = append(all, bucket...)
	}
	return all
}
