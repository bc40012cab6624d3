// Package refcache is the in-memory reference-data cache sitting in
// front of ESI lookups (spec.md §4.3). It generalizes the shape of the
// teacher's pkg/evegateway/redis_cache.go CacheManager (Get/Refresh by
// key with an expiry), but keeps everything in-process: the spec's
// Non-goals rule out durable storage for this service.
package refcache

import (
	"context"
	"sync"
	"time"

	"wandererkills/internal/platform/clock"
)

// Kind namespaces cache keys by entity type so a character ID and a
// type ID never collide (spec.md §4.3).
type Kind string

const (
	KindCharacter   Kind = "character"
	KindCorporation Kind = "corporation"
	KindAlliance    Kind = "alliance"
	KindShipType    Kind = "ship_type"
)

type key struct {
	kind Kind
	id   int64
}

// Loader fetches the authoritative value for a key on a cache miss.
// Returning (nil, nil) means "not found" and is itself cached as a
// negative result.
type Loader func(ctx context.Context, kind Kind, id int64) (any, error)

type entry struct {
	value     any
	found     bool
	expiresAt time.Time
}

// Cache is a TTL key/value store with request coalescing: concurrent
// lookups for the same key share a single in-flight Loader call
// (spec.md §4.3 "at most one in-flight call per key").
type Cache struct {
	mu      sync.Mutex
	entries map[key]entry
	inflight map[key]*call

	clk         clock.Clock
	liveTTL     time.Duration
	shipTypeTTL time.Duration
	negativeTTL time.Duration

	load Loader
}

type call struct {
	done  chan struct{}
	value any
	found bool
	err   error
}

// New builds a Cache. liveTTL applies to character/corporation/alliance
// entries, shipTypeTTL to ship types, negativeTTL to not-found results.
func New(clk clock.Clock, liveTTL, shipTypeTTL, negativeTTL time.Duration, load Loader) *Cache {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Cache{
		entries:     make(map[key]entry),
		inflight:    make(map[key]*call),
		clk:         clk,
		liveTTL:     liveTTL,
		shipTypeTTL: shipTypeTTL,
		negativeTTL: negativeTTL,
		load:        load,
	}
}

// Get returns (value, true, nil) on a positive hit or load, (nil,
// false, nil) for a negative (not-found) result, cached or freshly
// loaded, and propagates the loader's error on a miss that fails to
// load.
func (c *Cache) Get(ctx context.Context, kind Kind, id int64) (any, bool, error) {
	k := key{kind: kind, id: id}

	c.mu.Lock()
	if e, ok := c.entries[k]; ok && c.clk.Now().Before(e.expiresAt) {
		c.mu.Unlock()
		return e.value, e.found, nil
	}

	if inflight, ok := c.inflight[k]; ok {
		c.mu.Unlock()
		<-inflight.done
		return inflight.value, inflight.found, inflight.err
	}

	cl := &call{done: make(chan struct{})}
	c.inflight[k] = cl
	c.mu.Unlock()

	value, err := c.load(ctx, kind, id)
	found := err == nil && value != nil

	c.mu.Lock()
	delete(c.inflight, k)
	if err == nil {
		c.entries[k] = entry{
			value:     value,
			found:     found,
			expiresAt: c.clk.Now().Add(c.ttlFor(kind, found)),
		}
	}
	c.mu.Unlock()

	cl.value, cl.found, cl.err = value, found, err
	close(cl.done)

	return value, found, err
}

func (c *Cache) ttlFor(kind Kind, found bool) time.Duration {
	if !found {
		return c.negativeTTL
	}
	if kind == KindShipType {
		return c.shipTypeTTL
	}
	return c.liveTTL
}

// Purge drops every expired entry, for periodic housekeeping.
func (c *Cache) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clk.Now()
	removed := 0
	for k, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}

// Len reports the number of stored entries, for /metrics. Expired
// entries count until Purge removes them.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
