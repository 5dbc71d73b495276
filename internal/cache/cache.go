// Screenline - Digital Out-of-Home Screen Network Operations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/screenline

// Package cache provides the fixed-TTL in-memory cache used in front of the
// signage API.
//
// Entries expire a fixed duration after they were stored. Reading an entry
// never extends its life, so the staleness of any cached value is bounded by
// the TTL regardless of how hot it is. Callers that just mutated the remote
// entity must Delete (or Clear) before returning, and callers that need
// certainty bypass the cache altogether.
package cache

import (
	"sync"
	"time"

	"github.com/tomtom215/screenline/internal/metrics"
)

// DefaultTTL is the lifetime of a cached signage entity.
const DefaultTTL = 10 * time.Minute

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// Stats tracks cache performance.
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Keys      int
}

// TTL is a concurrency-safe map with insertion-time expiry.
type TTL[V any] struct {
	name    string
	ttl     time.Duration
	now     func() time.Time
	mu      sync.RWMutex
	entries map[string]entry[V]
	stats   Stats
	// gen counts invalidations; loads that started before one must not Set.
	gen uint64
}

// Option configures a TTL cache.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock overrides time.Now, used by tests to step past expiry.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// New creates a cache. The name labels its Prometheus series.
func New[V any](name string, ttl time.Duration, opts ...Option) *TTL[V] {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &TTL[V]{
		name:    name,
		ttl:     ttl,
		now:     o.now,
		entries: make(map[string]entry[V]),
	}
}

// Name returns the cache name.
func (c *TTL[V]) Name() string { return c.name }

// Get returns the value for key if present and not expired.
func (c *TTL[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if ok && !c.now().Before(e.expiresAt) {
		delete(c.entries, key)
		c.stats.Evictions++
		ok = false
	}
	if !ok {
		c.stats.Misses++
		metrics.RecordCacheLookup(c.name, false)
		var zero V
		return zero, false
	}
	c.stats.Hits++
	metrics.RecordCacheLookup(c.name, true)
	return e.value, true
}

// Set stores value under key. The entry expires TTL after this call.
func (c *TTL[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry[V]{value: value, expiresAt: c.now().Add(c.ttl)}
}

// Generation returns the invalidation counter. Read it before loading a
// value from the remote side and pass it to SetIfGeneration.
func (c *TTL[V]) Generation() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gen
}

// SetIfGeneration stores value only when no Delete or Clear happened since
// gen was read. It reports whether the value was stored.
func (c *TTL[V]) SetIfGeneration(key string, value V, gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return false
	}
	c.entries[key] = entry[V]{value: value, expiresAt: c.now().Add(c.ttl)}
	return true
}

// Delete removes key.
func (c *TTL[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	if _, ok := c.entries[key]; ok {
		delete(c.entries, key)
		c.stats.Evictions++
	}
	metrics.RecordCacheInvalidation(c.name)
}

// Clear drops every entry.
func (c *TTL[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.stats.Evictions += int64(len(c.entries))
	c.entries = make(map[string]entry[V])
	metrics.RecordCacheInvalidation(c.name)
}

// Purge removes expired entries and returns how many were dropped.
func (c *TTL[V]) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	n := 0
	for k, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, k)
			n++
		}
	}
	c.stats.Evictions += int64(n)
	return n
}

// Len returns the number of stored entries, including expired ones not yet purged.
func (c *TTL[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// GetStats returns a snapshot of the counters.
func (c *TTL[V]) GetStats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s := c.stats
	s.Keys = len(c.entries)
	return s
}

// HitRate returns hits as a percentage of lookups.
func (c *TTL[V]) HitRate() float64 {
	s := c.GetStats()
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total) * 100.0
}
