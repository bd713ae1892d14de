// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package cache provides the TTL response cache for the expensive
// command-center endpoints. A singleflight group collapses concurrent
// rebuilds of the same key so a cache expiry never triggers a
// thundering herd of generation cycles.
package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

// BuildFunc produces a fresh serialized response for one cache key.
type BuildFunc func(ctx context.Context) ([]byte, error)

// entry is one cached body. Bodies are stored as produced; callers get
// byte-identical payloads until the TTL lapses.
type entry struct {
	body     []byte
	storedAt time.Time
}

// ResponseCache is a keyed TTL cache with single-flight rebuilds.
//
// # Description
//
// Each endpoint owns a deterministic key (path plus significant query
// parameters) and a TTL. Within the TTL every caller receives the same
// bytes plus a cached flag; after expiry exactly one caller rebuilds
// while the rest wait on the flight. Build errors are returned, never
// stored.
//
// # Thread Safety
//
// Safe for concurrent use.
type ResponseCache struct {
	mu      sync.RWMutex
	entries map[string]entry
	flight  singleflight.Group
	clock   func() time.Time

	hits   int64
	misses int64
}

// Option mutates construction-time settings.
type Option func(*ResponseCache)

// WithClock pins time for tests.
func WithClock(clock func() time.Time) Option {
	return func(c *ResponseCache) { c.clock = clock }
}

// New builds an empty response cache.
func New(opts ...Option) *ResponseCache {
	c := &ResponseCache{
		entries: make(map[string]entry),
		clock:   func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetOrBuild returns the cached body when it is younger than ttl,
// otherwise rebuilds it. cached reports whether the bytes came from the
// cache; age is how long ago they were stored. bypass forces a rebuild
// and refreshes the stored entry.
func (c *ResponseCache) GetOrBuild(ctx context.Context, key string, ttl time.Duration, bypass bool, build BuildFunc) (body []byte, cached bool, age time.Duration, err error) {
	if !bypass {
		if body, age, ok := c.lookup(key, ttl); ok {
			atomic.AddInt64(&c.hits, 1)
			return body, true, age, nil
		}
	}
	atomic.AddInt64(&c.misses, 1)

	v, err, _ := c.flight.Do(key, func() (any, error) {
		// A concurrent flight may have refilled the entry while this
		// caller was queued; reuse it instead of rebuilding again.
		if !bypass {
			if body, _, ok := c.lookup(key, ttl); ok {
				return body, nil
			}
		}

		fresh, err := build(ctx)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.entries[key] = entry{body: fresh, storedAt: c.clock()}
		c.mu.Unlock()
		return fresh, nil
	})
	if err != nil {
		return nil, false, 0, err
	}
	return v.([]byte), false, 0, nil
}

// lookup returns a fresh entry's body and age.
func (c *ResponseCache) lookup(key string, ttl time.Duration) ([]byte, time.Duration, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, 0, false
	}
	age := c.clock().Sub(e.storedAt)
	if age >= ttl {
		return nil, 0, false
	}
	return e.body, age, true
}

// Peek returns a fresh entry without building on miss. The health
// endpoint uses it: liveness checks must never trigger a generation
// cycle.
func (c *ResponseCache) Peek(key string, ttl time.Duration) ([]byte, bool) {
	body, _, ok := c.lookup(key, ttl)
	return body, ok
}

// Invalidate drops one key.
func (c *ResponseCache) Invalidate(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Purge drops everything.
func (c *ResponseCache) Purge() {
	c.mu.Lock()
	c.entries = make(map[string]entry)
	c.mu.Unlock()
}

// Stats reports lifetime hit and miss counters.
func (c *ResponseCache) Stats() (hits, misses int64) {
	return atomic.LoadInt64(&c.hits), atomic.LoadInt64(&c.misses)
}
