// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package middleware provides HTTP middleware for the command-center
// API. The rate limiter protects the mutating endpoints (detect,
// trends/record): one token bucket per client IP, stale buckets swept
// periodically.
package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// staleAfter drops a client's bucket after this much inactivity.
const staleAfter = 10 * time.Minute

// sweepEvery bounds how often the stale sweep runs.
const sweepEvery = time.Minute

// clientBucket pairs a limiter with its last use.
type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter is a per-client token-bucket limiter.
//
// # Thread Safety
//
// Safe for concurrent use.
type RateLimiter struct {
	rps   rate.Limit
	burst int

	mu        sync.Mutex
	clients   map[string]*clientBucket
	lastSweep time.Time
}

// NewRateLimiter builds a limiter allowing rps requests per second with
// the given burst per client. rps <= 0 disables limiting.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		rps:     rate.Limit(rps),
		burst:   burst,
		clients: make(map[string]*clientBucket),
	}
}

// Allow reports whether the client may proceed now.
func (r *RateLimiter) Allow(clientID string, now time.Time) bool {
	if r.rps <= 0 {
		return true
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if now.Sub(r.lastSweep) > sweepEvery {
		r.sweepLocked(now)
	}

	b := r.clients[clientID]
	if b == nil {
		b = &clientBucket{limiter: rate.NewLimiter(r.rps, r.burst)}
		r.clients[clientID] = b
	}
	b.lastSeen = now
	return b.limiter.AllowN(now, 1)
}

// sweepLocked drops buckets idle past staleAfter.
func (r *RateLimiter) sweepLocked(now time.Time) {
	for id, b := range r.clients {
		if now.Sub(b.lastSeen) > staleAfter {
			delete(r.clients, id)
		}
	}
	r.lastSweep = now
}

// Middleware enforces the limit on the wrapped routes, answering 429
// with the standard error envelope when a client exceeds it.
func (r *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !r.Allow(c.ClientIP(), time.Now()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"success": false,
				"error":   "rate limit exceeded, retry later",
			})
			return
		}
		c.Next()
	}
}
