// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestAllowWithinBurst(t *testing.T) {
	rl := NewRateLimiter(1, 3)
	now := time.Now()

	for i := 0; i < 3; i++ {
		assert.True(t, rl.Allow("10.0.0.1", now), "request %d within burst", i)
	}
	assert.False(t, rl.Allow("10.0.0.1", now))
}

func TestAllowRefillsOverTime(t *testing.T) {
	rl := NewRateLimiter(2, 1)
	now := time.Now()

	assert.True(t, rl.Allow("10.0.0.1", now))
	assert.False(t, rl.Allow("10.0.0.1", now))
	assert.True(t, rl.Allow("10.0.0.1", now.Add(time.Second)))
}

func TestClientsLimitedIndependently(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	now := time.Now()

	assert.True(t, rl.Allow("10.0.0.1", now))
	assert.False(t, rl.Allow("10.0.0.1", now))
	assert.True(t, rl.Allow("10.0.0.2", now))
}

func TestZeroRPSDisablesLimiting(t *testing.T) {
	rl := NewRateLimiter(0, 0)
	now := time.Now()
	for i := 0; i < 100; i++ {
		assert.True(t, rl.Allow("10.0.0.1", now))
	}
}

func TestStaleBucketsSwept(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	now := time.Now()

	rl.Allow("10.0.0.1", now)
	assert.Len(t, rl.clients, 1)

	// Next request well past the stale window triggers the sweep.
	rl.Allow("10.0.0.2", now.Add(staleAfter+sweepEvery+time.Second))
	assert.Len(t, rl.clients, 1)
	_, kept := rl.clients["10.0.0.2"]
	assert.True(t, kept)
}

func TestMiddlewareAnswers429(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rl := NewRateLimiter(1, 1)

	router := gin.New()
	router.POST("/detect", rl.Middleware(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"success": true})
	})

	first := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/detect", nil)
	router.ServeHTTP(first, req)
	assert.Equal(t, http.StatusOK, first.Code)

	second := httptest.NewRecorder()
	router.ServeHTTP(second, httptest.NewRequest(http.MethodPost, "/detect", nil))
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Contains(t, second.Body.String(), `"success":false`)
}
