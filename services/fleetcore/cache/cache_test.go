// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetOrBuildCachesWithinTTL(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c := New(WithClock(func() time.Time { return now }))

	builds := 0
	build := func(context.Context) ([]byte, error) {
		builds++
		return []byte(fmt.Sprintf(`{"n":%d}`, builds)), nil
	}

	body1, cached1, _, err := c.GetOrBuild(context.Background(), "dashboard", 30*time.Second, false, build)
	require.NoError(t, err)
	assert.False(t, cached1)

	now = now.Add(10 * time.Second)
	body2, cached2, age, err := c.GetOrBuild(context.Background(), "dashboard", 30*time.Second, false, build)
	require.NoError(t, err)
	assert.True(t, cached2)
	assert.Equal(t, body1, body2, "byte-identical within TTL")
	assert.Equal(t, 10*time.Second, age)
	assert.Equal(t, 1, builds)

	now = now.Add(25 * time.Second) // past the TTL
	body3, cached3, _, err := c.GetOrBuild(context.Background(), "dashboard", 30*time.Second, false, build)
	require.NoError(t, err)
	assert.False(t, cached3)
	assert.NotEqual(t, body1, body3)
	assert.Equal(t, 2, builds)
}

func TestBypassForcesRebuild(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c := New(WithClock(func() time.Time { return now }))

	builds := 0
	build := func(context.Context) ([]byte, error) {
		builds++
		return []byte(fmt.Sprintf("%d", builds)), nil
	}

	_, _, _, err := c.GetOrBuild(context.Background(), "k", time.Minute, false, build)
	require.NoError(t, err)

	body, cached, _, err := c.GetOrBuild(context.Background(), "k", time.Minute, true, build)
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, []byte("2"), body)

	// The bypass refreshed the stored entry.
	body, cached, _, err = c.GetOrBuild(context.Background(), "k", time.Minute, false, build)
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, []byte("2"), body)
}

func TestErrorsAreNeverCached(t *testing.T) {
	c := New()

	fail := true
	build := func(context.Context) ([]byte, error) {
		if fail {
			return nil, errors.New("generation failed")
		}
		return []byte("ok"), nil
	}

	_, _, _, err := c.GetOrBuild(context.Background(), "k", time.Minute, false, build)
	require.Error(t, err)

	fail = false
	body, cached, _, err := c.GetOrBuild(context.Background(), "k", time.Minute, false, build)
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, []byte("ok"), body)
}

func TestConcurrentCallersShareOneBuild(t *testing.T) {
	c := New()

	var builds int64
	build := func(context.Context) ([]byte, error) {
		atomic.AddInt64(&builds, 1)
		time.Sleep(20 * time.Millisecond)
		return []byte("shared"), nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			body, _, _, err := c.GetOrBuild(context.Background(), "k", time.Minute, false, build)
			assert.NoError(t, err)
			assert.Equal(t, []byte("shared"), body)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), atomic.LoadInt64(&builds))
}

func TestInvalidate(t *testing.T) {
	c := New()

	builds := 0
	build := func(context.Context) ([]byte, error) {
		builds++
		return []byte("x"), nil
	}

	_, _, _, err := c.GetOrBuild(context.Background(), "k", time.Minute, false, build)
	require.NoError(t, err)
	c.Invalidate("k")
	_, cached, _, err := c.GetOrBuild(context.Background(), "k", time.Minute, false, build)
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, 2, builds)

	hits, misses := c.Stats()
	assert.Zero(t, hits)
	assert.Equal(t, int64(2), misses)
}
