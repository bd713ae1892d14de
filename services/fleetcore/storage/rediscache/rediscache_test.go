// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package rediscache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/FleetCore/services/fleetcore/datatypes"
)

func newTestMirror(t *testing.T) (*Mirror, *miniredis.Miniredis) {
	t.Helper()

	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewWithClient(client), srv
}

func TestAlgorithmStateMirrorRoundTrip(t *testing.T) {
	mirror, _ := newTestMirror(t)
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	states := []datatypes.AlgorithmState{
		{TruckID: "T-100", Sensor: "oil_press", EWMAValue: 38.2, SampleCount: 12,
			TrendDirection: datatypes.TrendDown, UpdatedAt: now},
		{TruckID: "T-200", Sensor: "cool_temp", EWMAValue: 185.0, SampleCount: 40,
			TrendDirection: datatypes.TrendStable, UpdatedAt: now},
	}
	require.NoError(t, mirror.SaveAlgorithmStates(ctx, states, time.Hour))

	got, err := mirror.LoadAlgorithmStates(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)

	byTruck := map[string]datatypes.AlgorithmState{}
	for _, st := range got {
		byTruck[st.TruckID] = st
	}
	assert.Equal(t, 38.2, byTruck["T-100"].EWMAValue)
	assert.Equal(t, int64(40), byTruck["T-200"].SampleCount)
}

func TestAlgorithmStateMirrorExpires(t *testing.T) {
	mirror, srv := newTestMirror(t)
	ctx := context.Background()

	require.NoError(t, mirror.SaveAlgorithmStates(ctx, []datatypes.AlgorithmState{
		{TruckID: "T-100", Sensor: "oil_press", EWMAValue: 38.2},
	}, time.Minute))

	srv.FastForward(2 * time.Minute)

	got, err := mirror.LoadAlgorithmStates(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestResponseShadow(t *testing.T) {
	mirror, _ := newTestMirror(t)
	ctx := context.Background()

	_, ok, err := mirror.GetResponse(ctx, "dashboard")
	require.NoError(t, err)
	assert.False(t, ok)

	body := []byte(`{"success":true}`)
	require.NoError(t, mirror.SetResponse(ctx, "dashboard", body, 30*time.Second))

	got, ok, err := mirror.GetResponse(ctx, "dashboard")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, body, got)
}

func TestResponseShadowExpires(t *testing.T) {
	mirror, srv := newTestMirror(t)
	ctx := context.Background()

	require.NoError(t, mirror.SetResponse(ctx, "actions", []byte("x"), 15*time.Second))
	srv.FastForward(16 * time.Second)

	_, ok, err := mirror.GetResponse(ctx, "actions")
	require.NoError(t, err)
	assert.False(t, ok)
}
