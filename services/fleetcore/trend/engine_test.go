// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package trend

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/FleetCore/services/fleetcore/datatypes"
)

func TestObserveValidation(t *testing.T) {
	e := NewEngine(0.3, 5.0, nil)
	t0 := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

	reading, _ := e.Observe("T-100", "oil_press", 45, t0)
	assert.True(t, reading.IsValid)

	// 400 PSI is outside the oil pressure range: dropped, ring intact.
	reading, anomalies := e.Observe("T-100", "oil_press", 400, t0.Add(time.Minute))
	assert.False(t, reading.IsValid)
	assert.Empty(t, anomalies)
	assert.Len(t, e.Recent("T-100", "oil_press"), 1)
}

func TestRingBounded(t *testing.T) {
	e := NewEngine(0.3, 5.0, nil)
	t0 := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

	for i := 0; i < 25; i++ {
		e.Observe("T-100", "cool_temp", 180+float64(i%3), t0.Add(time.Duration(i)*time.Minute))
	}
	ring := e.Recent("T-100", "cool_temp")
	require.Len(t, ring, 10)
	// Newest last.
	assert.Equal(t, t0.Add(24*time.Minute), ring[9].Timestamp)
}

func TestEWMAFollowsSignal(t *testing.T) {
	e := NewEngine(0.3, 1e9, nil) // CUSUM effectively off
	t0 := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

	e.Observe("T-100", "oil_press", 50, t0)
	st, ok := e.State("T-100", "oil_press")
	require.True(t, ok)
	assert.InDelta(t, 50.0, st.EWMAValue, 1e-9, "EWMA initializes to the first value")

	e.Observe("T-100", "oil_press", 60, t0.Add(time.Minute))
	st, _ = e.State("T-100", "oil_press")
	assert.InDelta(t, 0.3*60+0.7*50, st.EWMAValue, 1e-9)
}

func TestCUSUMDetectsSustainedShift(t *testing.T) {
	e := NewEngine(0.3, 5.0, nil)
	t0 := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

	// Stable around 45 PSI.
	for i := 0; i < 10; i++ {
		e.Observe("T-100", "oil_press", 45, t0.Add(time.Duration(i)*time.Minute))
	}

	// Sustained 3-point sag: individually unremarkable, cumulatively
	// a shift.
	var fired *datatypes.AnomalyRecord
	for i := 10; i < 16; i++ {
		_, anomalies := e.Observe("T-100", "oil_press", 42, t0.Add(time.Duration(i)*time.Minute))
		for _, a := range anomalies {
			if a.Type == datatypes.AnomalyCUSUM {
				a := a
				fired = &a
			}
		}
	}
	require.NotNil(t, fired, "CUSUM must flag a sustained downward shift")
	assert.Equal(t, 5.0, fired.Threshold)
	assert.Greater(t, fired.CUSUMValue, 5.0)
	assert.NotEmpty(t, fired.Severity)
}

func TestEWMADeviationAnomaly(t *testing.T) {
	e := NewEngine(0.3, 1e9, nil)
	t0 := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

	// Baseline with a little spread so std is non-zero.
	vals := []float64{44, 45, 46, 45, 44, 45, 46, 45}
	for i, v := range vals {
		e.Observe("T-100", "oil_press", v, t0.Add(time.Duration(i)*time.Minute))
	}

	_, anomalies := e.Observe("T-100", "oil_press", 20, t0.Add(time.Hour))
	require.NotEmpty(t, anomalies)
	a := anomalies[0]
	assert.Equal(t, datatypes.AnomalyEWMA, a.Type)
	assert.Greater(t, a.ZScore, 3.0)

	// The record carries the statistical context of the detection.
	assert.Equal(t, 20.0, a.Value)
	assert.InDelta(t, 45.0, a.EWMAValue, 1.0)
	assert.Equal(t, 3.0, a.Threshold)
	assert.Equal(t, "critical", a.Severity, "a 20 PSI reading against a 45 PSI baseline is far past twice the limit")
}

func TestStateRestoreRoundTrip(t *testing.T) {
	e := NewEngine(0.3, 5.0, nil)
	t0 := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	for i := 0; i < 8; i++ {
		e.Observe("T-100", "cool_temp", 180+float64(i), t0.Add(time.Duration(i)*time.Minute))
	}

	states := e.AllStates()
	require.Len(t, states, 1)

	warm := NewEngine(0.3, 5.0, nil)
	warm.Restore(states)

	got, ok := warm.State("T-100", "cool_temp")
	require.True(t, ok)
	want := states[0]
	assert.InDelta(t, want.EWMAValue, got.EWMAValue, 1e-9)
	assert.InDelta(t, want.BaselineMean, got.BaselineMean, 1e-6)
	assert.InDelta(t, want.BaselineStd, got.BaselineStd, 1e-6)
	assert.Equal(t, want.SampleCount, got.SampleCount)
}

func TestGatePersistence(t *testing.T) {
	g := NewGate(nil)
	t0 := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

	// oil_press needs 2 confirmations within 60 s.
	assert.False(t, g.Confirm("T-100", "oil_press", t0))
	assert.True(t, g.Confirm("T-100", "oil_press", t0.Add(30*time.Second)))

	// Confirmations age out of the window.
	g.Clear("T-100", "oil_press")
	assert.False(t, g.Confirm("T-100", "oil_press", t0))
	assert.False(t, g.Confirm("T-100", "oil_press", t0.Add(2*time.Minute)),
		"first confirmation fell outside the 60 s window")
}

func TestGateUnknownSensorAlwaysMet(t *testing.T) {
	g := NewGate(nil)
	t0 := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	assert.True(t, g.Confirm("T-100", "turbo_boost", t0))
	assert.True(t, g.Met("T-100", "turbo_boost", t0))
}

func TestGateMetDoesNotRecord(t *testing.T) {
	g := NewGate(nil)
	t0 := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

	g.Confirm("T-100", "def_level", t0) // 1 of 3
	assert.False(t, g.Met("T-100", "def_level", t0))
	assert.False(t, g.Met("T-100", "def_level", t0))

	g.Confirm("T-100", "def_level", t0.Add(10*time.Minute))
	assert.False(t, g.Met("T-100", "def_level", t0.Add(10*time.Minute)))
	g.Confirm("T-100", "def_level", t0.Add(20*time.Minute))
	assert.True(t, g.Met("T-100", "def_level", t0.Add(20*time.Minute)))
}
