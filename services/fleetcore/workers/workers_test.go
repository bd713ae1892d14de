// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package workers

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/FleetCore/services/fleetcore/datatypes"
	"github.com/AleutianAI/FleetCore/services/fleetcore/estimator"
	"github.com/AleutianAI/FleetCore/services/fleetcore/registry"
	"github.com/AleutianAI/FleetCore/services/fleetcore/trend"
)

// =============================================================================
// Fakes
// =============================================================================

type fakeSource struct {
	mu        sync.Mutex
	snapshots []datatypes.SensorSnapshot
	err       error
	calls     int
}

func (f *fakeSource) ReadAllTrucks(ctx context.Context) ([]datatypes.SensorSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([]datatypes.SensorSnapshot, len(f.snapshots))
	copy(out, f.snapshots)
	return out, nil
}

type fakeStore struct {
	mu        sync.Mutex
	metrics   []datatypes.FuelMetric
	refuels   []datatypes.RefuelEvent
	anomalies []datatypes.AnomalyRecord
}

func (f *fakeStore) UpsertFuelMetrics(ctx context.Context, metrics []datatypes.FuelMetric) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.metrics = append(f.metrics, metrics...)
	return nil
}

func (f *fakeStore) UpsertRefuelEvent(ctx context.Context, ev *datatypes.RefuelEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refuels = append(f.refuels, *ev)
	return nil
}

func (f *fakeStore) InsertAnomalies(ctx context.Context, anomalies []datatypes.AnomalyRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.anomalies = append(f.anomalies, anomalies...)
	return nil
}

func testRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg, err := registry.New([]datatypes.TruckConfig{
		{TruckID: "T-100", UnitID: 1, CapacityGallons: 200},
		{TruckID: "T-200", UnitID: 2, CapacityGallons: 150},
	})
	require.NoError(t, err)
	return reg
}

func movingSnapshot(truckID string, unit int, ts time.Time) datatypes.SensorSnapshot {
	return datatypes.SensorSnapshot{
		TruckID:      truckID,
		UnitID:       unit,
		Timestamp:    ts,
		EpochSeconds: ts.Unix(),
		FuelLvl:      datatypes.Float(62.0),
		Speed:        datatypes.Float(55.0),
		RPM:          datatypes.Float(1400),
		OilPress:     datatypes.Float(42.0),
		CoolTemp:     datatypes.Float(188.0),
	}
}

func newTestLoop(t *testing.T, src SnapshotSource, store MetricsStore) *TelemetryLoop {
	t.Helper()
	return NewTelemetryLoop(TelemetryConfig{
		Source:   src,
		Registry: testRegistry(t),
		Trends:   trend.NewEngine(0.3, 5.0, nil),
		Gate:     trend.NewGate(nil),
		Store:    store,
		Tuning:   estimator.DefaultTuning(),
		Interval: time.Minute,
		Workers:  4,
	})
}

// =============================================================================
// Telemetry loop
// =============================================================================

func TestCycleProcessesSnapshots(t *testing.T) {
	now := time.Now().UTC()
	src := &fakeSource{snapshots: []datatypes.SensorSnapshot{
		movingSnapshot("T-100", 1, now),
	}}
	store := &fakeStore{}
	loop := newTestLoop(t, src, store)

	loop.RunCycle(context.Background())

	views := loop.Snapshots()
	require.Len(t, views, 1)
	assert.Equal(t, "T-100", views[0].TruckID)
	assert.Equal(t, datatypes.StatusMoving, loop.Status("T-100"))
	assert.Equal(t, datatypes.StatusOffline, loop.Status("T-200"))

	require.Len(t, store.metrics, 1)
	assert.Equal(t, "T-100", store.metrics[0].TruckID)
	assert.InDelta(t, 62.0, store.metrics[0].EstimatedPct, 0.01)
}

func TestCycleSkippedWhileBusy(t *testing.T) {
	src := &fakeSource{}
	loop := newTestLoop(t, src, nil)

	loop.busy.Store(true)
	loop.RunCycle(context.Background())
	assert.Equal(t, 0, src.calls)

	loop.busy.Store(false)
	loop.RunCycle(context.Background())
	assert.Equal(t, 1, src.calls)
}

func TestCycleSourceFailureLeavesViewsIntact(t *testing.T) {
	now := time.Now().UTC()
	src := &fakeSource{snapshots: []datatypes.SensorSnapshot{
		movingSnapshot("T-100", 1, now),
	}}
	loop := newTestLoop(t, src, nil)
	loop.RunCycle(context.Background())
	require.Len(t, loop.Snapshots(), 1)

	src.mu.Lock()
	src.err = errors.New("upstream gone")
	src.mu.Unlock()
	loop.RunCycle(context.Background())

	// The previous cycle's view still serves.
	assert.Len(t, loop.Snapshots(), 1)
}

func TestStatusCountsIncludeUnseenTrucks(t *testing.T) {
	now := time.Now().UTC()
	src := &fakeSource{snapshots: []datatypes.SensorSnapshot{
		movingSnapshot("T-100", 1, now),
	}}
	loop := newTestLoop(t, src, nil)
	loop.RunCycle(context.Background())

	counts := loop.StatusCounts()
	assert.Equal(t, 2, counts.Total)
	assert.Equal(t, 1, counts.Moving)
	assert.Equal(t, 1, counts.Offline)
}

func TestEstimatorSnapshotsCapturedPerCycle(t *testing.T) {
	now := time.Now().UTC()
	src := &fakeSource{snapshots: []datatypes.SensorSnapshot{
		movingSnapshot("T-100", 1, now),
	}}
	loop := newTestLoop(t, src, nil)

	assert.Empty(t, loop.EstimatorSnapshots(now))

	loop.RunCycle(context.Background())
	states := loop.EstimatorSnapshots(now)
	require.Len(t, states, 1)
	assert.Equal(t, "T-100", states[0].TruckID)
	assert.True(t, states[0].Initialized)
	assert.InDelta(t, 62.0, states[0].Mean, 0.01)
}

func TestRestoreEstimatorsSkipsStaleAndUnknown(t *testing.T) {
	now := time.Now().UTC()
	loop := newTestLoop(t, &fakeSource{}, nil)

	loop.RestoreEstimators(map[string]estimator.PersistedState{
		"T-100": {TruckID: "T-100", Mean: 48, Initialized: true,
			LastTS: now.Add(-10 * time.Minute), SavedAt: now.Add(-10 * time.Minute)},
		"T-200": {TruckID: "T-200", Mean: 30, Initialized: true,
			LastTS: now.Add(-3 * time.Hour), SavedAt: now.Add(-3 * time.Hour)},
		"T-999": {TruckID: "T-999", Mean: 10, Initialized: true,
			LastTS: now, SavedAt: now},
	}, now)

	states := loop.EstimatorSnapshots(now)
	assert.Empty(t, states) // nothing published before the first cycle

	assert.True(t, loop.trucks["T-100"].Initialized())
	assert.False(t, loop.trucks["T-200"].Initialized())
}

func TestGateConfirmedByRepeatedBreaches(t *testing.T) {
	base := time.Now().UTC().Add(-time.Minute)
	gate := trend.NewGate(nil)

	low := movingSnapshot("T-100", 1, base)
	low.OilPress = datatypes.Float(18.0)

	src := &fakeSource{snapshots: []datatypes.SensorSnapshot{low}}
	loop := NewTelemetryLoop(TelemetryConfig{
		Source:   src,
		Registry: testRegistry(t),
		Trends:   trend.NewEngine(0.3, 5.0, nil),
		Gate:     gate,
		Tuning:   estimator.DefaultTuning(),
		Interval: time.Minute,
		Workers:  1,
	})

	loop.RunCycle(context.Background())
	assert.False(t, gate.Met("T-100", "oil_press", base))

	second := low
	second.Timestamp = base.Add(30 * time.Second)
	second.EpochSeconds = second.Timestamp.Unix()
	src.mu.Lock()
	src.snapshots = []datatypes.SensorSnapshot{second}
	src.mu.Unlock()

	loop.RunCycle(context.Background())
	assert.True(t, gate.Met("T-100", "oil_press", second.Timestamp))
}

func TestGateClearedOnRecovery(t *testing.T) {
	base := time.Now().UTC().Add(-time.Minute)
	gate := trend.NewGate(nil)

	low := movingSnapshot("T-100", 1, base)
	low.OilPress = datatypes.Float(18.0)
	src := &fakeSource{snapshots: []datatypes.SensorSnapshot{low}}
	loop := NewTelemetryLoop(TelemetryConfig{
		Source:   src,
		Registry: testRegistry(t),
		Gate:     gate,
		Tuning:   estimator.DefaultTuning(),
		Interval: time.Minute,
		Workers:  1,
	})
	loop.RunCycle(context.Background())

	healthy := movingSnapshot("T-100", 1, base.Add(30*time.Second))
	healthy.EpochSeconds = healthy.Timestamp.Unix()
	src.mu.Lock()
	src.snapshots = []datatypes.SensorSnapshot{healthy}
	src.mu.Unlock()
	loop.RunCycle(context.Background())

	third := low
	third.Timestamp = base.Add(time.Minute)
	third.EpochSeconds = third.Timestamp.Unix()
	src.mu.Lock()
	src.snapshots = []datatypes.SensorSnapshot{third}
	src.mu.Unlock()
	loop.RunCycle(context.Background())

	// Recovery wiped the first confirmation; one breach since is not
	// enough.
	assert.False(t, gate.Met("T-100", "oil_press", third.Timestamp))
}

func TestDetectionHooksObserveRefuelsAndDrops(t *testing.T) {
	var (
		mu      sync.Mutex
		refuels []datatypes.RefuelEvent
		drops   []estimator.FuelDrop
	)
	loop := NewTelemetryLoop(TelemetryConfig{
		Source:   &fakeSource{},
		Registry: testRegistry(t),
		Tuning:   estimator.DefaultTuning(),
		Interval: time.Minute,
		Workers:  1,
		OnRefuel: func(ev datatypes.RefuelEvent) {
			mu.Lock()
			refuels = append(refuels, ev)
			mu.Unlock()
		},
		OnDrop: func(drop estimator.FuelDrop) {
			mu.Lock()
			drops = append(drops, drop)
			mu.Unlock()
		},
	})

	ev := &datatypes.RefuelEvent{TruckID: "T-100", GallonsAdded: 42.5}
	loop.recordDetections([]*datatypes.RefuelEvent{ev}, []estimator.FuelDrop{
		{TruckID: "T-100", Class: estimator.DropConfirmedTheft},
		{TruckID: "T-200", Class: estimator.DropSensorNoise},
	}, nil)

	require.Len(t, refuels, 1)
	assert.Equal(t, 42.5, refuels[0].GallonsAdded)

	// Recovered sensor noise never reaches the hook.
	require.Len(t, drops, 1)
	assert.Equal(t, estimator.DropConfirmedTheft, drops[0].Class)
}

// =============================================================================
// State flusher
// =============================================================================

type fakeSink struct {
	mu     sync.Mutex
	est    [][]estimator.PersistedState
	alg    [][]datatypes.AlgorithmState
	estErr error
}

func (f *fakeSink) SaveEstimatorStates(states []estimator.PersistedState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.estErr != nil {
		return f.estErr
	}
	f.est = append(f.est, states)
	return nil
}

func (f *fakeSink) SaveAlgorithmStates(states []datatypes.AlgorithmState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alg = append(f.alg, states)
	return nil
}

type fakeAlgMirror struct {
	mu     sync.Mutex
	states []datatypes.AlgorithmState
}

func (f *fakeAlgMirror) UpsertAlgorithmStates(ctx context.Context, states []datatypes.AlgorithmState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states = append(f.states, states...)
	return nil
}

func TestStateFlusherFlushesAllSinks(t *testing.T) {
	now := time.Now().UTC()
	src := &fakeSource{snapshots: []datatypes.SensorSnapshot{
		movingSnapshot("T-100", 1, now),
	}}
	engine := trend.NewEngine(0.3, 5.0, nil)
	loop := NewTelemetryLoop(TelemetryConfig{
		Source:   src,
		Registry: testRegistry(t),
		Trends:   engine,
		Tuning:   estimator.DefaultTuning(),
		Interval: time.Minute,
		Workers:  1,
	})
	loop.RunCycle(context.Background())

	sink := &fakeSink{}
	mirror := &fakeAlgMirror{}
	flusher := NewStateFlusher(FlusherConfig{
		Estimators: loop,
		Algorithms: engine,
		Sink:       sink,
		DB:         mirror,
		Interval:   time.Minute,
	})

	flusher.FlushOnce(context.Background(), now)

	require.Len(t, sink.est, 1)
	require.Len(t, sink.est[0], 1)
	assert.Equal(t, "T-100", sink.est[0][0].TruckID)
	require.Len(t, sink.alg, 1)
	assert.NotEmpty(t, sink.alg[0])
	assert.Equal(t, len(sink.alg[0]), len(mirror.states))
}

func TestStateFlusherSurvivesSinkFailure(t *testing.T) {
	now := time.Now().UTC()
	loop := newTestLoop(t, &fakeSource{}, nil)
	sink := &fakeSink{estErr: errors.New("disk full")}

	flusher := NewStateFlusher(FlusherConfig{
		Estimators: loop,
		Algorithms: trend.NewEngine(0.3, 5.0, nil),
		Sink:       sink,
		Interval:   time.Minute,
	})

	// Must not panic; algorithm persistence still runs.
	flusher.FlushOnce(context.Background(), now)
	assert.Len(t, sink.alg, 1)
}

// =============================================================================
// Trend recorder
// =============================================================================

func TestTrendRecorderRingBounded(t *testing.T) {
	rec := NewTrendRecorder(RecorderConfig{
		Sample:   func(ctx context.Context) (datatypes.TrendPoint, error) { return datatypes.TrendPoint{}, nil },
		Interval: time.Minute,
		MaxRing:  5,
	})

	for i := 0; i < 8; i++ {
		rec.Append(datatypes.TrendPoint{HealthScore: float64(i)})
	}

	points := rec.Points(0)
	require.Len(t, points, 5)
	assert.Equal(t, 3.0, points[0].HealthScore)
	assert.Equal(t, 7.0, points[4].HealthScore)
}

func TestTrendRecorderPointsLimit(t *testing.T) {
	rec := NewTrendRecorder(RecorderConfig{
		Sample:   func(ctx context.Context) (datatypes.TrendPoint, error) { return datatypes.TrendPoint{}, nil },
		Interval: time.Minute,
		MaxRing:  100,
	})
	for i := 0; i < 10; i++ {
		rec.Append(datatypes.TrendPoint{HealthScore: float64(i)})
	}

	points := rec.Points(3)
	require.Len(t, points, 3)
	assert.Equal(t, 7.0, points[0].HealthScore)
}

func TestTrendRecorderBroadcastsSamples(t *testing.T) {
	var (
		mu  sync.Mutex
		got []datatypes.TrendPoint
	)
	rec := NewTrendRecorder(RecorderConfig{
		Sample: func(ctx context.Context) (datatypes.TrendPoint, error) {
			return datatypes.TrendPoint{HealthScore: 88, TotalActions: 3}, nil
		},
		Interval: time.Minute,
		MaxRing:  10,
		OnSample: func(p datatypes.TrendPoint) {
			mu.Lock()
			got = append(got, p)
			mu.Unlock()
		},
	})

	rec.RecordOnce(context.Background())
	require.Len(t, got, 1)
	assert.Equal(t, 88.0, got[0].HealthScore)
	assert.Equal(t, 1, rec.Len())
}

func TestTrendRecorderSampleFailureSkipsAppend(t *testing.T) {
	rec := NewTrendRecorder(RecorderConfig{
		Sample: func(ctx context.Context) (datatypes.TrendPoint, error) {
			return datatypes.TrendPoint{}, errors.New("generation failed")
		},
		Interval: time.Minute,
		MaxRing:  10,
	})
	rec.RecordOnce(context.Background())
	assert.Zero(t, rec.Len())
}
