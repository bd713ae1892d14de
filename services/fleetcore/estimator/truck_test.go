// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package estimator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/FleetCore/services/fleetcore/datatypes"
)

var testCfg = datatypes.TruckConfig{
	TruckID:         "T-100",
	UnitID:          4711,
	CapacityGallons: 200,
	CarrierID:       "carrier-1",
}

func testSnap(ts time.Time, fuel *float64, mut func(*datatypes.SensorSnapshot)) *datatypes.SensorSnapshot {
	s := &datatypes.SensorSnapshot{
		TruckID:      testCfg.TruckID,
		UnitID:       testCfg.UnitID,
		Timestamp:    ts,
		EpochSeconds: ts.Unix(),
		FuelLvl:      fuel,
	}
	if mut != nil {
		mut(s)
	}
	return s
}

func TestGapAwareRefuel(t *testing.T) {
	tr := NewTruck(testCfg, DefaultTuning())
	t0 := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

	// Seed at 15%.
	res := tr.Process(testSnap(t0, datatypes.Float(15), nil), datatypes.StatusParked, t0)
	require.NotNil(t, res.Metric)
	require.Nil(t, res.Refuel)

	// 20-minute gap, then 85%: an engine-off fill.
	tB := t0.Add(20 * time.Minute)
	res = tr.Process(testSnap(tB, datatypes.Float(85), nil), datatypes.StatusParked, tB)
	require.Nil(t, res.Refuel, "jump should be pending, not finalized yet")

	// Quiet past the pending window finalizes exactly one event.
	tC := tB.Add(11 * time.Minute)
	res = tr.Process(testSnap(tC, datatypes.Float(85), nil), datatypes.StatusParked, tC)
	require.NotNil(t, res.Refuel)

	ev := res.Refuel
	assert.Equal(t, "T-100", ev.TruckID)
	assert.InDelta(t, 140.0, ev.GallonsAdded, 0.001)
	assert.InDelta(t, 15.0, ev.BeforePct, 0.001)
	assert.InDelta(t, 85.0, ev.AfterPct, 0.001)
	assert.Equal(t, datatypes.DetectionGapAware, ev.Source)
	assert.Equal(t, datatypes.RefuelPartial, ev.Class)

	// The filter snaps to the post-fill level.
	assert.InDelta(t, 85.0, tr.EstimatedPct(), 0.5)

	// Nothing further within the cooldown emits a second event.
	for i := 1; i <= 5; i++ {
		ts := tC.Add(time.Duration(i) * 5 * time.Minute)
		res = tr.Process(testSnap(ts, datatypes.Float(85), nil), datatypes.StatusParked, ts)
		assert.Nil(t, res.Refuel, "no second event inside the cooldown")
	}
}

func TestRefuelFullClassification(t *testing.T) {
	tr := NewTruck(testCfg, DefaultTuning())
	t0 := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

	tr.Process(testSnap(t0, datatypes.Float(40), nil), datatypes.StatusParked, t0)
	tB := t0.Add(15 * time.Minute)
	tr.Process(testSnap(tB, datatypes.Float(96), nil), datatypes.StatusParked, tB)

	tC := tB.Add(11 * time.Minute)
	res := tr.Process(testSnap(tC, datatypes.Float(96), nil), datatypes.StatusParked, tC)
	require.NotNil(t, res.Refuel)
	assert.Equal(t, datatypes.RefuelFull, res.Refuel.Class)
}

func TestRefuelCooldown(t *testing.T) {
	tuning := DefaultTuning()
	d := &refuelDetector{tuning: tuning, truckID: "T-100", capacityGal: 200, refuelFactor: 1.0}

	t0 := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

	// Finalized event ending at t0.
	d.pending = &pendingRefuel{
		StartTime: t0.Add(-15 * time.Minute),
		BeforePct: 30, AfterPct: 60,
		LastJump: t0,
		Source:   datatypes.DetectionContinuous,
	}
	ev := d.flush(t0.Add(tuning.RefuelPendingWindow))
	require.NotNil(t, ev)

	// +18% jump 20 minutes after the finalized end: cooldown active.
	t1 := t0.Add(20 * time.Minute)
	got := d.observe(jumpObservation{
		BeforePct: 60, BeforeAt: t1.Add(-time.Minute),
		CurrentPct: 78, Now: t1,
	})
	assert.Nil(t, got)
	assert.Nil(t, d.pending, "cooldown must not open a pending fill")

	// Same jump 31+ minutes after the end: accepted.
	t2 := t0.Add(32 * time.Minute)
	got = d.observe(jumpObservation{
		BeforePct: 60, BeforeAt: t2.Add(-time.Minute),
		CurrentPct: 78, Now: t2,
	})
	assert.Nil(t, got, "event stays pending until the quiet window elapses")
	require.NotNil(t, d.pending)

	ev = d.flush(t2.Add(tuning.RefuelPendingWindow))
	require.NotNil(t, ev)
	assert.InDelta(t, 36.0, ev.GallonsAdded, 0.001)
}

func TestRefuelAntiNoiseMedian(t *testing.T) {
	tuning := DefaultTuning()
	d := &refuelDetector{tuning: tuning, truckID: "T-100", capacityGal: 200, refuelFactor: 1.0}

	t0 := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

	// Gauge glitched to 20% while the recent median sits at 70%: the
	// snap back to 72% is not a refuel.
	got := d.observe(jumpObservation{
		BeforePct: 20, BeforeAt: t0.Add(-time.Minute),
		CurrentPct: 72,
		MedianPct:  70, HasMedian: true,
		Now: t0,
	})
	assert.Nil(t, got)
	assert.Nil(t, d.pending)
}

func TestRefuelMinimums(t *testing.T) {
	tuning := DefaultTuning()
	// Tiny 20-gallon tank: a 16% jump is only 3.2 gallons.
	d := &refuelDetector{tuning: tuning, truckID: "T-1", capacityGal: 20, refuelFactor: 1.0}

	t0 := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	got := d.observe(jumpObservation{
		BeforePct: 40, BeforeAt: t0.Add(-time.Minute),
		CurrentPct: 56, Now: t0,
	})
	assert.Nil(t, got)
	assert.Nil(t, d.pending, "16% of a 20 gal tank is below the gallon minimum")
}

func TestMultiStepFillCollapses(t *testing.T) {
	tr := NewTruck(testCfg, DefaultTuning())
	t0 := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

	tr.Process(testSnap(t0, datatypes.Float(10), nil), datatypes.StatusParked, t0)

	// The pump reports the fill in two big steps two minutes apart.
	t1 := t0.Add(2 * time.Minute)
	res := tr.Process(testSnap(t1, datatypes.Float(45), nil), datatypes.StatusParked, t1)
	require.Nil(t, res.Refuel)

	t2 := t1.Add(2 * time.Minute)
	res = tr.Process(testSnap(t2, datatypes.Float(90), nil), datatypes.StatusParked, t2)
	require.Nil(t, res.Refuel)

	t3 := t2.Add(11 * time.Minute)
	res = tr.Process(testSnap(t3, datatypes.Float(90), nil), datatypes.StatusParked, t3)
	require.NotNil(t, res.Refuel)
	assert.InDelta(t, 10.0, res.Refuel.BeforePct, 0.001)
	assert.InDelta(t, 90.0, res.Refuel.AfterPct, 0.001)
	assert.InDelta(t, 160.0, res.Refuel.GallonsAdded, 0.001)
}

func TestSuspectedTheftDrop(t *testing.T) {
	tr := NewTruck(testCfg, DefaultTuning())
	t0 := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

	tr.Process(testSnap(t0, datatypes.Float(80), nil), datatypes.StatusStopped, t0)

	t1 := t0.Add(5 * time.Minute)
	res := tr.Process(testSnap(t1, datatypes.Float(65), nil), datatypes.StatusStopped, t1)
	require.NotNil(t, res.Drop)
	assert.Equal(t, DropSuspectedTheft, res.Drop.Class)
	assert.InDelta(t, 80.0, res.Drop.FromPct, 0.001)
	assert.InDelta(t, 65.0, res.Drop.ToPct, 0.001)
}

func TestConfirmedTheftDrop(t *testing.T) {
	tr := NewTruck(testCfg, DefaultTuning())
	t0 := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

	tr.Process(testSnap(t0, datatypes.Float(80), nil), datatypes.StatusStopped, t0)

	t1 := t0.Add(5 * time.Minute)
	res := tr.Process(testSnap(t1, datatypes.Float(50), nil), datatypes.StatusStopped, t1)
	require.NotNil(t, res.Drop)
	assert.Equal(t, DropConfirmedTheft, res.Drop.Class)
}

func TestDropRecoveryIsSensorNoise(t *testing.T) {
	tr := NewTruck(testCfg, DefaultTuning())
	t0 := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

	tr.Process(testSnap(t0, datatypes.Float(80), nil), datatypes.StatusStopped, t0)

	t1 := t0.Add(5 * time.Minute)
	res := tr.Process(testSnap(t1, datatypes.Float(65), nil), datatypes.StatusStopped, t1)
	require.NotNil(t, res.Drop)
	require.Equal(t, DropSuspectedTheft, res.Drop.Class)

	t2 := t1.Add(5 * time.Minute)
	res = tr.Process(testSnap(t2, datatypes.Float(79), nil), datatypes.StatusStopped, t2)
	require.NotNil(t, res.Drop)
	assert.Equal(t, DropSensorNoise, res.Drop.Class)
}

func TestMovingTruckNeverEmitsTheft(t *testing.T) {
	tr := NewTruck(testCfg, DefaultTuning())
	t0 := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

	tr.Process(testSnap(t0, datatypes.Float(80), nil), datatypes.StatusMoving, t0)

	t1 := t0.Add(30 * time.Minute)
	res := tr.Process(testSnap(t1, datatypes.Float(68), func(s *datatypes.SensorSnapshot) {
		s.Speed = datatypes.Float(55)
	}), datatypes.StatusMoving, t1)
	assert.Nil(t, res.Drop, "fuel burned while moving is consumption, not theft")
}

func TestMetricInvariants(t *testing.T) {
	tr := NewTruck(testCfg, DefaultTuning())
	t0 := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

	res := tr.Process(testSnap(t0, datatypes.Float(60), nil), datatypes.StatusParked, t0)
	require.NotNil(t, res.Metric)

	t1 := t0.Add(30 * time.Second)
	res = tr.Process(testSnap(t1, datatypes.Float(60), func(s *datatypes.SensorSnapshot) {
		s.Speed = datatypes.Float(55)
		s.FuelRate = datatypes.Float(30) // L/h -> ~7.93 gph
	}), datatypes.StatusMoving, t1)
	require.NotNil(t, res.Metric)
	m := res.Metric

	assert.GreaterOrEqual(t, m.EstimatedPct, 0.0)
	assert.LessOrEqual(t, m.EstimatedPct, 100.0)
	assert.InDelta(t, m.EstimatedPct/100*testCfg.CapacityGallons, m.EstimatedGal, 1e-9)
	assert.Equal(t, "fuel_rate", m.ConsumptionMethod)

	require.NotNil(t, m.MPG, "MOVING at 55 mph with 7.9 gph must carry MPG")
	assert.InDelta(t, 55.0/(30/datatypes.LitersPerGallon), *m.MPG, 0.01)
	assert.Nil(t, m.IdleMode, "idle mode only applies to STOPPED")
}

func TestNoMPGOutsidePlausibleBand(t *testing.T) {
	tr := NewTruck(testCfg, DefaultTuning())
	t0 := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	tr.Process(testSnap(t0, datatypes.Float(60), nil), datatypes.StatusParked, t0)

	// 60 mph at 2 gph would be 30 MPG: a sensor artifact for a class-8
	// truck, so the metric stays empty.
	t1 := t0.Add(time.Minute)
	res := tr.Process(testSnap(t1, datatypes.Float(60), func(s *datatypes.SensorSnapshot) {
		s.Speed = datatypes.Float(60)
		s.FuelRate = datatypes.Float(2 * datatypes.LitersPerGallon)
	}), datatypes.StatusMoving, t1)
	require.NotNil(t, res.Metric)
	assert.Nil(t, res.Metric.MPG)
}

func TestIdleModeOnlyWhenStopped(t *testing.T) {
	tr := NewTruck(testCfg, DefaultTuning())
	t0 := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	tr.Process(testSnap(t0, datatypes.Float(60), nil), datatypes.StatusParked, t0)

	t1 := t0.Add(time.Minute)
	res := tr.Process(testSnap(t1, datatypes.Float(60), func(s *datatypes.SensorSnapshot) {
		s.RPM = datatypes.Float(750)
	}), datatypes.StatusStopped, t1)
	require.NotNil(t, res.Metric)
	require.NotNil(t, res.Metric.IdleMode)
	assert.Equal(t, "rpm_scaled", *res.Metric.IdleMode)
}

func TestStaleSnapshotDiscarded(t *testing.T) {
	tr := NewTruck(testCfg, DefaultTuning())
	t0 := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	tr.Process(testSnap(t0, datatypes.Float(60), nil), datatypes.StatusParked, t0)

	res := tr.Process(testSnap(t0.Add(-time.Minute), datatypes.Float(10), nil), datatypes.StatusParked, t0)
	assert.Nil(t, res.Metric, "older snapshots must be dropped")
}

func TestECUPreferredOverFuelRate(t *testing.T) {
	tr := NewTruck(testCfg, DefaultTuning())
	t0 := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

	tr.Process(testSnap(t0, datatypes.Float(60), func(s *datatypes.SensorSnapshot) {
		s.TotalFuelUsed = datatypes.Float(10000)
	}), datatypes.StatusMoving, t0)

	t1 := t0.Add(time.Hour)
	res := tr.Process(testSnap(t1, datatypes.Float(57), func(s *datatypes.SensorSnapshot) {
		s.TotalFuelUsed = datatypes.Float(10006) // 6 gal over 1 h
		s.FuelRate = datatypes.Float(40)         // diverging sensor
		s.Speed = datatypes.Float(55)
	}), datatypes.StatusMoving, t1)
	require.NotNil(t, res.Metric)
	assert.Equal(t, "ecu_delta", res.Metric.ConsumptionMethod)
	assert.InDelta(t, 6.0, res.Metric.ConsumptionG, 0.001)
}

func TestECUDegradedAfterRepeatedFailures(t *testing.T) {
	tuning := DefaultTuning()
	e := ecuTracker{tuning: tuning}
	t0 := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

	// Seed.
	_, ok := e.consumption(datatypes.Float(1000), 1, t0)
	require.False(t, ok)

	// Five counter resets in a row.
	total := 1000.0
	for i := 0; i < tuning.ECUFailureLimit; i++ {
		total -= 50
		_, ok = e.consumption(datatypes.Float(total), 0.01, t0.Add(time.Duration(i)*time.Minute))
		assert.False(t, ok)
	}
	assert.True(t, e.degraded)

	// A clean delta inside the recovery window is still rejected.
	_, ok = e.consumption(datatypes.Float(total+1), 0.25, t0.Add(6*time.Minute))
	assert.False(t, ok)

	// After the recovery window the counter is trusted again.
	_, ok = e.consumption(datatypes.Float(total+2), 0.25, t0.Add(20*time.Minute))
	assert.True(t, ok)
}

func TestStateRoundTripAndStaleness(t *testing.T) {
	tr := NewTruck(testCfg, DefaultTuning())
	t0 := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	tr.Process(testSnap(t0, datatypes.Float(62), nil), datatypes.StatusParked, t0)

	st := tr.Snapshot(t0)

	fresh := NewTruck(testCfg, DefaultTuning())
	require.NoError(t, fresh.Restore(st, t0.Add(30*time.Minute)))
	assert.InDelta(t, tr.EstimatedPct(), fresh.EstimatedPct(), 1e-9)
	assert.True(t, fresh.Initialized())

	stale := NewTruck(testCfg, DefaultTuning())
	err := stale.Restore(st, t0.Add(3*time.Hour))
	assert.ErrorIs(t, err, ErrStateStale)
	assert.False(t, stale.Initialized())
}

func TestDriftResync(t *testing.T) {
	tuning := DefaultTuning()
	tr := NewTruck(testCfg, tuning)
	t0 := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

	tr.Process(testSnap(t0, datatypes.Float(90), nil), datatypes.StatusParked, t0)
	// Force the filter far away from the gauge.
	tr.filter.reset(20, tuning.VarianceFloor)

	// Sustained 70-point disagreement; readings arrive every 15 min but
	// never anchor (moving). After the drift window the filter resyncs.
	for i := 1; i <= 10; i++ {
		ts := t0.Add(time.Duration(i) * 15 * time.Minute)
		tr.Process(testSnap(ts, datatypes.Float(90), func(s *datatypes.SensorSnapshot) {
			s.Speed = datatypes.Float(60 + float64(i%3)*5) // unstable cruise
		}), datatypes.StatusMoving, ts)
	}
	assert.InDelta(t, 90.0, tr.EstimatedPct(), 3.0)
}

func TestKalmanUpdateConverges(t *testing.T) {
	tuning := DefaultTuning()
	f := newFilter(50)

	for i := 0; i < 20; i++ {
		f.update(70, tuning.MeasurementNoise, tuning.VarianceFloor)
	}
	assert.InDelta(t, 70.0, f.mean, 0.5)
	assert.GreaterOrEqual(t, f.variance, tuning.VarianceFloor)
}

func TestKalmanPredictClamps(t *testing.T) {
	f := newFilter(2)
	f.predict(10, 1, 0.05) // burn 10%/h for an hour from 2%
	assert.Equal(t, 0.0, f.mean)

	f = newFilter(100)
	f.predict(-10, 1, 0.05)
	assert.Equal(t, 100.0, f.mean)
}
