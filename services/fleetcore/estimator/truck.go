// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// This file contains the Truck type: the per-truck co-location of the
// Kalman filter, anchor tracker, ECU tracker, refuel detector, drop
// tracking, and drift watchdog, plus the per-cycle metric derivation.
package estimator

import (
	"log/slog"
	"sort"
	"time"

	"github.com/AleutianAI/FleetCore/services/fleetcore/datatypes"
)

// fuelHistoryLen is the depth of the recent valid-reading ring backing
// the refuel anti-noise median.
const fuelHistoryLen = 5

// MPG plausibility gates. Outside these the figure is noise, not a
// fuel-economy measurement.
const (
	mpgMinSpeedMPH = 5.0
	mpgMinGPH      = 0.5
	mpgFloor       = 2.5
	mpgCeil        = 15.0
)

// DropClass classifies a detected fuel-level drop.
type DropClass string

const (
	DropSuspectedTheft DropClass = "suspected_theft"
	DropConfirmedTheft DropClass = "confirmed_theft"
	DropSensorNoise    DropClass = "sensor_noise"
)

// FuelDrop is an abnormal fuel-level decrease detected while the truck
// was stopped.
type FuelDrop struct {
	TruckID    string    `json:"truck_id"`
	Class      DropClass `json:"class"`
	FromPct    float64   `json:"from_pct"`
	ToPct      float64   `json:"to_pct"`
	DetectedAt time.Time `json:"detected_at"`
}

// fuelReading is one entry of the recent-history ring.
type fuelReading struct {
	Pct float64   `json:"pct"`
	At  time.Time `json:"at"`
}

// openDrop tracks a suspected drop awaiting recovery or confirmation.
type openDrop struct {
	FromPct    float64   `json:"from_pct"`
	ToPct      float64   `json:"to_pct"`
	DetectedAt time.Time `json:"detected_at"`
	Confirmed  bool      `json:"confirmed"`
}

// CycleResult is everything one snapshot produced: the metric row, an
// optional finalized refuel, and an optional drop event.
type CycleResult struct {
	Metric *datatypes.FuelMetric
	Refuel *datatypes.RefuelEvent
	Drop   *FuelDrop
}

// Truck is the estimator state for one vehicle.
//
// # Thread Safety
//
// Not safe for concurrent use. The telemetry loop owns each Truck
// exclusively; other readers take Snapshot() copies.
type Truck struct {
	cfg    datatypes.TruckConfig
	tuning Tuning

	filter      filter
	initialized bool
	lastTS      time.Time

	anchor anchorTracker
	ecu    ecuTracker
	refuel refuelDetector

	history []fuelReading // newest last, capped at fuelHistoryLen

	lastGood    fuelReading
	hasLastGood bool

	drop        *openDrop
	dropNew     bool      // a drop opened this cycle
	dropUpgrade bool      // an open drop crossed the confirmation line
	dropNoise   *FuelDrop // a drop recovered and was reclassified
	driftSince  time.Time
}

// NewTruck builds the estimator for one configured vehicle.
func NewTruck(cfg datatypes.TruckConfig, tuning Tuning) *Truck {
	return &Truck{
		cfg:    cfg,
		tuning: tuning,
		anchor: anchorTracker{tuning: tuning},
		ecu:    ecuTracker{tuning: tuning},
		refuel: refuelDetector{
			tuning:       tuning,
			truckID:      cfg.TruckID,
			capacityGal:  cfg.CapacityGallons,
			refuelFactor: cfg.EffectiveRefuelFactor(),
		},
	}
}

// Config returns the static configuration of this truck.
func (t *Truck) Config() datatypes.TruckConfig { return t.cfg }

// Process advances the estimator with one snapshot and derives the
// cycle's outputs. Snapshots older than the last processed one are
// discarded (nil Metric); within a truck, time only moves forward.
func (t *Truck) Process(s *datatypes.SensorSnapshot, st datatypes.TruckStatus, now time.Time) CycleResult {
	if !t.lastTS.IsZero() && !s.Timestamp.After(t.lastTS) {
		return CycleResult{}
	}

	if !t.initialized {
		if s.FuelLvl == nil {
			// Nothing to seed the filter with yet; wait for a gauge
			// reading rather than invent a level.
			return CycleResult{}
		}
		t.filter = newFilter(*s.FuelLvl)
		t.initialized = true
		t.lastTS = s.Timestamp
		t.recordGood(*s.FuelLvl, s.Timestamp)
		// Seed the ECU tracker so the first real cycle has a delta.
		t.ecu.consumption(s.TotalFuelUsed, 0, s.Timestamp)
		metric := t.buildMetric(s, st, now, 0, "idle_estimate")
		return CycleResult{Metric: metric}
	}

	dtHours := s.Timestamp.Sub(t.lastTS).Hours()
	t.lastTS = s.Timestamp

	gph, method := t.selectConsumption(s, dtHours)

	q := t.tuning.ProcessNoiseStatic
	if st == datatypes.StatusMoving {
		q = t.tuning.ProcessNoiseMoving
	}
	pctPerHour := gph / t.cfg.CapacityGallons * 100
	t.filter.predict(pctPerHour, dtHours, q)

	res := CycleResult{}

	if s.FuelLvl != nil {
		res.Refuel = t.observeLevel(*s.FuelLvl, s.Timestamp, st)
	} else {
		res.Refuel = t.refuel.flush(s.Timestamp)
	}
	if res.Refuel != nil {
		t.applyRefuelReset(res.Refuel)
	}

	res.Drop = t.takeDropEvent(s.Timestamp)

	if s.FuelLvl != nil {
		t.checkDrift(*s.FuelLvl, s.Timestamp)
		if t.anchor.observe(s, now) != AnchorNone {
			t.filter.update(*s.FuelLvl, t.tuning.MeasurementNoise, t.tuning.VarianceFloor)
		}
	}

	res.Metric = t.buildMetric(s, st, now, gph, method)
	return res
}

// Flush finalizes any pending refuel whose quiet window has elapsed.
// The telemetry loop calls it for trucks that produced no snapshot this
// cycle so a finished fill is not stuck pending.
func (t *Truck) Flush(now time.Time) *datatypes.RefuelEvent {
	ev := t.refuel.flush(now)
	if ev != nil {
		t.applyRefuelReset(ev)
	}
	return ev
}

// =============================================================================
// Consumption
// =============================================================================

// selectConsumption picks the consumption source in preference order:
// validated ECU counter delta, fuel-rate sensor, idle fallback.
func (t *Truck) selectConsumption(s *datatypes.SensorSnapshot, dtHours float64) (gph float64, method string) {
	var sensorGPH float64
	hasSensor := s.FuelRate != nil
	if hasSensor {
		sensorGPH = *s.FuelRate / datatypes.LitersPerGallon
	}

	if ecuGPH, ok := t.ecu.consumption(s.TotalFuelUsed, dtHours, s.Timestamp); ok {
		if hasSensor {
			t.ecu.crossCheck(ecuGPH, sensorGPH, t.cfg.TruckID)
		}
		return ecuGPH, "ecu_delta"
	}
	if hasSensor {
		return sensorGPH, "fuel_rate"
	}
	return t.tuning.IdleGPH, "idle_estimate"
}

// =============================================================================
// Level events: refuels and drops
// =============================================================================

// observeLevel runs refuel and drop detection against the last known
// good reading, then records the current one.
func (t *Truck) observeLevel(pct float64, ts time.Time, st datatypes.TruckStatus) *datatypes.RefuelEvent {
	var ev *datatypes.RefuelEvent

	if t.hasLastGood {
		median, hasMedian := t.historyMedian()
		ev = t.refuel.observe(jumpObservation{
			BeforePct:  t.lastGood.Pct,
			BeforeAt:   t.lastGood.At,
			CurrentPct: pct,
			MedianPct:  median,
			HasMedian:  hasMedian,
			Now:        ts,
		})

		t.observeDrop(pct, ts, st)
	}

	t.recordGood(pct, ts)
	return ev
}

// observeDrop tracks abnormal decreases while stopped. A suspected drop
// stays open until it either recovers (sensor noise), deepens past the
// confirmation threshold, or ages out.
func (t *Truck) observeDrop(pct float64, ts time.Time, st datatypes.TruckStatus) {
	if t.drop != nil {
		// Recovery back near the pre-drop level within the window
		// reclassifies the whole episode as noise.
		if pct >= t.drop.FromPct-2.0 && ts.Sub(t.drop.DetectedAt) <= t.tuning.TheftRecoveryWindow {
			t.drop.Confirmed = false
			t.dropNoise = &FuelDrop{
				TruckID:    t.cfg.TruckID,
				Class:      DropSensorNoise,
				FromPct:    t.drop.FromPct,
				ToPct:      t.drop.ToPct,
				DetectedAt: ts,
			}
			t.drop = nil
			return
		}
		if t.drop.ToPct-pct > 0 {
			t.drop.ToPct = pct
		}
		if !t.drop.Confirmed && t.drop.FromPct-t.drop.ToPct > t.tuning.TheftConfirmPct {
			t.drop.Confirmed = true
			t.dropUpgrade = true
		}
		return
	}

	if st != datatypes.StatusStopped {
		return
	}
	fall := t.lastGood.Pct - pct
	if fall <= t.tuning.TheftSuspectPct {
		return
	}
	// A refuel in progress means the gauge is mid-fill, not mid-theft.
	if t.refuel.pending != nil {
		return
	}
	t.drop = &openDrop{
		FromPct:    t.lastGood.Pct,
		ToPct:      pct,
		DetectedAt: ts,
		Confirmed:  fall > t.tuning.TheftConfirmPct,
	}
	t.dropNew = true
}

// takeDropEvent converts the drop-tracking state changes of this cycle
// into at most one emitted event.
func (t *Truck) takeDropEvent(ts time.Time) *FuelDrop {
	if t.dropNoise != nil {
		ev := t.dropNoise
		t.dropNoise = nil
		return ev
	}
	if t.dropNew && t.drop != nil {
		t.dropNew = false
		class := DropSuspectedTheft
		if t.drop.Confirmed {
			class = DropConfirmedTheft
		}
		slog.Warn("abnormal fuel drop detected",
			"truck_id", t.cfg.TruckID,
			"class", string(class),
			"from_pct", t.drop.FromPct,
			"to_pct", t.drop.ToPct)
		return &FuelDrop{
			TruckID:    t.cfg.TruckID,
			Class:      class,
			FromPct:    t.drop.FromPct,
			ToPct:      t.drop.ToPct,
			DetectedAt: ts,
		}
	}
	if t.dropUpgrade && t.drop != nil {
		t.dropUpgrade = false
		return &FuelDrop{
			TruckID:    t.cfg.TruckID,
			Class:      DropConfirmedTheft,
			FromPct:    t.drop.FromPct,
			ToPct:      t.drop.ToPct,
			DetectedAt: ts,
		}
	}
	t.dropNew, t.dropUpgrade = false, false
	return nil
}

// applyRefuelReset snaps the filter to the post-refuel level. The fill
// is ground truth; carrying the pre-fill estimate forward would take
// hours of anchors to converge.
func (t *Truck) applyRefuelReset(ev *datatypes.RefuelEvent) {
	t.filter.reset(ev.AfterPct, t.tuning.VarianceFloor)
	t.drop = nil
	t.dropNew, t.dropUpgrade = false, false
}

// checkDrift watches for a sustained disagreement between gauge and
// filter and forces a resync after DriftWindow. An estimator that has
// been wrong for two hours is not going to talk itself back.
func (t *Truck) checkDrift(pct float64, ts time.Time) {
	if abs(pct-t.filter.mean) <= t.tuning.DriftLimitPct {
		t.driftSince = time.Time{}
		return
	}
	if t.driftSince.IsZero() {
		t.driftSince = ts
		return
	}
	if ts.Sub(t.driftSince) > t.tuning.DriftWindow {
		slog.Warn("sustained drift, resyncing estimator to gauge",
			"truck_id", t.cfg.TruckID,
			"sensor_pct", pct,
			"estimated_pct", t.filter.mean)
		t.filter.reset(pct, t.tuning.MeasurementNoise*2)
		t.driftSince = time.Time{}
	}
}

// =============================================================================
// Derived metrics
// =============================================================================

// buildMetric assembles the per-cycle fuel metric row.
func (t *Truck) buildMetric(s *datatypes.SensorSnapshot, st datatypes.TruckStatus, now time.Time, gph float64, method string) *datatypes.FuelMetric {
	estPct := t.filter.mean
	estGal := estPct / 100 * t.cfg.CapacityGallons

	m := &datatypes.FuelMetric{
		TimestampUTC:      s.Timestamp,
		TruckID:           t.cfg.TruckID,
		CarrierID:         t.cfg.CarrierID,
		Status:            st,
		GPS:               s.GPS(),
		SpeedMPH:          s.EffectiveSpeed(),
		SensorPct:         s.FuelLvl,
		EstimatedPct:      estPct,
		EstimatedGal:      estGal,
		EstimatedL:        estGal * datatypes.LitersPerGallon,
		ConsumptionG:      gph,
		ConsumptionL:      gph * datatypes.LitersPerGallon,
		ConsumptionMethod: method,
		RPM:               s.RPM,
		EngineHours:       s.EngineHours,
		OdometerMi:        s.Odometer,
		AltitudeFt:        s.Altitude,
		HDOP:              s.HDOP,
		CoolantTempF:      s.CoolTemp,
		DataAgeMinutes:    s.DataAgeMinutes(now),
	}

	if speed := s.EffectiveSpeed(); st == datatypes.StatusMoving && speed != nil &&
		*speed > mpgMinSpeedMPH && gph > mpgMinGPH {
		if mpg := *speed / gph; mpg >= mpgFloor && mpg <= mpgCeil {
			m.MPG = &mpg
		}
	}

	if st == datatypes.StatusStopped {
		mode := "flat_idle"
		if s.RPM != nil {
			mode = "rpm_scaled"
		}
		m.IdleMode = &mode
	}

	if s.FuelLvl != nil {
		drift := *s.FuelLvl - estPct
		m.DriftPct = &drift
		m.DriftWarning = abs(drift) > t.tuning.DriftLimitPct
	}
	return m
}

// =============================================================================
// History ring
// =============================================================================

func (t *Truck) recordGood(pct float64, ts time.Time) {
	t.lastGood = fuelReading{Pct: pct, At: ts}
	t.hasLastGood = true
	t.history = append(t.history, t.lastGood)
	if len(t.history) > fuelHistoryLen {
		t.history = t.history[len(t.history)-fuelHistoryLen:]
	}
}

// historyMedian returns the median of the recent valid readings.
func (t *Truck) historyMedian() (float64, bool) {
	if len(t.history) == 0 {
		return 0, false
	}
	vals := make([]float64, len(t.history))
	for i, h := range t.history {
		vals[i] = h.Pct
	}
	sort.Float64s(vals)
	mid := len(vals) / 2
	if len(vals)%2 == 1 {
		return vals[mid], true
	}
	return (vals[mid-1] + vals[mid]) / 2, true
}
