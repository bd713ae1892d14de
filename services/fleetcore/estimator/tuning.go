// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package estimator tracks per-truck fuel level with a one-state Kalman
// filter, detects refuels, drops, and suspected theft, and derives the
// per-cycle fuel metrics.
//
// Each Truck instance is owned exclusively by the telemetry loop; other
// readers get snapshot copies. Timestamps fed to a Truck must be
// monotonically increasing; older snapshots are discarded.
package estimator

import "time"

// Tuning carries every knob of the fuel estimation pipeline. The
// defaults were fitted against recorded fleet data; override with
// evidence, not intuition.
type Tuning struct {
	// ProcessNoiseStatic is the variance added per hour while the
	// vehicle is stationary. Moving vehicles slosh, so their process
	// noise is roughly four times larger.
	ProcessNoiseStatic float64
	ProcessNoiseMoving float64

	// MeasurementNoise is the R term of the Kalman update: the gauge's
	// own variance in percent².
	MeasurementNoise float64

	// VarianceFloor keeps the filter from collapsing into false
	// certainty after long anchor stretches.
	VarianceFloor float64

	// IdleGPH is the last-resort consumption estimate when neither the
	// ECU counter nor the fuel-rate sensor is usable.
	IdleGPH float64

	// MaxPlausibleGPH rejects ECU counter deltas that imply a higher
	// burn rate than the engine can physically sustain.
	MaxPlausibleGPH float64

	// ECUFailureLimit is how many consecutive rejected deltas put the
	// counter into degraded mode; ECURecoveryAfter is how long the
	// estimator waits before trusting it again.
	ECUFailureLimit  int
	ECURecoveryAfter time.Duration

	// ECUCrossCheckMarginGPH triggers a warning when the validated ECU
	// rate and the fuel-rate sensor disagree by more than this.
	ECUCrossCheckMarginGPH float64

	// Static anchor: vehicle stopped (speed, rpm, data age below the
	// limits) held continuously for StaticAnchorHold.
	StaticAnchorSpeedMPH   float64
	StaticAnchorRPM        float64
	StaticAnchorMaxDataAge time.Duration
	StaticAnchorHold       time.Duration

	// Micro anchor: cruise speed stable within ±MicroAnchorBandMPH for
	// MicroAnchorHold.
	MicroAnchorBandMPH float64
	MicroAnchorHold    time.Duration

	// Refuel detection thresholds. A candidate needs both the percent
	// jump and the gallon minimum; the before value must sit within
	// RefuelNoiseBandPct of the recent median or the jump is treated as
	// a sensor glitch.
	RefuelMinJumpPct   float64
	RefuelMinGallons   float64
	RefuelNoiseBandPct float64

	// Gap classification: a jump across a data gap in [GapMin, GapMax]
	// is an engine-off refuel; anything else is continuous.
	RefuelGapMin time.Duration
	RefuelGapMax time.Duration

	// RefuelPendingWindow collapses consecutive jumps into one event;
	// RefuelCooldown spaces finalized events per truck.
	RefuelPendingWindow time.Duration
	RefuelCooldown      time.Duration

	// Drop classification while STOPPED: beyond TheftSuspectPct the
	// drop is suspected theft, beyond TheftConfirmPct confirmed. A
	// suspected drop recovering within TheftRecoveryWindow is sensor
	// noise.
	TheftSuspectPct     float64
	TheftConfirmPct     float64
	TheftRecoveryWindow time.Duration

	// Emergency resync: when the gauge and the filter disagree by more
	// than DriftLimitPct for DriftWindow, trust the gauge.
	DriftLimitPct float64
	DriftWindow   time.Duration

	// StateMaxAge rejects persisted estimator state older than this on
	// load; the truck starts fresh instead.
	StateMaxAge time.Duration
}

// DefaultTuning returns the production parameter set.
func DefaultTuning() Tuning {
	return Tuning{
		ProcessNoiseStatic: 0.05,
		ProcessNoiseMoving: 0.20,
		MeasurementNoise:   4.0,
		VarianceFloor:      0.25,

		IdleGPH:         0.8,
		MaxPlausibleGPH: 30.0,

		ECUFailureLimit:        5,
		ECURecoveryAfter:       10 * time.Minute,
		ECUCrossCheckMarginGPH: 3.0,

		StaticAnchorSpeedMPH:   2.0,
		StaticAnchorRPM:        900,
		StaticAnchorMaxDataAge: 30 * time.Second,
		StaticAnchorHold:       35 * time.Second,

		MicroAnchorBandMPH: 2.0,
		MicroAnchorHold:    4 * time.Minute,

		RefuelMinJumpPct:   15.0,
		RefuelMinGallons:   5.0,
		RefuelNoiseBandPct: 25.0,

		RefuelGapMin: 5 * time.Minute,
		RefuelGapMax: 120 * time.Minute,

		RefuelPendingWindow: 10 * time.Minute,
		RefuelCooldown:      30 * time.Minute,

		TheftSuspectPct:     10.0,
		TheftConfirmPct:     25.0,
		TheftRecoveryWindow: 15 * time.Minute,

		DriftLimitPct: 30.0,
		DriftWindow:   2 * time.Hour,

		StateMaxAge: 2 * time.Hour,
	}
}
