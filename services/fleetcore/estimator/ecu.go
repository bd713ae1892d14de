// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// This file contains the ECU total-fuel-used counter tracker. The
// cumulative counter is the most trustworthy consumption source when it
// behaves; this tracker validates each delta, survives counter resets,
// and degrades to the fuel-rate sensor after repeated failures.
package estimator

import (
	"log/slog"
	"time"
)

// ecuTracker validates the cumulative ECU fuel counter. Owned by the
// Truck; not safe for concurrent use.
type ecuTracker struct {
	tuning Tuning

	lastTotal    float64
	hasLast      bool
	failures     int
	degraded     bool
	degradedAt   time.Time
}

// consumption derives a validated gallons-per-hour figure from the
// counter. ok is false when the counter cannot be trusted this cycle:
// absent, first observation, reset, implausible delta, or degraded.
func (e *ecuTracker) consumption(total *float64, dtHours float64, now time.Time) (gph float64, ok bool) {
	if total == nil {
		return 0, false
	}

	if e.degraded {
		if now.Sub(e.degradedAt) < e.tuning.ECURecoveryAfter {
			// Still track the counter so recovery starts from a
			// current base, not a stale one.
			e.lastTotal, e.hasLast = *total, true
			return 0, false
		}
		e.degraded = false
		e.failures = 0
		slog.Debug("ecu counter leaving degraded mode", "total_gal", *total)
	}

	if !e.hasLast {
		e.lastTotal, e.hasLast = *total, true
		return 0, false
	}

	delta := *total - e.lastTotal

	if delta < 0 {
		// Counter reset (ECU swap or rollover). Re-base and count it
		// as a failure: repeated resets mean the signal is garbage.
		slog.Warn("ecu fuel counter went backwards, treating as reset",
			"previous_gal", e.lastTotal,
			"current_gal", *total)
		e.lastTotal = *total
		e.fail(now)
		return 0, false
	}

	if dtHours <= 0 {
		return 0, false
	}

	gph = delta / dtHours
	if gph > e.tuning.MaxPlausibleGPH {
		slog.Warn("ecu fuel delta implies implausible burn rate",
			"gph", gph,
			"max_gph", e.tuning.MaxPlausibleGPH)
		e.lastTotal = *total
		e.fail(now)
		return 0, false
	}

	e.lastTotal = *total
	e.failures = 0
	return gph, true
}

// crossCheck compares the validated ECU rate against the instantaneous
// fuel-rate sensor. ECU wins either way; a large divergence is only
// worth a log line.
func (e *ecuTracker) crossCheck(ecuGPH, sensorGPH float64, truckID string) {
	if abs(ecuGPH-sensorGPH) > e.tuning.ECUCrossCheckMarginGPH {
		slog.Warn("ecu and fuel-rate sensor diverge, trusting ecu",
			"truck_id", truckID,
			"ecu_gph", ecuGPH,
			"sensor_gph", sensorGPH)
	}
}

func (e *ecuTracker) fail(now time.Time) {
	e.failures++
	if e.failures >= e.tuning.ECUFailureLimit && !e.degraded {
		e.degraded = true
		e.degradedAt = now
		slog.Warn("ecu counter entering degraded mode",
			"consecutive_failures", e.failures)
	}
}
