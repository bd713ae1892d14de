// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// This file contains the one-state Kalman recursion over fuel level.
// The state is percent of tank capacity; consumption drives the predict
// step, anchored gauge readings drive the update step.
package estimator

// filter is the scalar Kalman state.
type filter struct {
	mean     float64 // percent of capacity, 0-100
	variance float64 // percent²
}

// newFilter seeds the state from the first usable gauge reading with a
// deliberately wide variance.
func newFilter(initialPct float64) filter {
	return filter{mean: clampPct(initialPct), variance: 25.0}
}

// predict decrements the mean by the consumed percent and inflates the
// variance with the process noise accumulated over dtHours.
func (f *filter) predict(consumedPctPerHour, dtHours, processNoise float64) {
	f.mean = clampPct(f.mean - consumedPctPerHour*dtHours)
	f.variance += processNoise * dtHours
}

// update folds one anchored gauge reading into the state. Standard
// scalar form: K = P/(P+R).
func (f *filter) update(measuredPct, measurementNoise, varianceFloor float64) {
	k := f.variance / (f.variance + measurementNoise)
	f.mean = clampPct(f.mean + k*(measuredPct-f.mean))
	f.variance = (1 - k) * f.variance
	if f.variance < varianceFloor {
		f.variance = varianceFloor
	}
}

// reset forces the state to a known level, used after a finalized
// refuel or a drift resync.
func (f *filter) reset(pct, variance float64) {
	f.mean = clampPct(pct)
	f.variance = variance
}

func clampPct(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	default:
		return v
	}
}
