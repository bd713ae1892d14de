// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// This file contains refuel detection: candidate jumps, the anti-noise
// median check, the pending window that collapses multi-step fills, the
// per-truck cooldown, and finalization.
package estimator

import (
	"log/slog"
	"time"

	"github.com/AleutianAI/FleetCore/services/fleetcore/datatypes"
)

// pendingRefuel accumulates consecutive fuel-level jumps until the pump
// goes quiet. Many gauges report a fill as several partial steps; one
// event per pump visit is the contract.
type pendingRefuel struct {
	StartTime time.Time                 `json:"start_time"` // last reading before the first jump
	BeforePct float64                   `json:"before_pct"`
	AfterPct  float64                   `json:"after_pct"`
	LastJump  time.Time                 `json:"last_jump"`
	Source    datatypes.DetectionSource `json:"source"`
}

// refuelDetector is the per-truck refuel state machine. Owned by the
// Truck; not safe for concurrent use.
type refuelDetector struct {
	tuning       Tuning
	truckID      string
	capacityGal  float64
	refuelFactor float64

	pending *pendingRefuel
	lastEnd time.Time // end timestamp of the last finalized event
}

// jumpObservation is one candidate comparison between the last known
// good level and the current reading.
type jumpObservation struct {
	BeforePct  float64
	BeforeAt   time.Time
	CurrentPct float64
	MedianPct  float64 // median of the recent valid-reading ring
	HasMedian  bool
	Now        time.Time
}

// observe processes one reading. It may finalize a previously pending
// event (when the pump has been quiet past the pending window) and may
// open or extend a pending one. At most one event is returned per call.
func (d *refuelDetector) observe(obs jumpObservation) *datatypes.RefuelEvent {
	ev := d.flush(obs.Now)

	jump := obs.CurrentPct - obs.BeforePct
	gallons := jump / 100 * d.capacityGal

	if jump < d.tuning.RefuelMinJumpPct || gallons < d.tuning.RefuelMinGallons {
		// A slow pump reports sub-threshold rises between the big
		// steps; they extend an open fill but never start one.
		if d.pending != nil && obs.Now.Sub(d.pending.LastJump) <= d.tuning.RefuelPendingWindow &&
			obs.CurrentPct > d.pending.AfterPct+1.0 {
			d.pending.AfterPct = obs.CurrentPct
			d.pending.LastJump = obs.Now
		}
		return ev
	}

	// Sensor glitch guard: a gauge that just flailed downward and
	// snapped back looks like a refuel. The "before" level has to be
	// consistent with what the gauge was reading recently.
	if obs.HasMedian && obs.MedianPct-obs.BeforePct > d.tuning.RefuelNoiseBandPct {
		slog.Debug("rejecting refuel candidate, before level inconsistent with recent median",
			"truck_id", d.truckID,
			"before_pct", obs.BeforePct,
			"median_pct", obs.MedianPct)
		return ev
	}

	if !d.lastEnd.IsZero() && obs.Now.Sub(d.lastEnd) < d.tuning.RefuelCooldown {
		slog.Debug("ignoring refuel candidate inside cooldown",
			"truck_id", d.truckID,
			"since_last", obs.Now.Sub(d.lastEnd).String())
		return ev
	}

	if d.pending != nil && obs.Now.Sub(d.pending.LastJump) <= d.tuning.RefuelPendingWindow {
		// Another step of the same fill.
		d.pending.AfterPct = obs.CurrentPct
		d.pending.LastJump = obs.Now
		return ev
	}

	gap := obs.Now.Sub(obs.BeforeAt)
	source := datatypes.DetectionContinuous
	if gap >= d.tuning.RefuelGapMin && gap <= d.tuning.RefuelGapMax {
		source = datatypes.DetectionGapAware
	}

	d.pending = &pendingRefuel{
		StartTime: obs.BeforeAt,
		BeforePct: obs.BeforePct,
		AfterPct:  obs.CurrentPct,
		LastJump:  obs.Now,
		Source:    source,
	}
	return ev
}

// flush finalizes the pending event once no jump has arrived for the
// pending window. Called from observe and from the end-of-cycle sweep
// so a fill is not stuck pending until the next jump.
func (d *refuelDetector) flush(now time.Time) *datatypes.RefuelEvent {
	if d.pending == nil || now.Sub(d.pending.LastJump) < d.tuning.RefuelPendingWindow {
		return nil
	}

	p := d.pending
	d.pending = nil
	d.lastEnd = p.LastJump

	gallons := (p.AfterPct - p.BeforePct) / 100 * d.capacityGal * d.refuelFactor
	ev := &datatypes.RefuelEvent{
		TruckID:      d.truckID,
		StartTime:    p.StartTime,
		EndTime:      p.LastJump,
		BeforePct:    p.BeforePct,
		AfterPct:     p.AfterPct,
		GallonsAdded: gallons,
		Class:        datatypes.RefuelClassFromLevel(p.AfterPct),
		Source:       p.Source,
	}

	slog.Info("refuel finalized",
		"truck_id", d.truckID,
		"gallons_added", ev.GallonsAdded,
		"before_pct", ev.BeforePct,
		"after_pct", ev.AfterPct,
		"class", string(ev.Class),
		"source", string(ev.Source))
	return ev
}
