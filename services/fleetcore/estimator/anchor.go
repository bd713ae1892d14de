// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// This file contains anchor detection: the conditions under which the
// fuel gauge is trusted enough to drive the Kalman update step. Fuel
// sloshes while the truck accelerates, brakes, and climbs; the gauge is
// only meaningful when the surface has settled.
package estimator

import (
	"time"

	"github.com/AleutianAI/FleetCore/services/fleetcore/datatypes"
)

// AnchorState names which trust condition currently holds.
type AnchorState string

const (
	// AnchorNone: the gauge is not trusted this cycle.
	AnchorNone AnchorState = "none"

	// AnchorStatic: vehicle stopped and stable long enough for the
	// fuel surface to settle.
	AnchorStatic AnchorState = "static"

	// AnchorMicro: steady cruise; the surface is tilted but constant,
	// so relative readings are usable.
	AnchorMicro AnchorState = "micro"
)

// anchorTracker is the per-truck hold-time state machine behind anchor
// detection. Not safe for concurrent use; owned by the Truck.
type anchorTracker struct {
	tuning Tuning

	staticSince time.Time // zero when the static condition is broken

	cruiseSince time.Time // zero when cruise stability is broken
	cruiseRef   float64   // speed the stability band is centered on
}

// observe advances the tracker with one snapshot and returns the anchor
// state in effect for this cycle.
func (a *anchorTracker) observe(s *datatypes.SensorSnapshot, now time.Time) AnchorState {
	staticOK := a.staticCondition(s, now)
	if staticOK {
		if a.staticSince.IsZero() {
			a.staticSince = now
		}
	} else {
		a.staticSince = time.Time{}
	}

	microOK := a.cruiseCondition(s, now)

	switch {
	case staticOK && now.Sub(a.staticSince) >= a.tuning.StaticAnchorHold:
		return AnchorStatic
	case microOK:
		return AnchorMicro
	default:
		return AnchorNone
	}
}

// staticCondition: stopped, engine near idle, data fresh.
func (a *anchorTracker) staticCondition(s *datatypes.SensorSnapshot, now time.Time) bool {
	speed := s.EffectiveSpeed()
	if speed == nil || *speed > a.tuning.StaticAnchorSpeedMPH {
		return false
	}
	if s.RPM != nil && *s.RPM > a.tuning.StaticAnchorRPM {
		return false
	}
	return s.DataAge(now) < a.tuning.StaticAnchorMaxDataAge
}

// cruiseCondition tracks speed stability around a reference. The
// reference re-centers whenever speed leaves the band, restarting the
// hold clock.
func (a *anchorTracker) cruiseCondition(s *datatypes.SensorSnapshot, now time.Time) bool {
	speed := s.EffectiveSpeed()
	if speed == nil || *speed <= a.tuning.StaticAnchorSpeedMPH {
		a.cruiseSince = time.Time{}
		return false
	}

	if a.cruiseSince.IsZero() || abs(*speed-a.cruiseRef) > a.tuning.MicroAnchorBandMPH {
		a.cruiseSince = now
		a.cruiseRef = *speed
		return false
	}
	return now.Sub(a.cruiseSince) >= a.tuning.MicroAnchorHold
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
