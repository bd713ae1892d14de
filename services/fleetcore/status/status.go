// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package status classifies one snapshot into the operational state of
// the truck: MOVING, STOPPED, PARKED, or OFFLINE.
//
// The labels are mutually exclusive and downstream derivations condition
// on them: MPG only for MOVING, idle accounting only for STOPPED. IDLE
// is a dashboard alias of STOPPED and is never produced here.
package status

import (
	"time"

	"github.com/AleutianAI/FleetCore/services/fleetcore/datatypes"
)

// Thresholds used by the ordered rule set. Tuned against recorded fleet
// data; the voltage split distinguishes a charging system (engine or
// shore power) from a resting battery.
const (
	offlineAgeMinutes = 15.0
	freshAgeMinutes   = 5.0

	movingSpeedMPH = 2.0

	engineFuelRateLPH   = 0.3
	engineCoolantHotF   = 120.0
	coolantWarmF        = 60.0
	voltageChargingV    = 13.2
	voltageBatteryOKV   = 11.5
)

// Classify maps a snapshot onto a TruckStatus. Rules apply in order and
// the first match wins.
//
// # Inputs
//
//   - s: the reconciled snapshot; optional fields may be nil
//   - now: the classification instant, used for data age
//
// # Outputs
//
//   - datatypes.TruckStatus: exactly one of the four states
func Classify(s *datatypes.SensorSnapshot, now time.Time) datatypes.TruckStatus {
	age := s.DataAgeMinutes(now)
	if age > offlineAgeMinutes {
		return datatypes.StatusOffline
	}

	speed := s.EffectiveSpeed()
	if speed == nil {
		return datatypes.StatusOffline
	}
	if *speed > movingSpeedMPH {
		return datatypes.StatusMoving
	}

	if engineOn(s) {
		return datatypes.StatusStopped
	}

	if s.PwrExt != nil && *s.PwrExt > voltageBatteryOKV {
		// Above the charging threshold means shore power; below it the
		// battery alone is holding the bus up. Either way the vehicle
		// is parked with the engine off.
		return datatypes.StatusParked
	}

	if s.CoolTemp != nil && *s.CoolTemp > coolantWarmF && *s.CoolTemp <= engineCoolantHotF {
		// Residual engine heat: shut down recently.
		return datatypes.StatusParked
	}

	if age < freshAgeMinutes {
		return datatypes.StatusParked
	}
	return datatypes.StatusOffline
}

// engineOn reports whether any signal indicates a running engine.
func engineOn(s *datatypes.SensorSnapshot) bool {
	if s.RPM != nil && *s.RPM > 0 {
		return true
	}
	if s.FuelRate != nil && *s.FuelRate > engineFuelRateLPH {
		return true
	}
	if s.EngineLoad != nil && *s.EngineLoad > 0 {
		return true
	}
	if s.CoolTemp != nil && *s.CoolTemp > engineCoolantHotF {
		return true
	}
	return false
}
