// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// This file contains the upstream parameter whitelist and the mapping
// from parameter names onto snapshot fields.
package wialon

import (
	"strconv"
	"strings"

	"github.com/AleutianAI/FleetCore/services/fleetcore/datatypes"
)

// ParamFuelLevel is special-cased throughout the reader: it gets a
// wider freshness budget and a targeted secondary query.
const ParamFuelLevel = "fuel_lvl"

// paramDTC carries raw diagnostic trouble codes, kept as text.
const paramDTC = "dtc"

// Params is the whitelist of upstream parameter names the reader
// queries. Anything else in the sensors table is ignored.
var Params = []string{
	"fuel_lvl", "speed", "rpm", "odom", "fuel_rate", "cool_temp",
	"hdop", "altitude", "obd_speed", "engine_hours", "pwr_ext",
	"oil_press", "total_fuel_used", "total_idle_fuel", "engine_load",
	"air_temp", "oil_temp", "def_level", "intake_air_temp", "dtc",
	"idle_hours", "sats", "pwr_int", "course",
}

// assign writes one validated parameter value into the snapshot.
// Numeric parameters outside their validity range are dropped here,
// silently: bad readings never reach the estimator or the statistics.
func assign(s *datatypes.SensorSnapshot, param, raw string, ranges datatypes.RangeSet) {
	if param == paramDTC {
		if raw = strings.TrimSpace(raw); raw != "" && raw != "0" {
			s.DTC = raw
		}
		return
	}

	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || !ranges.Valid(param, v) {
		return
	}

	switch param {
	case ParamFuelLevel:
		s.FuelLvl = &v
	case "speed":
		s.Speed = &v
	case "obd_speed":
		s.OBDSpeed = &v
	case "rpm":
		s.RPM = &v
	case "odom":
		s.Odometer = &v
	case "fuel_rate":
		s.FuelRate = &v
	case "cool_temp":
		s.CoolTemp = &v
	case "oil_temp":
		s.OilTemp = &v
	case "intake_air_temp":
		s.IntakeAirTemp = &v
	case "air_temp":
		s.AirTemp = &v
	case "oil_press":
		s.OilPress = &v
	case "pwr_ext":
		s.PwrExt = &v
	case "pwr_int":
		s.PwrInt = &v
	case "engine_load":
		s.EngineLoad = &v
	case "def_level":
		s.DEFLevel = &v
	case "engine_hours":
		s.EngineHours = &v
	case "total_fuel_used":
		s.TotalFuelUsed = &v
	case "total_idle_fuel":
		s.TotalIdleFuel = &v
	case "idle_hours":
		s.IdleHours = &v
	case "sats":
		s.Sats = &v
	case "hdop":
		s.HDOP = &v
	case "altitude":
		s.Altitude = &v
	case "course":
		s.Course = &v
	}
}
