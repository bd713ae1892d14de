// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// This file contains the per-sensor validity ranges shared by the
// ingest path and the trend engine. Readings outside their range are
// dropped before they can reach the estimator or the statistics.
package datatypes

import "math"

// Range is an inclusive validity interval for one sensor.
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Contains reports whether v is a real number inside the range.
func (r Range) Contains(v float64) bool {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return false
	}
	return v >= r.Min && v <= r.Max
}

// RangeSet maps sensor name to its validity range. Sensors without an
// entry accept any finite value.
type RangeSet map[string]Range

// Valid reports whether the value is acceptable for the sensor.
func (s RangeSet) Valid(sensor string, v float64) bool {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return false
	}
	r, ok := s[sensor]
	if !ok {
		return true
	}
	return r.Contains(v)
}

// DefaultRanges returns the baked-in validity table. Deployments
// override individual sensors through sensor_range_* config rows.
func DefaultRanges() RangeSet {
	return RangeSet{
		"fuel_lvl":        {Min: 0, Max: 100},
		"speed":           {Min: 0, Max: 120},
		"obd_speed":       {Min: 0, Max: 120},
		"rpm":             {Min: 0, Max: 3500},
		"odom":            {Min: 0, Max: 2_000_000},
		"fuel_rate":       {Min: 0, Max: 100},
		"cool_temp":       {Min: 0, Max: 300},
		"oil_temp":        {Min: 0, Max: 400},
		"intake_air_temp": {Min: -40, Max: 300},
		"air_temp":        {Min: -60, Max: 150},
		"oil_press":       {Min: 0, Max: 150},
		"pwr_ext":         {Min: 0, Max: 30},
		"pwr_int":         {Min: 0, Max: 15},
		"engine_load":     {Min: 0, Max: 100},
		"def_level":       {Min: 0, Max: 100},
		"engine_hours":    {Min: 0, Max: 100_000},
		"total_fuel_used": {Min: 0, Max: 10_000_000},
		"total_idle_fuel": {Min: 0, Max: 10_000_000},
		"idle_hours":      {Min: 0, Max: 100_000},
		"sats":            {Min: 0, Max: 60},
		"hdop":            {Min: 0, Max: 50},
		"altitude":        {Min: -1500, Max: 30_000},
		"course":          {Min: 0, Max: 360},
	}
}
