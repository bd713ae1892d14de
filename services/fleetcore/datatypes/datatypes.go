// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes provides the data structures shared across the
// FleetCore pipeline: upstream snapshots, truck configuration, derived
// metrics, action items, and the command-center response shapes.
//
// Types here are plain data. Persistence models with gorm tags live in
// storage/mysql; engines that mutate state own their state structs.
package datatypes

import (
	"fmt"
	"time"
)

// GallonsPerLiter-related conversion used across capacity math.
const LitersPerGallon = 3.78541

// TruckConfig is the static per-truck configuration loaded once at
// startup. Immutable afterwards; unique on both TruckID and UnitID.
type TruckConfig struct {
	// TruckID is the stable fleet identifier (units_map.beyondId).
	TruckID string `json:"truck_id" yaml:"truck_id" validate:"required"`

	// UnitID is the upstream telematics unit number (sensors.unit).
	UnitID int `json:"unit_id" yaml:"unit_id" validate:"required,gt=0"`

	// CapacityGallons is the usable tank capacity.
	CapacityGallons float64 `json:"capacity_gallons" yaml:"capacity_gallons" validate:"required,gt=0"`

	// CarrierID partitions the fleet by operator.
	CarrierID string `json:"carrier_id" yaml:"carrier_id"`

	// RefuelFactor corrects systematic pump under/over-reporting.
	// Zero means unset; callers treat it as 1.0.
	RefuelFactor float64 `json:"refuel_factor,omitempty" yaml:"refuel_factor,omitempty" validate:"omitempty,gt=0"`
}

// CapacityLiters derives the tank capacity in liters.
func (c TruckConfig) CapacityLiters() float64 {
	return c.CapacityGallons * LitersPerGallon
}

// EffectiveRefuelFactor returns RefuelFactor or 1.0 when unset.
func (c TruckConfig) EffectiveRefuelFactor() float64 {
	if c.RefuelFactor > 0 {
		return c.RefuelFactor
	}
	return 1.0
}

// SensorSnapshot is one reconciled reading set for a truck in one poll
// cycle. Pointer fields are absent when the upstream had no fresh value
// inside the per-parameter freshness budget.
type SensorSnapshot struct {
	TruckID      string    `json:"truck_id"`
	UnitID       int       `json:"unit_id"`
	Timestamp    time.Time `json:"timestamp"`     // always UTC
	EpochSeconds int64     `json:"epoch_seconds"` // seconds since Unix epoch

	FuelLvl       *float64 `json:"fuel_lvl,omitempty"`        // percent of capacity
	Speed         *float64 `json:"speed,omitempty"`           // mph
	OBDSpeed      *float64 `json:"obd_speed,omitempty"`       // mph
	RPM           *float64 `json:"rpm,omitempty"`             // revolutions per minute
	Odometer      *float64 `json:"odom,omitempty"`            // miles
	FuelRate      *float64 `json:"fuel_rate,omitempty"`       // liters per hour
	CoolTemp      *float64 `json:"cool_temp,omitempty"`       // °F
	OilTemp       *float64 `json:"oil_temp,omitempty"`        // °F
	IntakeAirTemp *float64 `json:"intake_air_temp,omitempty"` // °F
	AirTemp       *float64 `json:"air_temp,omitempty"`        // °F
	OilPress      *float64 `json:"oil_press,omitempty"`       // psi
	PwrExt        *float64 `json:"pwr_ext,omitempty"`         // volts, vehicle side
	PwrInt        *float64 `json:"pwr_int,omitempty"`         // volts, device battery
	EngineLoad    *float64 `json:"engine_load,omitempty"`     // percent
	DEFLevel      *float64 `json:"def_level,omitempty"`       // percent
	EngineHours   *float64 `json:"engine_hours,omitempty"`    // cumulative hours
	TotalFuelUsed *float64 `json:"total_fuel_used,omitempty"` // cumulative ECU gallons
	TotalIdleFuel *float64 `json:"total_idle_fuel,omitempty"` // cumulative idle gallons
	IdleHours     *float64 `json:"idle_hours,omitempty"`      // cumulative hours
	Sats          *float64 `json:"sats,omitempty"`            // GPS satellites in view
	HDOP          *float64 `json:"hdop,omitempty"`            // GPS dilution of precision
	Altitude      *float64 `json:"altitude,omitempty"`        // feet
	Course        *float64 `json:"course,omitempty"`          // degrees
	Latitude      *float64 `json:"latitude,omitempty"`
	Longitude     *float64 `json:"longitude,omitempty"`
	DTC           string   `json:"dtc,omitempty"` // raw diagnostic trouble codes
}

// DataAge returns how stale the snapshot is relative to now.
func (s *SensorSnapshot) DataAge(now time.Time) time.Duration {
	return now.Sub(s.Timestamp)
}

// DataAgeMinutes returns the snapshot age in fractional minutes.
func (s *SensorSnapshot) DataAgeMinutes(now time.Time) float64 {
	return s.DataAge(now).Minutes()
}

// EffectiveSpeed prefers the GPS speed and falls back to the OBD-reported
// speed when GPS is absent. Nil when neither is present.
func (s *SensorSnapshot) EffectiveSpeed() *float64 {
	if s.Speed != nil {
		return s.Speed
	}
	return s.OBDSpeed
}

// GPS formats the position as "lat,lon" for the metrics row, or "" when
// the fix is absent.
func (s *SensorSnapshot) GPS() string {
	if s.Latitude == nil || s.Longitude == nil {
		return ""
	}
	return fmt.Sprintf("%.6f,%.6f", *s.Latitude, *s.Longitude)
}

// Float returns a pointer to v. Shorthand for building snapshots and
// tests with optional fields.
func Float(v float64) *float64 { return &v }
