// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// This file contains the per-cycle fuel metric row and the refuel event
// emitted by the detection pipeline.
package datatypes

import "time"

// FuelMetric is the reconciled per-truck, per-cycle output of the fuel
// estimation pipeline. One row per (TimestampUTC, TruckID).
type FuelMetric struct {
	TimestampUTC time.Time   `json:"timestamp_utc"`
	TruckID      string      `json:"truck_id"`
	CarrierID    string      `json:"carrier_id,omitempty"`
	Status       TruckStatus `json:"status"`
	GPS          string      `json:"gps,omitempty"` // "lat,lon" or empty

	SpeedMPH     *float64 `json:"speed_mph,omitempty"`
	SensorPct    *float64 `json:"sensor_pct,omitempty"`    // raw gauge reading
	EstimatedPct float64  `json:"estimated_pct"`           // Kalman posterior
	EstimatedGal float64  `json:"estimated_gal"`           // posterior × capacity
	EstimatedL   float64  `json:"estimated_liters"`        // gallons × 3.78541
	ConsumptionL float64  `json:"consumption_lph"`         // liters per hour this cycle
	ConsumptionG float64  `json:"consumption_gph"`         // gallons per hour this cycle
	MPG          *float64 `json:"mpg,omitempty"`           // only when plausible
	RPM          *float64 `json:"rpm,omitempty"`           // engine speed
	EngineHours  *float64 `json:"engine_hours,omitempty"`  // cumulative
	OdometerMi   *float64 `json:"odometer_mi,omitempty"`   // cumulative
	AltitudeFt   *float64 `json:"altitude_ft,omitempty"`   // GPS altitude
	HDOP         *float64 `json:"hdop,omitempty"`          // GPS precision
	CoolantTempF *float64 `json:"coolant_temp_f,omitempty"`

	// ConsumptionMethod names which input produced the consumption
	// figure: "ecu_delta", "fuel_rate", or "idle_estimate".
	ConsumptionMethod string `json:"consumption_method"`

	// IdleMode names the idle pricing mode and is set exactly when the
	// truck is STOPPED: "rpm_scaled" or "flat_idle".
	IdleMode *string `json:"idle_mode,omitempty"`

	// DriftPct is sensor_pct - estimated_pct, signed, when both exist.
	DriftPct     *float64 `json:"drift_pct,omitempty"`
	DriftWarning bool     `json:"drift_warning,omitempty"` // |drift| above 30%

	DataAgeMinutes float64 `json:"data_age_minutes"`
}

// RefuelEvent is a finalized fuel-level rise attributed to a pump visit.
// Keyed (TruckID, EndTime): re-detection of the same event updates the
// existing row.
type RefuelEvent struct {
	TruckID     string          `json:"truck_id"`
	StartTime   time.Time       `json:"start_time"` // last reading before the rise
	EndTime     time.Time       `json:"end_time"`   // reading that confirmed the rise
	BeforePct   float64         `json:"before_pct"`
	AfterPct    float64         `json:"after_pct"`
	GallonsAdded float64        `json:"gallons_added"`
	Class       RefuelClass     `json:"class"`
	Source      DetectionSource `json:"source"`
}

// SensorReading is one validated observation handed to the trend and
// anomaly engines.
type SensorReading struct {
	TruckID   string    `json:"truck_id"`
	Sensor    string    `json:"sensor"`
	Value     float64   `json:"value"`
	Timestamp time.Time `json:"timestamp"`
	IsValid   bool      `json:"is_valid"`
}
