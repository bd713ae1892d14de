// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// This file contains the gorm row models of the operational store.
// Column names match the pre-existing schema; the service never
// migrates these tables.
package mysql

import (
	"time"
)

// FuelMetricRow mirrors one fuel_metrics row. Uniqueness on
// (timestamp_utc, truck_id); writes are upserts.
type FuelMetricRow struct {
	ID           uint64    `gorm:"column:id;primaryKey;autoIncrement"`
	TimestampUTC time.Time `gorm:"column:timestamp_utc;uniqueIndex:uq_metric,priority:1"`
	TruckID      string    `gorm:"column:truck_id;size:32;uniqueIndex:uq_metric,priority:2"`
	CarrierID    string    `gorm:"column:carrier_id;size:32"`
	Status       string    `gorm:"column:status;size:16"`
	GPS          string    `gorm:"column:gps;size:64"`

	SpeedMPH     *float64 `gorm:"column:speed_mph"`
	SensorPct    *float64 `gorm:"column:sensor_pct"`
	EstimatedPct float64  `gorm:"column:estimated_pct"`
	EstimatedGal float64  `gorm:"column:estimated_gal"`
	EstimatedL   float64  `gorm:"column:estimated_liters"`
	ConsumptionL float64  `gorm:"column:consumption_lph"`
	ConsumptionG float64  `gorm:"column:consumption_gph"`
	MPG          *float64 `gorm:"column:mpg"`
	RPM          *float64 `gorm:"column:rpm"`
	EngineHours  *float64 `gorm:"column:engine_hours"`
	OdometerMi   *float64 `gorm:"column:odometer_mi"`
	AltitudeFt   *float64 `gorm:"column:altitude_ft"`
	HDOP         *float64 `gorm:"column:hdop"`
	CoolantTempF *float64 `gorm:"column:coolant_temp_f"`

	ConsumptionMethod string  `gorm:"column:consumption_method;size:16"`
	IdleMode          *string `gorm:"column:idle_mode;size:16"`

	DriftPct       *float64 `gorm:"column:drift_pct"`
	DriftWarning   bool     `gorm:"column:drift_warning"`
	DataAgeMinutes float64  `gorm:"column:data_age_minutes"`
}

// TableName implements gorm's naming override.
func (FuelMetricRow) TableName() string { return "fuel_metrics" }

// RefuelEventRow mirrors one refuel_events row, keyed
// (truck_id, end_ts).
type RefuelEventRow struct {
	ID           uint64    `gorm:"column:id;primaryKey;autoIncrement"`
	TruckID      string    `gorm:"column:truck_id;size:32;uniqueIndex:uq_refuel,priority:1"`
	StartTS      time.Time `gorm:"column:start_ts"`
	EndTS        time.Time `gorm:"column:end_ts;uniqueIndex:uq_refuel,priority:2"`
	BeforePct    float64   `gorm:"column:before_pct"`
	AfterPct     float64   `gorm:"column:after_pct"`
	GallonsAdded float64   `gorm:"column:gallons_added"`
	Class        string    `gorm:"column:class;size:8"`
	Source       string    `gorm:"column:source;size:16"`
}

func (RefuelEventRow) TableName() string { return "refuel_events" }

// RiskHistoryRow mirrors one cc_risk_history row.
type RiskHistoryRow struct {
	ID                   uint64    `gorm:"column:id;primaryKey;autoIncrement"`
	TruckID              string    `gorm:"column:truck_id;size:32"`
	RiskScore            float64   `gorm:"column:risk_score"`
	RiskLevel            string    `gorm:"column:risk_level;size:16"` // uppercase
	Factors              string    `gorm:"column:factors;type:text"`  // JSON array
	DaysSinceMaintenance int       `gorm:"column:days_since_maintenance"`
	ActiveIssuesCount    int       `gorm:"column:active_issues_count"`
	PredictedFailureDays *float64  `gorm:"column:predicted_failure_days"`
	Timestamp            time.Time `gorm:"column:timestamp"`
}

func (RiskHistoryRow) TableName() string { return "cc_risk_history" }

// AnomalyHistoryRow mirrors one cc_anomaly_history row: the reading
// plus the statistical context at the moment of detection.
type AnomalyHistoryRow struct {
	ID          uint64    `gorm:"column:id;primaryKey;autoIncrement"`
	TruckID     string    `gorm:"column:truck_id;size:32"`
	Sensor      string    `gorm:"column:sensor;size:32"`
	AnomalyType string    `gorm:"column:anomaly_type;size:24"`
	Severity    string    `gorm:"column:severity;size:12"`
	SensorValue float64   `gorm:"column:sensor_value"`
	EWMAValue   float64   `gorm:"column:ewma_value"`
	CUSUMValue  float64   `gorm:"column:cusum_value"`
	Threshold   float64   `gorm:"column:threshold"`
	ZScore      float64   `gorm:"column:z_score"`
	Description string    `gorm:"column:description;size:255"`
	DetectedAt  time.Time `gorm:"column:detected_at"`
}

func (AnomalyHistoryRow) TableName() string { return "cc_anomaly_history" }

// AlgorithmStateRow mirrors one cc_algorithm_state row, keyed
// (truck_id, sensor); writes are upserts.
type AlgorithmStateRow struct {
	ID           uint64  `gorm:"column:id;primaryKey;autoIncrement"`
	TruckID      string  `gorm:"column:truck_id;size:32;uniqueIndex:uq_algo,priority:1"`
	Sensor       string  `gorm:"column:sensor;size:32;uniqueIndex:uq_algo,priority:2"`
	EWMAValue    float64 `gorm:"column:ewma_value"`
	EWMAVariance float64 `gorm:"column:ewma_variance"`
	CUSUMHigh    float64 `gorm:"column:cusum_high"`
	CUSUMLow     float64 `gorm:"column:cusum_low"`
	BaselineMean float64 `gorm:"column:baseline_mean"`
	BaselineStd  float64 `gorm:"column:baseline_std"`
	SampleCount  int64   `gorm:"column:samples_count"`

	TrendDirection string    `gorm:"column:trend_direction;size:8"`
	TrendSlope     float64   `gorm:"column:trend_slope"`
	UpdatedAt      time.Time `gorm:"column:updated_at"`
}

func (AlgorithmStateRow) TableName() string { return "cc_algorithm_state" }

// CorrelationEventRow mirrors one cc_correlation_events row.
type CorrelationEventRow struct {
	ID                uint64    `gorm:"column:id;primaryKey;autoIncrement"`
	CorrelationID     string    `gorm:"column:correlation_id;size:64"`
	PrimarySensor     string    `gorm:"column:primary_sensor;size:32"`
	CorrelatedSensors string    `gorm:"column:correlated_sensors;type:text"` // JSON array
	Strength          float64   `gorm:"column:strength"`
	ProbableCause     string    `gorm:"column:probable_cause;size:255"`
	RecommendedAction string    `gorm:"column:recommended_action;size:255"`
	AffectedTrucks    string    `gorm:"column:affected_trucks;type:text"` // JSON array
	DetectedAt        time.Time `gorm:"column:detected_at"`
}

func (CorrelationEventRow) TableName() string { return "cc_correlation_events" }

// DEFHistoryRow mirrors one cc_def_history row: the consumption ledger
// behind the depletion projection. Fill events reset the baseline.
type DEFHistoryRow struct {
	ID                  uint64    `gorm:"column:id;primaryKey;autoIncrement"`
	TruckID             string    `gorm:"column:truck_id;size:32"`
	DEFLevel            float64   `gorm:"column:def_level"`
	FuelUsedSinceRefill float64   `gorm:"column:fuel_used_since_refill"`
	EstimatedDEFUsed    float64   `gorm:"column:estimated_def_used"`
	ConsumptionRate     float64   `gorm:"column:consumption_rate"`
	IsRefillEvent       bool      `gorm:"column:is_refill_event"`
	Timestamp           time.Time `gorm:"column:timestamp"`
}

func (DEFHistoryRow) TableName() string { return "cc_def_history" }

// ConfigRow mirrors one command_center_config row: a key/value override
// surface edited by operations. Only rows with active set apply;
// deactivated rows stay in the table for audit but never reach the
// running settings.
type ConfigRow struct {
	ConfigKey   string    `gorm:"column:config_key;primaryKey;size:64"`
	ConfigValue string    `gorm:"column:config_value;type:text"`
	Category    string    `gorm:"column:category;size:32"`
	Active      bool      `gorm:"column:active"`
	UpdatedAt   time.Time `gorm:"column:updated_at"`
}

func (ConfigRow) TableName() string { return "command_center_config" }
