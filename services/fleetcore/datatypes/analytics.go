// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// This file contains the predictive-analytics output types: risk
// scores, failure correlations, DEF projections, and persisted
// algorithm state.
package datatypes

import "time"

// TruckRiskScore is the composite failure-risk assessment for one truck.
type TruckRiskScore struct {
	TruckID   string    `json:"truck_id"`
	RiskScore float64   `json:"risk_score"` // 0-100
	RiskLevel RiskLevel `json:"risk_level"`

	// Factors lists the top contributing explanations, capped at five.
	Factors []string `json:"factors"`

	DaysSinceMaintenance int `json:"days_since_maintenance"`
	ActiveIssueCount     int `json:"active_issue_count"`

	// PredictedFailureDays is the soonest failure projection across
	// the truck's degrading sensors, when one exists.
	PredictedFailureDays *float64 `json:"predicted_failure_days,omitempty"`

	GeneratedAt time.Time `json:"generated_at"`
}

// FailureCorrelation is a recognized multi-sensor failure signature on
// one or more trucks.
type FailureCorrelation struct {
	CorrelationID     string   `json:"correlation_id"`
	PrimarySensor     string   `json:"primary_sensor"`
	CorrelatedSensors []string `json:"correlated_sensors"`

	// Strength is the fraction of the signature's secondary sensors
	// that are also anomalous, 0-1.
	Strength float64 `json:"strength"`

	ProbableCause     string    `json:"probable_cause"`
	RecommendedAction string    `json:"recommended_action"`
	AffectedTrucks    []string  `json:"affected_trucks"`
	DetectedAt        time.Time `json:"detected_at"`
}

// DEFPrediction projects diesel exhaust fluid depletion for one truck.
type DEFPrediction struct {
	TruckID                 string        `json:"truck_id"`
	CurrentLevelPct         float64       `json:"current_level_pct"`
	EstimatedLitersRemaining float64      `json:"estimated_liters_remaining"`
	AvgConsumptionLPerDay   float64       `json:"avg_consumption_liters_per_day"`
	DaysUntilEmpty          float64       `json:"days_until_empty"`
	DaysUntilDerate         float64       `json:"days_until_derate"`
	LastFill                *time.Time    `json:"last_fill,omitempty"`
	AlertLevel              DEFAlertLevel `json:"alert_level"`
	Recommendation          string        `json:"recommendation,omitempty"`

	// Consumption ledger, persisted to history: diesel burned since the
	// last DEF fill, the DEF that burn dosed, and whether this
	// observation is itself a fill.
	FuelUsedSinceRefill float64 `json:"fuel_used_since_refill_gal"`
	EstimatedDEFUsed    float64 `json:"estimated_def_used_liters"`
	IsRefillEvent       bool    `json:"is_refill_event"`

	GeneratedAt time.Time `json:"generated_at"`
}

// AlgorithmState is the persisted statistical state for one
// (truck, sensor) pair, restored across restarts so the EWMA/CUSUM
// chains keep their memory.
type AlgorithmState struct {
	TruckID string `json:"truck_id"`
	Sensor  string `json:"sensor"`

	EWMAValue    float64 `json:"ewma_value"`
	EWMAVariance float64 `json:"ewma_variance"`
	CUSUMHigh    float64 `json:"cusum_high"`
	CUSUMLow     float64 `json:"cusum_low"`

	BaselineMean float64 `json:"baseline_mean"`
	BaselineStd  float64 `json:"baseline_std"`
	SampleCount  int64   `json:"sample_count"`

	TrendDirection TrendDirection `json:"trend_direction"`
	TrendSlope     float64        `json:"trend_slope"` // units per day

	UpdatedAt time.Time `json:"updated_at"`
}

// AnomalyRecord is one persisted anomaly detection for audit and
// history queries. Each record carries the full statistical context of
// the moment it fired: the smoothed baseline, the CUSUM accumulation,
// the limit that was crossed, and the z-score of the reading.
type AnomalyRecord struct {
	TruckID string      `json:"truck_id"`
	Sensor  string      `json:"sensor"`
	Type    AnomalyType `json:"type"`

	// Severity bands the detection: "critical" past twice the alert
	// limit, "warning" otherwise.
	Severity string `json:"severity"`

	Value      float64 `json:"sensor_value"`
	EWMAValue  float64 `json:"ewma_value"`
	CUSUMValue float64 `json:"cusum_value"`

	// Threshold is the limit the detection crossed: the z-score alert
	// level for EWMA deviations, the accumulation limit for CUSUM
	// shifts.
	Threshold float64 `json:"threshold"`
	ZScore    float64 `json:"z_score"`

	Description string    `json:"description"`
	DetectedAt  time.Time `json:"detected_at"`
}

// SPNInfo describes one decoded J1939 suspect parameter number from a
// DTC string.
type SPNInfo struct {
	SPN         int    `json:"spn"`
	FMI         int    `json:"fmi"`
	Component   string `json:"component"`
	Description string `json:"description"`
	Severity    string `json:"severity"` // "critical", "warning", "info"
}
