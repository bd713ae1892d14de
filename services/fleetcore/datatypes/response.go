// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// This file contains the response shapes served by the command-center
// HTTP API.
package datatypes

import "time"

// FleetHealth is the aggregate health assessment for the whole fleet.
type FleetHealth struct {
	Score int `json:"score"` // 0-100, integer by contract

	// Status is the operator-facing band label. The command center UI
	// is Spanish-first: Excelente, Bueno, Atención, Alerta, Crítico.
	Status string `json:"status"`

	TrucksTotal    int `json:"trucks_total"`
	TrucksOK       int `json:"trucks_ok"` // zero issues of any level
	TrucksAffected int `json:"trucks_affected"`
	CriticalCount  int `json:"critical_count"`
	HighCount      int `json:"high_count"`
	MediumCount    int `json:"medium_count"`
	LowCount       int `json:"low_count"`
}

// StatusCounts tallies trucks per operational state. Idle mirrors
// Stopped: the dashboard shows both labels for the same trucks.
type StatusCounts struct {
	Moving  int `json:"moving"`
	Stopped int `json:"stopped"`
	Parked  int `json:"parked"`
	Offline int `json:"offline"`
	Idle    int `json:"idle"`
	Total   int `json:"total"`
}

// Add counts one truck into the tally.
func (c *StatusCounts) Add(s TruckStatus) {
	switch s {
	case StatusMoving:
		c.Moving++
	case StatusStopped:
		c.Stopped++
		c.Idle++
	case StatusParked:
		c.Parked++
	case StatusOffline:
		c.Offline++
	}
	c.Total++
}

// CostBucket sums parsed "$min - $max" ranges for one repair horizon.
type CostBucket struct {
	MinUSD float64 `json:"min_usd"`
	MaxUSD float64 `json:"max_usd"`
	Items  int     `json:"items"`
}

// CostProjection aggregates the dollar exposure of open action items
// by repair horizon. CRITICAL items land in Immediate, HIGH in
// ThisWeek, everything else in ThisMonth; ThisMonth includes the
// earlier buckets so it reads as a cumulative total.
type CostProjection struct {
	Immediate CostBucket `json:"immediate"`
	ThisWeek  CostBucket `json:"this_week"`
	ThisMonth CostBucket `json:"this_month"`

	// ItemsWithCost counts items that carried a parseable estimate.
	ItemsWithCost int    `json:"items_with_cost"`
	Currency      string `json:"currency"`
}

// Insight is one cross-fleet observation surfaced on the dashboard,
// e.g. a component failing on several trucks at once.
type Insight struct {
	Kind     string   `json:"kind"`     // "fleet_pattern", "top_risk", "cost_concentration"
	Severity Priority `json:"severity"`
	Title    string   `json:"title"`
	Detail   string   `json:"detail"`
	TruckIDs []string `json:"truck_ids,omitempty"`
}

// SourceQuality reports whether one detection source produced usable
// data during the aggregation pass.
type SourceQuality struct {
	Available bool   `json:"available"`
	Items     int    `json:"items"`
	LatencyMS int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

// DashboardResponse is the full command-center payload served by
// GET /api/command-center/actions.
type DashboardResponse struct {
	GeneratedAt time.Time `json:"generated_at"`
	Version     string    `json:"version"`

	FleetHealth  FleetHealth    `json:"fleet_health"`
	StatusCounts StatusCounts   `json:"status_counts"`
	Urgency      UrgencySummary `json:"urgency_summary"`
	Cost         CostProjection `json:"cost_projection"`

	Actions         []ActionItem `json:"actions"`
	CriticalActions []ActionItem `json:"critical_actions"`
	HighActions     []ActionItem `json:"high_actions"`

	Insights []Insight `json:"insights"`

	// DataQuality maps detection source name to its availability.
	DataQuality map[string]SourceQuality `json:"data_quality"`

	// Cached is true when the payload came from the response cache.
	Cached          bool    `json:"cached"`
	CacheAgeSeconds float64 `json:"cache_age_seconds,omitempty"`
}

// TrendPoint is one sample of fleet-level history kept by the trend
// recorder ring.
type TrendPoint struct {
	Timestamp     time.Time `json:"timestamp"`
	HealthScore   float64   `json:"health_score"`
	TotalActions  int       `json:"total_actions"`
	CriticalCount int       `json:"critical_count"`
	HighCount     int       `json:"high_count"`
	MediumCount   int       `json:"medium_count"`
	LowCount      int       `json:"low_count"`
}

// ComprehensiveHealth is the blended per-truck health score combining
// the predictive, driver-behavior, component, and DTC dimensions.
type ComprehensiveHealth struct {
	TruckID string  `json:"truck_id"`
	Overall float64 `json:"overall"` // 0-100, weighted blend

	PredictiveScore float64 `json:"predictive_score"`
	DriverScore     float64 `json:"driver_score"`
	ComponentScore  float64 `json:"component_score"`
	DTCScore        float64 `json:"dtc_score"`

	Status      string    `json:"status"`
	GeneratedAt time.Time `json:"generated_at"`
}
