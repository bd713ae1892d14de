// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// This file contains the enumerations used across the pipeline and the
// banding helpers that map continuous scores onto them.
package datatypes

import "strings"

// TruckStatus is the operational state assigned each poll cycle.
type TruckStatus string

const (
	StatusMoving  TruckStatus = "MOVING"
	StatusStopped TruckStatus = "STOPPED" // engine on, not moving
	StatusParked  TruckStatus = "PARKED"  // engine off, data fresh
	StatusOffline TruckStatus = "OFFLINE" // no fresh data
)

// IsIdle reports whether the status counts as idling for the dashboard
// counters. IDLE is a display alias of STOPPED.
func (s TruckStatus) IsIdle() bool { return s == StatusStopped }

// Priority is the severity band of an action item.
type Priority string

const (
	PriorityCritical Priority = "CRITICAL"
	PriorityHigh     Priority = "HIGH"
	PriorityMedium   Priority = "MEDIUM"
	PriorityLow      Priority = "LOW"
	PriorityNone     Priority = "NONE"
)

// Rank orders priorities for sorting, highest first. Unknown values
// rank below NONE.
func (p Priority) Rank() int {
	switch p {
	case PriorityCritical:
		return 4
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	case PriorityNone:
		return 0
	default:
		return -1
	}
}

// PriorityFromScore bands a composite priority score:
// >=85 CRITICAL, >=65 HIGH, >=40 MEDIUM, >=20 LOW, else NONE.
func PriorityFromScore(score float64) Priority {
	switch {
	case score >= 85:
		return PriorityCritical
	case score >= 65:
		return PriorityHigh
	case score >= 40:
		return PriorityMedium
	case score >= 20:
		return PriorityLow
	default:
		return PriorityNone
	}
}

// ActionType tells the operator what to do about an action item. The
// selection logic (priority, days-to-critical, persistence gate) lives
// in the actions package.
type ActionType string

const (
	ActionStopImmediately   ActionType = "STOP_IMMEDIATELY"
	ActionScheduleThisWeek  ActionType = "SCHEDULE_THIS_WEEK"
	ActionScheduleThisMonth ActionType = "SCHEDULE_THIS_MONTH"
	ActionMonitor           ActionType = "MONITOR"
	ActionNone              ActionType = "NO_ACTION"
)

// Confidence grades how much evidence backs an action item.
type Confidence string

const (
	ConfidenceHigh   Confidence = "HIGH"
	ConfidenceMedium Confidence = "MEDIUM"
	ConfidenceLow    Confidence = "LOW"
)

// Category groups action items by the kind of issue, independent of
// which detector raised them. Deduplication keys on it, so detectors
// watching the same physical problem must agree on the category.
type Category string

const (
	CategoryMaintenance Category = "maintenance" // component wear and failure risk
	CategoryEfficiency  Category = "efficiency"  // fuel and idle waste
	CategoryFuel        Category = "fuel"        // fuel level events: theft, loss
	CategoryEquipment   Category = "equipment"   // telematics hardware: GPS, device battery
	CategoryCompliance  Category = "compliance"  // DEF and emissions
)

// RiskLevel is the banded per-truck risk classification.
type RiskLevel string

const (
	RiskCritical RiskLevel = "critical"
	RiskHigh     RiskLevel = "high"
	RiskMedium   RiskLevel = "medium"
	RiskLow      RiskLevel = "low"
	RiskHealthy  RiskLevel = "healthy"
)

// RiskLevelFromScore bands a 0-100 risk score:
// >=75 critical, >=50 high, >=30 medium, >=10 low, else healthy.
func RiskLevelFromScore(score float64) RiskLevel {
	switch {
	case score >= 75:
		return RiskCritical
	case score >= 50:
		return RiskHigh
	case score >= 30:
		return RiskMedium
	case score >= 10:
		return RiskLow
	default:
		return RiskHealthy
	}
}

// HistoryLevel is the uppercase form persisted to cc_risk_history.
func (r RiskLevel) HistoryLevel() string { return strings.ToUpper(string(r)) }

// RefuelClass distinguishes a fill-to-full from a partial top-up.
type RefuelClass string

const (
	RefuelFull    RefuelClass = "FULL"    // post-refuel level above 90%
	RefuelPartial RefuelClass = "PARTIAL" // anything below
)

// RefuelClassFromLevel classifies a refuel by the post-event fuel level.
func RefuelClassFromLevel(afterPct float64) RefuelClass {
	if afterPct > 90 {
		return RefuelFull
	}
	return RefuelPartial
}

// DetectionSource records which detection path emitted a refuel event.
type DetectionSource string

const (
	DetectionGapAware   DetectionSource = "gap_aware"  // jump across a data gap
	DetectionContinuous DetectionSource = "continuous" // jump across adjacent readings
)

// TrendDirection summarizes the slope of a sensor baseline.
type TrendDirection string

const (
	TrendUp     TrendDirection = "UP"
	TrendDown   TrendDirection = "DOWN"
	TrendStable TrendDirection = "STABLE"
)

// AnomalyType names the statistical test that flagged a reading.
type AnomalyType string

const (
	AnomalyEWMA      AnomalyType = "ewma_deviation"
	AnomalyCUSUM     AnomalyType = "cusum_shift"
	AnomalyThreshold AnomalyType = "threshold_breach"
)

// DEFAlertLevel bands the urgency of a DEF prediction.
type DEFAlertLevel string

const (
	DEFAlertOK       DEFAlertLevel = "ok"
	DEFAlertMedium   DEFAlertLevel = "medium"
	DEFAlertHigh     DEFAlertLevel = "high"
	DEFAlertCritical DEFAlertLevel = "critical"
)
