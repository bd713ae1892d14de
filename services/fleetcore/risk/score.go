// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package risk computes per-truck failure risk, recognizes correlated
// multi-sensor failure signatures, projects DEF depletion, and decodes
// J1939 suspect parameter numbers.
package risk

import (
	"fmt"
	"math"
	"time"

	"github.com/AleutianAI/FleetCore/services/fleetcore/datatypes"
)

// Score weight caps. Four additive bands, each with its own ceiling,
// clamped to 100 overall.
const (
	issueCap       = 40.0
	maintenanceCap = 20.0
	trendCap       = 20.0
	alertCap       = 20.0

	maxFactors = 5
)

// degradeDirections: for these channels only one slope direction is a
// failure signal; the opposite slope is recovery. Channels without an
// entry count a rising trend as degrading.
var degradeDirections = map[string]datatypes.TrendDirection{
	"oil_press":         datatypes.TrendDown,
	"pwr_ext":           datatypes.TrendDown,
	"def_level":         datatypes.TrendDown,
	"mpg":               datatypes.TrendDown,
	"cool_temp":         datatypes.TrendUp,
	"oil_temp":          datatypes.TrendUp,
	"trams_t":           datatypes.TrendUp,
	"cooling_system": datatypes.TrendUp,
	"transmission":   datatypes.TrendUp,
	"electrical":     datatypes.TrendDown,
	"def_system":     datatypes.TrendDown,
	"efficiency":     datatypes.TrendDown,
}

// degradingTrend reports whether an item's trend points toward failure
// for its channel.
func degradingTrend(a *datatypes.ActionItem) bool {
	if a.Trend != datatypes.TrendUp && a.Trend != datatypes.TrendDown {
		return false
	}
	if dir, ok := degradeDirections[a.Component]; ok {
		return a.Trend == dir
	}
	if dir, ok := degradeDirections[a.NormalizedComponent]; ok {
		return a.Trend == dir
	}
	return a.Trend == datatypes.TrendUp
}

// Inputs is everything the risk formula consumes for one truck.
type Inputs struct {
	// Actions are the truck's open action items after deduplication.
	Actions []datatypes.ActionItem

	// DaysSinceMaintenance is the age of the last recorded service;
	// negative means unknown and contributes nothing.
	DaysSinceMaintenance int

	// ActiveSensorAlerts counts currently-firing sensor anomalies.
	ActiveSensorAlerts int
}

// Score computes the composite 0-100 risk for one truck with its
// contributing factors. Deterministic: identical inputs yield identical
// output.
func Score(truckID string, in Inputs, now time.Time) datatypes.TruckRiskScore {
	var factors []string

	var critical, high, medium, low int
	degrading := 0
	var soonest *float64
	for i := range in.Actions {
		a := &in.Actions[i]
		switch a.Priority {
		case datatypes.PriorityCritical:
			critical++
		case datatypes.PriorityHigh:
			high++
		case datatypes.PriorityMedium:
			medium++
		case datatypes.PriorityLow:
			low++
		}
		if degradingTrend(a) {
			degrading++
		}
		if a.DaysToCritical != nil && (soonest == nil || *a.DaysToCritical < *soonest) {
			soonest = a.DaysToCritical
		}
	}

	issueScore := math.Min(issueCap, float64(25*critical+15*high+5*medium+2*low))
	if issueScore > 0 {
		factors = append(factors, fmt.Sprintf("%d critical, %d high priority issues", critical, high))
	}

	maintScore := 0.0
	switch {
	case in.DaysSinceMaintenance > 90:
		maintScore = 20
	case in.DaysSinceMaintenance > 60:
		maintScore = 12
	case in.DaysSinceMaintenance > 30:
		maintScore = 5
	}
	if maintScore > 0 {
		factors = append(factors, fmt.Sprintf("%d days since last maintenance", in.DaysSinceMaintenance))
	}

	trendScore := math.Min(trendCap, float64(7*degrading))
	if trendScore > 0 {
		factors = append(factors, fmt.Sprintf("%d sensors trending toward failure", degrading))
	}

	alertScore := math.Min(alertCap, float64(5*in.ActiveSensorAlerts))
	if alertScore > 0 {
		factors = append(factors, fmt.Sprintf("%d active sensor alerts", in.ActiveSensorAlerts))
	}

	if soonest != nil {
		factors = append(factors, fmt.Sprintf("predicted failure in %.0f days", *soonest))
	}
	if len(factors) > maxFactors {
		factors = factors[:maxFactors]
	}

	total := issueScore + maintScore + trendScore + alertScore
	if total > 100 {
		total = 100
	}

	maintDays := in.DaysSinceMaintenance
	if maintDays < 0 {
		maintDays = 0
	}

	return datatypes.TruckRiskScore{
		TruckID:              truckID,
		RiskScore:            total,
		RiskLevel:            datatypes.RiskLevelFromScore(total),
		Factors:              factors,
		DaysSinceMaintenance: maintDays,
		ActiveIssueCount:     len(in.Actions),
		PredictedFailureDays: soonest,
		GeneratedAt:          now,
	}
}
