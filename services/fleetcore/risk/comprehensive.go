// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// This file contains the blended per-truck health score. Four
// dimensions are scored independently on 0-100 and combined with fixed
// weights: predictive 30%, driver 20%, component 30%, DTC 20%.
package risk

import (
	"math"
	"time"

	"github.com/AleutianAI/FleetCore/services/fleetcore/datatypes"
)

// Per-item penalties for the component dimension, by priority.
const (
	componentCriticalPenalty = 30.0
	componentHighPenalty     = 18.0
	componentMediumPenalty   = 8.0
	componentLowPenalty      = 3.0
)

// Per-item penalties for the driver dimension. Driver behavior shows
// up as efficiency and fuel waste, not as component wear.
const (
	driverEfficiencyPenalty = 12.0
	driverFuelPenalty       = 8.0
)

// Per-code penalties for the DTC dimension.
const (
	dtcCriticalPenalty = 25.0
	dtcKnownPenalty    = 10.0
	dtcUnknownPenalty  = 5.0
)

// Comprehensive blends the four health dimensions for one truck.
// actions are the truck's open items after deduplication; dtcs come
// from the device's raw DTC string.
func Comprehensive(truckID string, actions []datatypes.ActionItem, dtcs []DTC, now time.Time) datatypes.ComprehensiveHealth {
	predictive := 100 - Score(truckID, Inputs{Actions: actions, DaysSinceMaintenance: -1}, now).RiskScore

	driver := 100.0
	component := 100.0
	for _, a := range actions {
		switch a.Category {
		case datatypes.CategoryEfficiency:
			driver -= driverEfficiencyPenalty
		case datatypes.CategoryFuel:
			driver -= driverFuelPenalty
		default:
			component -= componentPenalty(a.Priority)
		}
	}

	dtcScore := 100.0
	for _, d := range dtcs {
		switch {
		case d.Critical:
			dtcScore -= dtcCriticalPenalty
		case d.Known:
			dtcScore -= dtcKnownPenalty
		default:
			dtcScore -= dtcUnknownPenalty
		}
	}

	predictive = clampScore(predictive)
	driver = clampScore(driver)
	component = clampScore(component)
	dtcScore = clampScore(dtcScore)

	overall := round1(0.3*predictive + 0.2*driver + 0.3*component + 0.2*dtcScore)

	return datatypes.ComprehensiveHealth{
		TruckID:         truckID,
		Overall:         overall,
		PredictiveScore: round1(predictive),
		DriverScore:     round1(driver),
		ComponentScore:  round1(component),
		DTCScore:        round1(dtcScore),
		Status:          healthStatus(overall),
		GeneratedAt:     now,
	}
}

func componentPenalty(p datatypes.Priority) float64 {
	switch p {
	case datatypes.PriorityCritical:
		return componentCriticalPenalty
	case datatypes.PriorityHigh:
		return componentHighPenalty
	case datatypes.PriorityMedium:
		return componentMediumPenalty
	case datatypes.PriorityLow:
		return componentLowPenalty
	default:
		return 0
	}
}

// healthStatus bands the blended score:
// >=80 healthy, >=60 attention, >=40 warning, else critical.
func healthStatus(overall float64) string {
	switch {
	case overall >= 80:
		return "healthy"
	case overall >= 60:
		return "attention"
	case overall >= 40:
		return "warning"
	default:
		return "critical"
	}
}

func clampScore(v float64) float64 {
	return math.Max(0, math.Min(100, v))
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
