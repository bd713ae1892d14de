// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// This file contains the weighted priority score and action-type
// selection.
package actions

import (
	"math"

	"github.com/AleutianAI/FleetCore/services/fleetcore/datatypes"
)

// Score component weights. Urgency dominates: a failure two days out
// outranks an expensive one two months out.
const (
	weightDays      = 0.45
	weightAnomaly   = 0.20
	weightComponent = 0.25
	weightCost      = 0.10

	daysDecayRate    = 0.04
	daysUrgencyFloor = 5.0
	costCeilingUSD   = 15000.0
)

// componentCriticality weighs how dangerous a failing component is,
// scale 0.8-3.0. A dead transmission strands the truck; a flaky GPS
// antenna strands nobody.
var componentCriticality = map[string]float64{
	CompTransmission: 3.0,
	CompBrakes:       3.0,
	CompElectrical:   2.8,
	CompTurbo:        2.5,
	CompCooling:      2.3,
	CompDEF:          2.0,
	CompEngine:       2.0,
	CompDTC:          1.8,
	CompOil:          1.5,
	CompFuel:         1.2,
	CompEfficiency:   1.0,
	CompGPS:          0.8,
}

const maxCriticality = 3.0

// ScoreInputs are the optional evidence components of one score.
// Missing components drop out of both numerator and denominator.
type ScoreInputs struct {
	// DaysToCritical is the projected time to failure.
	DaysToCritical *float64

	// AnomalyScore accepts either a [0,1] or a [0,100] scale; values
	// above 1 are taken as already-percent.
	AnomalyScore *float64

	// Component is the raw component string; criticality uses its
	// normalized form.
	Component string

	// AvgCostUSD is the midpoint of the repair estimate.
	AvgCostUSD *float64
}

// ComputeScore returns the weighted 0-100 priority score and its band.
// Deterministic: identical inputs yield identical output.
func ComputeScore(in ScoreInputs) (float64, datatypes.Priority) {
	var weighted, weights float64

	if in.DaysToCritical != nil {
		urgency := 100 * math.Exp(-daysDecayRate**in.DaysToCritical)
		if urgency < daysUrgencyFloor {
			urgency = daysUrgencyFloor
		}
		weighted += urgency * weightDays
		weights += weightDays
	}

	if in.AnomalyScore != nil {
		anomaly := *in.AnomalyScore
		if anomaly <= 1.0 {
			anomaly *= 100
		}
		anomaly = math.Min(100, math.Max(0, anomaly))
		weighted += anomaly * weightAnomaly
		weights += weightAnomaly
	}

	if in.Component != "" {
		if crit, ok := componentCriticality[Normalize(in.Component)]; ok {
			weighted += crit / maxCriticality * 100 * weightComponent
			weights += weightComponent
		}
	}

	if in.AvgCostUSD != nil {
		cost := math.Min(100, *in.AvgCostUSD/costCeilingUSD*100)
		weighted += cost * weightCost
		weights += weightCost
	}

	if weights == 0 {
		return 0, datatypes.PriorityNone
	}

	score := weighted / weights
	return score, datatypes.PriorityFromScore(score)
}

// SelectActionType maps (priority, urgency, persistence) to the
// operator instruction. A STOP order needs both a critical failure
// projected within a day and the temporal persistence gate met; an
// unconfirmed critical is scheduled, not stopped.
func SelectActionType(p datatypes.Priority, daysToCritical *float64, persistenceMet bool) datatypes.ActionType {
	switch p {
	case datatypes.PriorityCritical:
		if daysToCritical != nil && *daysToCritical <= 1.0 {
			if persistenceMet {
				return datatypes.ActionStopImmediately
			}
			return datatypes.ActionScheduleThisWeek
		}
		return datatypes.ActionScheduleThisWeek
	case datatypes.PriorityHigh:
		return datatypes.ActionScheduleThisWeek
	case datatypes.PriorityMedium:
		return datatypes.ActionScheduleThisMonth
	case datatypes.PriorityLow:
		return datatypes.ActionMonitor
	default:
		return datatypes.ActionNone
	}
}
