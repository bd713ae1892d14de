// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// This file contains DEF depletion projection. Running the DEF tank
// dry forces the engine into derate: the prediction exists so dispatch
// schedules a fill before the truck limps home at 5 mph.
package risk

import (
	"fmt"
	"math"
	"time"

	"github.com/AleutianAI/FleetCore/services/fleetcore/datatypes"
)

// DEFParams are the fleet-level constants of the projection.
type DEFParams struct {
	// TankCapacityLiters is the DEF tank size.
	TankCapacityLiters float64

	// DEFPctOfDiesel is DEF dosing as a fraction of diesel burn,
	// typically 0.02-0.06 for SCR engines.
	DEFPctOfDiesel float64

	// DefaultDailyLiters is used when no mileage/MPG figures are
	// available to derive consumption.
	DefaultDailyLiters float64

	// DerateFraction of tank capacity below which the ECU derates.
	DerateFraction float64
}

// DefaultDEFParams returns the production constants. The def_consumption
// config row overrides them.
func DefaultDEFParams() DEFParams {
	return DEFParams{
		TankCapacityLiters: 75,
		DEFPctOfDiesel:     0.03,
		DefaultDailyLiters: 4.0,
		DerateFraction:     0.05,
	}
}

// minDailyLiters floors daily consumption to keep the division sane.
const minDailyLiters = 0.1

// refillRisePct: a level rise of at least this much over the previous
// observation counts as a fill and resets the consumption baseline.
const refillRisePct = 10.0

// PredictDEF projects depletion for one truck. dailyMiles and avgMPG
// refine the consumption estimate when both are present; otherwise the
// configured daily average applies. prevPct is the last recorded level,
// used to recognize fills; nil when no history exists.
func PredictDEF(truckID string, currentPct float64, prevPct, dailyMiles, avgMPG *float64, lastFill *time.Time, p DEFParams, now time.Time) datatypes.DEFPrediction {
	currentLiters := currentPct / 100 * p.TankCapacityLiters

	dailyDEF := p.DefaultDailyLiters
	if dailyMiles != nil && avgMPG != nil && *avgMPG > 0 {
		dailyDieselGal := *dailyMiles / *avgMPG
		dailyDieselL := dailyDieselGal * datatypes.LitersPerGallon
		dailyDEF = dailyDieselL * p.DEFPctOfDiesel
	}
	if dailyDEF < minDailyLiters {
		dailyDEF = minDailyLiters
	}

	derateLiters := p.DerateFraction * p.TankCapacityLiters
	daysUntilEmpty := currentLiters / dailyDEF
	daysUntilDerate := math.Max(0, (currentLiters-derateLiters)/dailyDEF)

	// Consumption ledger since the last fill, assuming the tank started
	// full. The dosing ratio back-derives diesel burn from DEF drawdown.
	defUsed := math.Max(0, p.TankCapacityLiters-currentLiters)
	fuelUsedGal := 0.0
	if p.DEFPctOfDiesel > 0 {
		fuelUsedGal = defUsed / p.DEFPctOfDiesel / datatypes.LitersPerGallon
	}

	pred := datatypes.DEFPrediction{
		TruckID:                  truckID,
		CurrentLevelPct:          currentPct,
		EstimatedLitersRemaining: currentLiters,
		AvgConsumptionLPerDay:    dailyDEF,
		DaysUntilEmpty:           daysUntilEmpty,
		DaysUntilDerate:          daysUntilDerate,
		LastFill:                 lastFill,
		FuelUsedSinceRefill:      fuelUsedGal,
		EstimatedDEFUsed:         defUsed,
		IsRefillEvent:            prevPct != nil && currentPct-*prevPct >= refillRisePct,
		GeneratedAt:              now,
	}
	pred.AlertLevel, pred.Recommendation = defAlert(daysUntilDerate)
	return pred
}

// defAlert bands urgency on days-until-derate.
func defAlert(daysUntilDerate float64) (datatypes.DEFAlertLevel, string) {
	switch {
	case daysUntilDerate < 1:
		return datatypes.DEFAlertCritical, "fill DEF now: derate expected within 24 hours"
	case daysUntilDerate < 3:
		return datatypes.DEFAlertHigh, fmt.Sprintf("fill DEF within %.0f days to avoid derate", daysUntilDerate)
	case daysUntilDerate < 7:
		return datatypes.DEFAlertMedium, "schedule a DEF fill this week"
	default:
		return datatypes.DEFAlertOK, "DEF level adequate"
	}
}
