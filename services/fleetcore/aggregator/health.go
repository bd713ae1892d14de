// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// This file contains the fleet health score and its band labels.
package aggregator

import (
	"math"

	"github.com/AleutianAI/FleetCore/services/fleetcore/datatypes"
)

// FleetHealthScore condenses the open action items into one 0-100
// fleet number. Severity-weighted issue density drives the base
// deduction; wide-spread problems and multiple critical trucks cost
// extra.
func FleetHealthScore(items []datatypes.ActionItem, totalTrucks int) datatypes.FleetHealth {
	health := datatypes.FleetHealth{Score: 100, TrucksTotal: totalTrucks}

	affected := make(map[string]bool)
	criticalTrucks := make(map[string]bool)
	for _, item := range items {
		affected[item.TruckID] = true
		switch item.Priority {
		case datatypes.PriorityCritical:
			health.CriticalCount++
			criticalTrucks[item.TruckID] = true
		case datatypes.PriorityHigh:
			health.HighCount++
		case datatypes.PriorityMedium:
			health.MediumCount++
		case datatypes.PriorityLow:
			health.LowCount++
		}
	}
	health.TrucksAffected = len(affected)
	health.TrucksOK = totalTrucks - health.TrucksAffected
	if health.TrucksOK < 0 {
		health.TrucksOK = 0
	}

	if totalTrucks > 0 {
		score := 100.0
		weighted := 15*float64(health.CriticalCount) + 8*float64(health.HighCount) +
			3*float64(health.MediumCount) + 1*float64(health.LowCount)
		score -= 3 * weighted / float64(totalTrucks)

		affectedPct := float64(health.TrucksAffected) / float64(totalTrucks) * 100
		if affectedPct > 20 {
			score -= (affectedPct - 20) * 0.4
		}
		if len(criticalTrucks) > 1 {
			score -= math.Min(20, 4*float64(len(criticalTrucks)))
		}

		health.Score = int(math.Round(math.Max(0, math.Min(100, score))))
	}

	health.Status = healthStatus(health.Score)
	return health
}

// healthStatus maps the score onto the operator-facing Spanish bands.
func healthStatus(score int) string {
	switch {
	case score >= 90:
		return "Excelente"
	case score >= 75:
		return "Bueno"
	case score >= 60:
		return "Atención"
	case score >= 40:
		return "Alerta"
	default:
		return "Crítico"
	}
}
