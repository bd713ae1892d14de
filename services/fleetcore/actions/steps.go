// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// This file contains action-step generation: a decision table keyed on
// (component, priority) with a synthesized fallback.
package actions

import (
	"fmt"

	"github.com/AleutianAI/FleetCore/services/fleetcore/datatypes"
)

// maxSteps caps the checklist length, before and after dedup merging.
const maxSteps = 10

type stepKey struct {
	component string
	priority  datatypes.Priority
}

// stepTable holds the curated checklists. Keys use the canonical
// component vocabulary; missing (component, priority) pairs fall back
// to the generator.
var stepTable = map[stepKey][]string{
	{CompOil, datatypes.PriorityCritical}: {
		"Stop the truck at the nearest safe location",
		"Check oil level and look for visible leaks under the engine",
		"Do not restart until oil pressure is verified by a mechanic",
		"Arrange tow to the workshop if pressure stays below 25 psi",
	},
	{CompOil, datatypes.PriorityHigh}: {
		"Check oil level at the next stop",
		"Schedule an oil pressure inspection this week",
		"Review recent oil-change records for this truck",
	},
	{CompCooling, datatypes.PriorityCritical}: {
		"Stop the truck and let the engine cool before opening the hood",
		"Check coolant level and hoses for leaks",
		"Do not continue the route with coolant above 230°F",
	},
	{CompCooling, datatypes.PriorityHigh}: {
		"Monitor coolant temperature closely on the next trip",
		"Inspect radiator, fan clutch, and coolant level this week",
	},
	{CompTransmission, datatypes.PriorityCritical}: {
		"Reduce load and avoid steep grades immediately",
		"Check transmission fluid level and color",
		"Schedule transmission service before the next long haul",
	},
	{CompTransmission, datatypes.PriorityHigh}: {
		"Check transmission fluid level and color at the next stop",
		"Schedule a transmission temperature inspection this week",
	},
	{CompElectrical, datatypes.PriorityCritical}: {
		"Test battery voltage with the engine off and at idle",
		"Inspect alternator belt and wiring connections",
		"Carry jump equipment until charging is verified",
	},
	{CompDEF, datatypes.PriorityCritical}: {
		"Fill the DEF tank before the next dispatch",
		"Verify DEF quality if consumption looks abnormal",
		"Check SCR system codes after filling",
	},
	{CompDEF, datatypes.PriorityHigh}: {
		"Plan a DEF fill within the next 2-3 days",
		"Record the fill so depletion tracking stays accurate",
	},
	{CompTurbo, datatypes.PriorityHigh}: {
		"Inspect intake piping and charge-air cooler for leaks",
		"Check air filter restriction indicator",
	},
	{CompGPS, datatypes.PriorityLow}: {
		"Check GPS antenna mounting and cable at the next inspection",
	},
	{CompEfficiency, datatypes.PriorityMedium}: {
		"Review idle time and routing for this truck",
		"Brief the driver on excessive idle periods",
	},
}

// componentHints supplement the generated fallback checklist.
var componentHints = map[string]string{
	CompOil:          "Inspect the lubrication system",
	CompCooling:      "Inspect the cooling system",
	CompDEF:          "Check DEF level and SCR system",
	CompTransmission: "Inspect the transmission",
	CompElectrical:   "Test the charging system",
	CompTurbo:        "Inspect turbo and intake",
	CompFuel:         "Inspect the fuel system",
	CompBrakes:       "Inspect the brake system",
	CompGPS:          "Check the telematics antenna",
	CompDTC:          "Read and clear diagnostic codes after repair",
	CompEngine:       "Run a general engine inspection",
	CompEfficiency:   "Review fuel efficiency drivers",
}

// actionHeaders open the generated checklist per action type.
var actionHeaders = map[datatypes.ActionType]string{
	datatypes.ActionStopImmediately:   "Stop the truck as soon as it is safe",
	datatypes.ActionScheduleThisWeek:  "Schedule workshop time this week",
	datatypes.ActionScheduleThisMonth: "Schedule workshop time this month",
	datatypes.ActionMonitor:           "Keep the sensor under observation",
}

// Steps returns the operator checklist for one issue. The curated table
// wins; otherwise a header plus component hint is synthesized. Output
// never exceeds maxSteps.
func Steps(component string, priority datatypes.Priority, actionType datatypes.ActionType) []string {
	norm := Normalize(component)
	if steps, ok := stepTable[stepKey{norm, priority}]; ok {
		out := make([]string, len(steps))
		copy(out, steps)
		return out
	}

	var out []string
	if header, ok := actionHeaders[actionType]; ok {
		out = append(out, header)
	}
	if hint, ok := componentHints[norm]; ok {
		out = append(out, hint)
	} else if norm != "" {
		out = append(out, fmt.Sprintf("Inspect %s", norm))
	}
	if len(out) > maxSteps {
		out = out[:maxSteps]
	}
	return out
}

// categoryIcons key the dashboard glyph per category, with component
// overrides for the handful the UI distinguishes.
var componentIcons = map[string]string{
	CompOil:          "🛢️",
	CompCooling:      "🌡️",
	CompDEF:          "💧",
	CompTransmission: "⚙️",
	CompElectrical:   "🔋",
	CompFuel:         "⛽",
	CompGPS:          "📡",
	CompDTC:          "⚠️",
}

var categoryIcons = map[datatypes.Category]string{
	datatypes.CategoryMaintenance: "🔧",
	datatypes.CategoryEfficiency:  "📉",
	datatypes.CategoryFuel:        "⛽",
	datatypes.CategoryEquipment:   "📡",
	datatypes.CategoryCompliance:  "📋",
}

// Icon picks the UI glyph for one issue.
func Icon(category datatypes.Category, component string) string {
	if icon, ok := componentIcons[Normalize(component)]; ok {
		return icon
	}
	if icon, ok := categoryIcons[category]; ok {
		return icon
	}
	return "🔧"
}
