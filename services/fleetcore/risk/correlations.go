// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// This file contains the fixed catalog of multi-sensor failure
// signatures. Single-sensor alerts have many benign explanations; the
// same alert arriving with its known companions usually has one.
package risk

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/FleetCore/services/fleetcore/datatypes"
)

// Pattern is one recognized failure signature over normalized
// components.
type Pattern struct {
	Name string

	// Primary must have an open action for the pattern to be
	// considered at all.
	Primary string

	// Correlated are the companion components; MinCorrelation is the
	// minimum fraction of the truck's open actions that must fall in
	// this set (primary included).
	Correlated     []string
	MinCorrelation float64

	ProbableCause     string
	RecommendedAction string
}

// Catalog returns the baked-in signature set. Names are stable: the
// correlation_<name> config rows override individual thresholds.
func Catalog() []Pattern {
	return []Pattern{
		{
			Name:              "cooling_cascade",
			Primary:           "cooling_system",
			Correlated:        []string{"oil_system", "engine"},
			MinCorrelation:    0.5,
			ProbableCause:     "coolant loss or water pump failure heating the oil circuit",
			RecommendedAction: "inspect coolant level, water pump, and radiator before the oil overheats",
		},
		{
			Name:              "charging_failure",
			Primary:           "electrical",
			Correlated:        []string{"gps", "engine"},
			MinCorrelation:    0.4,
			ProbableCause:     "alternator or battery degradation browning out vehicle electronics",
			RecommendedAction: "load-test the charging system and check battery terminals",
		},
		{
			Name:              "turbo_intake",
			Primary:           "turbo_system",
			Correlated:        []string{"engine", "efficiency"},
			MinCorrelation:    0.5,
			ProbableCause:     "boost leak or failing turbo raising intake temps and fuel burn",
			RecommendedAction: "pressure-test the charge air circuit and inspect the turbo",
		},
		{
			Name:              "emissions_chain",
			Primary:           "def_system",
			Correlated:        []string{"engine", "efficiency"},
			MinCorrelation:    0.5,
			ProbableCause:     "SCR system fault compensating with injection changes",
			RecommendedAction: "check DEF quality and dosing valve before a derate is forced",
		},
		{
			Name:              "driveline_stress",
			Primary:           "transmission",
			Correlated:        []string{"engine", "cooling_system"},
			MinCorrelation:    0.5,
			ProbableCause:     "slipping transmission loading the engine and cooling circuit",
			RecommendedAction: "check transmission fluid level and temperature under load",
		},
	}
}

// Detect evaluates the catalog against every truck's open actions.
// Strength is the affected-truck share among trucks with any issue.
func Detect(actionsByTruck map[string][]datatypes.ActionItem, patterns []Pattern, now time.Time) []datatypes.FailureCorrelation {
	if len(patterns) == 0 {
		patterns = Catalog()
	}

	trucksWithIssues := 0
	for _, actions := range actionsByTruck {
		if len(actions) > 0 {
			trucksWithIssues++
		}
	}
	if trucksWithIssues == 0 {
		return nil
	}

	var out []datatypes.FailureCorrelation
	for _, p := range patterns {
		affected := matchPattern(actionsByTruck, p)
		if len(affected) == 0 {
			continue
		}
		sort.Strings(affected)
		out = append(out, datatypes.FailureCorrelation{
			CorrelationID:     uuid.NewString(),
			PrimarySensor:     p.Primary,
			CorrelatedSensors: append([]string(nil), p.Correlated...),
			Strength:          float64(len(affected)) / float64(trucksWithIssues),
			ProbableCause:     p.ProbableCause,
			RecommendedAction: p.RecommendedAction,
			AffectedTrucks:    affected,
			DetectedAt:        now,
		})
	}
	return out
}

// matchPattern returns the trucks the pattern fires for.
func matchPattern(actionsByTruck map[string][]datatypes.ActionItem, p Pattern) []string {
	inSet := map[string]bool{p.Primary: true}
	for _, c := range p.Correlated {
		inSet[c] = true
	}

	var affected []string
	for truckID, actions := range actionsByTruck {
		if len(actions) == 0 {
			continue
		}
		hasPrimary := false
		matching := 0
		for _, a := range actions {
			if a.NormalizedComponent == p.Primary {
				hasPrimary = true
			}
			if inSet[a.NormalizedComponent] {
				matching++
			}
		}
		if !hasPrimary {
			continue
		}
		if float64(matching)/float64(len(actions)) >= p.MinCorrelation {
			affected = append(affected, truckID)
		}
	}
	return affected
}
