// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// This file contains the cross-fleet insight rules rendered on the
// dashboard.
package aggregator

import (
	"fmt"
	"sort"
	"strings"

	"github.com/AleutianAI/FleetCore/services/fleetcore/actions"
	"github.com/AleutianAI/FleetCore/services/fleetcore/datatypes"
)

// Insights derives the dashboard observations from the deduplicated
// action list. Rules fire independently; an empty list yields the
// affirmative insight.
func Insights(items []datatypes.ActionItem, totalTrucks int) []datatypes.Insight {
	var out []datatypes.Insight

	out = append(out, criticalInsights(items)...)
	out = append(out, patternInsights(items, totalTrucks)...)
	out = append(out, escalationInsights(items)...)
	out = append(out, concentrationInsights(items)...)

	if !hasSeverity(items, datatypes.PriorityCritical) && !hasSeverity(items, datatypes.PriorityHigh) {
		out = append(out, datatypes.Insight{
			Kind:     "fleet_ok",
			Severity: datatypes.PriorityNone,
			Title:    "Flota estable",
			Detail:   "Sin problemas críticos ni de alta prioridad en este ciclo",
		})
	}
	return out
}

func hasSeverity(items []datatypes.ActionItem, p datatypes.Priority) bool {
	for _, item := range items {
		if item.Priority == p {
			return true
		}
	}
	return false
}

// criticalInsights names the trucks in CRITICAL state, individually or
// in aggregate when there are several.
func criticalInsights(items []datatypes.ActionItem) []datatypes.Insight {
	trucks := uniqueTrucks(items, func(a datatypes.ActionItem) bool {
		return a.Priority == datatypes.PriorityCritical
	})
	switch len(trucks) {
	case 0:
		return nil
	case 1:
		return []datatypes.Insight{{
			Kind:     "top_risk",
			Severity: datatypes.PriorityCritical,
			Title:    fmt.Sprintf("Atención inmediata: %s", trucks[0]),
			Detail:   "Unidad con al menos un problema crítico activo",
			TruckIDs: trucks,
		}}
	default:
		return []datatypes.Insight{{
			Kind:     "top_risk",
			Severity: datatypes.PriorityCritical,
			Title:    fmt.Sprintf("%d unidades en estado crítico", len(trucks)),
			Detail:   fmt.Sprintf("Unidades afectadas: %s", strings.Join(trucks, ", ")),
			TruckIDs: trucks,
		}}
	}
}

// patternInsights flags components failing across a meaningful share of
// the fleet: at least 2 trucks and at least 15%.
func patternInsights(items []datatypes.ActionItem, totalTrucks int) []datatypes.Insight {
	threshold := 2
	if pct := totalTrucks * 15 / 100; pct > threshold {
		threshold = pct
	}

	byComponent := make(map[string]map[string]bool)
	for _, item := range items {
		if item.NormalizedComponent == "" {
			continue
		}
		if byComponent[item.NormalizedComponent] == nil {
			byComponent[item.NormalizedComponent] = make(map[string]bool)
		}
		byComponent[item.NormalizedComponent][item.TruckID] = true
	}

	var components []string
	for comp, trucks := range byComponent {
		if len(trucks) >= threshold {
			components = append(components, comp)
		}
	}
	sort.Strings(components)

	var out []datatypes.Insight
	for _, comp := range components {
		trucks := setToSorted(byComponent[comp])
		out = append(out, datatypes.Insight{
			Kind:     "fleet_pattern",
			Severity: datatypes.PriorityHigh,
			Title:    fmt.Sprintf("Patrón de flota: %s", comp),
			Detail: fmt.Sprintf("%d unidades presentan problemas de %s; posible causa común",
				len(trucks), comp),
			TruckIDs: trucks,
		})
	}
	return out
}

// escalationInsights warns about HIGH items about to turn critical.
func escalationInsights(items []datatypes.ActionItem) []datatypes.Insight {
	trucks := uniqueTrucks(items, func(a datatypes.ActionItem) bool {
		return a.Priority == datatypes.PriorityHigh &&
			a.DaysToCritical != nil && *a.DaysToCritical <= 3
	})
	if len(trucks) == 0 {
		return nil
	}
	return []datatypes.Insight{{
		Kind:     "escalation",
		Severity: datatypes.PriorityHigh,
		Title:    "Problemas de alta prioridad por escalar",
		Detail: fmt.Sprintf("%d unidades con fallas proyectadas en 3 días o menos",
			len(trucks)),
		TruckIDs: trucks,
	}}
}

// concentrationInsights raises dedicated warnings for the two systems
// whose failures ground trucks fastest: transmission and DEF.
func concentrationInsights(items []datatypes.ActionItem) []datatypes.Insight {
	var out []datatypes.Insight
	for comp, label := range map[string]string{
		actions.CompTransmission: "transmisión",
		actions.CompDEF:          "sistema DEF",
	} {
		trucks := uniqueTrucks(items, func(a datatypes.ActionItem) bool {
			return a.NormalizedComponent == comp
		})
		if len(trucks) < 2 {
			continue
		}
		out = append(out, datatypes.Insight{
			Kind:     "cost_concentration",
			Severity: datatypes.PriorityHigh,
			Title:    fmt.Sprintf("Concentración de fallas de %s", label),
			Detail: fmt.Sprintf("%d unidades con problemas de %s; revisar proveedor o lote",
				len(trucks), label),
			TruckIDs: trucks,
		})
	}
	// Map iteration order is random; keep output stable.
	sort.Slice(out, func(i, j int) bool { return out[i].Title < out[j].Title })
	return out
}

func uniqueTrucks(items []datatypes.ActionItem, match func(datatypes.ActionItem) bool) []string {
	set := make(map[string]bool)
	for _, item := range items {
		if match(item) {
			set[item.TruckID] = true
		}
	}
	return setToSorted(set)
}

func setToSorted(set map[string]bool) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
