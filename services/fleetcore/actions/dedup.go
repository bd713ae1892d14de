// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// This file contains cross-source deduplication. Several detectors can
// flag the same physical problem; the dashboard must show it once, with
// the combined evidence.
package actions

import (
	"fmt"
	"sort"
	"strings"

	"github.com/AleutianAI/FleetCore/services/fleetcore/datatypes"
)

// dedupKey identifies one physical issue regardless of which detector
// reported it.
type dedupKey struct {
	truckID   string
	category  datatypes.Category
	component string
}

// Deduplicate merges duplicate action items across sources. Items are
// duplicates when (truck_id, category, normalized_component) match.
// Idempotent: running it over already-merged output changes nothing.
func Deduplicate(items []datatypes.ActionItem) []datatypes.ActionItem {
	if len(items) <= 1 {
		return items
	}

	groups := make(map[dedupKey][]datatypes.ActionItem, len(items))
	order := make([]dedupKey, 0, len(items))
	for _, item := range items {
		if item.NormalizedComponent == "" {
			item.NormalizedComponent = Normalize(item.Component)
		}
		key := dedupKey{item.TruckID, item.Category, item.NormalizedComponent}
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], item)
	}

	out := make([]datatypes.ActionItem, 0, len(order))
	for _, key := range order {
		out = append(out, mergeGroup(groups[key]))
	}
	return out
}

// mergeGroup collapses one duplicate group into its primary item.
func mergeGroup(group []datatypes.ActionItem) datatypes.ActionItem {
	if len(group) == 1 {
		return group[0]
	}

	// Highest score wins primary; equal scores break on source trust so
	// the merge stays deterministic.
	sort.SliceStable(group, func(i, j int) bool {
		if group[i].PriorityScore != group[j].PriorityScore {
			return group[i].PriorityScore > group[j].PriorityScore
		}
		return bestSourceWeight(group[i].Sources) > bestSourceWeight(group[j].Sources)
	})
	merged := group[0]

	merged.Sources = unionStrings(collectSources(group), 0)
	merged.ActionSteps = unionStrings(collectSteps(group), maxSteps)

	for _, item := range group[1:] {
		if item.DaysToCritical != nil &&
			(merged.DaysToCritical == nil || *item.DaysToCritical < *merged.DaysToCritical) {
			d := *item.DaysToCritical
			merged.DaysToCritical = &d
		}
	}

	mergeProvenanced(&merged, group)

	if len(merged.Sources) > 1 {
		shown := merged.Sources
		if len(shown) > 3 {
			shown = shown[:3]
		}
		merged.Description = fmt.Sprintf("%s (confirmed by: %s)",
			merged.Description, strings.Join(shown, ", "))
		merged.Confidence = datatypes.ConfidenceHigh
	}

	return merged
}

// mergeProvenanced fills current_value, trend, and threshold from the
// most trusted member that actually has the field.
func mergeProvenanced(merged *datatypes.ActionItem, group []datatypes.ActionItem) {
	bestValue, bestTrend, bestThreshold := -1, -1, -1
	for _, item := range group {
		w := bestSourceWeight(item.Sources)
		if item.CurrentValue != "" && w > bestValue {
			merged.CurrentValue = item.CurrentValue
			bestValue = w
		}
		if item.Trend != "" && w > bestTrend {
			merged.Trend = item.Trend
			bestTrend = w
		}
		if item.Threshold != "" && w > bestThreshold {
			merged.Threshold = item.Threshold
			bestThreshold = w
		}
	}
}

func collectSources(group []datatypes.ActionItem) []string {
	var all []string
	for _, item := range group {
		all = append(all, item.Sources...)
	}
	return all
}

func collectSteps(group []datatypes.ActionItem) []string {
	var all []string
	for _, item := range group {
		all = append(all, item.ActionSteps...)
	}
	return all
}

// unionStrings de-duplicates preserving first-seen order; limit 0 means
// unbounded.
func unionStrings(values []string, limit int) []string {
	seen := make(map[string]bool, len(values))
	var out []string
	for _, v := range values {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}
