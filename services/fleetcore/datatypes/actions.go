// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// This file contains the action item produced by the command-center
// aggregation pass.
package datatypes

import "time"

// ActionItem is one ranked, deduplicated maintenance or operational
// issue for a specific truck. The aggregator merges items from every
// detection source into a single ordered list of these.
type ActionItem struct {
	// ID is a UUID assigned at creation. Merged duplicates keep the
	// ID of the higher-ranked source.
	ID string `json:"id"`

	TruckID  string   `json:"truck_id"`
	Priority Priority `json:"priority"`

	// PriorityScore is the composite 0-100 urgency score the list is
	// sorted by (descending).
	PriorityScore float64 `json:"priority_score"`

	Category Category `json:"category"`

	// Component is the raw component string from the detector;
	// NormalizedComponent is the canonical system name duplicates are
	// matched on.
	Component           string `json:"component"`
	NormalizedComponent string `json:"normalized_component"`

	Title       string `json:"title"`
	Description string `json:"description"`

	// DaysToCritical estimates time until the issue becomes severe.
	// Nil when the detector cannot project one.
	DaysToCritical *float64 `json:"days_to_critical,omitempty"`

	// CostIfIgnored is a display string, e.g. "$18,000".
	CostIfIgnored string `json:"cost_if_ignored,omitempty"`

	CurrentValue string         `json:"current_value,omitempty"`
	Trend        TrendDirection `json:"trend,omitempty"`
	Threshold    string         `json:"threshold,omitempty"`

	Confidence Confidence `json:"confidence"`
	ActionType ActionType `json:"action_type"`

	// ActionSteps is the concrete checklist for the operator.
	ActionSteps []string `json:"action_steps,omitempty"`

	// Icon is a UI hint keyed by category/component.
	Icon string `json:"icon,omitempty"`

	// Sources lists every detector that reported this issue. Grows
	// when duplicates merge.
	Sources []string `json:"sources"`

	CreatedAt time.Time `json:"created_at"`
}

// HasSource reports whether the named detector already contributed to
// this item.
func (a *ActionItem) HasSource(source string) bool {
	for _, s := range a.Sources {
		if s == source {
			return true
		}
	}
	return false
}

// UrgencySummary counts action items per priority band.
type UrgencySummary struct {
	Critical int `json:"critical"`
	High     int `json:"high"`
	Medium   int `json:"medium"`
	Low      int `json:"low"`
	Total    int `json:"total"`
}

// Add counts one item into the summary.
func (u *UrgencySummary) Add(p Priority) {
	switch p {
	case PriorityCritical:
		u.Critical++
	case PriorityHigh:
		u.High++
	case PriorityMedium:
		u.Medium++
	case PriorityLow:
		u.Low++
	}
	u.Total++
}
