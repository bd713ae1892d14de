// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// This file contains cost-range parsing and the repair-horizon
// projection.
package aggregator

import (
	"strconv"
	"strings"

	"github.com/AleutianAI/FleetCore/services/fleetcore/datatypes"
)

// ParseCostRange reads a display estimate of the form "$min - $max"
// (commas tolerated, "$500" treated as min == max). ok is false for
// anything unparseable or inverted.
func ParseCostRange(s string) (minUSD, maxUSD float64, ok bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, 0, false
	}

	parts := strings.SplitN(s, "-", 2)
	minUSD, ok = parseDollars(parts[0])
	if !ok {
		return 0, 0, false
	}
	if len(parts) == 1 {
		return minUSD, minUSD, true
	}
	maxUSD, ok = parseDollars(parts[1])
	if !ok || maxUSD < minUSD {
		return 0, 0, false
	}
	return minUSD, maxUSD, true
}

func parseDollars(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "$")
	s = strings.ReplaceAll(s, ",", "")
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 {
		return 0, false
	}
	return v, true
}

// ProjectCosts buckets the dollar exposure of open items by repair
// horizon. ThisMonth accumulates the earlier buckets so the dashboard
// reads it as "total by end of month".
func ProjectCosts(items []datatypes.ActionItem) datatypes.CostProjection {
	proj := datatypes.CostProjection{Currency: "USD"}

	for _, item := range items {
		minUSD, maxUSD, ok := ParseCostRange(item.CostIfIgnored)
		if !ok {
			continue
		}
		proj.ItemsWithCost++

		switch item.Priority {
		case datatypes.PriorityCritical:
			addCost(&proj.Immediate, minUSD, maxUSD)
		case datatypes.PriorityHigh:
			addCost(&proj.ThisWeek, minUSD, maxUSD)
		default:
			addCost(&proj.ThisMonth, minUSD, maxUSD)
		}
	}

	// Cumulative month view: everything due sooner is also due within
	// the month.
	proj.ThisMonth.MinUSD += proj.Immediate.MinUSD + proj.ThisWeek.MinUSD
	proj.ThisMonth.MaxUSD += proj.Immediate.MaxUSD + proj.ThisWeek.MaxUSD
	proj.ThisMonth.Items += proj.Immediate.Items + proj.ThisWeek.Items

	return proj
}

func addCost(b *datatypes.CostBucket, minUSD, maxUSD float64) {
	b.MinUSD += minUSD
	b.MaxUSD += maxUSD
	b.Items++
}
