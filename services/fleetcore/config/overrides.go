// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// This file applies runtime overrides from the command_center_config
// table. Operators tune analytics knobs through key/value rows without
// redeploying; rows win over the YAML file and environment.
package config

import (
	"fmt"
	"strconv"
	"strings"
)

// enginePrefixes marks row keys consumed by the analytics engines
// rather than this settings tree: sensor ranges, persistence gates,
// offline thresholds, DEF consumption, scoring weights, and
// correlation signatures.
var enginePrefixes = []string{
	"sensor_range_",
	"persistence_",
	"offline_thresholds",
	"def_consumption",
	"scoring_",
	"correlation_",
}

// EngineOwned reports whether a command_center_config key belongs to
// an analytics engine instead of the settings tree.
func EngineOwned(key string) bool {
	for _, p := range enginePrefixes {
		if strings.HasPrefix(key, p) {
			return true
		}
	}
	return false
}

// ApplyOverrides overlays command_center_config rows on s. Engine-owned
// keys are skipped here; the service routes them to their engines. Each
// remaining key parses independently: a malformed or unknown row is
// reported and skipped, never fatal, so one bad row cannot take down
// ingestion. Returns the number of rows applied and the per-row
// problems.
func ApplyOverrides(s *Settings, rows map[string]string) (int, []error) {
	applied := 0
	var errs []error

	setFloat := func(key, raw string, dst *float64) {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("config row %s: %w", key, err))
			return
		}
		*dst = v
		applied++
	}
	setInt := func(key, raw string, dst *int) {
		v, err := strconv.Atoi(raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("config row %s: %w", key, err))
			return
		}
		*dst = v
		applied++
	}

	for key, raw := range rows {
		if EngineOwned(key) {
			continue
		}
		switch key {
		case "ewma_alpha":
			setFloat(key, raw, &s.Analytics.EWMAAlpha)
		case "cusum_threshold":
			setFloat(key, raw, &s.Analytics.CUSUMThreshold)
		case "trend_ring_max":
			setInt(key, raw, &s.Analytics.TrendRingMax)
		case "trend_record_minutes":
			setInt(key, raw, &s.Analytics.TrendRecordMinutes)
		case "state_flush_seconds":
			setInt(key, raw, &s.Analytics.StateFlushSeconds)
		case "poll_interval_seconds":
			setInt(key, raw, &s.Poller.IntervalSeconds)
		case "fuel_freshness_minutes":
			setInt(key, raw, &s.Poller.FuelFreshnessMinutes)
		case "default_freshness_minutes":
			setInt(key, raw, &s.Poller.DefaultFreshnessMinutes)
		case "dashboard_ttl_seconds":
			setInt(key, raw, &s.Redis.DashboardTTLSeconds)
		case "actions_ttl_seconds":
			setInt(key, raw, &s.Redis.ActionsTTLSeconds)
		case "rate_rps":
			setFloat(key, raw, &s.Service.RateRPS)
		case "rate_burst":
			setInt(key, raw, &s.Service.RateBurst)
		default:
			errs = append(errs, fmt.Errorf("config row %s: unknown key", key))
		}
	}

	if err := s.Validate(); err != nil {
		errs = append(errs, err)
	}
	return applied, errs
}
