// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation provides input validation for security-critical values.
//
// Fleet identifiers arrive from HTTP paths, query strings, and upstream
// rows, and end up in SQL predicates, cache keys, and on-disk state keys.
// These validators reject anything outside the expected shapes before it
// reaches a query or a filename.
package validation

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// truckIDPattern matches fleet truck identifiers as provisioned in the
// units_map table: case-insensitive alphanumerics with dots, hyphens, and
// underscores, 1-32 characters.
var truckIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._\-]{0,31}$`)

// sensorNamePattern matches upstream parameter names (e.g. fuel_lvl,
// cool_temp, pwr_ext): lowercase alphanumerics and underscores, 1-32
// characters.
var sensorNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]{0,31}$`)

// ValidateTruckID rejects truck identifiers that could escape a cache key
// or SQL predicate. Valid ids are 1-32 chars of [A-Za-z0-9._-] starting
// with an alphanumeric.
func ValidateTruckID(id string) error {
	if id == "" {
		return fmt.Errorf("truck id cannot be empty")
	}
	if !truckIDPattern.MatchString(id) {
		return fmt.Errorf("invalid truck id: %q (must be 1-32 alphanumeric chars, dots, hyphens, or underscores)", id)
	}
	return nil
}

// SanitizeTruckID trims and validates a truck identifier. The id is
// returned as provisioned (case preserved) when valid.
//
//	truckID, err := validation.SanitizeTruckID(c.Param("id"))
//	if err != nil {
//	    c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
//	    return
//	}
func SanitizeTruckID(id string) (string, error) {
	trimmed := strings.TrimSpace(id)
	if err := ValidateTruckID(trimmed); err != nil {
		return "", err
	}
	return trimmed, nil
}

// ValidateSensorName rejects sensor/parameter names outside the upstream
// naming convention (lowercase snake_case, 1-32 chars).
func ValidateSensorName(name string) error {
	if name == "" {
		return fmt.Errorf("sensor name cannot be empty")
	}
	if !sensorNamePattern.MatchString(name) {
		return fmt.Errorf("invalid sensor name: %q (must be lowercase snake_case, 1-32 chars)", name)
	}
	return nil
}

// SanitizeSensorName lowercases, trims, and validates a sensor name.
func SanitizeSensorName(name string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(name))
	if err := ValidateSensorName(normalized); err != nil {
		return "", err
	}
	return normalized, nil
}

// ParseSPN parses a J1939 Suspect Parameter Number from a path segment.
// SPNs are positive integers; the J1939-71 range tops out below 600000.
func ParseSPN(s string) (int, error) {
	spn, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid SPN %q: not a number", s)
	}
	if spn <= 0 || spn >= 600000 {
		return 0, fmt.Errorf("invalid SPN %d: out of range", spn)
	}
	return spn, nil
}
