// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package actions turns detector output into ranked, deduplicated
// action items: component normalization, weighted priority scoring,
// action-type selection, step generation, and cross-source merging.
package actions

import (
	"strings"
	"sync"
)

// Canonical component vocabulary. Every raw component string from any
// detector lands on one of these, or passes through sanitized.
const (
	CompOil          = "oil_system"
	CompCooling      = "cooling_system"
	CompDEF          = "def_system"
	CompTransmission = "transmission"
	CompElectrical   = "electrical"
	CompTurbo        = "turbo_system"
	CompFuel         = "fuel_system"
	CompBrakes       = "brake_system"
	CompGPS          = "gps"
	CompDTC          = "dtc"
	CompEngine       = "engine"
	CompEfficiency   = "efficiency"
)

// keywordRule maps substrings to a canonical component. Order matters:
// the first match wins, so the more specific entries come first.
type keywordRule struct {
	keyword   string
	component string
}

// The fleet operates in Mexico; detectors report components in Spanish,
// English, and raw sensor names interchangeably.
var keywordTable = []keywordRule{
	{"trams_t", CompTransmission},
	{"transmis", CompTransmission}, // transmission / transmisión
	{"caja", CompTransmission},

	{"oil_press", CompOil},
	{"oil_temp", CompOil},
	{"aceite", CompOil},
	{"lubric", CompOil}, // lubricación / lubrication
	{"oil", CompOil},

	{"def_", CompDEF},
	{"def ", CompDEF},
	{"urea", CompDEF},
	{"adblue", CompDEF},
	{"scr", CompDEF},

	{"cool", CompCooling},
	{"coolant", CompCooling},
	{"refriger", CompCooling}, // refrigerante
	{"radiador", CompCooling},
	{"radiator", CompCooling},

	{"pwr_", CompElectrical},
	{"volt", CompElectrical}, // voltage / voltaje
	{"bater", CompElectrical}, // batería
	{"battery", CompElectrical},
	{"alternador", CompElectrical},
	{"alternator", CompElectrical},
	{"electric", CompElectrical},

	{"turbo", CompTurbo},
	{"boost", CompTurbo},
	{"intake", CompTurbo},
	{"admis", CompTurbo}, // admisión

	{"fuel_lvl", CompFuel},
	{"fuel_rate", CompFuel},
	{"combustible", CompFuel},
	{"diesel", CompFuel},
	{"fuel", CompFuel},

	{"freno", CompBrakes},
	{"brake", CompBrakes},

	{"hdop", CompGPS},
	{"sats", CompGPS},
	{"gps", CompGPS},
	{"señal", CompGPS},

	{"dtc", CompDTC},
	{"diagn", CompDTC}, // diagnóstico / diagnostic

	{"mpg", CompEfficiency},
	{"rendimiento", CompEfficiency},
	{"idle", CompEfficiency},
	{"ralent", CompEfficiency}, // ralentí
	{"efficien", CompEfficiency},
	{"eficien", CompEfficiency},

	{"motor", CompEngine},
	{"engine", CompEngine},
	{"rpm", CompEngine},
}

// normCache memoizes normalization results. Component strings repeat
// endlessly across cycles; the table scan runs once per distinct input.
var normCache sync.Map // string -> string

// Normalize maps a raw component string onto the canonical vocabulary.
// Unknown strings pass through lower-cased with spaces collapsed to
// underscores. Idempotent: Normalize(Normalize(x)) == Normalize(x).
func Normalize(raw string) string {
	if cached, ok := normCache.Load(raw); ok {
		return cached.(string)
	}

	lowered := strings.ToLower(strings.TrimSpace(raw))
	result := ""
	for _, rule := range keywordTable {
		if strings.Contains(lowered, rule.keyword) {
			result = rule.component
			break
		}
	}
	if result == "" {
		result = strings.Join(strings.Fields(lowered), "_")
	}

	normCache.Store(raw, result)
	return result
}
