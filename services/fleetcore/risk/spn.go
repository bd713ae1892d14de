// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// This file contains the J1939 SPN lookup and DTC string parsing.
package risk

import (
	"strconv"
	"strings"
)

// SPNDef describes one J1939 suspect parameter number.
type SPNDef struct {
	Component string `json:"component"` // normalized component vocabulary
	Name      string `json:"name"`
	Unit      string `json:"unit"`
}

// spnTable is the fixed SPN lookup covering the sensors this pipeline
// reasons about.
var spnTable = map[int]SPNDef{
	190:  {Component: "engine", Name: "Engine Speed", Unit: "rpm"},
	92:   {Component: "engine", Name: "Engine Percent Load", Unit: "%"},
	110:  {Component: "cooling_system", Name: "Engine Coolant Temperature", Unit: "°F"},
	175:  {Component: "oil_system", Name: "Engine Oil Temperature", Unit: "°F"},
	177:  {Component: "transmission", Name: "Transmission Oil Temperature", Unit: "°F"},
	105:  {Component: "turbo_system", Name: "Intake Manifold Temperature", Unit: "°F"},
	100:  {Component: "oil_system", Name: "Engine Oil Pressure", Unit: "psi"},
	1761: {Component: "def_system", Name: "DEF Tank Level", Unit: "%"},
	3031: {Component: "def_system", Name: "DEF Tank Temperature", Unit: "°F"},
	168:  {Component: "electrical", Name: "Battery Potential", Unit: "V"},
	96:   {Component: "fuel_system", Name: "Fuel Level", Unit: "%"},
	183:  {Component: "fuel_system", Name: "Fuel Rate", Unit: "L/h"},
}

// LookupSPN resolves one suspect parameter number.
func LookupSPN(spn int) (SPNDef, bool) {
	def, ok := spnTable[spn]
	return def, ok
}

// criticalFMIs: failure mode indicators that mean the value itself is
// dangerous rather than the sensor being flaky.
var criticalFMIs = map[int]bool{0: true, 1: true, 16: true, 18: true}

// ParseDTCString decodes a raw DTC payload of the form
// "SPN.FMI,SPN.FMI,..." as reported by the telematics device. Unknown
// SPNs are kept with an empty definition so the count is honest.
func ParseDTCString(raw string) []DTC {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "0" {
		return nil
	}

	var out []DTC
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		spnStr, fmiStr, found := strings.Cut(part, ".")
		spn, err := strconv.Atoi(strings.TrimSpace(spnStr))
		if err != nil || spn <= 0 {
			continue
		}
		fmi := 0
		if found {
			if v, err := strconv.Atoi(strings.TrimSpace(fmiStr)); err == nil {
				fmi = v
			}
		}
		def, known := LookupSPN(spn)
		out = append(out, DTC{
			SPN:      spn,
			FMI:      fmi,
			Def:      def,
			Known:    known,
			Critical: criticalFMIs[fmi],
		})
	}
	return out
}

// DTC is one decoded diagnostic trouble code.
type DTC struct {
	SPN      int    `json:"spn"`
	FMI      int    `json:"fmi"`
	Def      SPNDef `json:"def"`
	Known    bool   `json:"known"`
	Critical bool   `json:"critical"`
}
