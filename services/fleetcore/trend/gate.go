// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// This file contains the temporal persistence gate. A STOP_IMMEDIATELY
// action grounds a truck and a driver; it has to be earned by multiple
// confirming readings inside a sensor-specific window, not by one
// electrical transient.
package trend

import (
	"sync"
	"time"
)

// GateRule is the confirmation requirement for one sensor.
type GateRule struct {
	Confirmations int           `json:"confirmations"`
	Window        time.Duration `json:"window"`
}

// DefaultGateRules returns the baked-in persistence table. Deployments
// override entries through persistence_* config rows.
func DefaultGateRules() map[string]GateRule {
	return map[string]GateRule{
		"oil_press": {Confirmations: 2, Window: 60 * time.Second},
		"cool_temp": {Confirmations: 2, Window: 120 * time.Second},
		"pwr_ext":   {Confirmations: 2, Window: 60 * time.Second},
		"voltage":   {Confirmations: 2, Window: 60 * time.Second},
		"trams_t":   {Confirmations: 3, Window: 300 * time.Second},
		"def_level": {Confirmations: 3, Window: 3600 * time.Second},
		"mpg":       {Confirmations: 5, Window: 86400 * time.Second},
	}
}

// Gate tracks confirming readings per (truck, sensor).
//
// # Thread Safety
//
// Safe for concurrent use.
type Gate struct {
	mu    sync.Mutex
	rules map[string]GateRule
	seen  map[key][]time.Time
}

// NewGate builds a gate; nil rules use the defaults.
func NewGate(rules map[string]GateRule) *Gate {
	if rules == nil {
		rules = DefaultGateRules()
	}
	return &Gate{rules: rules, seen: make(map[key][]time.Time)}
}

// Confirm records one confirming reading and reports whether the
// persistence requirement is now met. Sensors without a rule are always
// met: the gate only protects the sensors it knows how to judge.
func (g *Gate) Confirm(truckID, sensor string, ts time.Time) bool {
	rule, ok := g.rules[sensor]
	if !ok {
		return true
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	k := key{truck: truckID, sensor: sensor}
	times := append(g.seen[k], ts)

	// Drop confirmations that fell out of the window.
	cutoff := ts.Add(-rule.Window)
	kept := times[:0]
	for _, t := range times {
		if !t.Before(cutoff) {
			kept = append(kept, t)
		}
	}
	g.seen[k] = kept

	return len(kept) >= rule.Confirmations
}

// Met reports the current state without recording a new confirmation.
func (g *Gate) Met(truckID, sensor string, now time.Time) bool {
	rule, ok := g.rules[sensor]
	if !ok {
		return true
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	cutoff := now.Add(-rule.Window)
	count := 0
	for _, t := range g.seen[key{truck: truckID, sensor: sensor}] {
		if !t.Before(cutoff) {
			count++
		}
	}
	return count >= rule.Confirmations
}

// Clear forgets the confirmations for one chain, called when the
// underlying condition resolves.
func (g *Gate) Clear(truckID, sensor string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.seen, key{truck: truckID, sensor: sensor})
}
