// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package registry holds the static tank registry: one TruckConfig
// per truck, loaded once at startup, immutable afterwards. Every
// downstream stage resolves trucks through it, so construction fails
// loudly on duplicate or malformed entries instead of letting a bad
// fleet definition leak into the pipeline.
package registry

import (
	"fmt"
	"sort"

	"github.com/AleutianAI/FleetCore/pkg/validation"
	"github.com/AleutianAI/FleetCore/services/fleetcore/config"
	"github.com/AleutianAI/FleetCore/services/fleetcore/datatypes"
)

// Registry is the immutable truck lookup table.
//
// # Thread Safety
//
// Safe for concurrent use: all state is written during New and only
// read afterwards.
type Registry struct {
	byTruckID map[string]datatypes.TruckConfig
	byUnitID  map[int]datatypes.TruckConfig
	ordered   []datatypes.TruckConfig // sorted by truck_id
}

// New builds the registry from the merged truck configs.
//
// # Inputs
//
//   - configs: one entry per truck, typically from Merge
//
// # Outputs
//
//   - *Registry: ready for lookups
//   - error: non-nil on an empty fleet, an invalid truck ID, a
//     non-positive unit ID or capacity, or a duplicate key
func New(configs []datatypes.TruckConfig) (*Registry, error) {
	if len(configs) == 0 {
		return nil, fmt.Errorf("tank registry is empty: no trucks to track")
	}

	r := &Registry{
		byTruckID: make(map[string]datatypes.TruckConfig, len(configs)),
		byUnitID:  make(map[int]datatypes.TruckConfig, len(configs)),
	}

	for _, cfg := range configs {
		id, err := validation.SanitizeTruckID(cfg.TruckID)
		if err != nil {
			return nil, fmt.Errorf("truck %q: %w", cfg.TruckID, err)
		}
		cfg.TruckID = id

		if cfg.UnitID <= 0 {
			return nil, fmt.Errorf("truck %s: unit id %d must be positive", cfg.TruckID, cfg.UnitID)
		}
		if cfg.CapacityGallons <= 0 {
			return nil, fmt.Errorf("truck %s: capacity %.1f gal must be positive", cfg.TruckID, cfg.CapacityGallons)
		}
		if cfg.RefuelFactor < 0 {
			return nil, fmt.Errorf("truck %s: refuel factor %.3f must not be negative", cfg.TruckID, cfg.RefuelFactor)
		}

		if prev, dup := r.byTruckID[cfg.TruckID]; dup {
			return nil, fmt.Errorf("duplicate truck id %s (units %d and %d)", cfg.TruckID, prev.UnitID, cfg.UnitID)
		}
		if prev, dup := r.byUnitID[cfg.UnitID]; dup {
			return nil, fmt.Errorf("duplicate unit id %d (trucks %s and %s)", cfg.UnitID, prev.TruckID, cfg.TruckID)
		}

		r.byTruckID[cfg.TruckID] = cfg
		r.byUnitID[cfg.UnitID] = cfg
		r.ordered = append(r.ordered, cfg)
	}

	sort.Slice(r.ordered, func(i, j int) bool {
		return r.ordered[i].TruckID < r.ordered[j].TruckID
	})
	return r, nil
}

// Merge overlays config-file truck entries on the upstream units_map
// rows. Overrides matching an existing truck_id adjust carrier,
// refuel factor, and capacity; overrides with an unknown truck_id and
// a unit id add a new truck (fleets often outrun the upstream
// mapping table by a few vehicles).
func Merge(upstream []datatypes.TruckConfig, overrides []config.TruckOverride) []datatypes.TruckConfig {
	merged := make([]datatypes.TruckConfig, len(upstream))
	copy(merged, upstream)

	index := make(map[string]int, len(merged))
	for i, cfg := range merged {
		index[cfg.TruckID] = i
	}

	for _, o := range overrides {
		if i, ok := index[o.TruckID]; ok {
			if o.CapacityGallons > 0 {
				merged[i].CapacityGallons = o.CapacityGallons
			}
			if o.CarrierID != "" {
				merged[i].CarrierID = o.CarrierID
			}
			if o.RefuelFactor > 0 {
				merged[i].RefuelFactor = o.RefuelFactor
			}
			continue
		}
		if o.UnitID <= 0 {
			// Additions need a unit id; skip silently — New will
			// still catch a fleet that ends up empty.
			continue
		}
		merged = append(merged, datatypes.TruckConfig{
			TruckID:         o.TruckID,
			UnitID:          o.UnitID,
			CapacityGallons: o.CapacityGallons,
			CarrierID:       o.CarrierID,
			RefuelFactor:    o.RefuelFactor,
		})
		index[o.TruckID] = len(merged) - 1
	}
	return merged
}

// ByTruckID looks up one truck by its stable fleet identifier.
func (r *Registry) ByTruckID(truckID string) (datatypes.TruckConfig, bool) {
	cfg, ok := r.byTruckID[truckID]
	return cfg, ok
}

// ByUnitID looks up one truck by its upstream unit number.
func (r *Registry) ByUnitID(unitID int) (datatypes.TruckConfig, bool) {
	cfg, ok := r.byUnitID[unitID]
	return cfg, ok
}

// All returns every truck, sorted by truck_id. The slice is a copy.
func (r *Registry) All() []datatypes.TruckConfig {
	out := make([]datatypes.TruckConfig, len(r.ordered))
	copy(out, r.ordered)
	return out
}

// UnitIDs returns every upstream unit number, in truck_id order.
func (r *Registry) UnitIDs() []int {
	out := make([]int, 0, len(r.ordered))
	for _, cfg := range r.ordered {
		out = append(out, cfg.UnitID)
	}
	return out
}

// Count returns the fleet size.
func (r *Registry) Count() int { return len(r.ordered) }
