// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// This file contains the serializable estimator state: the snapshot
// written by the state-flush worker and restored at startup.
package estimator

import (
	"errors"
	"time"
)

// ErrStateStale rejects persisted state older than the tuning's
// StateMaxAge; the truck starts fresh instead of trusting a level from
// a different shift.
var ErrStateStale = errors.New("persisted estimator state is stale")

// PersistedState is the durable form of one Truck's estimator state.
type PersistedState struct {
	TruckID string `json:"truck_id"`

	Mean        float64   `json:"mean_pct"`
	Variance    float64   `json:"variance"`
	Initialized bool      `json:"initialized"`
	LastTS      time.Time `json:"last_ts"`

	ECULastTotal float64   `json:"ecu_last_total"`
	ECUHasLast   bool      `json:"ecu_has_last"`
	ECUFailures  int       `json:"ecu_failures"`
	ECUDegraded  bool      `json:"ecu_degraded"`
	ECUDegradedAt time.Time `json:"ecu_degraded_at,omitempty"`

	History     []fuelReading  `json:"history,omitempty"`
	LastGood    *fuelReading   `json:"last_good,omitempty"`
	Pending     *pendingRefuel `json:"pending_refuel,omitempty"`
	LastRefuel  time.Time      `json:"last_refuel,omitempty"`
	Drop        *openDrop      `json:"open_drop,omitempty"`
	DriftSince  time.Time      `json:"drift_since,omitempty"`

	SavedAt time.Time `json:"saved_at"`
}

// Snapshot captures the current state for persistence.
func (t *Truck) Snapshot(now time.Time) PersistedState {
	st := PersistedState{
		TruckID:       t.cfg.TruckID,
		Mean:          t.filter.mean,
		Variance:      t.filter.variance,
		Initialized:   t.initialized,
		LastTS:        t.lastTS,
		ECULastTotal:  t.ecu.lastTotal,
		ECUHasLast:    t.ecu.hasLast,
		ECUFailures:   t.ecu.failures,
		ECUDegraded:   t.ecu.degraded,
		ECUDegradedAt: t.ecu.degradedAt,
		LastRefuel:    t.refuel.lastEnd,
		Pending:       t.refuel.pending,
		Drop:          t.drop,
		DriftSince:    t.driftSince,
		SavedAt:       now,
	}
	st.History = append(st.History, t.history...)
	if t.hasLastGood {
		lg := t.lastGood
		st.LastGood = &lg
	}
	return st
}

// Restore loads persisted state into a fresh Truck. State saved more
// than StateMaxAge before now is rejected with ErrStateStale.
func (t *Truck) Restore(st PersistedState, now time.Time) error {
	if now.Sub(st.SavedAt) > t.tuning.StateMaxAge {
		return ErrStateStale
	}
	if st.LastTS.IsZero() || now.Sub(st.LastTS) > t.tuning.StateMaxAge {
		return ErrStateStale
	}

	t.filter = filter{mean: clampPct(st.Mean), variance: st.Variance}
	if t.filter.variance < t.tuning.VarianceFloor {
		t.filter.variance = t.tuning.VarianceFloor
	}
	t.initialized = st.Initialized
	t.lastTS = st.LastTS

	t.ecu.lastTotal = st.ECULastTotal
	t.ecu.hasLast = st.ECUHasLast
	t.ecu.failures = st.ECUFailures
	t.ecu.degraded = st.ECUDegraded
	t.ecu.degradedAt = st.ECUDegradedAt

	t.refuel.lastEnd = st.LastRefuel
	t.refuel.pending = st.Pending

	t.history = append(t.history[:0], st.History...)
	if st.LastGood != nil {
		t.lastGood = *st.LastGood
		t.hasLastGood = true
	}
	t.drop = st.Drop
	t.driftSince = st.DriftSince
	return nil
}

// EstimatedPct exposes the current posterior for read-only views.
func (t *Truck) EstimatedPct() float64 { return t.filter.mean }

// Initialized reports whether the filter has been seeded by a gauge
// reading yet.
func (t *Truck) Initialized() bool { return t.initialized }
